package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope attributes present on every record.
const (
	AttrID         = "id"
	AttrStoreID    = "storeId"
	AttrSyncStatus = "syncStatus"
	AttrCreatedAt  = "_createdAt"
	AttrUpdatedAt  = "_updatedAt"
)

// TimeLayout is used for _createdAt/_updatedAt. Fixed width keeps string
// order equal to time order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// SyncStatus tells whether the remote copy of a record is known to match
// the local one.
type SyncStatus string

const (
	Synced  SyncStatus = "synced"
	Pending SyncStatus = "pending"
)

// Document is a schemaless record as stored locally and remotely.
type Document map[string]any

func (d Document) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

func (d Document) ID() string      { return d.String(AttrID) }
func (d Document) StoreID() string { return d.String(AttrStoreID) }

func (d Document) SyncStatus() SyncStatus {
	return SyncStatus(d.String(AttrSyncStatus))
}

func (d Document) IsPending() bool { return d.SyncStatus() == Pending }

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Document(t).Clone())
	case Document:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Merge returns a copy of d with every top-level attribute of patch laid
// over it.
func (d Document) Merge(patch Document) Document {
	out := d.Clone()
	if out == nil {
		out = Document{}
	}
	for k, v := range patch {
		out[k] = cloneValue(v)
	}
	return out
}

// Without returns a copy of d without the named attributes.
func (d Document) Without(keys ...string) Document {
	out := d.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// VisibleTo reports whether d belongs to tenant or to nobody.
func (d Document) VisibleTo(tenant string) bool {
	s, ok := d[AttrStoreID]
	if !ok || s == nil || s == "" {
		return true
	}
	return s == tenant
}

// ParseDocument decodes a JSON object into a Document.
func ParseDocument(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if d == nil {
		return nil, fmt.Errorf("decode document: not an object")
	}
	return d, nil
}
