// Package remote adapts cloud document databases to the single contract the
// sync engine talks to. Every network or permission failure is reported as
// common.ErrRemoteUnavailable and a missing document as common.ErrNotFound;
// nothing here retries.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
)

// Filter is an equality condition on a top-level attribute.
type Filter struct {
	Attr  string
	Value any
}

// Query selects documents of one collection. Zero Limit means no limit.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Where returns a copy of q with one more equality filter.
func (q Query) Where(attr string, value any) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, Filter{Attr: attr, Value: value})
	return q
}

// Order returns a copy of q sorted by attr.
func (q Query) Order(attr string, desc bool) Query {
	q.OrderBy = attr
	q.Desc = desc
	return q
}

// Take returns a copy of q limited to n documents.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Store is a remote document database.
type Store interface {
	// Create stores doc and returns its id. A doc carrying an id keeps it;
	// otherwise the backend assigns one.
	Create(ctx context.Context, coll models.Collection, doc models.Document) (string, error)
	Get(ctx context.Context, coll models.Collection, id string) (models.Document, error)
	// Merge upserts doc over the existing record, attribute by attribute.
	Merge(ctx context.Context, coll models.Collection, id string, doc models.Document) error
	Delete(ctx context.Context, coll models.Collection, id string) error
	Query(ctx context.Context, coll models.Collection, q Query) ([]models.Document, error)
	// DeleteBatch removes all ids atomically.
	DeleteBatch(ctx context.Context, coll models.Collection, ids []string) error
	// Watch calls fn with the full result of q now and after every change
	// until the returned stop function is called or ctx ends.
	Watch(ctx context.Context, coll models.Collection, q Query, fn func([]models.Document)) (func(), error)
	Ping(ctx context.Context) error
	Close() error
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validate(coll models.Collection, q Query) error {
	if !coll.Valid() {
		return fmt.Errorf("%w: unknown collection %q", common.ErrValidation, coll)
	}
	for _, f := range q.Filters {
		if !identRe.MatchString(f.Attr) {
			return fmt.Errorf("%w: bad attribute name %q", common.ErrValidation, f.Attr)
		}
	}
	if q.OrderBy != "" && !identRe.MatchString(q.OrderBy) {
		return fmt.Errorf("%w: bad attribute name %q", common.ErrValidation, q.OrderBy)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrRemoteUnavailable, op, err)
}

// normalize deep-copies doc through JSON so every backend hands out the same
// value shapes (float64 numbers, []any, map[string]any).
func normalize(doc map[string]any) (models.Document, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return models.ParseDocument(b)
}

func normalizeValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
