package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Base carries the envelope attributes shared by every entity.
type Base struct {
	ID         string     `json:"id,omitempty"`
	StoreID    string     `json:"storeId,omitempty"`
	SyncStatus SyncStatus `json:"syncStatus,omitempty"`
	CreatedAt  string     `json:"_createdAt,omitempty"`
	UpdatedAt  string     `json:"_updatedAt,omitempty"`
}

// Envelope gives generic code access to the embedded Base.
func (b *Base) Envelope() *Base { return b }

// Created parses CreatedAt; the zero time is returned when unset or invalid.
func (b *Base) Created() time.Time {
	t, err := time.Parse(time.RFC3339Nano, b.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Entity is implemented by pointers to the typed records below.
type Entity interface {
	Collection() Collection
	Envelope() *Base
}

// EntityPtr constrains P to be *T implementing Entity, so generic code can
// allocate a T and still call Entity methods.
type EntityPtr[T any] interface {
	*T
	Entity
}

// ToDocument converts a typed entity into its Document form.
func ToDocument(e Entity) (Document, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Collection(), err)
	}
	return ParseDocument(b)
}

// FromDocument decodes d into a new T.
func FromDocument[T any, P EntityPtr[T]](d Document) (P, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := P(new(T))
	if err := json.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", out.Collection(), err)
	}
	return out, nil
}
