// Package session describes who is using the node and which store
// (tenant) their data belongs to.
package session

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
)

// Roles.
const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Session struct {
	UserID  string
	StoreID string
	Role    string
}

// TenantOf resolves the store a session works in. Anonymous sessions and
// sessions without a store use the default store.
func TenantOf(s *Session) string {
	if s == nil || s.StoreID == "" {
		return common.DefaultStoreID
	}
	return s.StoreID
}

// Provider yields the current session, or nil when nobody is logged in.
type Provider interface {
	Current() *Session
}

// Holder is a Provider whose session can be replaced at runtime, e.g. on
// login and logout.
type Holder struct {
	mu  sync.RWMutex
	cur *Session
}

func NewHolder(s *Session) *Holder { return &Holder{cur: s} }

func (h *Holder) Current() *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur
}

func (h *Holder) Set(s *Session) {
	h.mu.Lock()
	h.cur = s
	h.mu.Unlock()
}

func (h *Holder) Clear() { h.Set(nil) }

// Static always returns the same session.
type Static struct{ S *Session }

func (s Static) Current() *Session { return s.S }

type ctxKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}
