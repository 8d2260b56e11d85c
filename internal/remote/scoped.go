package remote

import (
	"context"

	"github.com/dmitrijs2005/shopkeeper/internal/models"
)

// Scoped restricts queries to one tenant: every Query and Watch gets a
// storeId filter, except on the stores collection. Global lifts the
// restriction for lookups that must see every tenant, such as finding a
// user by name at login.
type Scoped struct {
	Store
	tenant string
	global bool
}

func Scope(s Store, tenant string) *Scoped {
	if sc, ok := s.(*Scoped); ok {
		s = sc.Store
	}
	return &Scoped{Store: s, tenant: tenant}
}

func (s *Scoped) Tenant() string { return s.tenant }

// Global returns an unrestricted view over the same backend.
func (s *Scoped) Global() *Scoped {
	return &Scoped{Store: s.Store, tenant: s.tenant, global: true}
}

func (s *Scoped) scope(coll models.Collection, q Query) Query {
	if s.global || !coll.Tenanted() {
		return q
	}
	return q.Where(models.AttrStoreID, s.tenant)
}

func (s *Scoped) Query(ctx context.Context, coll models.Collection, q Query) ([]models.Document, error) {
	return s.Store.Query(ctx, coll, s.scope(coll, q))
}

func (s *Scoped) Watch(ctx context.Context, coll models.Collection, q Query, fn func([]models.Document)) (func(), error) {
	return s.Store.Watch(ctx, coll, s.scope(coll, q), fn)
}
