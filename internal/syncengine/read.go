package syncengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/localstore"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/dmitrijs2005/shopkeeper/internal/remote"
)

func (e *Engine) localOrNil(ctx context.Context, coll models.Collection, id string) (models.Document, error) {
	doc, err := e.local.Get(ctx, coll, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// Get returns one record by id, from the remote when reachable and from
// the local cache otherwise.
func (e *Engine) Get(ctx context.Context, coll models.Collection, id string) (models.Document, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}

	if e.conn.IsOnline() {
		doc, err := e.remote.Get(ctx, coll, id)
		switch {
		case err == nil && !e.owns(coll, doc):
			return nil, notFound(coll, id)
		case err == nil:
			return e.absorb(ctx, coll, []models.Document{doc})[0], nil
		case e.opts.CloudOnly:
			return nil, err
		case errors.Is(err, common.ErrNotFound):
			// may exist locally as a record not pushed yet
		default:
			e.remoteFailed(ctx, "get", coll, err)
		}
	}

	doc, err := e.local.Get(ctx, coll, id)
	if err != nil {
		return nil, err
	}
	if !e.owns(coll, doc) {
		return nil, notFound(coll, id)
	}
	return doc, nil
}

// current returns the stored state of a record about to be changed: the
// local copy, or the remote one when there is none locally and the remote
// is reachable. A record of another tenant is reported as not found; a
// record that exists nowhere yields nil.
func (e *Engine) current(ctx context.Context, coll models.Collection, id string) (models.Document, error) {
	doc, err := e.localOrNil(ctx, coll, id)
	if err != nil {
		return nil, err
	}
	if doc == nil && e.conn.IsOnline() {
		rdoc, err := e.remote.Get(ctx, coll, id)
		switch {
		case err == nil:
			doc = rdoc
		case errors.Is(err, common.ErrNotFound):
		case e.opts.CloudOnly:
			return nil, err
		default:
			e.remoteFailed(ctx, "get", coll, err)
		}
	}
	if doc != nil && !e.owns(coll, doc) {
		return nil, notFound(coll, id)
	}
	return doc, nil
}

// GetAll returns every record of the current tenant.
func (e *Engine) GetAll(ctx context.Context, coll models.Collection) ([]models.Document, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}

	if e.conn.IsOnline() {
		docs, err := e.scoped().Query(ctx, coll, remote.Query{})
		switch {
		case err == nil:
			return e.withLocalPending(ctx, coll, e.absorb(ctx, coll, docs), func() ([]models.Document, error) {
				return e.local.QueryBySecondaryEqual(ctx, coll, models.AttrSyncStatus, models.Pending)
			}), nil
		case e.opts.CloudOnly:
			return nil, err
		default:
			e.remoteFailed(ctx, "query", coll, err)
		}
	}

	docs, err := e.local.GetAll(ctx, coll)
	if err != nil {
		return nil, err
	}
	return e.visible(docs), nil
}

// GetByIndex returns the first record whose attr equals value. Users are
// looked up across all tenants so a login can find its account.
func (e *Engine) GetByIndex(ctx context.Context, coll models.Collection, attr string, value any) (models.Document, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}
	global := coll == models.Users

	if e.conn.IsOnline() {
		rs := e.scoped()
		if global {
			rs = rs.Global()
		}
		docs, err := rs.Query(ctx, coll, remote.Query{}.Where(attr, value).Take(1))
		switch {
		case err == nil && len(docs) > 0:
			return e.absorb(ctx, coll, docs)[0], nil
		case err == nil:
			// may exist locally as a record not pushed yet
		case e.opts.CloudOnly:
			return nil, err
		default:
			e.remoteFailed(ctx, "query", coll, err)
		}
	}

	docs, err := e.local.QueryBySecondaryEqual(ctx, coll, attr, value)
	if err != nil {
		return nil, err
	}
	if !global {
		docs = e.visible(docs)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s where %s = %v", common.ErrNotFound, coll, attr, value)
	}
	return docs[0], nil
}

// GetAllByIndex returns the current tenant's records whose attr equals value.
func (e *Engine) GetAllByIndex(ctx context.Context, coll models.Collection, attr string, value any) ([]models.Document, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}

	if e.conn.IsOnline() {
		docs, err := e.scoped().Query(ctx, coll, remote.Query{}.Where(attr, value))
		switch {
		case err == nil:
			return e.withLocalPending(ctx, coll, e.absorb(ctx, coll, docs), func() ([]models.Document, error) {
				pending, err := e.local.QueryBySecondaryEqual(ctx, coll, models.AttrSyncStatus, models.Pending)
				if err != nil {
					return nil, err
				}
				out := pending[:0]
				for _, d := range pending {
					if fmt.Sprint(d[attr]) == fmt.Sprint(value) {
						out = append(out, d)
					}
				}
				return out, nil
			}), nil
		case e.opts.CloudOnly:
			return nil, err
		default:
			e.remoteFailed(ctx, "query", coll, err)
		}
	}

	docs, err := e.local.QueryBySecondaryEqual(ctx, coll, attr, value)
	if err != nil {
		return nil, err
	}
	return e.visible(docs), nil
}

// absorb mirrors remote records into the local cache and returns what the
// caller should see. A local record still pending wins over the remote copy
// so reads between reconnect and replay cannot drop offline edits.
func (e *Engine) absorb(ctx context.Context, coll models.Collection, docs []models.Document) []models.Document {
	out := make([]models.Document, len(docs))
	fresh := make([]models.Document, 0, len(docs))

	for i, doc := range docs {
		if local, err := e.local.Get(ctx, coll, doc.ID()); err == nil && local.IsPending() {
			out[i] = local
			continue
		}
		d := doc.Clone()
		d[models.AttrSyncStatus] = string(models.Synced)
		out[i] = d
		fresh = append(fresh, d)
	}

	if len(fresh) == 0 {
		return out
	}
	err := e.local.WithTx(ctx, func(ctx context.Context, w localstore.Writer) error {
		for _, d := range fresh {
			if _, err := w.Put(ctx, coll, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.log.Warn(ctx, "mirroring remote records failed", "collection", coll, "count", len(fresh), "error", err)
	}
	return out
}

// withLocalPending appends visible pending records the remote does not
// know about yet.
func (e *Engine) withLocalPending(ctx context.Context, coll models.Collection, docs []models.Document, pending func() ([]models.Document, error)) []models.Document {
	if e.opts.CloudOnly {
		return docs
	}
	extra, err := pending()
	if err != nil {
		e.log.Warn(ctx, "reading pending records failed", "collection", coll, "error", err)
		return docs
	}

	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		seen[d.ID()] = struct{}{}
	}
	for _, d := range e.visible(extra) {
		if _, ok := seen[d.ID()]; !ok {
			docs = append(docs, d)
		}
	}
	return docs
}

// visible keeps records of the current tenant and records without owner.
func (e *Engine) visible(docs []models.Document) []models.Document {
	tenant := e.Tenant()
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if d.VisibleTo(tenant) {
			out = append(out, d)
		}
	}
	return out
}
