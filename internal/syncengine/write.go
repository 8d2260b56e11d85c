package syncengine

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
)

// stampNew prepares a record for its first write.
func (e *Engine) stampNew(coll models.Collection, data models.Document) models.Document {
	doc := data.Clone()
	if doc == nil {
		doc = models.Document{}
	}
	// a session's records always belong to its own store
	if coll.Tenanted() && (doc.StoreID() == "" || e.Tenant() != "") {
		doc[models.AttrStoreID] = e.Tenant()
	}
	doc[models.AttrCreatedAt] = e.created()
	delete(doc, models.AttrSyncStatus)
	return doc
}

// Add creates a record. Online, the remote database assigns the id; when
// the remote is unreachable the record gets a local id, is stored as
// pending and Add still succeeds.
func (e *Engine) Add(ctx context.Context, coll models.Collection, data models.Document) (models.Document, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}
	doc := e.stampNew(coll, data)

	status := models.Pending
	if e.conn.IsOnline() {
		id, err := e.remote.Create(ctx, coll, doc)
		switch {
		case err == nil:
			doc[models.AttrID] = id
			status = models.Synced
		case e.opts.CloudOnly:
			return nil, err
		default:
			e.remoteFailed(ctx, "create", coll, err)
		}
	}

	if doc.ID() == "" {
		doc[models.AttrID] = e.NewID()
	}
	doc[models.AttrSyncStatus] = string(status)

	if _, err := e.local.Put(ctx, coll, doc); err != nil {
		return nil, err
	}
	e.log.Debug(ctx, "record added", "collection", coll, "id", doc.ID(), "status", status)
	return doc, nil
}

// Update merges data over the current record. data must carry the id.
// Only the attributes in data are sent to the remote, so updates touching
// disjoint attributes commute; a record that was never pushed is sent
// whole.
func (e *Engine) Update(ctx context.Context, coll models.Collection, data models.Document) (models.Document, error) {
	if err := checkCollection(coll); err != nil {
		return nil, err
	}
	id := data.ID()
	if id == "" {
		return nil, fmt.Errorf("%w: update %s without id", common.ErrValidation, coll)
	}

	existing, err := e.current(ctx, coll, id)
	if err != nil {
		return nil, err
	}
	if err := e.checkOwner(coll, existing, data); err != nil {
		return nil, err
	}

	patch := data.Without(models.AttrSyncStatus)
	patch[models.AttrUpdatedAt] = e.now()
	merged := existing.Merge(patch)

	status := models.Pending
	if e.conn.IsOnline() {
		push := patch
		if existing == nil || existing.IsPending() {
			push = merged.Without(models.AttrSyncStatus)
		}
		err := e.remote.Merge(ctx, coll, id, push)
		switch {
		case err == nil:
			status = models.Synced
		case e.opts.CloudOnly:
			return nil, err
		default:
			e.remoteFailed(ctx, "merge", coll, err)
		}
	}
	merged[models.AttrSyncStatus] = string(status)

	if _, err := e.local.Put(ctx, coll, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Remove deletes a record locally and, when online, remotely. A failed
// remote delete is only logged; the record is not re-queued.
func (e *Engine) Remove(ctx context.Context, coll models.Collection, id string) error {
	if err := checkCollection(coll); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: remove %s without id", common.ErrValidation, coll)
	}

	existing, err := e.current(ctx, coll, id)
	if err != nil {
		return err
	}
	if existing == nil && !e.conn.IsOnline() {
		return nil
	}

	if err := e.local.Delete(ctx, coll, id); err != nil {
		return err
	}

	if !e.conn.IsOnline() {
		return nil
	}
	if err := e.remote.Delete(ctx, coll, id); err != nil {
		if e.opts.CloudOnly {
			return err
		}
		e.log.Warn(ctx, "remote delete failed", "collection", coll, "id", id, "error", err)
	}
	return nil
}

// checkOwner rejects a patch that would hand a tenanted record to another
// store. The owner of a new record defaults to the current tenant.
func (e *Engine) checkOwner(coll models.Collection, existing, patch models.Document) error {
	if !coll.Tenanted() {
		return nil
	}
	owner := e.Tenant()
	if existing != nil && existing.StoreID() != "" {
		owner = existing.StoreID()
	}
	if s, ok := patch[models.AttrStoreID]; ok && s != owner {
		return fmt.Errorf("%w: %s/%s cannot move to store %v", common.ErrValidation, coll, patch.ID(), s)
	}
	return nil
}
