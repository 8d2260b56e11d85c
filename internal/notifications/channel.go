// Package notifications keeps a short per-store history of operational
// events (sales, stock changes) and streams it to subscribers.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/localstore"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/dmitrijs2005/shopkeeper/internal/remote"
	"github.com/dmitrijs2005/shopkeeper/internal/session"
	"github.com/dmitrijs2005/shopkeeper/internal/syncengine"
)

// DefaultLimit is how many notifications a store keeps.
const DefaultLimit = 5

type Channel struct {
	eng    *syncengine.Engine
	remote remote.Store
	local  localstore.Store
	conn   syncengine.Connectivity
	pusher Pusher
	log    logging.Logger
	limit  int
}

// New builds a channel writing through eng. pusher may be nil.
func New(eng *syncengine.Engine, rem remote.Store, local localstore.Store, conn syncengine.Connectivity, pusher Pusher, log logging.Logger, limit int) *Channel {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Channel{
		eng:    eng,
		remote: rem,
		local:  local,
		conn:   conn,
		pusher: pusher,
		log:    log.With("component", "notifications"),
		limit:  limit,
	}
}

// ForSession returns a channel bound to the tenant of s.
func (c *Channel) ForSession(s *session.Session) *Channel {
	view := *c
	view.eng = c.eng.ForSession(s)
	return &view
}

func (c *Channel) Limit() int { return c.limit }

func (c *Channel) historyQuery() remote.Query {
	return remote.Query{}.Order(models.AttrCreatedAt, true).Take(c.limit)
}

// Notify records an event for the current store. Remote trouble never
// fails the call: the notification is then kept locally only.
func (c *Channel) Notify(ctx context.Context, kind, title, message string, metadata map[string]any) (models.Document, error) {
	doc := models.Document{
		"type":    kind,
		"title":   title,
		"message": message,
		"read":    false,
	}
	if metadata != nil {
		doc["metadata"] = metadata
	}

	stored, err := c.eng.Add(ctx, models.Notifications, doc)
	if err != nil {
		if errors.Is(err, common.ErrRemoteUnavailable) {
			c.log.Warn(ctx, "notification not delivered", "type", kind, "error", err)
			return doc, nil
		}
		return nil, fmt.Errorf("store notification: %w", err)
	}

	if stored.SyncStatus() != models.Synced {
		return stored, nil
	}

	if err := c.prune(ctx); err != nil {
		c.log.Warn(ctx, "notification prune failed", "error", err)
	}
	if c.pusher != nil {
		if err := c.pusher.Push(ctx, c.eng.Tenant(), stored); err != nil {
			c.log.Warn(ctx, "notification push failed", "topic", Topic(c.eng.Tenant()), "error", err)
		}
	}
	return stored, nil
}

// prune drops everything beyond the newest limit notifications of the
// current store, remotely in one batch and then locally.
func (c *Channel) prune(ctx context.Context) error {
	rs := remote.Scope(c.remote, c.eng.Tenant())
	all, err := rs.Query(ctx, models.Notifications, remote.Query{}.Order(models.AttrCreatedAt, true))
	if err != nil {
		if errors.Is(err, common.ErrRemoteUnavailable) {
			c.conn.MarkOffline(ctx, err)
		}
		return err
	}
	if len(all) <= c.limit {
		return nil
	}

	excess := all[c.limit:]
	ids := make([]string, 0, len(excess))
	for _, d := range excess {
		ids = append(ids, d.ID())
	}
	if err := c.remote.DeleteBatch(ctx, models.Notifications, ids); err != nil {
		if errors.Is(err, common.ErrRemoteUnavailable) {
			c.conn.MarkOffline(ctx, err)
		}
		return err
	}

	err = c.local.WithTx(ctx, func(ctx context.Context, w localstore.Writer) error {
		for _, id := range ids {
			if err := w.Delete(ctx, models.Notifications, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.log.Debug(ctx, "notifications pruned", "count", len(ids))
	return nil
}

// Subscribe streams the store's newest notifications to fn, newest first,
// now and on every change. Offline it does nothing and the returned
// function is a no-op.
func (c *Channel) Subscribe(ctx context.Context, fn func([]models.Document)) func() {
	if !c.conn.IsOnline() {
		return func() {}
	}

	rs := remote.Scope(c.remote, c.eng.Tenant())
	stop, err := rs.Watch(ctx, models.Notifications, c.historyQuery(), func(docs []models.Document) {
		c.mirror(ctx, docs)
		fn(docs)
	})
	if err != nil {
		c.log.Warn(ctx, "notification subscription failed", "error", err)
		if errors.Is(err, common.ErrRemoteUnavailable) {
			c.conn.MarkOffline(ctx, err)
		}
		return func() {}
	}
	return stop
}

// Recent returns the store's newest notifications, falling back to the
// local copy when the remote cannot be read.
func (c *Channel) Recent(ctx context.Context) ([]models.Document, error) {
	if c.conn.IsOnline() {
		docs, err := remote.Scope(c.remote, c.eng.Tenant()).Query(ctx, models.Notifications, c.historyQuery())
		if err == nil {
			c.mirror(ctx, docs)
			return docs, nil
		}
		if c.eng.CloudOnly() {
			return nil, err
		}
		c.log.Warn(ctx, "reading notifications failed", "error", err)
	}

	docs, err := c.local.QueryBySecondaryEqual(ctx, models.Notifications, models.AttrStoreID, c.eng.Tenant())
	if err != nil {
		return nil, err
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].String(models.AttrCreatedAt) > docs[j].String(models.AttrCreatedAt)
	})
	if len(docs) > c.limit {
		docs = docs[:c.limit]
	}
	return docs, nil
}

func (c *Channel) mirror(ctx context.Context, docs []models.Document) {
	err := c.local.WithTx(ctx, func(ctx context.Context, w localstore.Writer) error {
		for _, d := range docs {
			synced := d.Clone()
			synced[models.AttrSyncStatus] = string(models.Synced)
			if _, err := w.Put(ctx, models.Notifications, synced); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.log.Warn(ctx, "mirroring notifications failed", "error", err)
	}
}
