package syncengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/localstore"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
)

type Op int

const (
	OpAdd Op = iota
	OpUpdate
)

// Write is one step of a unit of work.
type Write struct {
	Op         Op
	Collection models.Collection
	Doc        models.Document
}

func AddOf(coll models.Collection, doc models.Document) Write {
	return Write{Op: OpAdd, Collection: coll, Doc: doc}
}

func UpdateOf(coll models.Collection, doc models.Document) Write {
	return Write{Op: OpUpdate, Collection: coll, Doc: doc}
}

type prepared struct {
	w     Write
	doc   models.Document
	patch models.Document
}

// Commit applies several writes to the local cache atomically, then pushes
// each to the remote on its own. New records get local ids up front so the
// writes can reference each other. The returned documents follow the order
// of writes.
func (e *Engine) Commit(ctx context.Context, writes []Write) ([]models.Document, error) {
	steps := make([]prepared, 0, len(writes))
	staged := make(map[string]models.Document, len(writes))
	for i, w := range writes {
		p, err := e.prepare(ctx, w, staged)
		if err != nil {
			return nil, fmt.Errorf("write %d: %w", i, err)
		}
		staged[stageKey(w.Collection, p.doc.ID())] = p.doc
		steps = append(steps, p)
	}

	err := e.local.WithTx(ctx, func(ctx context.Context, tx localstore.Writer) error {
		for _, s := range steps {
			if _, err := tx.Put(ctx, s.w.Collection, s.doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Document, len(steps))
	var errs []error
	online := e.conn.IsOnline()
	for i, s := range steps {
		out[i] = s.doc
		if !online {
			continue
		}
		if err := e.push(ctx, s); err != nil {
			if e.opts.CloudOnly {
				errs = append(errs, err)
				continue
			}
			e.remoteFailed(ctx, "commit", s.w.Collection, err)
			online = e.conn.IsOnline()
			continue
		}
		if e.opts.CloudOnly {
			out[i] = s.doc.Clone()
			out[i][models.AttrSyncStatus] = string(models.Synced)
			continue
		}
		synced, ok, err := e.markSynced(ctx, s.w.Collection, s.doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			out[i] = synced
		}
	}
	return out, errors.Join(errs...)
}

func stageKey(coll models.Collection, id string) string {
	return coll.String() + "/" + id
}

// prepare stamps w. staged holds records written earlier in the same
// unit of work, which take precedence over the local cache.
func (e *Engine) prepare(ctx context.Context, w Write, staged map[string]models.Document) (prepared, error) {
	if err := checkCollection(w.Collection); err != nil {
		return prepared{}, err
	}

	switch w.Op {
	case OpAdd:
		doc := e.stampNew(w.Collection, w.Doc)
		if doc.ID() == "" {
			doc[models.AttrID] = e.NewID()
		}
		doc[models.AttrSyncStatus] = string(models.Pending)
		return prepared{w: w, doc: doc}, nil

	case OpUpdate:
		id := w.Doc.ID()
		if id == "" {
			return prepared{}, fmt.Errorf("%w: update %s without id", common.ErrValidation, w.Collection)
		}
		existing, ok := staged[stageKey(w.Collection, id)]
		if !ok {
			var err error
			if existing, err = e.current(ctx, w.Collection, id); err != nil {
				return prepared{}, err
			}
		}
		if err := e.checkOwner(w.Collection, existing, w.Doc); err != nil {
			return prepared{}, err
		}
		patch := w.Doc.Without(models.AttrSyncStatus)
		patch[models.AttrUpdatedAt] = e.now()
		doc := existing.Merge(patch)
		if existing == nil || existing.IsPending() {
			patch = doc.Without(models.AttrSyncStatus)
		}
		doc[models.AttrSyncStatus] = string(models.Pending)
		return prepared{w: w, doc: doc, patch: patch}, nil

	default:
		return prepared{}, fmt.Errorf("%w: unknown write op %d", common.ErrValidation, w.Op)
	}
}

func (e *Engine) push(ctx context.Context, s prepared) error {
	if s.w.Op == OpAdd {
		_, err := e.remote.Create(ctx, s.w.Collection, s.doc.Without(models.AttrSyncStatus))
		return err
	}
	return e.remote.Merge(ctx, s.w.Collection, s.doc.ID(), s.patch)
}
