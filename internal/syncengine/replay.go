package syncengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/localstore"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
)

type CollectionReport struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
}

// ReplayReport summarises one SyncPendingData sweep.
type ReplayReport struct {
	// Skipped is set when the sweep did not run: another sweep was in
	// progress, the node was offline, or there is no local cache.
	Skipped     bool                                   `json:"skipped"`
	Collections map[models.Collection]CollectionReport `json:"collections"`
}

func (r ReplayReport) Totals() CollectionReport {
	var t CollectionReport
	for _, c := range r.Collections {
		t.Attempted += c.Attempted
		t.Synced += c.Synced
		t.Failed += c.Failed
	}
	return t
}

// SyncPendingData pushes every pending local record to the remote, one
// collection after another. Records that fail stay pending for the next
// sweep. Only one sweep runs at a time; overlapping calls return a
// skipped report.
func (e *Engine) SyncPendingData(ctx context.Context) (ReplayReport, error) {
	report := ReplayReport{Collections: make(map[models.Collection]CollectionReport)}

	if e.opts.CloudOnly || !e.conn.IsOnline() {
		report.Skipped = true
		return report, nil
	}
	if !e.sweepMu.TryLock() {
		e.log.Debug(ctx, "replay already running")
		report.Skipped = true
		return report, nil
	}
	defer e.sweepMu.Unlock()

	var errs []error
	for _, coll := range e.opts.Replay {
		pending, err := e.local.QueryBySecondaryEqual(ctx, coll, models.AttrSyncStatus, models.Pending)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		var cr CollectionReport
		for _, doc := range pending {
			cr.Attempted++
			if err := e.replayOne(ctx, coll, doc); err != nil {
				cr.Failed++
				if !errors.Is(err, common.ErrRemoteUnavailable) {
					errs = append(errs, err)
				}
				continue
			}
			cr.Synced++
		}
		if cr.Attempted > 0 {
			report.Collections[coll] = cr
		}
	}

	t := report.Totals()
	e.log.Info(ctx, "replay finished", "attempted", t.Attempted, "synced", t.Synced, "failed", t.Failed)
	return report, errors.Join(errs...)
}

func (e *Engine) replayOne(ctx context.Context, coll models.Collection, doc models.Document) error {
	id := doc.ID()
	if err := e.remote.Merge(ctx, coll, id, doc.Without(models.AttrSyncStatus)); err != nil {
		e.remoteFailed(ctx, "replay", coll, err)
		return err
	}

	if _, ok, err := e.markSynced(ctx, coll, doc); err != nil {
		return err
	} else if !ok {
		e.log.Debug(ctx, "record changed while replaying, kept pending", "collection", coll, "id", id)
		return nil
	}
	e.log.Debug(ctx, "record replayed", "collection", coll, "id", id)
	return nil
}

// markSynced flips the local copy of pushed to synced, provided the row
// still holds exactly what was pushed. A row changed or removed in the
// meantime is left alone and ok is false.
func (e *Engine) markSynced(ctx context.Context, coll models.Collection, pushed models.Document) (models.Document, bool, error) {
	var synced models.Document
	err := e.local.WithTx(ctx, func(ctx context.Context, w localstore.Writer) error {
		cur, err := w.Get(ctx, coll, pushed.ID())
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		same, err := sameRecord(cur, pushed)
		if err != nil || !same {
			return err
		}
		cur[models.AttrSyncStatus] = string(models.Synced)
		if _, err := w.Put(ctx, coll, cur); err != nil {
			return err
		}
		synced = cur
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return synced, synced != nil, nil
}

// sameRecord compares two records by their JSON form, so numbers compare
// equal whether they were decoded or built in Go.
func sameRecord(a, b models.Document) (bool, error) {
	ja, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ja, jb), nil
}
