package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
)

// Firestore stores each collection as a Firestore collection of the same
// name.
type Firestore struct {
	client *firestore.Client
	log    logging.Logger
}

var _ Store = (*Firestore)(nil)

// NewFirestore opens a Firestore client for the project behind app.
func NewFirestore(ctx context.Context, app *firebase.App, log logging.Logger) (*Firestore, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Firestore{client: client, log: log}, nil
}

// mapFirestoreError classifies a Firestore failure by its gRPC status code.
func mapFirestoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s: %v", common.ErrNotFound, op, err)
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s: %v", common.ErrValidation, op, err)
	default:
		return unavailable(op, err)
	}
}

func (f *Firestore) Create(ctx context.Context, coll models.Collection, doc models.Document) (string, error) {
	if err := validate(coll, Query{}); err != nil {
		return "", err
	}
	data := toFirestore(doc)
	if id := doc.ID(); id != "" {
		_, err := f.client.Collection(coll.String()).Doc(id).Set(ctx, data)
		return id, mapFirestoreError("create", err)
	}

	delete(data, models.AttrID)
	ref, _, err := f.client.Collection(coll.String()).Add(ctx, data)
	if err != nil {
		return "", mapFirestoreError("create", err)
	}
	return ref.ID, nil
}

func (f *Firestore) Get(ctx context.Context, coll models.Collection, id string) (models.Document, error) {
	snap, err := f.client.Collection(coll.String()).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapFirestoreError("get", err)
	}
	return fromSnapshot(snap)
}

func (f *Firestore) Merge(ctx context.Context, coll models.Collection, id string, doc models.Document) error {
	if err := validate(coll, Query{}); err != nil {
		return err
	}
	data := toFirestore(doc)
	data[models.AttrID] = id
	_, err := f.client.Collection(coll.String()).Doc(id).Set(ctx, data, firestore.MergeAll)
	return mapFirestoreError("merge", err)
}

func (f *Firestore) Delete(ctx context.Context, coll models.Collection, id string) error {
	_, err := f.client.Collection(coll.String()).Doc(id).Delete(ctx)
	return mapFirestoreError("delete", err)
}

func (f *Firestore) DeleteBatch(ctx context.Context, coll models.Collection, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col := f.client.Collection(coll.String())
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, id := range ids {
			if err := tx.Delete(col.Doc(id)); err != nil {
				return err
			}
		}
		return nil
	})
	return mapFirestoreError("delete batch", err)
}

func (f *Firestore) Query(ctx context.Context, coll models.Collection, q Query) ([]models.Document, error) {
	if err := validate(coll, q); err != nil {
		return nil, err
	}
	it := f.query(coll, q).Documents(ctx)
	defer it.Stop()

	docs, err := it.GetAll()
	if err != nil {
		return nil, mapFirestoreError("query", err)
	}
	return fromSnapshots(docs)
}

func (f *Firestore) Watch(ctx context.Context, coll models.Collection, q Query, fn func([]models.Document)) (func(), error) {
	if err := validate(coll, q); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	it := f.query(coll, q).Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled && !errors.Is(err, context.Canceled) {
					f.log.Warn(ctx, "firestore watch ended", "collection", coll, "error", err)
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				f.log.Warn(ctx, "firestore watch read failed", "collection", coll, "error", err)
				continue
			}
			out, err := fromSnapshots(docs)
			if err != nil {
				f.log.Warn(ctx, "firestore watch decode failed", "collection", coll, "error", err)
				continue
			}
			fn(out)
		}
	}()

	return cancel, nil
}

// Ping reads at most one store document.
func (f *Firestore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	it := f.client.Collection(models.Stores.String()).Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return mapFirestoreError("ping", err)
	}
	return nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) query(coll models.Collection, q Query) firestore.Query {
	fq := f.client.Collection(coll.String()).Query
	for _, flt := range q.Filters {
		fq = fq.Where(flt.Attr, "==", normalizeValue(flt.Value))
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

func toFirestore(doc models.Document) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc.Clone() {
		out[k] = normalizeValue(v)
	}
	return out
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (models.Document, error) {
	doc, err := normalize(snap.Data())
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", common.ErrRemoteUnavailable, snap.Ref.ID, err)
	}
	doc[models.AttrID] = snap.Ref.ID
	return doc, nil
}

func fromSnapshots(snaps []*firestore.DocumentSnapshot) ([]models.Document, error) {
	out := make([]models.Document, 0, len(snaps))
	for _, s := range snaps {
		doc, err := fromSnapshot(s)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}
