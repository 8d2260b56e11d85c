// Package localstore is the on-device cache: one SQLite table per
// collection, each row an id and a JSON document.
package localstore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
)

// Writer is what a transaction exposes: point reads and writes.
type Writer interface {
	Get(ctx context.Context, coll models.Collection, id string) (models.Document, error)
	// Put inserts doc or overwrites the record with the same id.
	Put(ctx context.Context, coll models.Collection, doc models.Document) (string, error)
	Delete(ctx context.Context, coll models.Collection, id string) error
}

// Store is the local persistence contract used by the sync engine.
type Store interface {
	Writer
	GetAll(ctx context.Context, coll models.Collection) ([]models.Document, error)
	// QueryBySecondaryEqual returns every record whose attr equals value.
	QueryBySecondaryEqual(ctx context.Context, coll models.Collection, attr string, value any) ([]models.Document, error)
	// WithTx runs fn against a Writer whose writes commit together.
	WithTx(ctx context.Context, fn func(ctx context.Context, w Writer) error) error
	SchemaVersion(ctx context.Context) (int64, error)
	Close() error
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkCollection(coll models.Collection) error {
	if !coll.Valid() {
		return fmt.Errorf("%w: unknown collection %q", common.ErrValidation, coll)
	}
	return nil
}

func checkAttr(attr string) error {
	if !identRe.MatchString(attr) {
		return fmt.Errorf("%w: bad attribute name %q", common.ErrValidation, attr)
	}
	return nil
}

func storageErr(op string, coll models.Collection, err error) error {
	return fmt.Errorf("%w: %s %s: %v", common.ErrStorage, op, coll, err)
}
