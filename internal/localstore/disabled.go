package localstore

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
)

// Disabled is the store used in cloud-only mode. Writes are accepted and
// dropped; reads never find anything.
type Disabled struct{}

var _ Store = Disabled{}

func (Disabled) Put(_ context.Context, _ models.Collection, doc models.Document) (string, error) {
	return doc.ID(), nil
}

func (Disabled) Delete(context.Context, models.Collection, string) error { return nil }

func (Disabled) Get(_ context.Context, coll models.Collection, id string) (models.Document, error) {
	return nil, fmt.Errorf("%w: %s/%s", common.ErrNotFound, coll, id)
}

func (Disabled) GetAll(context.Context, models.Collection) ([]models.Document, error) {
	return []models.Document{}, nil
}

func (Disabled) QueryBySecondaryEqual(context.Context, models.Collection, string, any) ([]models.Document, error) {
	return []models.Document{}, nil
}

func (d Disabled) WithTx(ctx context.Context, fn func(ctx context.Context, w Writer) error) error {
	return fn(ctx, d)
}

func (Disabled) SchemaVersion(context.Context) (int64, error) { return 0, nil }

func (Disabled) Close() error { return nil }
