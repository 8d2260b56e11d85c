package syncengine

import (
	"context"

	"github.com/dmitrijs2005/shopkeeper/internal/models"
)

// Collection is a typed view over one collection of an Engine.
type Collection[T any, P models.EntityPtr[T]] struct {
	e    *Engine
	name models.Collection
}

// For returns the typed view for T, e.g. syncengine.For[models.Product](eng).
func For[T any, P models.EntityPtr[T]](e *Engine) *Collection[T, P] {
	return &Collection[T, P]{e: e, name: P(new(T)).Collection()}
}

func (c *Collection[T, P]) Name() models.Collection { return c.name }

func (c *Collection[T, P]) Add(ctx context.Context, v P) (P, error) {
	doc, err := models.ToDocument(v)
	if err != nil {
		return nil, err
	}
	out, err := c.e.Add(ctx, c.name, doc)
	if err != nil {
		return nil, err
	}
	return models.FromDocument[T, P](out)
}

func (c *Collection[T, P]) Get(ctx context.Context, id string) (P, error) {
	doc, err := c.e.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	return models.FromDocument[T, P](doc)
}

func (c *Collection[T, P]) List(ctx context.Context) ([]P, error) {
	docs, err := c.e.GetAll(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return decodeAll[T, P](docs)
}

func (c *Collection[T, P]) ListBy(ctx context.Context, attr string, value any) ([]P, error) {
	docs, err := c.e.GetAllByIndex(ctx, c.name, attr, value)
	if err != nil {
		return nil, err
	}
	return decodeAll[T, P](docs)
}

func (c *Collection[T, P]) FindBy(ctx context.Context, attr string, value any) (P, error) {
	doc, err := c.e.GetByIndex(ctx, c.name, attr, value)
	if err != nil {
		return nil, err
	}
	return models.FromDocument[T, P](doc)
}

// Update writes every field of v over the stored record.
func (c *Collection[T, P]) Update(ctx context.Context, v P) (P, error) {
	doc, err := models.ToDocument(v)
	if err != nil {
		return nil, err
	}
	out, err := c.e.Update(ctx, c.name, doc)
	if err != nil {
		return nil, err
	}
	return models.FromDocument[T, P](out)
}

// Patch updates only the attributes in fields.
func (c *Collection[T, P]) Patch(ctx context.Context, id string, fields models.Document) (P, error) {
	doc := fields.Clone()
	if doc == nil {
		doc = models.Document{}
	}
	doc[models.AttrID] = id
	out, err := c.e.Update(ctx, c.name, doc)
	if err != nil {
		return nil, err
	}
	return models.FromDocument[T, P](out)
}

func (c *Collection[T, P]) Remove(ctx context.Context, id string) error {
	return c.e.Remove(ctx, c.name, id)
}

// AddWrite and UpdateWrite build unit-of-work steps for Engine.Commit.
func (c *Collection[T, P]) AddWrite(v P) (Write, error) {
	doc, err := models.ToDocument(v)
	if err != nil {
		return Write{}, err
	}
	return AddOf(c.name, doc), nil
}

func (c *Collection[T, P]) UpdateWrite(v P) (Write, error) {
	doc, err := models.ToDocument(v)
	if err != nil {
		return Write{}, err
	}
	return UpdateOf(c.name, doc), nil
}

// Decode converts a document returned by Commit back to T.
func (c *Collection[T, P]) Decode(doc models.Document) (P, error) {
	return models.FromDocument[T, P](doc)
}

func decodeAll[T any, P models.EntityPtr[T]](docs []models.Document) ([]P, error) {
	out := make([]P, 0, len(docs))
	for _, d := range docs {
		v, err := models.FromDocument[T, P](d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
