// Package pos holds the cashier operations built on top of the sync
// engine: checkout, stock adjustment and credit collection.
package pos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/dmitrijs2005/shopkeeper/internal/syncengine"
)

// Notifier receives domain events.
type Notifier interface {
	Notify(ctx context.Context, kind, title, message string, metadata map[string]any) (models.Document, error)
}

type Service struct {
	eng          *syncengine.Engine
	products     *syncengine.Collection[models.Product, *models.Product]
	transactions *syncengine.Collection[models.Transaction, *models.Transaction]
	movements    *syncengine.Collection[models.StockMovement, *models.StockMovement]
	collectibles *syncengine.Collection[models.Collectible, *models.Collectible]
	notifier     Notifier
	log          logging.Logger
	now          func() time.Time
}

func New(eng *syncengine.Engine, notifier Notifier, log logging.Logger) *Service {
	return &Service{
		eng:          eng,
		products:     syncengine.For[models.Product](eng),
		transactions: syncengine.For[models.Transaction](eng),
		movements:    syncengine.For[models.StockMovement](eng),
		collectibles: syncengine.For[models.Collectible](eng),
		notifier:     notifier,
		log:          log.With("component", "pos"),
		now:          time.Now,
	}
}

// ProductLabel resolves a weak product reference for display.
func (s *Service) ProductLabel(ctx context.Context, productID string) string {
	p, err := s.products.Get(ctx, productID)
	if err != nil || p.Name == "" {
		return models.UnknownProductLabel
	}
	return p.Name
}

func (s *Service) notify(ctx context.Context, kind, title, message string, meta map[string]any) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, kind, title, message, meta); err != nil {
		s.log.Warn(ctx, "notify failed", "type", kind, "error", err)
	}
}

func (s *Service) notifyLowStock(ctx context.Context, p *models.Product) {
	s.notify(ctx, models.EventLowStock, "Low stock",
		fmt.Sprintf("%s: %s left", p.Name, p.Stock.String()),
		map[string]any{"productId": p.ID, "stock": p.Stock.InexactFloat64()})
}

func stockPatch(p *models.Product) models.Document {
	return models.Document{models.AttrID: p.ID, "stock": p.Stock.InexactFloat64()}
}

func movementWrite(m *models.StockMovement) (syncengine.Write, error) {
	doc, err := models.ToDocument(m)
	if err != nil {
		return syncengine.Write{}, err
	}
	return syncengine.AddOf(models.StockMovements, doc), nil
}

// AdjustStock changes a product's stock by delta and records why.
func (s *Service) AdjustStock(ctx context.Context, productID string, delta decimal.Decimal, reason string) (*models.Product, error) {
	if delta.IsZero() {
		return nil, fmt.Errorf("%w: zero stock adjustment", common.ErrValidation)
	}
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	wasLow := p.IsLow()
	next := p.Stock.Add(delta)
	if next.IsNegative() {
		return nil, fmt.Errorf("%w: %s has %s, adjustment %s", common.ErrInsufficientStock, p.Name, p.Stock, delta)
	}
	p.Stock = next

	mv, err := movementWrite(&models.StockMovement{
		ProductID: p.ID,
		Quantity:  delta,
		Kind:      models.MovementAdjustment,
		Reason:    reason,
	})
	if err != nil {
		return nil, err
	}

	out, err := s.eng.Commit(ctx, []syncengine.Write{
		syncengine.UpdateOf(models.Products, stockPatch(p)),
		mv,
	})
	if err != nil {
		return nil, err
	}
	updated, err := s.products.Decode(out[0])
	if err != nil {
		return nil, err
	}

	s.notify(ctx, models.EventStock, "Stock adjusted",
		fmt.Sprintf("%s: %s (%s)", updated.Name, delta.String(), reason),
		map[string]any{"productId": updated.ID, "delta": delta.InexactFloat64(), "stock": updated.Stock.InexactFloat64()})
	if !wasLow && updated.IsLow() {
		s.notifyLowStock(ctx, updated)
	}
	return updated, nil
}

// RecordPayment books a payment against a credit sale.
func (s *Service) RecordPayment(ctx context.Context, collectibleID string, amount decimal.Decimal) (*models.Collectible, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment must be positive", common.ErrValidation)
	}
	c, err := s.collectibles.Get(ctx, collectibleID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.CollectiblePaid {
		return nil, fmt.Errorf("%w: collectible %s already paid", common.ErrValidation, c.ID)
	}
	if amount.GreaterThan(c.Balance) {
		return nil, fmt.Errorf("%w: payment %s exceeds balance %s", common.ErrValidation, amount, c.Balance)
	}

	c.Balance = c.Balance.Sub(amount)
	c.Payments = append(c.Payments, models.CollectiblePayment{Amount: amount, At: models.FormatTime(s.now())})
	if c.Balance.IsZero() {
		c.Status = models.CollectiblePaid
	}

	full, err := models.ToDocument(c)
	if err != nil {
		return nil, err
	}
	return s.collectibles.Patch(ctx, c.ID, models.Document{
		"balance":  full["balance"],
		"payments": full["payments"],
		"status":   full["status"],
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
