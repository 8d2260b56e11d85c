package pos

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/dmitrijs2005/shopkeeper/internal/syncengine"
)

type SaleLine struct {
	ProductID string          `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type Sale struct {
	Lines         []SaleLine `json:"lines"`
	PaymentMethod string     `json:"paymentMethod"`
	CashierID     string     `json:"cashierId,omitempty"`
	CustomerName  string     `json:"customerName,omitempty"`
}

func (s Sale) validate() error {
	if len(s.Lines) == 0 {
		return fmt.Errorf("%w: sale without lines", common.ErrValidation)
	}
	for _, l := range s.Lines {
		if l.ProductID == "" || !l.Quantity.IsPositive() {
			return fmt.Errorf("%w: bad sale line %+v", common.ErrValidation, l)
		}
	}
	switch s.PaymentMethod {
	case models.PaymentCash, models.PaymentCard:
	case models.PaymentCredit:
		if s.CustomerName == "" {
			return fmt.Errorf("%w: credit sale needs a customer", common.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown payment method %q", common.ErrValidation, s.PaymentMethod)
	}
	return nil
}

// Checkout records a sale: the transaction, the stock deduction and a
// movement per product, and a collectible for credit sales, all in one
// unit of work.
func (s *Service) Checkout(ctx context.Context, sale Sale) (*models.Transaction, error) {
	if err := sale.validate(); err != nil {
		return nil, err
	}

	// one product may appear on several lines
	products := make(map[string]*models.Product)
	order := make([]string, 0, len(sale.Lines))
	wanted := make(map[string]decimal.Decimal)
	for _, l := range sale.Lines {
		if _, ok := products[l.ProductID]; !ok {
			p, err := s.products.Get(ctx, l.ProductID)
			if err != nil {
				if isNotFound(err) {
					return nil, fmt.Errorf("%w: product %s", common.ErrValidation, l.ProductID)
				}
				return nil, err
			}
			products[l.ProductID] = p
			order = append(order, l.ProductID)
		}
		wanted[l.ProductID] = wanted[l.ProductID].Add(l.Quantity)
	}

	for id, qty := range wanted {
		p := products[id]
		if p.Stock.LessThan(qty) {
			return nil, fmt.Errorf("%w: %s has %s, sale needs %s", common.ErrInsufficientStock, p.Name, p.Stock, qty)
		}
	}

	items := make([]models.LineItem, 0, len(sale.Lines))
	total := decimal.Zero
	for _, l := range sale.Lines {
		p := products[l.ProductID]
		sub := p.Price.Mul(l.Quantity)
		total = total.Add(sub)
		items = append(items, models.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
			Subtotal:  sub,
		})
	}

	tx := &models.Transaction{
		Base:          models.Base{ID: s.eng.NewID()},
		Items:         items,
		Total:         total,
		PaymentMethod: sale.PaymentMethod,
		CashierID:     sale.CashierID,
		CustomerName:  sale.CustomerName,
	}
	txWrite, err := s.transactions.AddWrite(tx)
	if err != nil {
		return nil, err
	}
	writes := []syncengine.Write{txWrite}

	wasLow := make(map[string]bool, len(order))
	for _, id := range order {
		p := products[id]
		wasLow[id] = p.IsLow()
		p.Stock = p.Stock.Sub(wanted[id])
		writes = append(writes, syncengine.UpdateOf(models.Products, stockPatch(p)))

		mv, err := movementWrite(&models.StockMovement{
			ProductID:     id,
			Quantity:      wanted[id].Neg(),
			Kind:          models.MovementSale,
			TransactionID: tx.ID,
		})
		if err != nil {
			return nil, err
		}
		writes = append(writes, mv)
	}

	if sale.PaymentMethod == models.PaymentCredit {
		cw, err := s.collectibles.AddWrite(&models.Collectible{
			CustomerName:  sale.CustomerName,
			TransactionID: tx.ID,
			Items:         items,
			Total:         total,
			Balance:       total,
			Status:        models.CollectibleOpen,
		})
		if err != nil {
			return nil, err
		}
		writes = append(writes, cw)
	}

	out, err := s.eng.Commit(ctx, writes)
	if err != nil {
		return nil, err
	}
	saved, err := s.transactions.Decode(out[0])
	if err != nil {
		return nil, err
	}

	s.notify(ctx, models.EventSale, "Sale completed",
		fmt.Sprintf("%d item(s), total %s", len(items), total.StringFixed(2)),
		map[string]any{"transactionId": saved.ID, "total": total.String(), "paymentMethod": sale.PaymentMethod})
	for _, id := range order {
		if p := products[id]; !wasLow[id] && p.IsLow() {
			s.notifyLowStock(ctx, p)
		}
	}

	s.log.Info(ctx, "sale recorded", "transaction", saved.ID, "total", total.String(), "status", saved.SyncStatus)
	return saved, nil
}
