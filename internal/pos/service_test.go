package pos

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/connectivity"
	"github.com/dmitrijs2005/shopkeeper/internal/localstore"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/dmitrijs2005/shopkeeper/internal/remote"
	"github.com/dmitrijs2005/shopkeeper/internal/session"
	"github.com/dmitrijs2005/shopkeeper/internal/syncengine"
)

type event struct {
	kind string
	meta map[string]any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) Notify(_ context.Context, kind, _, _ string, meta map[string]any) (models.Document, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{kind: kind, meta: meta})
	return models.Document{}, nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.kind)
	}
	return out
}

type fixture struct {
	svc      *Service
	eng      *syncengine.Engine
	remote   *remote.Memory
	monitor  *connectivity.Monitor
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	local, err := localstore.Open(ctx, filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	rem := remote.NewMemory()
	mon := connectivity.NewMonitor(rem, connectivity.Online, logging.Nop())

	var mu sync.Mutex
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}

	sess := session.Static{S: &session.Session{UserID: "u1", StoreID: "store_1", Role: session.RoleCashier}}
	eng := syncengine.New(local, rem, mon, sess, logging.Nop(), syncengine.Options{Now: clock})
	n := &recordingNotifier{}
	svc := New(eng, n, logging.Nop())
	svc.now = clock

	return &fixture{svc: svc, eng: eng, remote: rem, monitor: mon, notifier: n}
}

func (f *fixture) product(t *testing.T, name, price string, stock, threshold int64) *models.Product {
	t.Helper()
	p, err := syncengine.For[models.Product](f.eng).Add(context.Background(), &models.Product{
		Name:              name,
		Price:             decimal.RequireFromString(price),
		Stock:             decimal.NewFromInt(stock),
		LowStockThreshold: decimal.NewFromInt(threshold),
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) goOffline(ctx context.Context) {
	f.remote.SetAvailable(false)
	f.monitor.SetOnline(ctx, false)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCheckout_Cash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cola := f.product(t, "Cola", "1.50", 10, 0)
	chips := f.product(t, "Chips", "2.25", 5, 0)

	tx, err := f.svc.Checkout(ctx, Sale{
		Lines: []SaleLine{
			{ProductID: cola.ID, Quantity: dec("2")},
			{ProductID: chips.ID, Quantity: dec("1")},
			{ProductID: cola.ID, Quantity: dec("1")},
		},
		PaymentMethod: models.PaymentCash,
		CashierID:     "u1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.Synced, tx.SyncStatus)
	assert.Equal(t, "store_1", tx.StoreID)
	require.Len(t, tx.Items, 3)
	assert.True(t, tx.Total.Equal(dec("6.75")), "total %s", tx.Total)
	assert.Equal(t, "Cola", tx.Items[0].Name)

	products := syncengine.For[models.Product](f.eng)
	got, err := products.Get(ctx, cola.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(dec("7")), "stock %s", got.Stock)
	assert.Equal(t, "Cola", got.Name)

	moves, err := syncengine.For[models.StockMovement](f.eng).ListBy(ctx, "productId", cola.ID)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.True(t, moves[0].Quantity.Equal(dec("-3")))
	assert.Equal(t, models.MovementSale, moves[0].Kind)
	assert.Equal(t, tx.ID, moves[0].TransactionID)

	collectibles, err := syncengine.For[models.Collectible](f.eng).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, collectibles)

	assert.Equal(t, []string{models.EventSale}, f.notifier.kinds())
}

func TestCheckout_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cola := f.product(t, "Cola", "1.50", 2, 0)

	_, err := f.svc.Checkout(ctx, Sale{
		Lines:         []SaleLine{{ProductID: cola.ID, Quantity: dec("3")}},
		PaymentMethod: models.PaymentCash,
	})
	require.ErrorIs(t, err, common.ErrInsufficientStock)

	txs, err := syncengine.For[models.Transaction](f.eng).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)

	got, err := syncengine.For[models.Product](f.eng).Get(ctx, cola.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(dec("2")))
	assert.Empty(t, f.notifier.kinds())
}

func TestCheckout_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cola := f.product(t, "Cola", "1.50", 2, 0)

	tests := []struct {
		name string
		sale Sale
	}{
		{"no lines", Sale{PaymentMethod: models.PaymentCash}},
		{"zero quantity", Sale{Lines: []SaleLine{{ProductID: cola.ID}}, PaymentMethod: models.PaymentCash}},
		{"unknown method", Sale{Lines: []SaleLine{{ProductID: cola.ID, Quantity: dec("1")}}, PaymentMethod: "barter"}},
		{"credit without customer", Sale{Lines: []SaleLine{{ProductID: cola.ID, Quantity: dec("1")}}, PaymentMethod: models.PaymentCredit}},
		{"unknown product", Sale{Lines: []SaleLine{{ProductID: "nope", Quantity: dec("1")}}, PaymentMethod: models.PaymentCash}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Checkout(ctx, tt.sale)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestCheckout_LowStockNotification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cola := f.product(t, "Cola", "1.00", 5, 3)

	sale := Sale{Lines: []SaleLine{{ProductID: cola.ID, Quantity: dec("2")}}, PaymentMethod: models.PaymentCard}
	_, err := f.svc.Checkout(ctx, sale)
	require.NoError(t, err)
	assert.Equal(t, []string{models.EventSale, models.EventLowStock}, f.notifier.kinds())

	// already low: no second warning
	_, err = f.svc.Checkout(ctx, sale)
	require.NoError(t, err)
	assert.Equal(t, []string{models.EventSale, models.EventLowStock, models.EventSale}, f.notifier.kinds())
}

func TestCheckout_Offline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cola := f.product(t, "Cola", "1.50", 10, 0)
	f.goOffline(ctx)

	tx, err := f.svc.Checkout(ctx, Sale{
		Lines:         []SaleLine{{ProductID: cola.ID, Quantity: dec("4")}},
		PaymentMethod: models.PaymentCash,
	})
	require.NoError(t, err)
	assert.Equal(t, models.Pending, tx.SyncStatus)
	assert.True(t, syncengine.IsLocalID(tx.ID))

	got, err := syncengine.For[models.Product](f.eng).Get(ctx, cola.ID)
	require.NoError(t, err)
	assert.True(t, got.Stock.Equal(dec("6")))
	assert.Equal(t, models.Pending, got.SyncStatus)

	f.remote.SetAvailable(true)
	f.monitor.SetOnline(ctx, true)
	_, err = f.eng.SyncPendingData(ctx)
	require.NoError(t, err)

	doc, err := f.remote.Get(ctx, models.Transactions, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, doc.ID())
	pdoc, err := f.remote.Get(ctx, models.Products, cola.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 6, pdoc["stock"])
}

func TestCredit_SaleAndPayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cola := f.product(t, "Cola", "2.00", 10, 0)

	tx, err := f.svc.Checkout(ctx, Sale{
		Lines:         []SaleLine{{ProductID: cola.ID, Quantity: dec("5")}},
		PaymentMethod: models.PaymentCredit,
		CustomerName:  "Ann",
	})
	require.NoError(t, err)

	collectibles := syncengine.For[models.Collectible](f.eng)
	c, err := collectibles.FindBy(ctx, "transactionId", tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", c.CustomerName)
	assert.Equal(t, models.CollectibleOpen, c.Status)
	assert.True(t, c.Balance.Equal(dec("10")))
	require.Len(t, c.Items, 1)

	c, err = f.svc.RecordPayment(ctx, c.ID, dec("4"))
	require.NoError(t, err)
	assert.True(t, c.Balance.Equal(dec("6")))
	assert.Equal(t, models.CollectibleOpen, c.Status)
	require.Len(t, c.Payments, 1)

	_, err = f.svc.RecordPayment(ctx, c.ID, dec("7"))
	require.ErrorIs(t, err, common.ErrValidation)
	_, err = f.svc.RecordPayment(ctx, c.ID, dec("-1"))
	require.ErrorIs(t, err, common.ErrValidation)

	c, err = f.svc.RecordPayment(ctx, c.ID, dec("6"))
	require.NoError(t, err)
	assert.True(t, c.Balance.IsZero())
	assert.Equal(t, models.CollectiblePaid, c.Status)
	assert.Len(t, c.Payments, 2)

	_, err = f.svc.RecordPayment(ctx, c.ID, dec("1"))
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestAdjustStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cola := f.product(t, "Cola", "1.00", 5, 2)

	p, err := f.svc.AdjustStock(ctx, cola.ID, dec("-3"), "damaged")
	require.NoError(t, err)
	assert.True(t, p.Stock.Equal(dec("2")))
	assert.Equal(t, []string{models.EventStock, models.EventLowStock}, f.notifier.kinds())

	moves, err := syncengine.For[models.StockMovement](f.eng).ListBy(ctx, "productId", cola.ID)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, models.MovementAdjustment, moves[0].Kind)
	assert.Equal(t, "damaged", moves[0].Reason)

	_, err = f.svc.AdjustStock(ctx, cola.ID, dec("-3"), "oops")
	require.ErrorIs(t, err, common.ErrInsufficientStock)
	_, err = f.svc.AdjustStock(ctx, cola.ID, decimal.Zero, "noop")
	require.ErrorIs(t, err, common.ErrValidation)
	_, err = f.svc.AdjustStock(ctx, "missing", dec("1"), "restock")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestProductLabel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cola := f.product(t, "Cola", "1.00", 1, 0)

	assert.Equal(t, "Cola", f.svc.ProductLabel(ctx, cola.ID))
	assert.Equal(t, models.UnknownProductLabel, f.svc.ProductLabel(ctx, "gone"))
}
