package models

import "github.com/shopspring/decimal"

// UnknownProductLabel is shown where a weak product reference no longer
// resolves.
const UnknownProductLabel = "Unknown product"

func init() {
	// amounts are stored as JSON numbers, the same shape clients send
	decimal.MarshalJSONWithoutQuotes = true
}

type Product struct {
	Base
	Name              string          `json:"name"`
	SKU               string          `json:"sku,omitempty"`
	Barcode           string          `json:"barcode,omitempty"`
	Category          string          `json:"category,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Cost              decimal.Decimal `json:"cost"`
	Stock             decimal.Decimal `json:"stock"`
	LowStockThreshold decimal.Decimal `json:"lowStockThreshold"`
}

func (Product) Collection() Collection { return Products }

// IsLow reports whether the stock level is at or below the threshold.
// A zero threshold disables the check.
func (p *Product) IsLow() bool {
	return p.LowStockThreshold.IsPositive() && p.Stock.LessThanOrEqual(p.LowStockThreshold)
}

// LineItem is a product snapshot inside a sale. ProductID is a weak
// reference; Name is copied at sale time.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Payment methods.
const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentCredit = "credit"
)

type Transaction struct {
	Base
	Items         []LineItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"paymentMethod"`
	CashierID     string          `json:"cashierId,omitempty"`
	CustomerName  string          `json:"customerName,omitempty"`
}

func (Transaction) Collection() Collection { return Transactions }

// Stock movement kinds.
const (
	MovementSale       = "sale"
	MovementAdjustment = "adjustment"
)

type StockMovement struct {
	Base
	ProductID     string          `json:"productId"`
	Quantity      decimal.Decimal `json:"quantity"`
	Kind          string          `json:"kind"`
	Reason        string          `json:"reason,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
}

func (StockMovement) Collection() Collection { return StockMovements }

type User struct {
	Base
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	Role         string `json:"role"`
	DisplayName  string `json:"displayName,omitempty"`
}

func (User) Collection() Collection { return Users }

type Store struct {
	Base
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	Currency string `json:"currency,omitempty"`
}

func (Store) Collection() Collection { return Stores }

type Setting struct {
	Base
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (Setting) Collection() Collection { return Settings }

type Expense struct {
	Base
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Date        string          `json:"date,omitempty"`
}

func (Expense) Collection() Collection { return Expenses }

// Collectible statuses.
const (
	CollectibleOpen = "open"
	CollectiblePaid = "paid"
)

type CollectiblePayment struct {
	Amount decimal.Decimal `json:"amount"`
	At     string          `json:"at"`
}

// Collectible is a credit-sale receivable. Items is a snapshot and holds
// no live product references.
type Collectible struct {
	Base
	CustomerName  string               `json:"customerName"`
	TransactionID string               `json:"transactionId"`
	Items         []LineItem           `json:"items"`
	Total         decimal.Decimal      `json:"total"`
	Balance       decimal.Decimal      `json:"balance"`
	Status        string               `json:"status"`
	Payments      []CollectiblePayment `json:"payments,omitempty"`
}

func (Collectible) Collection() Collection { return Collectibles }

// Notification event kinds.
const (
	EventSale     = "sale"
	EventStock    = "stock"
	EventLowStock = "low_stock"
)

type Notification struct {
	Base
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Read     bool           `json:"read"`
}

func (Notification) Collection() Collection { return Notifications }

type SyncQueueItem struct {
	Base
	Target     Collection `json:"collection"`
	Operation  string     `json:"operation"`
	DocumentID string     `json:"documentId"`
	Payload    Document   `json:"payload,omitempty"`
}

func (SyncQueueItem) Collection() Collection { return SyncQueue }
