// Package models defines the records kept by a shopkeeper node: the
// dynamic Document form used on the wire and in storage, and typed
// entities for business code.
package models

// Collection names a group of records of one kind. The names are shared
// with the remote database and must not change.
type Collection string

const (
	Products       Collection = "products"
	Transactions   Collection = "transactions"
	StockMovements Collection = "stockMovements"
	Users          Collection = "users"
	Stores         Collection = "stores"
	Settings       Collection = "settings"
	Expenses       Collection = "expenses"
	Collectibles   Collection = "collectibles"
	Notifications  Collection = "notifications"
	SyncQueue      Collection = "syncQueue"
)

var allCollections = []Collection{
	Products, Transactions, StockMovements, Users, Stores,
	Settings, Expenses, Collectibles, Notifications, SyncQueue,
}

// AllCollections returns every known collection in a stable order.
func AllCollections() []Collection {
	out := make([]Collection, len(allCollections))
	copy(out, allCollections)
	return out
}

// ReplayCollections are swept for pending records on reconnect.
func ReplayCollections() []Collection {
	return []Collection{Products, Transactions, StockMovements, Users, Stores, Settings, Expenses, Collectibles}
}

func (c Collection) String() string { return string(c) }

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	for _, k := range allCollections {
		if k == c {
			return true
		}
	}
	return false
}

// Tenanted reports whether records in c are scoped by storeId.
// Stores are the tenants themselves.
func (c Collection) Tenanted() bool {
	return c != Stores
}
