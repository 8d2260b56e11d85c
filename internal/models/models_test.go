package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollection_Valid(t *testing.T) {
	for _, c := range AllCollections() {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Collection("orders").Valid())
	assert.False(t, Stores.Tenanted())
	assert.True(t, Users.Tenanted())
	assert.NotContains(t, ReplayCollections(), Notifications)
	assert.NotContains(t, ReplayCollections(), SyncQueue)
}

func TestDocument_CloneIsDeep(t *testing.T) {
	d := Document{"id": "p1", "tags": []any{"a"}, "meta": map[string]any{"k": "v"}}
	c := d.Clone()

	c["tags"].([]any)[0] = "b"
	c["meta"].(map[string]any)["k"] = "w"

	assert.Equal(t, "a", d["tags"].([]any)[0])
	assert.Equal(t, "v", d["meta"].(map[string]any)["k"])
}

func TestDocument_Merge(t *testing.T) {
	base := Document{"id": "p1", "name": "Cola", "price": 1.5}
	got := base.Merge(Document{"price": 2.0, "stock": 10})

	assert.Equal(t, Document{"id": "p1", "name": "Cola", "price": 2.0, "stock": 10}, got)
	assert.Equal(t, 1.5, base["price"])

	assert.Equal(t, Document{"a": 1}, Document(nil).Merge(Document{"a": 1}))
}

func TestDocument_VisibleTo(t *testing.T) {
	assert.True(t, Document{"id": "x"}.VisibleTo("store_1"))
	assert.True(t, Document{"storeId": ""}.VisibleTo("store_1"))
	assert.True(t, Document{"storeId": "store_1"}.VisibleTo("store_1"))
	assert.False(t, Document{"storeId": "store_2"}.VisibleTo("store_1"))
}

func TestDocument_Accessors(t *testing.T) {
	d := Document{"id": "local_1_ab", "storeId": "s", "syncStatus": "pending", "n": 3}
	assert.Equal(t, "local_1_ab", d.ID())
	assert.Equal(t, "s", d.StoreID())
	assert.True(t, d.IsPending())
	assert.Empty(t, d.String("n"))
	assert.Equal(t, Document{"id": "local_1_ab", "n": 3}, d.Without(AttrStoreID, AttrSyncStatus))
}

func TestFormatTime_SortsLexically(t *testing.T) {
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	a := FormatTime(t0)
	b := FormatTime(t0.Add(10 * time.Millisecond))
	assert.Equal(t, "2024-01-02T02:04:05.000Z", a)
	assert.Less(t, a, b)
}

func TestEntityRoundTrip(t *testing.T) {
	p := &Product{
		Base:              Base{ID: "p1", StoreID: "store_1", CreatedAt: "2024-01-02T02:04:05.000Z"},
		Name:              "Cola",
		Price:             decimal.RequireFromString("1.50"),
		Stock:             decimal.NewFromInt(10),
		LowStockThreshold: decimal.NewFromInt(3),
	}

	doc, err := ToDocument(p)
	require.NoError(t, err)
	assert.Equal(t, "p1", doc.ID())
	assert.Equal(t, "store_1", doc.StoreID())
	assert.Equal(t, "Cola", doc["name"])
	assert.Equal(t, 1.5, doc["price"], "amounts are JSON numbers")
	assert.Equal(t, 10.0, doc["stock"])
	assert.NotContains(t, doc, AttrSyncStatus)

	back, err := FromDocument[Product](doc)
	require.NoError(t, err)
	assert.True(t, back.Price.Equal(p.Price))
	assert.Equal(t, p.Name, back.Name)
	assert.Equal(t, 2024, back.Created().Year())
}

func TestFromDocument_NumericFields(t *testing.T) {
	doc := Document{"id": "p2", "name": "Bread", "price": 2.25, "stock": 4}
	p, err := FromDocument[Product](doc)
	require.NoError(t, err)
	assert.Equal(t, "2.25", p.Price.String())
	assert.Equal(t, Products, p.Collection())
	assert.Equal(t, "p2", p.Envelope().ID)
}

func TestProduct_IsLow(t *testing.T) {
	p := Product{Stock: decimal.NewFromInt(3), LowStockThreshold: decimal.NewFromInt(3)}
	assert.True(t, p.IsLow())
	p.Stock = decimal.NewFromInt(4)
	assert.False(t, p.IsLow())
	p.LowStockThreshold = decimal.Zero
	p.Stock = decimal.Zero
	assert.False(t, p.IsLow())
}

func TestParseDocument(t *testing.T) {
	_, err := ParseDocument([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = ParseDocument([]byte(`null`))
	assert.Error(t, err)
	d, err := ParseDocument([]byte(`{"id":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", d.ID())
}

func TestSyncQueueItem_FromDocument(t *testing.T) {
	doc := Document{
		"id":         "q1",
		"storeId":    "store_1",
		"collection": "products",
		"operation":  "update",
		"documentId": "p1",
		"payload":    map[string]any{"stock": "4"},
	}

	item, err := FromDocument[SyncQueueItem](doc)
	require.NoError(t, err)
	assert.Equal(t, Products, item.Target)
	assert.Equal(t, SyncQueue, item.Collection())
	assert.Equal(t, Document{"stock": "4"}, item.Payload)
}
