package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyPlannedDelivery(t *testing.T) {
	t.Run("partial leaves remainder", func(t *testing.T) {
		item := NewStockItem("i1", "wheat", d("10"), 200)
		item.ApplyPlannedDelivery(d("4"), 80)

		assert.True(t, item.Quantity.Equal(d("6")))
		assert.Equal(t, int64(120), item.Bags)
		assert.Equal(t, ItemPartiallyDelivered, item.Status)
		assert.True(t, item.OriginalQuantity.Equal(d("10")))
	})

	t.Run("residue under a kilogram reads as delivered", func(t *testing.T) {
		item := NewStockItem("i1", "wheat", d("10"), 200)
		item.ApplyPlannedDelivery(d("9.9995"), 200)

		assert.Equal(t, ItemDelivered, item.Status)
	})

	t.Run("over-delivery clamps at zero", func(t *testing.T) {
		item := NewStockItem("i1", "wheat", d("10"), 200)
		item.ApplyPlannedDelivery(d("12"), 250)

		assert.True(t, item.Quantity.IsZero())
		assert.Equal(t, int64(0), item.Bags)
		assert.Equal(t, ItemDelivered, item.Status)
	})
}

func TestRestorePlannedDelivery(t *testing.T) {
	t.Run("full restore returns to available", func(t *testing.T) {
		item := NewStockItem("i1", "wheat", d("5"), 100)
		item.ApplyPlannedDelivery(d("2"), 40)
		item.RestorePlannedDelivery(d("2"), 40)

		assert.True(t, item.Quantity.Equal(d("5")))
		assert.Equal(t, int64(100), item.Bags)
		assert.Equal(t, ItemAvailable, item.Status)
	})

	t.Run("assigned item returns to assigned", func(t *testing.T) {
		item := NewStockItem("i1", "wheat", d("5"), 100)
		item.WarehouseID = "w1"
		item.Status = ItemAssigned
		item.ApplyPlannedDelivery(d("5"), 100)
		item.RestorePlannedDelivery(d("5"), 100)

		assert.Equal(t, ItemAssigned, item.Status)
	})

	t.Run("restore never exceeds original", func(t *testing.T) {
		item := NewStockItem("i1", "wheat", d("5"), 100)
		item.ApplyPlannedDelivery(d("2"), 40)
		item.RestorePlannedDelivery(d("10"), 200)

		assert.True(t, item.Quantity.Equal(d("5")))
		assert.Equal(t, int64(100), item.Bags)
	})
}

func TestLotAccounting(t *testing.T) {
	lot := NewStockLot("l1", "july-wheat", []string{"i1", "i2"}, d("20"), 400)
	require.True(t, lot.RemainingQuantity.Equal(d("20")))
	require.Equal(t, LotAvailable, lot.Status)

	t.Run("delivery credits counters, total stays fixed", func(t *testing.T) {
		lot.RecordDelivered(d("5"), 100)

		assert.True(t, lot.TotalQuantity.Equal(d("20")))
		assert.True(t, lot.DeliveredQuantity.Equal(d("5")))
		assert.True(t, lot.RemainingQuantity.Equal(d("15")))
		assert.Equal(t, LotPartiallyDelivered, lot.Status)
	})

	t.Run("remaining plus delivered always equals total", func(t *testing.T) {
		lot.RecordDelivered(d("7.5"), 150)
		assert.True(t, lot.DeliveredQuantity.Add(lot.RemainingQuantity).Equal(lot.TotalQuantity))
	})

	t.Run("negative delta undoes, clamped at zero", func(t *testing.T) {
		lot.RecordDelivered(d("-12.5"), -250)
		assert.True(t, lot.DeliveredQuantity.IsZero())
		assert.True(t, lot.RemainingQuantity.Equal(d("20")))
		assert.Equal(t, LotAvailable, lot.Status)

		lot.RecordDelivered(d("-3"), 0)
		assert.True(t, lot.DeliveredQuantity.IsZero())
	})

	t.Run("near-zero remainder reads as delivered", func(t *testing.T) {
		lot.RecordDelivered(d("19.9999"), 400)
		assert.Equal(t, LotDelivered, lot.Status)
	})
}

func TestWarehouseHeadroom(t *testing.T) {
	w := NewWarehouse("w1", "silo-a", d("100"))
	require.True(t, w.Headroom().Equal(d("100")))

	w.AddStock(d("60"))
	assert.True(t, w.Headroom().Equal(d("40")))

	w.AddStock(d("70"))
	assert.True(t, w.CurrentStock.Equal(d("100")), "stock clamps at capacity")

	w.RemoveStock(d("150"))
	assert.True(t, w.CurrentStock.IsZero(), "stock clamps at zero")
}
