package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemStatus string

const (
	ItemAvailable          ItemStatus = "available"
	ItemAssigned           ItemStatus = "assigned"
	ItemPartiallyDelivered ItemStatus = "partially_delivered"
	ItemDelivered          ItemStatus = "delivered"
)

type ItemType string

const (
	TypeStock ItemType = "stock"
	TypeLot   ItemType = "lot"
)

// StockItem is a single intake batch. Quantity counts down as deliveries are
// planned against it; DeliveredQuantity counts up as they complete, so the two
// together always account for OriginalQuantity. Lot membership is orthogonal to
// the delivery status.
type StockItem struct {
	ID                string
	Commodity         string
	Quantity          decimal.Decimal
	OriginalQuantity  decimal.Decimal
	Bags              int64
	OriginalBags      int64
	DeliveredQuantity decimal.Decimal
	WarehouseID       string
	LotID             string
	Status            ItemStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewStockItem(id, commodity string, quantity decimal.Decimal, bags int64) StockItem {
	now := time.Now().UTC()
	return StockItem{
		ID:                id,
		Commodity:         commodity,
		Quantity:          quantity,
		OriginalQuantity:  quantity,
		Bags:              bags,
		OriginalBags:      bags,
		DeliveredQuantity: decimal.Zero,
		Status:            ItemAvailable,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Grouped reports whether the item belongs to a lot.
func (i StockItem) Grouped() bool { return i.LotID != "" }

// Deliverable reports whether the item can still join a lot or back a new
// delivery plan: nothing may have been delivered against it yet.
func (i StockItem) Deliverable() bool {
	return i.Status == ItemAvailable || i.Status == ItemAssigned
}

// ApplyPlannedDelivery decrements the item by a planned amount and moves its
// status along the delivery progression.
func (i *StockItem) ApplyPlannedDelivery(quantity decimal.Decimal, bags int64) {
	i.Quantity = i.Quantity.Sub(quantity)
	if i.Quantity.IsNegative() {
		i.Quantity = decimal.Zero
	}
	i.Bags -= bags
	if i.Bags < 0 {
		i.Bags = 0
	}
	if NearZero(i.Quantity) {
		i.Status = ItemDelivered
	} else {
		i.Status = ItemPartiallyDelivered
	}
	i.UpdatedAt = time.Now().UTC()
}

// RestorePlannedDelivery is the inverse of ApplyPlannedDelivery, used when a
// delivery cancels before completion.
func (i *StockItem) RestorePlannedDelivery(quantity decimal.Decimal, bags int64) {
	i.Quantity = i.Quantity.Add(quantity)
	if i.Quantity.GreaterThan(i.OriginalQuantity) {
		i.Quantity = i.OriginalQuantity
	}
	i.Bags += bags
	if i.Bags > i.OriginalBags {
		i.Bags = i.OriginalBags
	}
	if i.DeliveredQuantity.GreaterThan(Epsilon) {
		i.Status = ItemPartiallyDelivered
	} else if i.WarehouseID != "" {
		i.Status = ItemAssigned
	} else {
		i.Status = ItemAvailable
	}
	i.UpdatedAt = time.Now().UTC()
}

type WarehouseStatus string

const (
	WarehouseActive   WarehouseStatus = "active"
	WarehouseInactive WarehouseStatus = "inactive"
)

// Warehouse tracks aggregate tonnage against a hard capacity.
// 0 <= CurrentStock <= Capacity holds at every assignment and cascade.
type Warehouse struct {
	ID           string
	Name         string
	Capacity     decimal.Decimal
	CurrentStock decimal.Decimal
	Status       WarehouseStatus
	UpdatedAt    time.Time
}

func NewWarehouse(id, name string, capacity decimal.Decimal) Warehouse {
	return Warehouse{
		ID:           id,
		Name:         name,
		Capacity:     capacity,
		CurrentStock: decimal.Zero,
		Status:       WarehouseActive,
		UpdatedAt:    time.Now().UTC(),
	}
}

// Headroom is the tonnage the warehouse can still accept.
func (w Warehouse) Headroom() decimal.Decimal {
	return w.Capacity.Sub(w.CurrentStock)
}

// AddStock increases CurrentStock, clamped at capacity.
func (w *Warehouse) AddStock(quantity decimal.Decimal) {
	w.CurrentStock = w.CurrentStock.Add(quantity)
	if w.CurrentStock.GreaterThan(w.Capacity) {
		w.CurrentStock = w.Capacity
	}
	w.UpdatedAt = time.Now().UTC()
}

// RemoveStock decreases CurrentStock, clamped at zero.
func (w *Warehouse) RemoveStock(quantity decimal.Decimal) {
	w.CurrentStock = w.CurrentStock.Sub(quantity)
	if w.CurrentStock.IsNegative() {
		w.CurrentStock = decimal.Zero
	}
	w.UpdatedAt = time.Now().UTC()
}
