package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LotStatus string

const (
	LotAvailable          LotStatus = "available"
	LotPartiallyDelivered LotStatus = "partially_delivered"
	LotDelivered          LotStatus = "delivered"
)

// StockLot is a named grouping of stock items handled as one unit. The totals
// are fixed when the lot is formed; only the delivered counters move, and the
// remaining pair is always derived from them. A lot locks the first time a
// delivery confirms against it and can only be archived before that.
type StockLot struct {
	ID                string
	Name              string
	ItemIDs           []string
	TotalQuantity     decimal.Decimal
	TotalBags         int64
	DeliveredQuantity decimal.Decimal
	DeliveredBags     int64
	RemainingQuantity decimal.Decimal
	RemainingBags     int64
	Status            LotStatus
	Locked            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewStockLot(id, name string, itemIDs []string, totalQuantity decimal.Decimal, totalBags int64) StockLot {
	now := time.Now().UTC()
	return StockLot{
		ID:                id,
		Name:              name,
		ItemIDs:           itemIDs,
		TotalQuantity:     totalQuantity,
		TotalBags:         totalBags,
		DeliveredQuantity: decimal.Zero,
		RemainingQuantity: totalQuantity,
		RemainingBags:     totalBags,
		Status:            LotAvailable,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// RecordDelivered moves tonnage into the delivered counters. Negative amounts
// undo an earlier planning credit (cancellation, buyer-weight shortfall).
func (l *StockLot) RecordDelivered(quantity decimal.Decimal, bags int64) {
	l.DeliveredQuantity = l.DeliveredQuantity.Add(quantity)
	if l.DeliveredQuantity.IsNegative() {
		l.DeliveredQuantity = decimal.Zero
	}
	l.DeliveredBags += bags
	if l.DeliveredBags < 0 {
		l.DeliveredBags = 0
	}
	l.recompute()
}

// recompute refreshes the derived remaining pair and the three-way status.
func (l *StockLot) recompute() {
	l.RemainingQuantity = l.TotalQuantity.Sub(l.DeliveredQuantity)
	if l.RemainingQuantity.IsNegative() {
		l.RemainingQuantity = decimal.Zero
	}
	l.RemainingBags = l.TotalBags - l.DeliveredBags
	if l.RemainingBags < 0 {
		l.RemainingBags = 0
	}
	switch {
	case NearZero(l.RemainingQuantity):
		l.Status = LotDelivered
	case l.DeliveredQuantity.GreaterThan(Epsilon):
		l.Status = LotPartiallyDelivered
	default:
		l.Status = LotAvailable
	}
	l.UpdatedAt = time.Now().UTC()
}

// Archivable reports whether the lot can still be dissolved.
func (l StockLot) Archivable() bool {
	return !l.Locked && NearZero(l.DeliveredQuantity)
}
