package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusInProgress OrderStatus = "in-progress"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether the status admits no further transition.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Line is one manifest entry: a stock item, optionally drawn through a lot,
// with the quantity the planner committed and, after completion, the share of
// the buyer-confirmed weight allocated to it.
type Line struct {
	ItemID          string
	LotID           string
	Quantity        decimal.Decimal
	Bags            int64
	WarehouseID     string
	ReservationID   string
	ConfirmedWeight decimal.Decimal
}

// TrackingEntry is an append-only audit record on the order.
type TrackingEntry struct {
	Status    OrderStatus
	Note      string
	Timestamp time.Time
}

// CostBreakdown is the finalized settlement document produced outside this
// core. Its presence gates completion; its contents are opaque here.
type CostBreakdown struct {
	Currency string
	Lines    map[string]decimal.Decimal
	Total    decimal.Decimal
}

// DeliveryOrder is the manifest a planning session submits. Submission runs
// the planning cascade; completion records the buyer-confirmed weight and runs
// the second cascade; completed and cancelled are terminal.
type DeliveryOrder struct {
	ID              string
	Buyer           string
	Lines           []Line
	Status          OrderStatus
	PartialDelivery bool
	PlannedQuantity decimal.Decimal
	BuyerWeight     decimal.Decimal
	WeightLoss      decimal.Decimal
	Cost            *CostBreakdown
	Tracking        []TrackingEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time
}

func NewDeliveryOrder(id, buyer string, lines []Line) DeliveryOrder {
	planned := decimal.Zero
	for _, l := range lines {
		planned = planned.Add(l.Quantity)
	}
	now := time.Now().UTC()
	return DeliveryOrder{
		ID:              id,
		Buyer:           buyer,
		Lines:           lines,
		Status:          StatusPending,
		PlannedQuantity: planned,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Track appends an audit entry and bumps the order's timestamps.
func (o *DeliveryOrder) Track(status OrderStatus, note string) {
	now := time.Now().UTC()
	o.Tracking = append(o.Tracking, TrackingEntry{Status: status, Note: note, Timestamp: now})
	o.Status = status
	o.UpdatedAt = now
}
