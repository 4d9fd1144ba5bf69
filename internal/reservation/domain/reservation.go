package domain

import (
	"time"

	"github.com/shopspring/decimal"

	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
)

// TTL bounds how long inventory can be held without committing. Thirty minutes
// rides the line between reclaiming abandoned sessions and leaving room for a
// multi-step planning flow.
const TTL = 30 * time.Minute

// Reservation is a temporary claim against an item's or lot's available
// quantity. It is written once, then either confirmed into a delivery order or
// deleted by its owner or the expiry sweeper.
type Reservation struct {
	ID              string
	ItemID          string
	ItemType        inventory.ItemType
	Quantity        decimal.Decimal
	Actor           string
	ReservedAt      time.Time
	ExpiresAt       time.Time
	Confirmed       bool
	DeliveryOrderID string
}

func NewReservation(id, itemID string, itemType inventory.ItemType, quantity decimal.Decimal, actor string) Reservation {
	now := time.Now().UTC()
	return Reservation{
		ID:         id,
		ItemID:     itemID,
		ItemType:   itemType,
		Quantity:   quantity,
		Actor:      actor,
		ReservedAt: now,
		ExpiresAt:  now.Add(TTL),
	}
}

// Active reports whether the hold still counts against availability at t.
// A confirmed hold stays active until its delivery completes or cancels, even
// past its TTL, so availability can only ever be under-stated in between.
func (r Reservation) Active(t time.Time) bool {
	return r.Confirmed || r.ExpiresAt.After(t)
}

// Expired reports whether the sweeper may reclaim the hold at t.
// Confirmed reservations never expire; only the completion cascade frees them.
func (r Reservation) Expired(t time.Time) bool {
	return !r.Confirmed && !r.ExpiresAt.After(t)
}
