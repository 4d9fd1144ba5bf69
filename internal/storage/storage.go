// Package storage defines the persistence contract the engine consumes:
// per-record CRUD, field-equality queries, and a transaction boundary wide
// enough to cover one whole cascade. Every mutation a cascade performs,
// including its outbox append, happens inside a single WithinTx call.
package storage

import (
	"context"
	"time"

	delivery "github.com/agricoop/stockflow/internal/delivery/domain"
	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
	reservation "github.com/agricoop/stockflow/internal/reservation/domain"
	"github.com/agricoop/stockflow/pkg/outbox"
)

// ItemFilter selects stock items by field equality. Zero values match all.
type ItemFilter struct {
	WarehouseID string
	LotID       string
	Status      inventory.ItemStatus
	Ungrouped   bool
}

// ReservationFilter selects reservations. ActiveAt keeps holds still counting
// against availability at that instant; ExpiredAt keeps holds the sweeper may
// reclaim.
type ReservationFilter struct {
	ItemID          string
	ItemType        inventory.ItemType
	Actor           string
	DeliveryOrderID string
	ActiveAt        *time.Time
	ExpiredAt       *time.Time
}

// DeliveryFilter selects delivery orders.
type DeliveryFilter struct {
	Status delivery.OrderStatus
	Buyer  string
}

// Tx is the record surface available both inside and outside a transaction.
// Lookups return inventory.ErrNotFound for missing ids.
type Tx interface {
	GetItem(ctx context.Context, id string) (inventory.StockItem, error)
	PutItem(ctx context.Context, item inventory.StockItem) error
	QueryItems(ctx context.Context, f ItemFilter) ([]inventory.StockItem, error)

	GetLot(ctx context.Context, id string) (inventory.StockLot, error)
	PutLot(ctx context.Context, lot inventory.StockLot) error
	DeleteLot(ctx context.Context, id string) error
	QueryLots(ctx context.Context) ([]inventory.StockLot, error)

	GetWarehouse(ctx context.Context, id string) (inventory.Warehouse, error)
	PutWarehouse(ctx context.Context, w inventory.Warehouse) error
	QueryWarehouses(ctx context.Context) ([]inventory.Warehouse, error)

	GetReservation(ctx context.Context, id string) (reservation.Reservation, error)
	PutReservation(ctx context.Context, r reservation.Reservation) error
	DeleteReservation(ctx context.Context, id string) error
	QueryReservations(ctx context.Context, f ReservationFilter) ([]reservation.Reservation, error)

	GetDelivery(ctx context.Context, id string) (delivery.DeliveryOrder, error)
	PutDelivery(ctx context.Context, o delivery.DeliveryOrder) error
	QueryDeliveries(ctx context.Context, f DeliveryFilter) ([]delivery.DeliveryOrder, error)

	AppendOutbox(ctx context.Context, ev outbox.Event) error
}

// Store adds the transaction boundary. WithinTx runs fn against a tx-scoped
// record surface and commits only if fn returns nil; concurrent cascades on
// the same records serialize here, which is what closes the check-then-act
// race on reservation creation.
type Store interface {
	Tx
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
