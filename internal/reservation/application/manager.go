package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
	"github.com/agricoop/stockflow/internal/reservation/domain"
	"github.com/agricoop/stockflow/internal/storage"
	"github.com/agricoop/stockflow/pkg/notifier"
)

// Manager owns the hold lifecycle: reserve, release, confirm, list. The
// availability check and the reservation write share one store transaction,
// so two concurrent holds can never both see the same free quantity.
type Manager struct {
	log   *slog.Logger
	store storage.Store
	bus   *notifier.Notifier
	now   func() time.Time
}

func NewManager(log *slog.Logger, store storage.Store, bus *notifier.Notifier) *Manager {
	return &Manager{log: log, store: store, bus: bus, now: func() time.Time { return time.Now().UTC() }}
}

// Reserve places a hold of quantity tonnes on a stock item or lot for actor.
// Fails ErrInvalidQuantity before touching the store, ErrNotFound for an
// unknown target, and ErrCapacityExceeded when other active holds leave less
// than the requested amount.
func (m *Manager) Reserve(ctx context.Context, itemID string, itemType inventory.ItemType, quantity decimal.Decimal, actor string) (string, error) {
	if !inventory.ValidQuantity(quantity) {
		return "", fmt.Errorf("reserve %s: %w: %s", itemID, inventory.ErrInvalidQuantity, quantity)
	}

	res := domain.NewReservation(uuid.NewString(), itemID, itemType, quantity, actor)
	ev := notifier.NewEvent(itemID, string(itemType), notifier.ActionReserved)
	ev.Quantity = quantity

	err := m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		available, err := m.availableTx(ctx, tx, itemID, itemType)
		if err != nil {
			return err
		}
		if quantity.GreaterThan(available) {
			return fmt.Errorf("reserve %s: %w: requested %s, available %s",
				itemID, inventory.ErrCapacityExceeded, quantity, available)
		}
		ev.RemainingQuantity = available.Sub(quantity)
		if err := tx.PutReservation(ctx, res); err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, ev.OutboxEvent("reservation"))
	})
	if err != nil {
		return "", err
	}

	m.bus.Emit(ev)
	m.log.Info("reservation placed", "reservation_id", res.ID, "item_id", itemID, "quantity", quantity.String(), "actor", actor)
	return res.ID, nil
}

// Available returns the quantity of the item or lot not covered by active holds.
func (m *Manager) Available(ctx context.Context, itemID string, itemType inventory.ItemType) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = m.availableTx(ctx, tx, itemID, itemType)
		return err
	})
	return out, err
}

func (m *Manager) availableTx(ctx context.Context, tx storage.Tx, itemID string, itemType inventory.ItemType) (decimal.Decimal, error) {
	var current decimal.Decimal
	switch itemType {
	case inventory.TypeLot:
		lot, err := tx.GetLot(ctx, itemID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("lot %s: %w", itemID, err)
		}
		current = lot.RemainingQuantity
	default:
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("item %s: %w", itemID, err)
		}
		current = item.Quantity
	}

	now := m.now()
	held, err := tx.QueryReservations(ctx, storage.ReservationFilter{
		ItemID: itemID, ItemType: itemType, ActiveAt: &now,
	})
	if err != nil {
		return decimal.Zero, err
	}
	// Confirmed holds keep counting until the completion cascade deletes
	// them, so between planning (which already decremented the item) and
	// completion the same tonnage is subtracted twice. That only ever
	// under-states availability. Excluding confirmed holds here would
	// over-state it whenever a hold is confirmed without a planning
	// decrement, which Confirm permits.
	for _, r := range held {
		current = current.Sub(r.Quantity)
	}
	if current.IsNegative() {
		current = decimal.Zero
	}
	return current, nil
}

// Release deletes the actor's unconfirmed holds on the item. Calling it with
// no matching holds is a no-op; confirmed holds are only freed by the
// completion cascade.
func (m *Manager) Release(ctx context.Context, itemID string, itemType inventory.ItemType, actor string) error {
	var released int
	ev := notifier.NewEvent(itemID, string(itemType), notifier.ActionReleased)

	err := m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		held, err := tx.QueryReservations(ctx, storage.ReservationFilter{
			ItemID: itemID, ItemType: itemType, Actor: actor,
		})
		if err != nil {
			return err
		}
		for _, r := range held {
			if r.Confirmed {
				continue
			}
			if err := tx.DeleteReservation(ctx, r.ID); err != nil && !errors.Is(err, inventory.ErrNotFound) {
				return err
			}
			released++
		}
		if released == 0 {
			return nil
		}
		return tx.AppendOutbox(ctx, ev.OutboxEvent("reservation"))
	})
	if err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			m.log.Info("release on missing records ignored", "item_id", itemID, "actor", actor)
			return nil
		}
		return err
	}

	if released > 0 {
		m.bus.Emit(ev)
		m.log.Info("reservations released", "item_id", itemID, "actor", actor, "count", released)
	}
	return nil
}

// Confirm links a reservation to a delivery order. A reservation the sweeper
// already reclaimed is logged and absorbed: the expiry raced the confirm.
func (m *Manager) Confirm(ctx context.Context, reservationID, deliveryOrderID string) error {
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		res, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		res.Confirmed = true
		res.DeliveryOrderID = deliveryOrderID
		return tx.PutReservation(ctx, res)
	})
	if errors.Is(err, inventory.ErrNotFound) {
		m.log.Warn("confirm of swept reservation ignored", "reservation_id", reservationID, "delivery_order_id", deliveryOrderID)
		return nil
	}
	return err
}

// ListActive returns every hold still counting against availability.
func (m *Manager) ListActive(ctx context.Context) ([]domain.Reservation, error) {
	now := m.now()
	return m.store.QueryReservations(ctx, storage.ReservationFilter{ActiveAt: &now})
}

// Subscribe streams reservation change events until ctx ends. Consumers must
// re-read ListActive for authoritative state.
func (m *Manager) Subscribe(ctx context.Context) <-chan notifier.Event {
	in, cancel := m.bus.Subscribe(16)
	out := make(chan notifier.Event, 16)
	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				go drain(in)
				return
			case ev, ok := <-in:
				if !ok {
					return
				}
				if ev.Action != notifier.ActionReserved && ev.Action != notifier.ActionReleased {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					go drain(in)
					return
				}
			}
		}
	}()
	return out
}

func drain(ch <-chan notifier.Event) {
	for range ch {
	}
}
