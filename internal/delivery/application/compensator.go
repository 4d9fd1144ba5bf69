package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agricoop/stockflow/internal/delivery/domain"
	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
	"github.com/agricoop/stockflow/internal/storage"
	"github.com/agricoop/stockflow/pkg/notifier"
)

// Compensator undoes the planning cascade for a delivery that never
// completed: holds are deleted, item quantities and statuses restored, lot
// delivered counters rolled back, and warehouse tonnage returned. Runs as one
// transaction, like the cascade it inverts.
type Compensator struct {
	log   *slog.Logger
	store storage.Store
	bus   *notifier.Notifier
}

func NewCompensator(log *slog.Logger, store storage.Store, bus *notifier.Notifier) *Compensator {
	return &Compensator{log: log, store: store, bus: bus}
}

// Cancel compensates the delivery's planning cascade and marks the order
// cancelled. Completed and already-cancelled orders are refused: completed
// inventory left the co-op, and cancellation is terminal.
func (c *Compensator) Cancel(ctx context.Context, orderID, actor string) (domain.DeliveryOrder, error) {
	var order domain.DeliveryOrder
	var events []notifier.Event

	err := c.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		events = events[:0]
		var err error
		order, err = tx.GetDelivery(ctx, orderID)
		if err != nil {
			return fmt.Errorf("delivery %s: %w", orderID, err)
		}
		if order.Status.Terminal() {
			return fmt.Errorf("delivery %s already %s", orderID, order.Status)
		}

		fail := map[string]error{}
		var ok []string

		for _, line := range order.Lines {
			if err := c.dropHold(ctx, tx, line.ReservationID); err != nil {
				fail[line.ItemID] = err
				continue
			}

			item, err := tx.GetItem(ctx, line.ItemID)
			if err != nil {
				fail[line.ItemID] = fmt.Errorf("item %s: %w", line.ItemID, err)
				continue
			}
			item.RestorePlannedDelivery(line.Quantity, line.Bags)
			if err := tx.PutItem(ctx, item); err != nil {
				fail[line.ItemID] = err
				continue
			}
			ev := notifier.NewEvent(item.ID, string(inventory.TypeStock), notifier.ActionUpdated)
			ev.Quantity = line.Quantity
			ev.RemainingQuantity = item.Quantity
			ev.Status = string(item.Status)
			events = append(events, ev)

			if line.LotID != "" {
				lot, err := tx.GetLot(ctx, line.LotID)
				if err != nil {
					fail[line.ItemID] = fmt.Errorf("lot %s: %w", line.LotID, err)
					continue
				}
				lot.RecordDelivered(line.Quantity.Neg(), -line.Bags)
				if err := tx.PutLot(ctx, lot); err != nil {
					fail[line.ItemID] = err
					continue
				}
				lotEv := notifier.NewEvent(lot.ID, string(inventory.TypeLot), notifier.ActionUpdated)
				lotEv.RemainingQuantity = lot.RemainingQuantity
				lotEv.Status = string(lot.Status)
				events = append(events, lotEv)
			}

			if line.WarehouseID != "" {
				w, err := tx.GetWarehouse(ctx, line.WarehouseID)
				if err != nil {
					fail[line.ItemID] = fmt.Errorf("warehouse %s: %w", line.WarehouseID, err)
					continue
				}
				w.AddStock(line.Quantity)
				if err := tx.PutWarehouse(ctx, w); err != nil {
					fail[line.ItemID] = err
					continue
				}
			}

			ok = append(ok, line.ItemID)
		}

		// Holds confirmed into this order but absent from the manifest lines
		// (re-submissions, manual fixes) go too.
		leftover, err := tx.QueryReservations(ctx, storage.ReservationFilter{DeliveryOrderID: orderID})
		if err != nil {
			return err
		}
		for _, r := range leftover {
			if err := tx.DeleteReservation(ctx, r.ID); err != nil && !errors.Is(err, inventory.ErrNotFound) {
				return err
			}
		}

		if len(fail) > 0 {
			return &inventory.PartialCascadeError{Op: "cancellation compensation", Succeeded: ok, Failed: fail}
		}

		now := time.Now().UTC()
		order.CancelledAt = &now
		order.Track(domain.StatusCancelled, fmt.Sprintf("cancelled by %s, planning cascade compensated", actor))
		if err := tx.PutDelivery(ctx, order); err != nil {
			return err
		}

		for _, ev := range events {
			aggregate := "stock_item"
			if ev.ItemType == string(inventory.TypeLot) {
				aggregate = "stock_lot"
			}
			if err := tx.AppendOutbox(ctx, ev.OutboxEvent(aggregate)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var partialErr *inventory.PartialCascadeError
		if errors.As(err, &partialErr) {
			c.log.Error("cancellation compensation failed, rolled back",
				"delivery_order_id", orderID,
				"succeeded", partialErr.Succeeded,
				"failed", len(partialErr.Failed),
				"err", err)
		}
		return domain.DeliveryOrder{}, err
	}

	for _, ev := range events {
		c.bus.Emit(ev)
	}
	c.log.Info("delivery cancelled", "delivery_order_id", orderID, "actor", actor)
	return order, nil
}

func (c *Compensator) dropHold(ctx context.Context, tx storage.Tx, reservationID string) error {
	if reservationID == "" {
		return nil
	}
	err := tx.DeleteReservation(ctx, reservationID)
	if errors.Is(err, inventory.ErrNotFound) {
		return nil
	}
	return err
}
