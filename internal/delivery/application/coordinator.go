package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agricoop/stockflow/internal/delivery/domain"
	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
	"github.com/agricoop/stockflow/internal/storage"
	"github.com/agricoop/stockflow/pkg/notifier"
)

// ManifestLine is one planned entry on a delivery submission: a stock item,
// optionally drawn through its lot, the committed quantity, and the hold the
// planning session placed on it.
type ManifestLine struct {
	ItemID        string
	LotID         string
	Quantity      decimal.Decimal
	Bags          int64
	ReservationID string
}

// Coordinator runs both fulfillment cascades. Each cascade executes inside a
// single store transaction together with its outbox rows, so a failure rolls
// every level back instead of stranding partial state.
type Coordinator struct {
	log   *slog.Logger
	store storage.Store
	bus   *notifier.Notifier
	now   func() time.Time
}

func NewCoordinator(log *slog.Logger, store storage.Store, bus *notifier.Notifier) *Coordinator {
	return &Coordinator{log: log, store: store, bus: bus, now: func() time.Time { return time.Now().UTC() }}
}

// SubmitDelivery creates the delivery order and runs the planning cascade:
// per line, confirm the hold, decrement the stock item, credit the lot's
// delivered counters, and batch warehouse decrements to apply once at the
// end. Line failures are collected into a PartialCascadeError; the
// transaction rollback then restores every level, and the error still names
// which lines had applied for the reconciliation log.
func (c *Coordinator) SubmitDelivery(ctx context.Context, buyer string, manifest []ManifestLine) (domain.DeliveryOrder, error) {
	if len(manifest) == 0 {
		return domain.DeliveryOrder{}, fmt.Errorf("submit delivery: %w: empty manifest", inventory.ErrInvalidQuantity)
	}
	for _, line := range manifest {
		if !inventory.ValidQuantity(line.Quantity) {
			return domain.DeliveryOrder{}, fmt.Errorf("submit delivery: item %s: %w: %s",
				line.ItemID, inventory.ErrInvalidQuantity, line.Quantity)
		}
	}

	lines := make([]domain.Line, len(manifest))
	for i, m := range manifest {
		lines[i] = domain.Line{
			ItemID:        m.ItemID,
			LotID:         m.LotID,
			Quantity:      m.Quantity,
			Bags:          m.Bags,
			ReservationID: m.ReservationID,
		}
	}
	order := domain.NewDeliveryOrder(uuid.NewString(), buyer, lines)

	var events []notifier.Event

	err := c.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		events = events[:0]
		cascade := order

		warehouseDebits := map[string]decimal.Decimal{}
		fail := map[string]error{}
		var ok []string
		partial := false

		for i := range cascade.Lines {
			line := &cascade.Lines[i]

			if err := c.confirmHold(ctx, tx, line.ReservationID, cascade.ID); err != nil {
				fail[line.ItemID] = err
				continue
			}

			item, err := tx.GetItem(ctx, line.ItemID)
			if err != nil {
				fail[line.ItemID] = fmt.Errorf("item %s: %w", line.ItemID, err)
				continue
			}
			available, err := c.lineAvailability(ctx, tx, item, line.ReservationID)
			if err != nil {
				fail[line.ItemID] = err
				continue
			}
			if line.Quantity.GreaterThan(available) {
				fail[line.ItemID] = fmt.Errorf("item %s: %w: planned %s, available %s",
					line.ItemID, inventory.ErrCapacityExceeded, line.Quantity, available)
				continue
			}
			if !item.Quantity.Sub(line.Quantity).LessThanOrEqual(inventory.Epsilon) {
				partial = true
			}
			line.WarehouseID = item.WarehouseID

			item.ApplyPlannedDelivery(line.Quantity, line.Bags)
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
				lot.RecordDelivered(line.Quantity, line.Bags)
				lot.Locked = true
				if err := tx.PutLot(ctx, lot); err != nil {
					fail[line.ItemID] = err
					continue
				}
				lotEv := notifier.NewEvent(lot.ID, string(inventory.TypeLot), notifier.ActionUpdated)
				lotEv.Quantity = line.Quantity
				lotEv.RemainingQuantity = lot.RemainingQuantity
				lotEv.Status = string(lot.Status)
				events = append(events, lotEv)
			}

			if item.WarehouseID != "" {
				warehouseDebits[item.WarehouseID] = warehouseDebits[item.WarehouseID].Add(line.Quantity)
			}
			ok = append(ok, line.ItemID)
		}

		if len(fail) > 0 {
			return &inventory.PartialCascadeError{Op: "planning cascade", Succeeded: ok, Failed: fail}
		}

		for id, debit := range warehouseDebits {
			w, err := tx.GetWarehouse(ctx, id)
			if err != nil {
				return fmt.Errorf("warehouse %s: %w", id, err)
			}
			w.RemoveStock(debit)
			if err := tx.PutWarehouse(ctx, w); err != nil {
				return err
			}
		}

		cascade.PartialDelivery = partial
		cascade.Track(domain.StatusInProgress, "delivery planned, inventory committed")
		if err := tx.PutDelivery(ctx, cascade); err != nil {
			return err
		}
		order = cascade

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
			c.log.Error("planning cascade failed, rolled back",
				"delivery_order_id", order.ID,
				"succeeded", partialErr.Succeeded,
				"failed", len(partialErr.Failed),
				"err", err)
		}
		return domain.DeliveryOrder{}, err
	}

	for _, ev := range events {
		c.bus.Emit(ev)
	}
	c.log.Info("delivery submitted", "delivery_order_id", order.ID, "buyer", buyer,
		"lines", len(order.Lines), "planned", order.PlannedQuantity.String(), "partial", order.PartialDelivery)
	return order, nil
}

// lineAvailability is the planning-time counterpart of the reservation
// manager's availability check: on-hand quantity minus every other active hold
// on the item. The hold the line itself cites is excluded, since the line
// consumes it; any quantity past that hold must fit in unheld tonnage, so a
// line can never take what another actor is holding.
func (c *Coordinator) lineAvailability(ctx context.Context, tx storage.Tx, item inventory.StockItem, reservationID string) (decimal.Decimal, error) {
	now := c.now()
	held, err := tx.QueryReservations(ctx, storage.ReservationFilter{
		ItemID: item.ID, ItemType: inventory.TypeStock, ActiveAt: &now,
	})
	if err != nil {
		return decimal.Zero, err
	}
	available := item.Quantity
	for _, r := range held {
		if r.ID == reservationID {
			continue
		}
		available = available.Sub(r.Quantity)
	}
	if available.IsNegative() {
		available = decimal.Zero
	}
	return available, nil
}

// confirmHold links a reservation into the order. A hold the sweeper already
// reclaimed is absorbed: the availability check still runs.
func (c *Coordinator) confirmHold(ctx context.Context, tx storage.Tx, reservationID, orderID string) error {
	if reservationID == "" {
		return nil
	}
	res, err := tx.GetReservation(ctx, reservationID)
	if errors.Is(err, inventory.ErrNotFound) {
		c.log.Warn("confirming swept reservation, proceeding", "reservation_id", reservationID, "delivery_order_id", orderID)
		return nil
	}
	if err != nil {
		return err
	}
	res.Confirmed = true
	res.DeliveryOrderID = orderID
	return tx.PutReservation(ctx, res)
}

// Complete records the buyer-confirmed weight and runs the completion
// cascade. The finalized cost breakdown gates completion; its contents are
// not interpreted here. The confirmed weight is allocated to lines pro rata
// by planned quantity, the lot delivered counters are adjusted by the delta
// against the planning credit, and every hold on the order is released.
func (c *Coordinator) Complete(ctx context.Context, orderID string, buyerWeight decimal.Decimal, cost *domain.CostBreakdown) (domain.DeliveryOrder, error) {
	if cost == nil {
		return domain.DeliveryOrder{}, fmt.Errorf("complete %s: finalized cost breakdown required", orderID)
	}
	if !inventory.ValidQuantity(buyerWeight) {
		return domain.DeliveryOrder{}, fmt.Errorf("complete %s: buyer weight: %w: %s", orderID, inventory.ErrInvalidQuantity, buyerWeight)
	}

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
		if order.Status != domain.StatusInProgress {
			return fmt.Errorf("delivery %s not in progress (status %s)", orderID, order.Status)
		}

		confirmed := allocateWeight(order.Lines, order.PlannedQuantity, buyerWeight)

		fail := map[string]error{}
		var ok []string

		for i := range order.Lines {
			line := &order.Lines[i]
			line.ConfirmedWeight = confirmed[i]

			item, err := tx.GetItem(ctx, line.ItemID)
			if err != nil {
				fail[line.ItemID] = fmt.Errorf("item %s: %w", line.ItemID, err)
				continue
			}
			item.Status = inventory.ItemDelivered
			item.DeliveredQuantity = item.DeliveredQuantity.Add(confirmed[i])
			if err := tx.PutItem(ctx, item); err != nil {
				fail[line.ItemID] = err
				continue
			}
			ev := notifier.NewEvent(item.ID, string(inventory.TypeStock), notifier.ActionDelivered)
			ev.Quantity = confirmed[i]
			ev.RemainingQuantity = item.Quantity
			ev.Status = string(item.Status)
			events = append(events, ev)

			if line.LotID != "" {
				lot, err := tx.GetLot(ctx, line.LotID)
				if err != nil {
					fail[line.ItemID] = fmt.Errorf("lot %s: %w", line.LotID, err)
					continue
				}
				// Planning already credited the planned amount; settle the
				// difference against the buyer-confirmed share.
				lot.RecordDelivered(confirmed[i].Sub(line.Quantity), 0)
				if err := tx.PutLot(ctx, lot); err != nil {
					fail[line.ItemID] = err
					continue
				}
				lotEv := notifier.NewEvent(lot.ID, string(inventory.TypeLot), notifier.ActionDelivered)
				lotEv.Quantity = confirmed[i]
				lotEv.RemainingQuantity = lot.RemainingQuantity
				lotEv.Status = string(lot.Status)
				events = append(events, lotEv)
			}

			if err := c.releaseHold(ctx, tx, line.ReservationID); err != nil {
				fail[line.ItemID] = err
				continue
			}
			relEv := notifier.NewEvent(line.ItemID, string(inventory.TypeStock), notifier.ActionReleased)
			relEv.Quantity = line.Quantity
			events = append(events, relEv)

			ok = append(ok, line.ItemID)
		}

		if len(fail) > 0 {
			return &inventory.PartialCascadeError{Op: "completion cascade", Succeeded: ok, Failed: fail}
		}

		order.BuyerWeight = buyerWeight
		order.WeightLoss = order.PlannedQuantity.Sub(buyerWeight)
		order.Cost = cost
		order.Track(domain.StatusCompleted,
			fmt.Sprintf("completed with buyer weight %s (loss %s)", buyerWeight, order.WeightLoss))
		if err := tx.PutDelivery(ctx, order); err != nil {
			return err
		}

		for _, ev := range events {
			aggregate := "stock_item"
			switch {
			case ev.ItemType == string(inventory.TypeLot):
				aggregate = "stock_lot"
			case ev.Action == notifier.ActionReleased:
				aggregate = "reservation"
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
			c.log.Error("completion cascade failed, rolled back",
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
	c.log.Info("delivery completed", "delivery_order_id", orderID,
		"buyer_weight", buyerWeight.String(), "weight_loss", order.WeightLoss.String())
	return order, nil
}

func (c *Coordinator) releaseHold(ctx context.Context, tx storage.Tx, reservationID string) error {
	if reservationID == "" {
		return nil
	}
	err := tx.DeleteReservation(ctx, reservationID)
	if errors.Is(err, inventory.ErrNotFound) {
		return nil
	}
	return err
}

// allocateWeight splits the buyer-confirmed weight across lines pro rata by
// planned quantity. The last line takes the remainder so the shares sum to
// the confirmed weight exactly.
func allocateWeight(lines []domain.Line, planned, buyerWeight decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(lines))
	if planned.IsZero() || len(lines) == 0 {
		return out
	}
	running := decimal.Zero
	for i, line := range lines {
		if i == len(lines)-1 {
			out[i] = buyerWeight.Sub(running)
			break
		}
		share := line.Quantity.Mul(buyerWeight).DivRound(planned, 3)
		out[i] = share
		running = running.Add(share)
	}
	return out
}
