package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agricoop/stockflow/internal/inventory/domain"
	"github.com/agricoop/stockflow/internal/storage"
	"github.com/agricoop/stockflow/pkg/notifier"
)

// Service covers intake, warehouse assignment and lot management. Deliveries
// and holds live in their own contexts; this one owns the records they act on.
type Service struct {
	log   *slog.Logger
	store storage.Store
	bus   *notifier.Notifier
}

func NewService(log *slog.Logger, store storage.Store, bus *notifier.Notifier) *Service {
	return &Service{log: log, store: store, bus: bus}
}

// Intake registers a new stock item from a member delivery to the co-op.
func (s *Service) Intake(ctx context.Context, commodity string, quantity decimal.Decimal, bags int64) (domain.StockItem, error) {
	if !domain.ValidQuantity(quantity) {
		return domain.StockItem{}, fmt.Errorf("intake: %w: %s", domain.ErrInvalidQuantity, quantity)
	}
	item := domain.NewStockItem(uuid.NewString(), commodity, quantity, bags)

	ev := notifier.NewEvent(item.ID, string(domain.TypeStock), notifier.ActionUpdated)
	ev.Quantity = quantity
	ev.Status = string(item.Status)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.PutItem(ctx, item); err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, ev.OutboxEvent("stock_item"))
	})
	if err != nil {
		return domain.StockItem{}, err
	}

	s.bus.Emit(ev)
	s.log.Info("stock item registered", "item_id", item.ID, "commodity", commodity, "quantity", quantity.String())
	return item, nil
}

// AssignWarehouse moves an item into a warehouse, enforcing capacity at the
// same layer reservation capacity is enforced. Reassignment releases the
// previous warehouse's tonnage.
func (s *Service) AssignWarehouse(ctx context.Context, itemID, warehouseID string) error {
	var ev notifier.Event

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return fmt.Errorf("item %s: %w", itemID, err)
		}
		target, err := tx.GetWarehouse(ctx, warehouseID)
		if err != nil {
			return fmt.Errorf("warehouse %s: %w", warehouseID, err)
		}
		if target.Status != domain.WarehouseActive {
			return fmt.Errorf("warehouse %s inactive: %w", warehouseID, domain.ErrCapacityExceeded)
		}
		if item.Quantity.GreaterThan(target.Headroom()) {
			return fmt.Errorf("warehouse %s: %w: item %s needs %s, headroom %s",
				warehouseID, domain.ErrCapacityExceeded, itemID, item.Quantity, target.Headroom())
		}

		if item.WarehouseID != "" && item.WarehouseID != warehouseID {
			prev, err := tx.GetWarehouse(ctx, item.WarehouseID)
			if err != nil {
				return fmt.Errorf("warehouse %s: %w", item.WarehouseID, err)
			}
			prev.RemoveStock(item.Quantity)
			if err := tx.PutWarehouse(ctx, prev); err != nil {
				return err
			}
		}

		target.AddStock(item.Quantity)
		if err := tx.PutWarehouse(ctx, target); err != nil {
			return err
		}

		item.WarehouseID = warehouseID
		if item.Status == domain.ItemAvailable {
			item.Status = domain.ItemAssigned
		}
		if err := tx.PutItem(ctx, item); err != nil {
			return err
		}

		ev = notifier.NewEvent(item.ID, string(domain.TypeStock), notifier.ActionUpdated)
		ev.Quantity = item.Quantity
		ev.Status = string(item.Status)
		return tx.AppendOutbox(ctx, ev.OutboxEvent("stock_item"))
	})
	if err != nil {
		return err
	}

	s.bus.Emit(ev)
	s.log.Info("item assigned to warehouse", "item_id", itemID, "warehouse_id", warehouseID)
	return nil
}

// RegisterWarehouse creates a warehouse record.
func (s *Service) RegisterWarehouse(ctx context.Context, name string, capacity decimal.Decimal) (domain.Warehouse, error) {
	if !domain.ValidQuantity(capacity) {
		return domain.Warehouse{}, fmt.Errorf("warehouse capacity: %w: %s", domain.ErrInvalidQuantity, capacity)
	}
	w := domain.NewWarehouse(uuid.NewString(), name, capacity)
	if err := s.store.PutWarehouse(ctx, w); err != nil {
		return domain.Warehouse{}, err
	}
	s.log.Info("warehouse registered", "warehouse_id", w.ID, "name", name, "capacity", capacity.String())
	return w, nil
}

// CreateLot combines at least two ungrouped, undelivered items into a named
// lot. Totals are fixed here and never rewritten afterwards.
func (s *Service) CreateLot(ctx context.Context, name string, itemIDs []string) (domain.StockLot, error) {
	if len(itemIDs) < 2 {
		return domain.StockLot{}, fmt.Errorf("lot %q: %w: needs at least 2 items, got %d", name, domain.ErrInvalidQuantity, len(itemIDs))
	}

	var lot domain.StockLot
	var ev notifier.Event

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		total := decimal.Zero
		var bags int64
		members := make([]domain.StockItem, 0, len(itemIDs))
		for _, id := range itemIDs {
			item, err := tx.GetItem(ctx, id)
			if err != nil {
				return fmt.Errorf("item %s: %w", id, err)
			}
			if item.Grouped() {
				return fmt.Errorf("item %s already in lot %s: %w", id, item.LotID, domain.ErrAlreadyLocked)
			}
			if !item.Deliverable() {
				return fmt.Errorf("item %s status %s: %w", id, item.Status, domain.ErrAlreadyLocked)
			}
			total = total.Add(item.Quantity)
			bags += item.Bags
			members = append(members, item)
		}

		lot = domain.NewStockLot(uuid.NewString(), name, itemIDs, total, bags)
		if err := tx.PutLot(ctx, lot); err != nil {
			return err
		}
		for _, item := range members {
			item.LotID = lot.ID
			if err := tx.PutItem(ctx, item); err != nil {
				return err
			}
		}

		ev = notifier.NewEvent(lot.ID, string(domain.TypeLot), notifier.ActionUpdated)
		ev.Quantity = total
		ev.RemainingQuantity = total
		ev.Status = string(lot.Status)
		return tx.AppendOutbox(ctx, ev.OutboxEvent("stock_lot"))
	})
	if err != nil {
		return domain.StockLot{}, err
	}

	s.bus.Emit(ev)
	s.log.Info("lot created", "lot_id", lot.ID, "name", name, "items", len(itemIDs), "total", lot.TotalQuantity.String())
	return lot, nil
}

// ArchiveLot dissolves a lot and releases its members back to ungrouped
// handling. Refused once anything has been delivered against the lot.
func (s *Service) ArchiveLot(ctx context.Context, lotID string) error {
	var ev notifier.Event

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		lot, err := tx.GetLot(ctx, lotID)
		if err != nil {
			return fmt.Errorf("lot %s: %w", lotID, err)
		}
		if !lot.Archivable() {
			return fmt.Errorf("lot %s has confirmed deliveries: %w", lotID, domain.ErrAlreadyLocked)
		}

		members, err := tx.QueryItems(ctx, storage.ItemFilter{LotID: lotID})
		if err != nil {
			return err
		}
		for _, item := range members {
			item.LotID = ""
			if err := tx.PutItem(ctx, item); err != nil {
				return err
			}
		}
		if err := tx.DeleteLot(ctx, lotID); err != nil {
			return err
		}

		ev = notifier.NewEvent(lotID, string(domain.TypeLot), notifier.ActionUpdated)
		ev.Status = "archived"
		return tx.AppendOutbox(ctx, ev.OutboxEvent("stock_lot"))
	})
	if err != nil {
		return err
	}

	s.bus.Emit(ev)
	s.log.Info("lot archived", "lot_id", lotID)
	return nil
}
