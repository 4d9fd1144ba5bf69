package application

import (
	"context"
	"fmt"

	"github.com/agricoop/stockflow/internal/delivery/domain"
	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
	"github.com/agricoop/stockflow/internal/storage"
)

// Reports is the read-only surface handed to rendering collaborators. It
// never exposes mutation; tables and documents are built from finalized
// records only.
type Reports struct {
	store storage.Store
}

func NewReports(store storage.Store) *Reports {
	return &Reports{store: store}
}

func (r *Reports) Delivery(ctx context.Context, id string) (domain.DeliveryOrder, error) {
	return r.store.GetDelivery(ctx, id)
}

func (r *Reports) Deliveries(ctx context.Context, f storage.DeliveryFilter) ([]domain.DeliveryOrder, error) {
	return r.store.QueryDeliveries(ctx, f)
}

// LotSummary pairs a lot with its current member records.
type LotSummary struct {
	Lot   inventory.StockLot
	Items []inventory.StockItem
}

func (r *Reports) LotSummary(ctx context.Context, lotID string) (LotSummary, error) {
	lot, err := r.store.GetLot(ctx, lotID)
	if err != nil {
		return LotSummary{}, fmt.Errorf("lot %s: %w", lotID, err)
	}
	items, err := r.store.QueryItems(ctx, storage.ItemFilter{LotID: lotID})
	if err != nil {
		return LotSummary{}, err
	}
	return LotSummary{Lot: lot, Items: items}, nil
}

func (r *Reports) Warehouses(ctx context.Context) ([]inventory.Warehouse, error) {
	return r.store.QueryWarehouses(ctx)
}
