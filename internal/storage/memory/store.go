// Package memory is the in-process store backend. It backs unit tests and
// small single-node deployments; transactions are a global mutex plus a
// snapshot rollback, which gives the same all-or-nothing cascade guarantee as
// the postgres backend.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	delivery "github.com/agricoop/stockflow/internal/delivery/domain"
	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
	reservation "github.com/agricoop/stockflow/internal/reservation/domain"
	"github.com/agricoop/stockflow/internal/storage"
	"github.com/agricoop/stockflow/pkg/outbox"
	"github.com/agricoop/stockflow/pkg/tracing"
)

// Store implements storage.Store and outbox.Store over plain maps.
type Store struct {
	mu sync.Mutex

	items        map[string]inventory.StockItem
	lots         map[string]inventory.StockLot
	warehouses   map[string]inventory.Warehouse
	reservations map[string]reservation.Reservation
	deliveries   map[string]delivery.DeliveryOrder

	outboxSeq  int64
	outboxRows []outbox.Event
}

var (
	_ storage.Store = (*Store)(nil)
	_ outbox.Store  = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		items:        make(map[string]inventory.StockItem),
		lots:         make(map[string]inventory.StockLot),
		warehouses:   make(map[string]inventory.Warehouse),
		reservations: make(map[string]reservation.Reservation),
		deliveries:   make(map[string]delivery.DeliveryOrder),
	}
}

// WithinTx serializes cascades behind the store mutex. A snapshot taken before
// fn runs is restored wholesale if fn fails, so no partial cascade survives.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, (*txView)(s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshotState struct {
	items        map[string]inventory.StockItem
	lots         map[string]inventory.StockLot
	warehouses   map[string]inventory.Warehouse
	reservations map[string]reservation.Reservation
	deliveries   map[string]delivery.DeliveryOrder
	outboxSeq    int64
	outboxLen    int
}

func (s *Store) snapshot() snapshotState {
	snap := snapshotState{
		items:        make(map[string]inventory.StockItem, len(s.items)),
		lots:         make(map[string]inventory.StockLot, len(s.lots)),
		warehouses:   make(map[string]inventory.Warehouse, len(s.warehouses)),
		reservations: make(map[string]reservation.Reservation, len(s.reservations)),
		deliveries:   make(map[string]delivery.DeliveryOrder, len(s.deliveries)),
		outboxSeq:    s.outboxSeq,
		outboxLen:    len(s.outboxRows),
	}
	for k, v := range s.items {
		snap.items[k] = v
	}
	for k, v := range s.lots {
		snap.lots[k] = cloneLot(v)
	}
	for k, v := range s.warehouses {
		snap.warehouses[k] = v
	}
	for k, v := range s.reservations {
		snap.reservations[k] = v
	}
	for k, v := range s.deliveries {
		snap.deliveries[k] = cloneDelivery(v)
	}
	return snap
}

func (s *Store) restore(snap snapshotState) {
	s.items = snap.items
	s.lots = snap.lots
	s.warehouses = snap.warehouses
	s.reservations = snap.reservations
	s.deliveries = snap.deliveries
	s.outboxSeq = snap.outboxSeq
	s.outboxRows = s.outboxRows[:snap.outboxLen]
}

func cloneLot(l inventory.StockLot) inventory.StockLot {
	l.ItemIDs = append([]string(nil), l.ItemIDs...)
	return l
}

func cloneDelivery(o delivery.DeliveryOrder) delivery.DeliveryOrder {
	o.Lines = append([]delivery.Line(nil), o.Lines...)
	o.Tracking = append([]delivery.TrackingEntry(nil), o.Tracking...)
	if o.Cost != nil {
		cost := *o.Cost
		cost.Lines = make(map[string]decimal.Decimal, len(o.Cost.Lines))
		for k, v := range o.Cost.Lines {
			cost.Lines[k] = v
		}
		o.Cost = &cost
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		o.CancelledAt = &t
	}
	return o
}

// txView is the tx-scoped surface. The store mutex is already held, so its
// methods operate lock-free on the underlying maps.
type txView Store

var _ storage.Tx = (*txView)(nil)

// Autocommit methods on Store lock and delegate to the same txView logic.

func (s *Store) locked(fn func(tx *txView) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn((*txView)(s))
}

func (s *Store) GetItem(ctx context.Context, id string) (inventory.StockItem, error) {
	var out inventory.StockItem
	err := s.locked(func(tx *txView) error {
		var err error
		out, err = tx.GetItem(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) PutItem(ctx context.Context, item inventory.StockItem) error {
	return s.locked(func(tx *txView) error { return tx.PutItem(ctx, item) })
}

func (s *Store) QueryItems(ctx context.Context, f storage.ItemFilter) ([]inventory.StockItem, error) {
	var out []inventory.StockItem
	err := s.locked(func(tx *txView) error {
		var err error
		out, err = tx.QueryItems(ctx, f)
		return err
	})
	return out, err
}

func (s *Store) GetLot(ctx context.Context, id string) (inventory.StockLot, error) {
	var out inventory.StockLot
	err := s.locked(func(tx *txView) error {
		var err error
		out, err = tx.GetLot(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) PutLot(ctx context.Context, lot inventory.StockLot) error {
	return s.locked(func(tx *txView) error { return tx.PutLot(ctx, lot) })
}

func (s *Store) DeleteLot(ctx context.Context, id string) error {
	return s.locked(func(tx *txView) error { return tx.DeleteLot(ctx, id) })
}

func (s *Store) QueryLots(ctx context.Context) ([]inventory.StockLot, error) {
	var out []inventory.StockLot
	err := s.locked(func(tx *txView) error {
		var err error
		out, err = tx.QueryLots(ctx)
		return err
	})
	return out, err
}

func (s *Store) GetWarehouse(ctx context.Context, id string) (inventory.Warehouse, error) {
	var out inventory.Warehouse
	err := s.locked(func(tx *txView) error {
		var err error
		out, err = tx.GetWarehouse(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) PutWarehouse(ctx context.Context, w inventory.Warehouse) error {
	return s.locked(func(tx *txView) error { return tx.PutWarehouse(ctx, w) })
}

func (s *Store) QueryWarehouses(ctx context.Context) ([]inventory.Warehouse, error) {
	var out []inventory.Warehouse
	err := s.locked(func(tx *txView) error {
		var err error
		out, err = tx.QueryWarehouses(ctx)
		return err
	})
	return out, err
}

func (s *Store) GetReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	var out reservation.Reservation
	err := s.locked(func(tx *txView) error {
		var err error
		out, err = tx.GetReservation(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) PutReservation(ctx context.Context, r reservation.Reservation) error {
	return s.locked(func(tx *txView) error { return tx.PutReservation(ctx, r) })
}

func (s *Store) DeleteReservation(ctx context.Context, id string) error {
	return s.locked(func(tx *txView) error { return tx.DeleteReservation(ctx, id) })
}

func (s *Store) QueryReservations(ctx context.Context, f storage.ReservationFilter) ([]reservation.Reservation, error) {
	var out []reservation.Reservation
	err := s.locked(func(tx *txView) error {
		var err error
		out, err = tx.QueryReservations(ctx, f)
		return err
	})
	return out, err
}

func (s *Store) GetDelivery(ctx context.Context, id string) (delivery.DeliveryOrder, error) {
	var out delivery.DeliveryOrder
	err := s.locked(func(tx *txView) error {
		var err error
		out, err = tx.GetDelivery(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) PutDelivery(ctx context.Context, o delivery.DeliveryOrder) error {
	return s.locked(func(tx *txView) error { return tx.PutDelivery(ctx, o) })
}

func (s *Store) QueryDeliveries(ctx context.Context, f storage.DeliveryFilter) ([]delivery.DeliveryOrder, error) {
	var out []delivery.DeliveryOrder
	err := s.locked(func(tx *txView) error {
		var err error
		out, err = tx.QueryDeliveries(ctx, f)
		return err
	})
	return out, err
}

func (s *Store) AppendOutbox(ctx context.Context, ev outbox.Event) error {
	return s.locked(func(tx *txView) error { return tx.AppendOutbox(ctx, ev) })
}

// --- tx-scoped implementations ---

func (t *txView) GetItem(_ context.Context, id string) (inventory.StockItem, error) {
	item, ok := t.items[id]
	if !ok {
		return inventory.StockItem{}, inventory.ErrNotFound
	}
	return item, nil
}

func (t *txView) PutItem(_ context.Context, item inventory.StockItem) error {
	t.items[item.ID] = item
	return nil
}

func (t *txView) QueryItems(_ context.Context, f storage.ItemFilter) ([]inventory.StockItem, error) {
	var out []inventory.StockItem
	for _, item := range t.items {
		if f.WarehouseID != "" && item.WarehouseID != f.WarehouseID {
			continue
		}
		if f.LotID != "" && item.LotID != f.LotID {
			continue
		}
		if f.Status != "" && item.Status != f.Status {
			continue
		}
		if f.Ungrouped && item.Grouped() {
			continue
		}
		out = append(out, item)
	}
	sortByID(out, func(i inventory.StockItem) string { return i.ID })
	return out, nil
}

func (t *txView) GetLot(_ context.Context, id string) (inventory.StockLot, error) {
	lot, ok := t.lots[id]
	if !ok {
		return inventory.StockLot{}, inventory.ErrNotFound
	}
	return cloneLot(lot), nil
}

func (t *txView) PutLot(_ context.Context, lot inventory.StockLot) error {
	t.lots[lot.ID] = cloneLot(lot)
	return nil
}

func (t *txView) DeleteLot(_ context.Context, id string) error {
	if _, ok := t.lots[id]; !ok {
		return inventory.ErrNotFound
	}
	delete(t.lots, id)
	return nil
}

func (t *txView) QueryLots(_ context.Context) ([]inventory.StockLot, error) {
	out := make([]inventory.StockLot, 0, len(t.lots))
	for _, lot := range t.lots {
		out = append(out, cloneLot(lot))
	}
	sortByID(out, func(l inventory.StockLot) string { return l.ID })
	return out, nil
}

func (t *txView) GetWarehouse(_ context.Context, id string) (inventory.Warehouse, error) {
	w, ok := t.warehouses[id]
	if !ok {
		return inventory.Warehouse{}, inventory.ErrNotFound
	}
	return w, nil
}

func (t *txView) PutWarehouse(_ context.Context, w inventory.Warehouse) error {
	t.warehouses[w.ID] = w
	return nil
}

func (t *txView) QueryWarehouses(_ context.Context) ([]inventory.Warehouse, error) {
	out := make([]inventory.Warehouse, 0, len(t.warehouses))
	for _, w := range t.warehouses {
		out = append(out, w)
	}
	sortByID(out, func(w inventory.Warehouse) string { return w.ID })
	return out, nil
}

func (t *txView) GetReservation(_ context.Context, id string) (reservation.Reservation, error) {
	r, ok := t.reservations[id]
	if !ok {
		return reservation.Reservation{}, inventory.ErrNotFound
	}
	return r, nil
}

func (t *txView) PutReservation(_ context.Context, r reservation.Reservation) error {
	t.reservations[r.ID] = r
	return nil
}

func (t *txView) DeleteReservation(_ context.Context, id string) error {
	if _, ok := t.reservations[id]; !ok {
		return inventory.ErrNotFound
	}
	delete(t.reservations, id)
	return nil
}

func (t *txView) QueryReservations(_ context.Context, f storage.ReservationFilter) ([]reservation.Reservation, error) {
	var out []reservation.Reservation
	for _, r := range t.reservations {
		if f.ItemID != "" && r.ItemID != f.ItemID {
			continue
		}
		if f.ItemType != "" && r.ItemType != f.ItemType {
			continue
		}
		if f.Actor != "" && r.Actor != f.Actor {
			continue
		}
		if f.DeliveryOrderID != "" && r.DeliveryOrderID != f.DeliveryOrderID {
			continue
		}
		if f.ActiveAt != nil && !r.Active(*f.ActiveAt) {
			continue
		}
		if f.ExpiredAt != nil && !r.Expired(*f.ExpiredAt) {
			continue
		}
		out = append(out, r)
	}
	sortByID(out, func(r reservation.Reservation) string { return r.ID })
	return out, nil
}

func (t *txView) GetDelivery(_ context.Context, id string) (delivery.DeliveryOrder, error) {
	o, ok := t.deliveries[id]
	if !ok {
		return delivery.DeliveryOrder{}, inventory.ErrNotFound
	}
	return cloneDelivery(o), nil
}

func (t *txView) PutDelivery(_ context.Context, o delivery.DeliveryOrder) error {
	t.deliveries[o.ID] = cloneDelivery(o)
	return nil
}

func (t *txView) QueryDeliveries(_ context.Context, f storage.DeliveryFilter) ([]delivery.DeliveryOrder, error) {
	var out []delivery.DeliveryOrder
	for _, o := range t.deliveries {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Buyer != "" && o.Buyer != f.Buyer {
			continue
		}
		out = append(out, cloneDelivery(o))
	}
	sortByID(out, func(o delivery.DeliveryOrder) string { return o.ID })
	return out, nil
}

func (t *txView) AppendOutbox(ctx context.Context, ev outbox.Event) error {
	if ev.Traceparent == "" {
		ev.Traceparent = tracing.Traceparent(ctx)
	}
	t.outboxSeq++
	ev.ID = t.outboxSeq
	ev.Status = outbox.StatusPending
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	t.outboxRows = append(t.outboxRows, ev)
	return nil
}

// --- outbox.Store for the relay ---

// LockBatch hands out pending rows. Leases are not tracked in-memory: a
// single process owns the store, so an abandoned batch cannot outlive it.
func (s *Store) LockBatch(_ context.Context, relayID string, batchSize int, _ time.Duration) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var batch []outbox.Event
	for i := range s.outboxRows {
		if len(batch) == batchSize {
			break
		}
		row := &s.outboxRows[i]
		if row.Status != outbox.StatusPending {
			continue
		}
		row.Status = outbox.StatusInProgress
		row.RelayID = relayID
		batch = append(batch, *row)
	}
	return batch, nil
}

func (s *Store) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outboxRows {
		if containsID(ids, s.outboxRows[i].ID) {
			s.outboxRows[i].Status = outbox.StatusSent
		}
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outboxRows {
		if s.outboxRows[i].ID == id {
			s.outboxRows[i].Status = outbox.StatusFailed
			s.outboxRows[i].RetryCount++
			msg := errMsg
			s.outboxRows[i].LastError = &msg
		}
	}
	return nil
}

func (s *Store) ExtendLease(_ context.Context, relayID string, ids []int64, lease time.Duration) error {
	return nil
}

// PendingOutbox returns a copy of the not-yet-sent rows, oldest first.
func (s *Store) PendingOutbox() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Event
	for _, row := range s.outboxRows {
		if row.Status == outbox.StatusPending || row.Status == outbox.StatusInProgress {
			out = append(out, row)
		}
	}
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func sortByID[T any](s []T, id func(T) string) {
	sort.Slice(s, func(i, j int) bool {
		return strings.Compare(id(s[i]), id(s[j])) < 0
	})
}
