// Package postgres is the durable store backend. Every WithinTx call maps to
// one pgx transaction; rows read inside it are locked FOR UPDATE, which
// serializes concurrent cascades on the same records and closes the
// reservation check-then-act race at the database.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	delivery "github.com/agricoop/stockflow/internal/delivery/domain"
	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
	reservation "github.com/agricoop/stockflow/internal/reservation/domain"
	"github.com/agricoop/stockflow/internal/storage"
	"github.com/agricoop/stockflow/pkg/outbox"
	"github.com/agricoop/stockflow/pkg/tracing"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements storage.Store and outbox.Store over a pgx pool.
type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

var (
	_ storage.Store = (*Store)(nil)
	_ outbox.Store  = (*Store)(nil)
)

// NewStore applies the schema and returns the store.
func NewStore(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Info("postgres schema applied")
	return &Store{log: log, pool: pool}, nil
}

// WithinTx runs fn inside one transaction. Reads issued through the tx take
// row locks, so two cascades touching the same item queue up here.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = pgtx.Rollback(ctx)
	}()

	if err := fn(ctx, &txStore{q: pgtx, locking: true}); err != nil {
		return err
	}
	return pgtx.Commit(ctx)
}

// Autocommit surface: same statements, no row locks.

func (s *Store) view() *txStore { return &txStore{q: s.pool} }

func (s *Store) GetItem(ctx context.Context, id string) (inventory.StockItem, error) {
	return s.view().GetItem(ctx, id)
}
func (s *Store) PutItem(ctx context.Context, item inventory.StockItem) error {
	return s.view().PutItem(ctx, item)
}
func (s *Store) QueryItems(ctx context.Context, f storage.ItemFilter) ([]inventory.StockItem, error) {
	return s.view().QueryItems(ctx, f)
}
func (s *Store) GetLot(ctx context.Context, id string) (inventory.StockLot, error) {
	return s.view().GetLot(ctx, id)
}
func (s *Store) PutLot(ctx context.Context, lot inventory.StockLot) error {
	return s.view().PutLot(ctx, lot)
}
func (s *Store) DeleteLot(ctx context.Context, id string) error { return s.view().DeleteLot(ctx, id) }
func (s *Store) QueryLots(ctx context.Context) ([]inventory.StockLot, error) {
	return s.view().QueryLots(ctx)
}
func (s *Store) GetWarehouse(ctx context.Context, id string) (inventory.Warehouse, error) {
	return s.view().GetWarehouse(ctx, id)
}
func (s *Store) PutWarehouse(ctx context.Context, w inventory.Warehouse) error {
	return s.view().PutWarehouse(ctx, w)
}
func (s *Store) QueryWarehouses(ctx context.Context) ([]inventory.Warehouse, error) {
	return s.view().QueryWarehouses(ctx)
}
func (s *Store) GetReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	return s.view().GetReservation(ctx, id)
}
func (s *Store) PutReservation(ctx context.Context, r reservation.Reservation) error {
	return s.view().PutReservation(ctx, r)
}
func (s *Store) DeleteReservation(ctx context.Context, id string) error {
	return s.view().DeleteReservation(ctx, id)
}
func (s *Store) QueryReservations(ctx context.Context, f storage.ReservationFilter) ([]reservation.Reservation, error) {
	return s.view().QueryReservations(ctx, f)
}
func (s *Store) GetDelivery(ctx context.Context, id string) (delivery.DeliveryOrder, error) {
	return s.view().GetDelivery(ctx, id)
}
func (s *Store) PutDelivery(ctx context.Context, o delivery.DeliveryOrder) error {
	return s.view().PutDelivery(ctx, o)
}
func (s *Store) QueryDeliveries(ctx context.Context, f storage.DeliveryFilter) ([]delivery.DeliveryOrder, error) {
	return s.view().QueryDeliveries(ctx, f)
}
func (s *Store) AppendOutbox(ctx context.Context, ev outbox.Event) error {
	return s.view().AppendOutbox(ctx, ev)
}

// txStore issues the statements; when locking is set, single-row reads append
// FOR UPDATE.
type txStore struct {
	q       querier
	locking bool
}

var _ storage.Tx = (*txStore)(nil)

func (t *txStore) lock() string {
	if t.locking {
		return " FOR UPDATE"
	}
	return ""
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.ErrNotFound
	}
	return err
}

// --- stock items ---

const itemCols = `id, commodity, quantity::text, original_quantity::text, bags, original_bags,
	delivered_quantity::text, warehouse_id, lot_id, status, created_at, updated_at`

func scanItem(row pgx.Row) (inventory.StockItem, error) {
	var it inventory.StockItem
	var qty, orig, delivered string
	var status string
	if err := row.Scan(&it.ID, &it.Commodity, &qty, &orig, &it.Bags, &it.OriginalBags,
		&delivered, &it.WarehouseID, &it.LotID, &status, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return inventory.StockItem{}, notFound(err)
	}
	var err error
	if it.Quantity, err = decimal.NewFromString(qty); err != nil {
		return inventory.StockItem{}, err
	}
	if it.OriginalQuantity, err = decimal.NewFromString(orig); err != nil {
		return inventory.StockItem{}, err
	}
	if it.DeliveredQuantity, err = decimal.NewFromString(delivered); err != nil {
		return inventory.StockItem{}, err
	}
	it.Status = inventory.ItemStatus(status)
	return it, nil
}

func (t *txStore) GetItem(ctx context.Context, id string) (inventory.StockItem, error) {
	row := t.q.QueryRow(ctx, `SELECT `+itemCols+` FROM stock_items WHERE id=$1`+t.lock(), id)
	return scanItem(row)
}

func (t *txStore) PutItem(ctx context.Context, it inventory.StockItem) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO stock_items (id, commodity, quantity, original_quantity, bags, original_bags,
			delivered_quantity, warehouse_id, lot_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			commodity=$2, quantity=$3, original_quantity=$4, bags=$5, original_bags=$6,
			delivered_quantity=$7, warehouse_id=$8, lot_id=$9, status=$10, updated_at=$12`,
		it.ID, it.Commodity, it.Quantity.String(), it.OriginalQuantity.String(), it.Bags, it.OriginalBags,
		it.DeliveredQuantity.String(), it.WarehouseID, it.LotID, string(it.Status), it.CreatedAt, it.UpdatedAt)
	return err
}

func (t *txStore) QueryItems(ctx context.Context, f storage.ItemFilter) ([]inventory.StockItem, error) {
	q := `SELECT ` + itemCols + ` FROM stock_items WHERE 1=1`
	var args []any
	if f.WarehouseID != "" {
		args = append(args, f.WarehouseID)
		q += fmt.Sprintf(" AND warehouse_id=$%d", len(args))
	}
	if f.LotID != "" {
		args = append(args, f.LotID)
		q += fmt.Sprintf(" AND lot_id=$%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if f.Ungrouped {
		q += " AND lot_id=''"
	}
	q += " ORDER BY id" + t.lock()

	rows, err := t.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.StockItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- stock lots ---

const lotCols = `id, name, item_ids, total_quantity::text, total_bags, delivered_quantity::text,
	delivered_bags, remaining_quantity::text, remaining_bags, status, locked, created_at, updated_at`

func scanLot(row pgx.Row) (inventory.StockLot, error) {
	var l inventory.StockLot
	var total, delivered, remaining string
	var status string
	if err := row.Scan(&l.ID, &l.Name, &l.ItemIDs, &total, &l.TotalBags, &delivered,
		&l.DeliveredBags, &remaining, &l.RemainingBags, &status, &l.Locked, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return inventory.StockLot{}, notFound(err)
	}
	var err error
	if l.TotalQuantity, err = decimal.NewFromString(total); err != nil {
		return inventory.StockLot{}, err
	}
	if l.DeliveredQuantity, err = decimal.NewFromString(delivered); err != nil {
		return inventory.StockLot{}, err
	}
	if l.RemainingQuantity, err = decimal.NewFromString(remaining); err != nil {
		return inventory.StockLot{}, err
	}
	l.Status = inventory.LotStatus(status)
	return l, nil
}

func (t *txStore) GetLot(ctx context.Context, id string) (inventory.StockLot, error) {
	row := t.q.QueryRow(ctx, `SELECT `+lotCols+` FROM stock_lots WHERE id=$1`+t.lock(), id)
	return scanLot(row)
}

func (t *txStore) PutLot(ctx context.Context, l inventory.StockLot) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO stock_lots (id, name, item_ids, total_quantity, total_bags, delivered_quantity,
			delivered_bags, remaining_quantity, remaining_bags, status, locked, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			name=$2, item_ids=$3, total_quantity=$4, total_bags=$5, delivered_quantity=$6,
			delivered_bags=$7, remaining_quantity=$8, remaining_bags=$9, status=$10, locked=$11, updated_at=$13`,
		l.ID, l.Name, l.ItemIDs, l.TotalQuantity.String(), l.TotalBags, l.DeliveredQuantity.String(),
		l.DeliveredBags, l.RemainingQuantity.String(), l.RemainingBags, string(l.Status), l.Locked,
		l.CreatedAt, l.UpdatedAt)
	return err
}

func (t *txStore) DeleteLot(ctx context.Context, id string) error {
	ct, err := t.q.Exec(ctx, `DELETE FROM stock_lots WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

func (t *txStore) QueryLots(ctx context.Context) ([]inventory.StockLot, error) {
	rows, err := t.q.Query(ctx, `SELECT `+lotCols+` FROM stock_lots ORDER BY id`+t.lock())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.StockLot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- warehouses ---

func scanWarehouse(row pgx.Row) (inventory.Warehouse, error) {
	var w inventory.Warehouse
	var capstr, stock, status string
	if err := row.Scan(&w.ID, &w.Name, &capstr, &stock, &status, &w.UpdatedAt); err != nil {
		return inventory.Warehouse{}, notFound(err)
	}
	var err error
	if w.Capacity, err = decimal.NewFromString(capstr); err != nil {
		return inventory.Warehouse{}, err
	}
	if w.CurrentStock, err = decimal.NewFromString(stock); err != nil {
		return inventory.Warehouse{}, err
	}
	w.Status = inventory.WarehouseStatus(status)
	return w, nil
}

func (t *txStore) GetWarehouse(ctx context.Context, id string) (inventory.Warehouse, error) {
	row := t.q.QueryRow(ctx,
		`SELECT id, name, capacity::text, current_stock::text, status, updated_at FROM warehouses WHERE id=$1`+t.lock(), id)
	return scanWarehouse(row)
}

func (t *txStore) PutWarehouse(ctx context.Context, w inventory.Warehouse) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO warehouses (id, name, capacity, current_stock, status, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET name=$2, capacity=$3, current_stock=$4, status=$5, updated_at=$6`,
		w.ID, w.Name, w.Capacity.String(), w.CurrentStock.String(), string(w.Status), w.UpdatedAt)
	return err
}

func (t *txStore) QueryWarehouses(ctx context.Context) ([]inventory.Warehouse, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id, name, capacity::text, current_stock::text, status, updated_at FROM warehouses ORDER BY id` + t.lock())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// --- reservations ---

const resCols = `id, item_id, item_type, quantity::text, actor, reserved_at, expires_at, confirmed, delivery_order_id`

func scanReservation(row pgx.Row) (reservation.Reservation, error) {
	var r reservation.Reservation
	var qty, itemType string
	if err := row.Scan(&r.ID, &r.ItemID, &itemType, &qty, &r.Actor, &r.ReservedAt,
		&r.ExpiresAt, &r.Confirmed, &r.DeliveryOrderID); err != nil {
		return reservation.Reservation{}, notFound(err)
	}
	var err error
	if r.Quantity, err = decimal.NewFromString(qty); err != nil {
		return reservation.Reservation{}, err
	}
	r.ItemType = inventory.ItemType(itemType)
	return r, nil
}

func (t *txStore) GetReservation(ctx context.Context, id string) (reservation.Reservation, error) {
	row := t.q.QueryRow(ctx, `SELECT `+resCols+` FROM reservations WHERE id=$1`+t.lock(), id)
	return scanReservation(row)
}

func (t *txStore) PutReservation(ctx context.Context, r reservation.Reservation) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO reservations (id, item_id, item_type, quantity, actor, reserved_at, expires_at, confirmed, delivery_order_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET quantity=$4, expires_at=$7, confirmed=$8, delivery_order_id=$9`,
		r.ID, r.ItemID, string(r.ItemType), r.Quantity.String(), r.Actor, r.ReservedAt, r.ExpiresAt,
		r.Confirmed, r.DeliveryOrderID)
	return err
}

func (t *txStore) DeleteReservation(ctx context.Context, id string) error {
	ct, err := t.q.Exec(ctx, `DELETE FROM reservations WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

func (t *txStore) QueryReservations(ctx context.Context, f storage.ReservationFilter) ([]reservation.Reservation, error) {
	q := `SELECT ` + resCols + ` FROM reservations WHERE 1=1`
	var args []any
	if f.ItemID != "" {
		args = append(args, f.ItemID)
		q += fmt.Sprintf(" AND item_id=$%d", len(args))
	}
	if f.ItemType != "" {
		args = append(args, string(f.ItemType))
		q += fmt.Sprintf(" AND item_type=$%d", len(args))
	}
	if f.Actor != "" {
		args = append(args, f.Actor)
		q += fmt.Sprintf(" AND actor=$%d", len(args))
	}
	if f.DeliveryOrderID != "" {
		args = append(args, f.DeliveryOrderID)
		q += fmt.Sprintf(" AND delivery_order_id=$%d", len(args))
	}
	if f.ActiveAt != nil {
		args = append(args, *f.ActiveAt)
		q += fmt.Sprintf(" AND (confirmed OR expires_at > $%d)", len(args))
	}
	if f.ExpiredAt != nil {
		args = append(args, *f.ExpiredAt)
		q += fmt.Sprintf(" AND NOT confirmed AND expires_at <= $%d", len(args))
	}
	q += " ORDER BY id" + t.lock()

	rows, err := t.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- deliveries ---

const deliveryCols = `id, buyer, lines, status, partial_delivery, planned_quantity::text,
	buyer_weight::text, weight_loss::text, cost, tracking, created_at, updated_at, cancelled_at`

func scanDelivery(row pgx.Row) (delivery.DeliveryOrder, error) {
	var o delivery.DeliveryOrder
	var lines, tracking []byte
	var cost []byte
	var planned, weight, loss, status string
	if err := row.Scan(&o.ID, &o.Buyer, &lines, &status, &o.PartialDelivery, &planned,
		&weight, &loss, &cost, &tracking, &o.CreatedAt, &o.UpdatedAt, &o.CancelledAt); err != nil {
		return delivery.DeliveryOrder{}, notFound(err)
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return delivery.DeliveryOrder{}, err
	}
	if err := json.Unmarshal(tracking, &o.Tracking); err != nil {
		return delivery.DeliveryOrder{}, err
	}
	if len(cost) > 0 {
		o.Cost = &delivery.CostBreakdown{}
		if err := json.Unmarshal(cost, o.Cost); err != nil {
			return delivery.DeliveryOrder{}, err
		}
	}
	var err error
	if o.PlannedQuantity, err = decimal.NewFromString(planned); err != nil {
		return delivery.DeliveryOrder{}, err
	}
	if o.BuyerWeight, err = decimal.NewFromString(weight); err != nil {
		return delivery.DeliveryOrder{}, err
	}
	if o.WeightLoss, err = decimal.NewFromString(loss); err != nil {
		return delivery.DeliveryOrder{}, err
	}
	o.Status = delivery.OrderStatus(status)
	return o, nil
}

func (t *txStore) GetDelivery(ctx context.Context, id string) (delivery.DeliveryOrder, error) {
	row := t.q.QueryRow(ctx, `SELECT `+deliveryCols+` FROM deliveries WHERE id=$1`+t.lock(), id)
	return scanDelivery(row)
}

func (t *txStore) PutDelivery(ctx context.Context, o delivery.DeliveryOrder) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return err
	}
	tracking, err := json.Marshal(o.Tracking)
	if err != nil {
		return err
	}
	var cost []byte
	if o.Cost != nil {
		if cost, err = json.Marshal(o.Cost); err != nil {
			return err
		}
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO deliveries (id, buyer, lines, status, partial_delivery, planned_quantity,
			buyer_weight, weight_loss, cost, tracking, created_at, updated_at, cancelled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			buyer=$2, lines=$3, status=$4, partial_delivery=$5, planned_quantity=$6,
			buyer_weight=$7, weight_loss=$8, cost=$9, tracking=$10, updated_at=$12, cancelled_at=$13`,
		o.ID, o.Buyer, lines, string(o.Status), o.PartialDelivery, o.PlannedQuantity.String(),
		o.BuyerWeight.String(), o.WeightLoss.String(), cost, tracking, o.CreatedAt, o.UpdatedAt, o.CancelledAt)
	return err
}

func (t *txStore) QueryDeliveries(ctx context.Context, f storage.DeliveryFilter) ([]delivery.DeliveryOrder, error) {
	q := `SELECT ` + deliveryCols + ` FROM deliveries WHERE 1=1`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if f.Buyer != "" {
		args = append(args, f.Buyer)
		q += fmt.Sprintf(" AND buyer=$%d", len(args))
	}
	q += " ORDER BY created_at DESC"

	rows, err := t.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []delivery.DeliveryOrder
	for rows.Next() {
		o, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- outbox ---

func (t *txStore) AppendOutbox(ctx context.Context, ev outbox.Event) error {
	if ev.Traceparent == "" {
		ev.Traceparent = tracing.Traceparent(ctx)
	}
	headers, err := json.Marshal(ev.Headers)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		ev.AggregateType, ev.AggregateID, ev.Type, ev.Payload, headers, ev.Traceparent)
	return err
}

func (s *Store) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at
		FROM outbox
		WHERE status = 'pending'
		   OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1`, batchSize)
	if err != nil {
		return nil, err
	}

	var events []outbox.Event
	for rows.Next() {
		var ev outbox.Event
		var headers []byte
		if err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.Type, &ev.Payload,
			&headers, &ev.Traceparent, &ev.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &ev.Headers); err != nil {
				rows.Close()
				return nil, err
			}
		}
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	_, err = tx.Exec(ctx, `
		UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval
		WHERE id = ANY($3)`, relayID, lease.String(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent' WHERE id = ANY($1)`, ids)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox SET status='failed', last_error=$2, retry_count=retry_count+1 WHERE id=$1`, id, errMsg)
	return err
}

func (s *Store) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox SET lease_until=now() + $1::interval WHERE id = ANY($2) AND relay_id=$3`,
		lease.String(), ids, relayID)
	return err
}
