package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
	reservation "github.com/agricoop/stockflow/internal/reservation/domain"
	"github.com/agricoop/stockflow/internal/storage"
	"github.com/agricoop/stockflow/pkg/outbox"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWithinTxRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	item := inventory.NewStockItem("i1", "wheat", d("10"), 200)
	require.NoError(t, s.PutItem(ctx, item))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.GetItem(ctx, "i1")
		require.NoError(t, err)
		got.ApplyPlannedDelivery(d("4"), 80)
		require.NoError(t, tx.PutItem(ctx, got))
		require.NoError(t, tx.PutItem(ctx, inventory.NewStockItem("i2", "maize", d("3"), 60)))
		require.NoError(t, tx.AppendOutbox(ctx, outbox.Event{AggregateID: "i1", Type: "updated"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(d("10")), "mutation rolled back")

	_, err = s.GetItem(ctx, "i2")
	assert.ErrorIs(t, err, inventory.ErrNotFound, "insert rolled back")

	assert.Empty(t, s.PendingOutbox(), "outbox append rolled back")
}

func TestWithinTxCommit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.PutItem(ctx, inventory.NewStockItem("i1", "wheat", d("10"), 200)); err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, outbox.Event{AggregateID: "i1", Type: "updated"})
	})
	require.NoError(t, err)

	_, err = s.GetItem(ctx, "i1")
	assert.NoError(t, err)
	assert.Len(t, s.PendingOutbox(), 1)
}

func TestReservationFilters(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now().UTC()

	fresh := reservation.NewReservation("r1", "i1", inventory.TypeStock, d("2"), "planner-a")
	stale := reservation.NewReservation("r2", "i1", inventory.TypeStock, d("3"), "planner-b")
	stale.ExpiresAt = now.Add(-time.Minute)
	confirmedStale := reservation.NewReservation("r3", "i2", inventory.TypeStock, d("1"), "planner-a")
	confirmedStale.ExpiresAt = now.Add(-time.Minute)
	confirmedStale.Confirmed = true

	for _, r := range []reservation.Reservation{fresh, stale, confirmedStale} {
		require.NoError(t, s.PutReservation(ctx, r))
	}

	t.Run("active keeps fresh and confirmed holds", func(t *testing.T) {
		got, err := s.QueryReservations(ctx, storage.ReservationFilter{ActiveAt: &now})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "r1", got[0].ID)
		assert.Equal(t, "r3", got[1].ID)
	})

	t.Run("expired keeps only unconfirmed lapsed holds", func(t *testing.T) {
		got, err := s.QueryReservations(ctx, storage.ReservationFilter{ExpiredAt: &now})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r2", got[0].ID)
	})

	t.Run("actor filter", func(t *testing.T) {
		got, err := s.QueryReservations(ctx, storage.ReservationFilter{Actor: "planner-a"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestItemFilters(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	a := inventory.NewStockItem("a", "wheat", d("5"), 100)
	a.WarehouseID = "w1"
	b := inventory.NewStockItem("b", "wheat", d("5"), 100)
	b.LotID = "l1"
	for _, item := range []inventory.StockItem{a, b} {
		require.NoError(t, s.PutItem(ctx, item))
	}

	got, err := s.QueryItems(ctx, storage.ItemFilter{Ungrouped: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	got, err = s.QueryItems(ctx, storage.ItemFilter{LotID: "l1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestOutboxBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for range 3 {
		require.NoError(t, s.AppendOutbox(ctx, outbox.Event{AggregateID: "i1", Type: "updated"}))
	}

	batch, err := s.LockBatch(ctx, "relay-1", 2, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "relay-1", batch[0].RelayID)

	// Locked rows are not handed out again.
	again, err := s.LockBatch(ctx, "relay-2", 10, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, again, 1)

	require.NoError(t, s.MarkSent(ctx, []int64{batch[0].ID, batch[1].ID}))
	require.NoError(t, s.MarkFailed(ctx, again[0].ID, "broker down"))

	pending := s.PendingOutbox()
	assert.Empty(t, pending)
}
