package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
	"github.com/agricoop/stockflow/internal/storage"
	"github.com/agricoop/stockflow/internal/storage/memory"
	"github.com/agricoop/stockflow/pkg/notifier"
)

func TestSweepNow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	bus := notifier.New()
	m := NewManager(testLogger(), store, bus)
	sw := NewSweeper(testLogger(), store, bus)

	seedItem(t, store, "i1", "10")
	seedItem(t, store, "i2", "10")

	_, err := m.Reserve(ctx, "i1", inventory.TypeStock, d("4"), "planner-a")
	require.NoError(t, err)
	confirmedID, err := m.Reserve(ctx, "i2", inventory.TypeStock, d("3"), "planner-b")
	require.NoError(t, err)
	require.NoError(t, m.Confirm(ctx, confirmedID, "do-1"))

	t.Run("nothing expired, nothing swept", func(t *testing.T) {
		n, err := sw.SweepNow(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("lapsed holds are reclaimed, confirmed holds survive", func(t *testing.T) {
		sw.now = func() time.Time { return time.Now().UTC().Add(31 * time.Minute) }

		n, err := sw.SweepNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = store.GetReservation(ctx, confirmedID)
		assert.NoError(t, err, "confirmed hold must outlive its TTL")

		all, err := store.QueryReservations(ctx, storage.ReservationFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("sweep is idempotent", func(t *testing.T) {
		n, err := sw.SweepNow(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestForceClearAll(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	bus := notifier.New()
	m := NewManager(testLogger(), store, bus)
	sw := NewSweeper(testLogger(), store, bus)

	seedItem(t, store, "i1", "10")

	_, err := m.Reserve(ctx, "i1", inventory.TypeStock, d("4"), "planner-a")
	require.NoError(t, err)
	confirmedID, err := m.Reserve(ctx, "i1", inventory.TypeStock, d("2"), "planner-b")
	require.NoError(t, err)
	require.NoError(t, m.Confirm(ctx, confirmedID, "do-1"))

	n, err := sw.ForceClearAll(ctx, "ops-admin")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "force-clear removes confirmed holds too")

	all, err := store.QueryReservations(ctx, storage.ReservationFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
