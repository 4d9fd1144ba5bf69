package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
	"github.com/agricoop/stockflow/internal/storage/memory"
	"github.com/agricoop/stockflow/pkg/notifier"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*Manager, *memory.Store, *notifier.Notifier) {
	t.Helper()
	store := memory.NewStore()
	bus := notifier.New()
	return NewManager(testLogger(), store, bus), store, bus
}

func seedItem(t *testing.T, store *memory.Store, id, quantity string) {
	t.Helper()
	item := inventory.NewStockItem(id, "wheat", d(quantity), 0)
	require.NoError(t, store.PutItem(context.Background(), item))
}

func TestReserve(t *testing.T) {
	ctx := context.Background()
	m, store, _ := setup(t)
	seedItem(t, store, "i1", "10")

	t.Run("hold within availability succeeds", func(t *testing.T) {
		id, err := m.Reserve(ctx, "i1", inventory.TypeStock, d("4"), "planner-a")
		require.NoError(t, err)
		require.NotEmpty(t, id)

		avail, err := m.Available(ctx, "i1", inventory.TypeStock)
		require.NoError(t, err)
		assert.True(t, avail.Equal(d("6")))
	})

	t.Run("hold past availability is refused", func(t *testing.T) {
		_, err := m.Reserve(ctx, "i1", inventory.TypeStock, d("7"), "planner-b")
		assert.ErrorIs(t, err, inventory.ErrCapacityExceeded)

		avail, err := m.Available(ctx, "i1", inventory.TypeStock)
		require.NoError(t, err)
		assert.True(t, avail.Equal(d("6")), "refused hold must not change availability")
	})

	t.Run("non-positive quantity is refused before the store", func(t *testing.T) {
		_, err := m.Reserve(ctx, "i1", inventory.TypeStock, d("0"), "planner-a")
		assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)

		_, err = m.Reserve(ctx, "i1", inventory.TypeStock, d("-1"), "planner-a")
		assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := m.Reserve(ctx, "ghost", inventory.TypeStock, d("1"), "planner-a")
		assert.ErrorIs(t, err, inventory.ErrNotFound)
	})
}

func TestReserveAgainstLot(t *testing.T) {
	ctx := context.Background()
	m, store, _ := setup(t)

	lot := inventory.NewStockLot("l1", "july-wheat", []string{"i1", "i2"}, d("20"), 400)
	require.NoError(t, store.PutLot(ctx, lot))

	_, err := m.Reserve(ctx, "l1", inventory.TypeLot, d("12"), "planner-a")
	require.NoError(t, err)

	_, err = m.Reserve(ctx, "l1", inventory.TypeLot, d("9"), "planner-b")
	assert.ErrorIs(t, err, inventory.ErrCapacityExceeded)

	avail, err := m.Available(ctx, "l1", inventory.TypeLot)
	require.NoError(t, err)
	assert.True(t, avail.Equal(d("8")))
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	m, store, _ := setup(t)
	seedItem(t, store, "i1", "10")

	_, err := m.Reserve(ctx, "i1", inventory.TypeStock, d("4"), "planner-a")
	require.NoError(t, err)

	t.Run("release frees the hold", func(t *testing.T) {
		require.NoError(t, m.Release(ctx, "i1", inventory.TypeStock, "planner-a"))

		avail, err := m.Available(ctx, "i1", inventory.TypeStock)
		require.NoError(t, err)
		assert.True(t, avail.Equal(d("10")))
	})

	t.Run("release with nothing held is a no-op", func(t *testing.T) {
		require.NoError(t, m.Release(ctx, "i1", inventory.TypeStock, "planner-a"))
		require.NoError(t, m.Release(ctx, "ghost", inventory.TypeStock, "planner-a"))
	})

	t.Run("release skips confirmed holds", func(t *testing.T) {
		id, err := m.Reserve(ctx, "i1", inventory.TypeStock, d("3"), "planner-a")
		require.NoError(t, err)
		require.NoError(t, m.Confirm(ctx, id, "do-1"))

		require.NoError(t, m.Release(ctx, "i1", inventory.TypeStock, "planner-a"))

		res, err := store.GetReservation(ctx, id)
		require.NoError(t, err)
		assert.True(t, res.Confirmed)
	})
}

func TestConfirmSweptHoldIgnored(t *testing.T) {
	m, _, _ := setup(t)
	assert.NoError(t, m.Confirm(context.Background(), "gone", "do-1"))
}

func TestExpiredHoldsFreeAvailability(t *testing.T) {
	ctx := context.Background()
	m, store, _ := setup(t)
	seedItem(t, store, "i1", "10")

	_, err := m.Reserve(ctx, "i1", inventory.TypeStock, d("8"), "planner-a")
	require.NoError(t, err)

	// Availability is evaluated at the manager's clock, so an expired but not
	// yet swept hold already stops counting.
	m.now = func() time.Time { return time.Now().UTC().Add(31 * time.Minute) }

	avail, err := m.Available(ctx, "i1", inventory.TypeStock)
	require.NoError(t, err)
	assert.True(t, avail.Equal(d("10")))

	active, err := m.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSubscribeStreamsHoldEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, store, _ := setup(t)
	seedItem(t, store, "i1", "10")

	events := m.Subscribe(ctx)

	_, err := m.Reserve(ctx, "i1", inventory.TypeStock, d("4"), "planner-a")
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, "i1", inventory.TypeStock, "planner-a"))

	ev := <-events
	assert.Equal(t, notifier.ActionReserved, ev.Action)
	assert.Equal(t, "i1", ev.ItemID)
	assert.NotEmpty(t, ev.EventID)
	assert.True(t, ev.RemainingQuantity.Equal(d("6")))

	ev = <-events
	assert.Equal(t, notifier.ActionReleased, ev.Action)
	assert.NotEmpty(t, ev.EventID)
}
