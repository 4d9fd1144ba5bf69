package application

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agricoop/stockflow/internal/inventory/domain"
	"github.com/agricoop/stockflow/internal/storage"
	"github.com/agricoop/stockflow/internal/storage/memory"
	"github.com/agricoop/stockflow/pkg/notifier"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(log, store, notifier.New()), store
}

func TestIntake(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)

	t.Run("registers an available item", func(t *testing.T) {
		item, err := svc.Intake(ctx, "wheat", d("12.5"), 250)
		require.NoError(t, err)
		assert.Equal(t, domain.ItemAvailable, item.Status)
		assert.True(t, item.OriginalQuantity.Equal(d("12.5")))

		stored, err := store.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "wheat", stored.Commodity)
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		_, err := svc.Intake(ctx, "wheat", d("0"), 0)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})
}

func TestAssignWarehouse(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)

	wh, err := svc.RegisterWarehouse(ctx, "silo-a", d("10"))
	require.NoError(t, err)

	t.Run("assignment books tonnage and sets status", func(t *testing.T) {
		item, err := svc.Intake(ctx, "wheat", d("6"), 120)
		require.NoError(t, err)

		require.NoError(t, svc.AssignWarehouse(ctx, item.ID, wh.ID))

		stored, err := store.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ItemAssigned, stored.Status)
		assert.Equal(t, wh.ID, stored.WarehouseID)

		w, err := store.GetWarehouse(ctx, wh.ID)
		require.NoError(t, err)
		assert.True(t, w.CurrentStock.Equal(d("6")))
	})

	t.Run("assignment past capacity is refused", func(t *testing.T) {
		item, err := svc.Intake(ctx, "wheat", d("5"), 100)
		require.NoError(t, err)

		err = svc.AssignWarehouse(ctx, item.ID, wh.ID)
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

		w, err := store.GetWarehouse(ctx, wh.ID)
		require.NoError(t, err)
		assert.True(t, w.CurrentStock.Equal(d("6")), "refused assignment must not book tonnage")
	})

	t.Run("reassignment releases the previous warehouse", func(t *testing.T) {
		other, err := svc.RegisterWarehouse(ctx, "silo-b", d("20"))
		require.NoError(t, err)

		items, err := store.QueryItems(ctx, storage.ItemFilter{WarehouseID: wh.ID})
		require.NoError(t, err)
		require.Len(t, items, 1)

		require.NoError(t, svc.AssignWarehouse(ctx, items[0].ID, other.ID))

		was, err := store.GetWarehouse(ctx, wh.ID)
		require.NoError(t, err)
		assert.True(t, was.CurrentStock.IsZero())

		now, err := store.GetWarehouse(ctx, other.ID)
		require.NoError(t, err)
		assert.True(t, now.CurrentStock.Equal(d("6")))
	})

	t.Run("inactive warehouse is refused", func(t *testing.T) {
		closed, err := svc.RegisterWarehouse(ctx, "silo-c", d("50"))
		require.NoError(t, err)
		closed.Status = domain.WarehouseInactive
		require.NoError(t, store.PutWarehouse(ctx, closed))

		item, err := svc.Intake(ctx, "wheat", d("1"), 20)
		require.NoError(t, err)

		err = svc.AssignWarehouse(ctx, item.ID, closed.ID)
		assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	})
}

func TestCreateLot(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)

	a, err := svc.Intake(ctx, "wheat", d("8"), 160)
	require.NoError(t, err)
	b, err := svc.Intake(ctx, "wheat", d("12"), 240)
	require.NoError(t, err)

	t.Run("totals are the sum of members, fixed at creation", func(t *testing.T) {
		lot, err := svc.CreateLot(ctx, "july-wheat", []string{a.ID, b.ID})
		require.NoError(t, err)
		assert.True(t, lot.TotalQuantity.Equal(d("20")))
		assert.Equal(t, int64(400), lot.TotalBags)
		assert.True(t, lot.RemainingQuantity.Equal(d("20")))

		memberA, err := store.GetItem(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, lot.ID, memberA.LotID)
	})

	t.Run("grouped member is refused", func(t *testing.T) {
		c, err := svc.Intake(ctx, "wheat", d("3"), 60)
		require.NoError(t, err)

		_, err = svc.CreateLot(ctx, "dup", []string{a.ID, c.ID})
		assert.ErrorIs(t, err, domain.ErrAlreadyLocked)

		// rolled back: c stays ungrouped
		stored, err := store.GetItem(ctx, c.ID)
		require.NoError(t, err)
		assert.False(t, stored.Grouped())
	})

	t.Run("single item is not a lot", func(t *testing.T) {
		c, err := svc.Intake(ctx, "wheat", d("3"), 60)
		require.NoError(t, err)

		_, err = svc.CreateLot(ctx, "solo", []string{c.ID})
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})
}

func TestArchiveLot(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)

	a, err := svc.Intake(ctx, "maize", d("5"), 100)
	require.NoError(t, err)
	b, err := svc.Intake(ctx, "maize", d("5"), 100)
	require.NoError(t, err)
	lot, err := svc.CreateLot(ctx, "maize-lot", []string{a.ID, b.ID})
	require.NoError(t, err)

	t.Run("locked lot is refused", func(t *testing.T) {
		locked, err := store.GetLot(ctx, lot.ID)
		require.NoError(t, err)
		locked.Locked = true
		require.NoError(t, store.PutLot(ctx, locked))

		err = svc.ArchiveLot(ctx, lot.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyLocked)

		locked.Locked = false
		require.NoError(t, store.PutLot(ctx, locked))
	})

	t.Run("archive frees its members", func(t *testing.T) {
		require.NoError(t, svc.ArchiveLot(ctx, lot.ID))

		_, err := store.GetLot(ctx, lot.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		memberA, err := store.GetItem(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, memberA.Grouped())
	})
}
