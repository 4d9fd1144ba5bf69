//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deliveryapp "github.com/agricoop/stockflow/internal/delivery/application"
	inventoryapp "github.com/agricoop/stockflow/internal/inventory/application"
	inventory "github.com/agricoop/stockflow/internal/inventory/domain"
	reservationapp "github.com/agricoop/stockflow/internal/reservation/application"
	"github.com/agricoop/stockflow/internal/storage/postgres"
	"github.com/agricoop/stockflow/pkg/notifier"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPlanningFlowAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	env, err := Setup(ctx)
	require.NoError(t, err)
	defer env.Teardown(ctx)

	pool, err := pgxpool.New(ctx, env.PGURL)
	require.NoError(t, err)
	defer pool.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := postgres.NewStore(ctx, log, pool)
	require.NoError(t, err)

	bus := notifier.New()
	svc := inventoryapp.NewService(log, store, bus)
	manager := reservationapp.NewManager(log, store, bus)
	coordinator := deliveryapp.NewCoordinator(log, store, bus)
	compensator := deliveryapp.NewCompensator(log, store, bus)

	item, err := svc.Intake(ctx, "wheat", d("10"), 200)
	require.NoError(t, err)

	wh, err := svc.RegisterWarehouse(ctx, "silo-a", d("50"))
	require.NoError(t, err)
	require.NoError(t, svc.AssignWarehouse(ctx, item.ID, wh.ID))

	resID, err := manager.Reserve(ctx, item.ID, inventory.TypeStock, d("4"), "planner-a")
	require.NoError(t, err)

	order, err := coordinator.SubmitDelivery(ctx, "miller-ltd", []deliveryapp.ManifestLine{
		{ItemID: item.ID, Quantity: d("4"), Bags: 80, ReservationID: resID},
	})
	require.NoError(t, err)

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(d("6")))
	assert.Equal(t, inventory.ItemPartiallyDelivered, got.Status)

	w, err := store.GetWarehouse(ctx, wh.ID)
	require.NoError(t, err)
	assert.True(t, w.CurrentStock.Equal(d("6")))

	_, err = compensator.Cancel(ctx, order.ID, "ops-admin")
	require.NoError(t, err)

	got, err = store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(d("10")))

	w, err = store.GetWarehouse(ctx, wh.ID)
	require.NoError(t, err)
	assert.True(t, w.CurrentStock.Equal(d("10")))
}
