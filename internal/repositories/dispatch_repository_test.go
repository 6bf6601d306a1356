package repositories

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"delivery-system/internal/authz"
	"delivery-system/internal/entities"
	"delivery-system/pkg/database/postgresql"
)

var testPool *pgxpool.Pool

// TestMain connects to the test database named by TEST_DATABASE_URL and
// applies the embedded migrations. When the variable is unset the
// integration tests are skipped.
func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn != "" {
		var err error
		testPool, err = postgresql.ConnectDB(context.Background(), dsn)
		if err != nil {
			log.Fatalf("failed to connect to test database: %v", err)
		}
		if err := postgresql.Migrate(testPool); err != nil {
			log.Fatalf("failed to migrate test database: %v", err)
		}
		defer testPool.Close()
	}
	os.Exit(m.Run())
}

func requireTestDB(t *testing.T) {
	t.Helper()
	if testPool == nil {
		t.Skip("TEST_DATABASE_URL is not set; skipping integration test")
	}
}

func cleanupTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		TRUNCATE TABLE delay_reports, delivery_archives, dispatch_assignments,
			order_status_history, order_items, orders, cart_items, carts,
			manager_hub_scopes, driver_hub_scopes, driver_city_scopes, hubs, users
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "failed to truncate tables")
}

func seedHubAndUsers(t *testing.T, pool *pgxpool.Pool) (hubID, customerID, driverID uint64) {
	t.Helper()
	ctx := context.Background()

	err := pool.QueryRow(ctx, `
		INSERT INTO hubs (name, city_id, is_active, accepting_orders)
		VALUES ('Test Hub', 1, TRUE, TRUE) RETURNING id`).Scan(&hubID)
	require.NoError(t, err)

	err = pool.QueryRow(ctx, `
		INSERT INTO users (name, phone, role) VALUES ('Customer', '+99290000001', 'customer') RETURNING id`).
		Scan(&customerID)
	require.NoError(t, err)

	err = pool.QueryRow(ctx, `
		INSERT INTO users (name, phone, role) VALUES ('Driver', '+99290000002', 'driver') RETURNING id`).
		Scan(&driverID)
	require.NoError(t, err)

	return hubID, customerID, driverID
}

func seedOrder(t *testing.T, pool *pgxpool.Pool, hubID, customerID uint64, status entities.OrderStatus) uint64 {
	t.Helper()
	repo := NewOrderRepository(pool, zap.NewNop())

	var orderID uint64
	err := WithTx(context.Background(), pool, func(tx pgx.Tx) error {
		var err error
		orderID, err = repo.CreateOrderInTx(context.Background(), tx, &entities.Order{
			OrderNumber:     "ORD-TEST" + time.Now().Format("150405.000"),
			HubID:           hubID,
			CityID:          1,
			CustomerID:      customerID,
			SessionToken:    "sess-" + time.Now().Format("150405.000000"),
			FulfillmentType: entities.FulfillmentDelivery,
			Subtotal:        20,
			Total:           25,
			Currency:        "USD",
			PricingSnapshot: []byte(`{}`),
			CartSnapshot:    []byte(`{}`),
			PaymentMethod:   entities.PaymentMethodCardpay,
			PaymentStatus:   entities.PaymentPaid,
			Status:          status,
		})
		return err
	})
	require.NoError(t, err)
	return orderID
}

func TestDispatchRepository_EnsureForUpdateIsLazyAndIdempotent(t *testing.T) {
	requireTestDB(t)
	cleanupTables(t, testPool)
	hubID, customerID, _ := seedHubAndUsers(t, testPool)
	orderID := seedOrder(t, testPool, hubID, customerID, entities.StatusConfirmed)

	repo := NewDispatchRepository(testPool, zap.NewNop())
	ctx := context.Background()

	err := WithTx(ctx, testPool, func(tx pgx.Tx) error {
		a, err := repo.EnsureForUpdate(ctx, tx, orderID)
		require.NoError(t, err)
		assert.Equal(t, entities.OpsUnassigned, a.OpsStatus)
		assert.Nil(t, a.DriverID)

		// Second touch in the same tx returns the same row.
		again, err := repo.EnsureForUpdate(ctx, tx, orderID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, again.ID)
		return nil
	})
	require.NoError(t, err)
}

// TestDispatchRepository_ClaimRace runs the claim protocol concurrently:
// every goroutine locks the assignment row, checks the holder and assigns
// only when the row is free. Exactly one driver may win.
func TestDispatchRepository_ClaimRace(t *testing.T) {
	requireTestDB(t)
	cleanupTables(t, testPool)
	hubID, customerID, _ := seedHubAndUsers(t, testPool)
	orderID := seedOrder(t, testPool, hubID, customerID, entities.StatusConfirmed)

	ctx := context.Background()
	const drivers = 8
	driverIDs := make([]uint64, drivers)
	for i := 0; i < drivers; i++ {
		err := testPool.QueryRow(ctx, `
			INSERT INTO users (name, phone, role) VALUES ('Racer', $1, 'driver') RETURNING id`,
			fmt.Sprintf("+9929100000%d", i)).Scan(&driverIDs[i])
		require.NoError(t, err)
	}

	repo := NewDispatchRepository(testPool, zap.NewNop())

	var wg sync.WaitGroup
	wins := make(chan uint64, drivers)
	for _, driverID := range driverIDs {
		wg.Add(1)
		go func(driverID uint64) {
			defer wg.Done()
			err := WithTx(ctx, testPool, func(tx pgx.Tx) error {
				a, err := repo.EnsureForUpdate(ctx, tx, orderID)
				if err != nil {
					return err
				}
				if a.DriverID != nil {
					return nil
				}
				if err := repo.AssignInTx(ctx, tx, orderID, driverID, driverID); err != nil {
					return err
				}
				wins <- driverID
				return nil
			})
			assert.NoError(t, err)
		}(driverID)
	}
	wg.Wait()
	close(wins)

	var winners []uint64
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1, "exactly one claim must win")

	a, err := repo.FindByOrder(ctx, nil, orderID)
	require.NoError(t, err)
	require.NotNil(t, a.DriverID)
	assert.Equal(t, winners[0], *a.DriverID)
	assert.Equal(t, entities.OpsAssigned, a.OpsStatus)
}

func TestDispatchRepository_ReleaseIsDriverScoped(t *testing.T) {
	requireTestDB(t)
	cleanupTables(t, testPool)
	hubID, customerID, driverID := seedHubAndUsers(t, testPool)
	orderID := seedOrder(t, testPool, hubID, customerID, entities.StatusConfirmed)

	var otherDriver uint64
	err := testPool.QueryRow(context.Background(), `
		INSERT INTO users (name, phone, role) VALUES ('Other', '+99290000003', 'driver') RETURNING id`).
		Scan(&otherDriver)
	require.NoError(t, err)

	repo := NewDispatchRepository(testPool, zap.NewNop())
	ctx := context.Background()

	err = WithTx(ctx, testPool, func(tx pgx.Tx) error {
		if _, err := repo.EnsureForUpdate(ctx, tx, orderID); err != nil {
			return err
		}
		return repo.AssignInTx(ctx, tx, orderID, driverID, driverID)
	})
	require.NoError(t, err)

	// A stale release by a driver who no longer holds the row is a no-op.
	err = WithTx(ctx, testPool, func(tx pgx.Tx) error {
		released, err := repo.ReleaseInTx(ctx, tx, orderID, otherDriver)
		require.NoError(t, err)
		assert.False(t, released)
		return nil
	})
	require.NoError(t, err)

	err = WithTx(ctx, testPool, func(tx pgx.Tx) error {
		released, err := repo.ReleaseInTx(ctx, tx, orderID, driverID)
		require.NoError(t, err)
		assert.True(t, released)
		return nil
	})
	require.NoError(t, err)

	a, err := repo.FindByOrder(ctx, nil, orderID)
	require.NoError(t, err)
	assert.Nil(t, a.DriverID)
	assert.Equal(t, entities.OpsUnassigned, a.OpsStatus)
}

func TestDispatchRepository_AdvanceIsCompareAndSet(t *testing.T) {
	requireTestDB(t)
	cleanupTables(t, testPool)
	hubID, customerID, driverID := seedHubAndUsers(t, testPool)
	orderID := seedOrder(t, testPool, hubID, customerID, entities.StatusConfirmed)

	repo := NewDispatchRepository(testPool, zap.NewNop())
	ctx := context.Background()

	err := WithTx(ctx, testPool, func(tx pgx.Tx) error {
		if _, err := repo.EnsureForUpdate(ctx, tx, orderID); err != nil {
			return err
		}
		return repo.AssignInTx(ctx, tx, orderID, driverID, driverID)
	})
	require.NoError(t, err)

	// Wrong expected state does not advance.
	err = WithTx(ctx, testPool, func(tx pgx.Tx) error {
		ok, err := repo.AdvanceInTx(ctx, tx, orderID, driverID, entities.OpsPickedUp, entities.OpsCompleted)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	err = WithTx(ctx, testPool, func(tx pgx.Tx) error {
		ok, err := repo.AdvanceInTx(ctx, tx, orderID, driverID, entities.OpsAssigned, entities.OpsPickedUp)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)

	a, err := repo.FindByOrder(ctx, nil, orderID)
	require.NoError(t, err)
	assert.Equal(t, entities.OpsPickedUp, a.OpsStatus)
}

func TestDispatchRepository_ArchiveExcludesOrder(t *testing.T) {
	requireTestDB(t)
	cleanupTables(t, testPool)
	hubID, customerID, driverID := seedHubAndUsers(t, testPool)
	orderID := seedOrder(t, testPool, hubID, customerID, entities.StatusOutForDelivery)

	repo := NewDispatchRepository(testPool, zap.NewNop())
	ctx := context.Background()

	archived, err := repo.IsArchived(ctx, nil, orderID)
	require.NoError(t, err)
	assert.False(t, archived)

	err = WithTx(ctx, testPool, func(tx pgx.Tx) error {
		return repo.ArchiveInTx(ctx, tx, entities.DeliveryArchive{
			OrderID:     orderID,
			DriverID:    driverID,
			HubID:       hubID,
			CityID:      1,
			Total:       25,
			DeliveredAt: time.Now(),
		})
	})
	require.NoError(t, err)

	archived, err = repo.IsArchived(ctx, nil, orderID)
	require.NoError(t, err)
	assert.True(t, archived)

	listRepo := NewListingRepository(testPool)
	orders, total, err := listRepo.ListDispatchOrders(ctx, DispatchListParams{
		Scope: authz.OperatorScope(),
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func TestOrderRepository_IdempotencyWindow(t *testing.T) {
	requireTestDB(t)
	cleanupTables(t, testPool)
	hubID, customerID, _ := seedHubAndUsers(t, testPool)

	repo := NewOrderRepository(testPool, zap.NewNop())
	ctx := context.Background()

	session := "sess-idem-1"
	var orderID uint64
	err := WithTx(ctx, testPool, func(tx pgx.Tx) error {
		var err error
		orderID, err = repo.CreateOrderInTx(ctx, tx, &entities.Order{
			OrderNumber:     "ORD-IDEM00000001",
			HubID:           hubID,
			CityID:          1,
			CustomerID:      customerID,
			SessionToken:    session,
			FulfillmentType: entities.FulfillmentPickup,
			Subtotal:        10,
			Total:           12,
			Currency:        "USD",
			PricingSnapshot: []byte(`{}`),
			CartSnapshot:    []byte(`{}`),
			PaymentMethod:   entities.PaymentMethodCardpay,
			PaymentStatus:   entities.PaymentPending,
			Status:          entities.StatusPendingPayment,
		})
		return err
	})
	require.NoError(t, err)

	found, err := repo.FindLiveBySession(ctx, nil, session, hubID, customerID, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, orderID, found.ID)

	// Outside the window the same order is invisible to the duplicate check.
	_, err = repo.FindLiveBySession(ctx, nil, session, hubID, customerID, time.Now().Add(time.Minute))
	assert.Error(t, err)

	// A different customer never matches.
	_, err = repo.FindLiveBySession(ctx, nil, session, hubID, customerID+1, time.Now().Add(-10*time.Minute))
	assert.Error(t, err)
}
