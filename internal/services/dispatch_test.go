package services

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"delivery-system/internal/authz"
	"delivery-system/internal/dto"
	"delivery-system/internal/entities"
	"delivery-system/internal/repositories"
	"delivery-system/pkg/database/postgresql"
	apperrors "delivery-system/pkg/errors"
)

var testPool *pgxpool.Pool

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

// alwaysOnDuty stands in for the external availability signal.
type alwaysOnDuty struct{ on bool }

func (a *alwaysOnDuty) IsOnDuty(context.Context, uint64) (bool, error) { return a.on, nil }
func (a *alwaysOnDuty) SetOnDuty(context.Context, uint64, bool) error  { return nil }

type dispatchFixture struct {
	svc      DispatchServiceInterface
	hubID    uint64
	orderID  uint64
	driverA  authz.Identity
	driverB  authz.Identity
	operator authz.Identity
}

func setupDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	if testPool == nil {
		t.Skip("TEST_DATABASE_URL is not set; skipping integration test")
	}
	ctx := context.Background()

	_, err := testPool.Exec(ctx, `
		TRUNCATE TABLE delay_reports, delivery_archives, dispatch_assignments,
			order_status_history, order_items, orders, cart_items, carts,
			manager_hub_scopes, driver_hub_scopes, driver_city_scopes, hubs, users
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	var hubID uint64
	require.NoError(t, testPool.QueryRow(ctx, `
		INSERT INTO hubs (name, city_id) VALUES ('Dispatch Hub', 1) RETURNING id`).Scan(&hubID))

	newUser := func(name, role string) uint64 {
		var id uint64
		require.NoError(t, testPool.QueryRow(ctx, `
			INSERT INTO users (name, phone, role) VALUES ($1, '+992900000', $2) RETURNING id`,
			name, role).Scan(&id))
		return id
	}
	customerID := newUser("Customer", "customer")
	driverAID := newUser("Driver A", "driver")
	driverBID := newUser("Driver B", "driver")
	operatorID := newUser("Operator", "operator")

	for _, driverID := range []uint64{driverAID, driverBID} {
		_, err = testPool.Exec(ctx, `INSERT INTO driver_hub_scopes (user_id, hub_id) VALUES ($1, $2)`, driverID, hubID)
		require.NoError(t, err)
	}

	orderRepo := repositories.NewOrderRepository(testPool, zap.NewNop())
	var orderID uint64
	require.NoError(t, repositories.WithTx(ctx, testPool, func(tx pgx.Tx) error {
		var err error
		orderID, err = orderRepo.CreateOrderInTx(ctx, tx, &entities.Order{
			OrderNumber:     "ORD-DISPATCH0001",
			HubID:           hubID,
			CityID:          1,
			CustomerID:      customerID,
			SessionToken:    "sess-dispatch",
			FulfillmentType: entities.FulfillmentDelivery,
			Subtotal:        30,
			Total:           36,
			Currency:        "USD",
			PricingSnapshot: []byte(`{}`),
			CartSnapshot:    []byte(`{}`),
			PaymentMethod:   entities.PaymentMethodCardpay,
			PaymentStatus:   entities.PaymentPaid,
			Status:          entities.StatusConfirmed,
		})
		return err
	}))

	logger := zap.NewNop()
	svc := NewDispatchService(
		testPool,
		repositories.NewDispatchRepository(testPool, logger),
		orderRepo,
		repositories.NewOrderHistoryRepository(testPool, logger),
		repositories.NewUserRepository(testPool),
		authz.NewResolver(repositories.NewScopeRepository(testPool)),
		&alwaysOnDuty{on: true},
		logger,
	)

	return &dispatchFixture{
		svc:      svc,
		hubID:    hubID,
		orderID:  orderID,
		driverA:  authz.Identity{UserID: driverAID, Role: authz.RoleDriver},
		driverB:  authz.Identity{UserID: driverBID, Role: authz.RoleDriver},
		operator: authz.Identity{UserID: operatorID, Role: authz.RoleOperator},
	}
}

func TestDispatchService_ClaimAndConflict(t *testing.T) {
	f := setupDispatchFixture(t)
	ctx := context.Background()

	res, err := f.svc.Claim(ctx, f.driverA, f.orderID)
	require.NoError(t, err)
	assert.True(t, res.Assigned)
	assert.Equal(t, string(entities.OpsAssigned), res.OpsStatus)

	// Retry by the holder is a no-op win, not a conflict.
	res, err = f.svc.Claim(ctx, f.driverA, f.orderID)
	require.NoError(t, err)
	assert.True(t, res.Assigned)

	// A second driver gets the conflict outcome naming the holder.
	res, err = f.svc.Claim(ctx, f.driverB, f.orderID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyAssigned)
	require.NotNil(t, res.HeldBy)
	assert.Equal(t, f.driverA.UserID, *res.HeldBy)
}

func TestDispatchService_ClaimOutsideScopeLooksNonexistent(t *testing.T) {
	f := setupDispatchFixture(t)
	ctx := context.Background()

	_, err := testPool.Exec(ctx, `DELETE FROM driver_hub_scopes WHERE user_id = $1`, f.driverB.UserID)
	require.NoError(t, err)

	_, err = f.svc.Claim(ctx, f.driverB, f.orderID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDispatchService_CompleteLifecycle(t *testing.T) {
	f := setupDispatchFixture(t)
	ctx := context.Background()

	_, err := f.svc.Claim(ctx, f.driverA, f.orderID)
	require.NoError(t, err)

	// Completing before pickup is an invalid step.
	_, err = f.svc.Complete(ctx, f.driverA, f.orderID)
	var httpErr *apperrors.HttpError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, apperrors.CodeInvalidTransition, httpErr.Code)

	res, err := f.svc.UpdateStatus(ctx, f.driverA, f.orderID, entities.OpsPickedUp)
	require.NoError(t, err)
	assert.Equal(t, string(entities.OpsPickedUp), res.OpsStatus)

	done, err := f.svc.Complete(ctx, f.driverA, f.orderID)
	require.NoError(t, err)
	assert.True(t, done.Completed)

	// Completion reconciled the order status and wrote the archive.
	var status string
	require.NoError(t, testPool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, f.orderID).Scan(&status))
	assert.Equal(t, string(entities.StatusCompleted), status)

	var archived bool
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM delivery_archives WHERE order_id = $1)`, f.orderID).Scan(&archived))
	assert.True(t, archived)

	// Re-running completion is reported, not failed.
	done, err = f.svc.Complete(ctx, f.driverA, f.orderID)
	require.NoError(t, err)
	assert.True(t, done.AlreadyCompleted)
	assert.False(t, done.Completed)

	// Nothing moves an archived delivery.
	err = f.svc.Release(ctx, f.driverA, f.orderID)
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, apperrors.CodeAlreadyCompleted, httpErr.Code)
}

func TestDispatchService_ReleaseIsDriverScoped(t *testing.T) {
	f := setupDispatchFixture(t)
	ctx := context.Background()

	_, err := f.svc.Claim(ctx, f.driverA, f.orderID)
	require.NoError(t, err)

	err = f.svc.Release(ctx, f.driverB, f.orderID)
	var httpErr *apperrors.HttpError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, apperrors.CodeNotAssignedToYou, httpErr.Code)

	require.NoError(t, f.svc.Release(ctx, f.driverA, f.orderID))

	// After the release the order is claimable again by anyone in scope.
	res, err := f.svc.Claim(ctx, f.driverB, f.orderID)
	require.NoError(t, err)
	assert.True(t, res.Assigned)
}

func TestDispatchService_AssignChecksDriverScopeAndDuty(t *testing.T) {
	f := setupDispatchFixture(t)
	ctx := context.Background()

	_, err := testPool.Exec(ctx, `DELETE FROM driver_hub_scopes WHERE user_id = $1`, f.driverB.UserID)
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, f.operator, f.orderID, f.driverB.UserID)
	var httpErr *apperrors.HttpError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, apperrors.CodeOutOfScope, httpErr.Code)

	res, err := f.svc.Assign(ctx, f.operator, f.orderID, f.driverA.UserID)
	require.NoError(t, err)
	assert.True(t, res.Assigned)
}

func TestDispatchService_DelayReportKeepsPipelineState(t *testing.T) {
	f := setupDispatchFixture(t)
	ctx := context.Background()

	_, err := f.svc.Claim(ctx, f.driverA, f.orderID)
	require.NoError(t, err)

	require.NoError(t, f.svc.ReportDelay(ctx, f.driverA, dto.ReportDelayDTO{
		OrderID:   f.orderID,
		DelayCode: "traffic",
		Note:      "bridge closed",
	}))

	var opsStatus string
	var delayed bool
	require.NoError(t, testPool.QueryRow(ctx, `
		SELECT ops_status, delayed FROM dispatch_assignments WHERE order_id = $1`, f.orderID).
		Scan(&opsStatus, &delayed))
	assert.Equal(t, string(entities.OpsAssigned), opsStatus)
	assert.True(t, delayed)

	var reports int
	require.NoError(t, testPool.QueryRow(ctx, `
		SELECT COUNT(*) FROM delay_reports WHERE order_id = $1`, f.orderID).Scan(&reports))
	assert.Equal(t, 1, reports)
}
