package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"delivery-system/internal/authz"
	"delivery-system/internal/dto"
	"delivery-system/internal/entities"
	apperrors "delivery-system/pkg/errors"
	"delivery-system/pkg/types"
	"delivery-system/pkg/utils"
)

type stubDispatchService struct {
	claimResult    *dto.ClaimResultDTO
	claimErr       error
	completeResult *dto.CompleteResultDTO
	releaseErr     error
}

func (s *stubDispatchService) Claim(context.Context, authz.Identity, uint64) (*dto.ClaimResultDTO, error) {
	return s.claimResult, s.claimErr
}

func (s *stubDispatchService) Assign(context.Context, authz.Identity, uint64, uint64) (*dto.ClaimResultDTO, error) {
	return s.claimResult, s.claimErr
}

func (s *stubDispatchService) Release(context.Context, authz.Identity, uint64) error {
	return s.releaseErr
}

func (s *stubDispatchService) Unassign(context.Context, authz.Identity, uint64) error {
	return nil
}

func (s *stubDispatchService) UpdateStatus(context.Context, authz.Identity, uint64, entities.OpsStatus) (*dto.ClaimResultDTO, error) {
	return s.claimResult, s.claimErr
}

func (s *stubDispatchService) Complete(context.Context, authz.Identity, uint64) (*dto.CompleteResultDTO, error) {
	return s.completeResult, nil
}

func (s *stubDispatchService) ReportDelay(context.Context, authz.Identity, dto.ReportDelayDTO) error {
	return nil
}

type stubListingService struct{}

func (s *stubListingService) LiveOrders(context.Context, authz.Identity, types.Filter) ([]dto.DispatchOrderDTO, uint64, error) {
	return []dto.DispatchOrderDTO{}, 0, nil
}

func (s *stubListingService) AvailableOrders(context.Context, authz.Identity, types.Filter) ([]dto.DispatchOrderDTO, uint64, error) {
	return []dto.DispatchOrderDTO{}, 0, nil
}

type stubAvailabilityService struct {
	onDuty bool
}

func (s *stubAvailabilityService) IsOnDuty(context.Context, uint64) (bool, error) {
	return s.onDuty, nil
}

func (s *stubAvailabilityService) SetOnDuty(context.Context, uint64, bool) error {
	return nil
}

func driverRequest(t *testing.T, method, path string, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	e.Validator = utils.NewValidator(validator.New())

	req := httptest.NewRequest(method, path, nil)
	if body != "" {
		req = httptest.NewRequest(method, path, jsonBody(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	identity := authz.Identity{UserID: 7, Role: authz.RoleDriver}
	req = req.WithContext(utils.WithIdentity(req.Context(), identity))

	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	return ctx, rec
}

func TestClaimOrderWinReturns200(t *testing.T) {
	svc := &stubDispatchService{
		claimResult: &dto.ClaimResultDTO{OrderID: 42, Assigned: true, OpsStatus: "assigned"},
	}
	ctrl := NewDriverController(svc, &stubListingService{}, &stubAvailabilityService{onDuty: true}, zap.NewNop())

	ctx, rec := driverRequest(t, http.MethodPost, "/driver/orders/42/claim", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("42")

	require.NoError(t, ctrl.ClaimOrder(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp utils.HTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Status)
}

func TestClaimOrderConflictNamesHolder(t *testing.T) {
	holder := uint64(99)
	svc := &stubDispatchService{
		claimResult: &dto.ClaimResultDTO{OrderID: 42, AlreadyAssigned: true, HeldBy: &holder, OpsStatus: "assigned"},
	}
	ctrl := NewDriverController(svc, &stubListingService{}, &stubAvailabilityService{onDuty: true}, zap.NewNop())

	ctx, rec := driverRequest(t, http.MethodPost, "/driver/orders/42/claim", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("42")

	require.NoError(t, ctrl.ClaimOrder(ctx))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp utils.HTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Status)
	assert.Equal(t, apperrors.CodeAlreadyAssigned, resp.Code)

	details, ok := resp.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(99), details["held_by"])
}

func TestClaimOrderRejectsOffDutyDriver(t *testing.T) {
	svc := &stubDispatchService{
		claimErr: apperrors.Conflict(apperrors.CodeDriverUnavailable, "driver is not on duty", nil),
	}
	ctrl := NewDriverController(svc, &stubListingService{}, &stubAvailabilityService{}, zap.NewNop())

	ctx, rec := driverRequest(t, http.MethodPost, "/driver/orders/42/claim", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("42")

	require.NoError(t, ctrl.ClaimOrder(ctx))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp utils.HTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.CodeDriverUnavailable, resp.Code)
}

func TestClaimOrderRejectsBadID(t *testing.T) {
	ctrl := NewDriverController(&stubDispatchService{}, &stubListingService{}, &stubAvailabilityService{}, zap.NewNop())

	ctx, rec := driverRequest(t, http.MethodPost, "/driver/orders/abc/claim", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("abc")

	require.NoError(t, ctrl.ClaimOrder(ctx))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteOrderReportsIdempotentRepeat(t *testing.T) {
	svc := &stubDispatchService{
		completeResult: &dto.CompleteResultDTO{OrderID: 42, AlreadyCompleted: true},
	}
	ctrl := NewDriverController(svc, &stubListingService{}, &stubAvailabilityService{onDuty: true}, zap.NewNop())

	ctx, rec := driverRequest(t, http.MethodPost, "/driver/orders/42/complete", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("42")

	require.NoError(t, ctrl.CompleteOrder(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp utils.HTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Status)

	body, ok := resp.Body.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, body["already_completed"])
}
