package utils

import (
	"errors"
	"net/http"

	apperrors "delivery-system/pkg/errors"
	"delivery-system/pkg/types"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type HTTPResponse struct {
	Status     bool              `json:"status"`
	Body       interface{}       `json:"body,omitempty"`
	Message    string            `json:"message"`
	Code       string            `json:"code,omitempty"`
	Details    interface{}       `json:"details,omitempty"`
	Pagination *types.Pagination `json:"pagination,omitempty"`
}

func SuccessResponse(ctx echo.Context, body interface{}, message string, code int, pagination ...*types.Pagination) error {
	resp := &HTTPResponse{
		Status:  true,
		Body:    body,
		Message: message,
	}
	if len(pagination) > 0 {
		resp.Pagination = pagination[0]
	}
	return ctx.JSON(code, resp)
}

var sentinelStatuses = map[error]int{
	apperrors.ErrNotFound:          http.StatusNotFound,
	apperrors.ErrBadRequest:        http.StatusBadRequest,
	apperrors.ErrUnauthorized:      http.StatusUnauthorized,
	apperrors.ErrForbidden:         http.StatusForbidden,
	apperrors.ErrEmptyAuthHeader:   http.StatusUnauthorized,
	apperrors.ErrInvalidAuthHeader: http.StatusUnauthorized,
	apperrors.ErrInvalidToken:      http.StatusUnauthorized,
	apperrors.ErrTokenExpired:      http.StatusUnauthorized,
}

var sentinelCodes = map[error]string{
	apperrors.ErrNotFound:          apperrors.CodeNotFound,
	apperrors.ErrBadRequest:        apperrors.CodeValidationFailed,
	apperrors.ErrUnauthorized:      apperrors.CodeUnauthorized,
	apperrors.ErrForbidden:         apperrors.CodeForbidden,
	apperrors.ErrEmptyAuthHeader:   apperrors.CodeUnauthorized,
	apperrors.ErrInvalidAuthHeader: apperrors.CodeUnauthorized,
	apperrors.ErrInvalidToken:      apperrors.CodeUnauthorized,
	apperrors.ErrTokenExpired:      apperrors.CodeUnauthorized,
}

// ErrorResponse maps engine errors onto the JSON error envelope. HttpError
// carries its own status and reason code; sentinel errors fall back to the
// static table; anything else is a 500 with a generic message.
func ErrorResponse(ctx echo.Context, err error, logger *zap.Logger) error {
	var httpErr *apperrors.HttpError
	if errors.As(err, &httpErr) {
		return ctx.JSON(httpErr.Status, &HTTPResponse{
			Status:  false,
			Message: httpErr.Message,
			Code:    httpErr.Code,
			Details: httpErr.Details,
		})
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]string, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fields = append(fields, fe.Field())
		}
		return ctx.JSON(http.StatusBadRequest, &HTTPResponse{
			Status:  false,
			Message: "request validation failed",
			Code:    apperrors.CodeValidationFailed,
			Details: fields,
		})
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return ctx.JSON(echoErr.Code, &HTTPResponse{Status: false, Message: msg})
	}

	for sentinel, status := range sentinelStatuses {
		if errors.Is(err, sentinel) {
			return ctx.JSON(status, &HTTPResponse{
				Status:  false,
				Message: sentinel.Error(),
				Code:    sentinelCodes[sentinel],
			})
		}
	}

	if logger != nil {
		logger.Error("unhandled error", zap.Error(err))
	}
	return ctx.JSON(http.StatusInternalServerError, &HTTPResponse{
		Status:  false,
		Message: "internal server error",
		Code:    apperrors.CodeInternal,
	})
}
