package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Authentication / authorization
	ErrEmptyAuthHeader   = errors.New("authorization header is missing")
	ErrInvalidAuthHeader = errors.New("authorization header has invalid format")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token has expired")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")

	// Context
	ErrIdentityNotFoundInContext = errors.New("identity not found in request context")

	// Common
	ErrNotFound   = errors.New("record not found")
	ErrBadRequest = errors.New("bad request")
)

// HttpError is the error type returned by the engines. Code is a stable
// machine-readable reason that clients may branch on; Message is for humans.
type HttpError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

func (e *HttpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HttpError) Unwrap() error { return e.Err }

func NewHttpError(status int, code, message string, err error, details interface{}) *HttpError {
	return &HttpError{Status: status, Code: code, Message: message, Err: err, Details: details}
}

// Reason codes shared across the order and dispatch engines.
const (
	CodeCartNotFound          = "CART_NOT_FOUND"
	CodeCartNotOwned          = "CART_NOT_OWNED"
	CodeCartAlreadyConverted  = "CART_ALREADY_CONVERTED"
	CodeCartEmpty             = "CART_EMPTY"
	CodeHubNotFound           = "HUB_NOT_FOUND"
	CodeHubInactive           = "HUB_INACTIVE"
	CodeHubNotAccepting       = "HUB_NOT_ACCEPTING"
	CodeProfileIncomplete     = "PROFILE_INCOMPLETE"
	CodeInvalidFulfillment    = "INVALID_FULFILLMENT_TYPE"
	CodeDeliverySnapMissing   = "DELIVERY_SNAPSHOT_MISSING"
	CodeDeliveryFeeMismatch   = "DELIVERY_FEE_MISMATCH"
	CodeSubtotalMismatch      = "SUBTOTAL_MISMATCH"
	CodeSnapshotInconsistent  = "SNAPSHOT_INCONSISTENT"
	CodeInvalidTotal          = "INVALID_TOTAL"
	CodeOrderCreateFailed     = "ORDER_CREATE_FAILED"
	CodeSameStatus            = "SAME_STATUS"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeTerminalStatus        = "TERMINAL_STATUS"
	CodeAlreadyAssigned       = "ALREADY_ASSIGNED"
	CodeNotAssignedToYou      = "NOT_ASSIGNED_TO_YOU"
	CodeDriverUnavailable     = "DRIVER_UNAVAILABLE"
	CodeOrderArchived         = "ORDER_ARCHIVED"
	CodeAlreadyCompleted      = "ALREADY_COMPLETED"
	CodeOutOfScope            = "OUT_OF_SCOPE"
	CodeNotFound              = "NOT_FOUND"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeInternal              = "INTERNAL_ERROR"
	CodeCollaboratorDown      = "COLLABORATOR_UNAVAILABLE"
	CodeInvalidOrderTransient = "ORDER_NOT_MUTABLE"
)

// Shortcuts for the most common shapes.

func NotFound(message string) *HttpError {
	return NewHttpError(http.StatusNotFound, CodeNotFound, message, ErrNotFound, nil)
}

func Conflict(code, message string, details interface{}) *HttpError {
	return NewHttpError(http.StatusConflict, code, message, nil, details)
}

func Validation(code, message string) *HttpError {
	return NewHttpError(http.StatusBadRequest, code, message, nil, nil)
}

func Forbidden(message string) *HttpError {
	return NewHttpError(http.StatusForbidden, CodeForbidden, message, ErrForbidden, nil)
}

func Internal(message string, err error) *HttpError {
	return NewHttpError(http.StatusInternalServerError, CodeInternal, message, err, nil)
}
