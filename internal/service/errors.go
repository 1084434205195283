package service

import (
	"fmt"
	"net/http"
)

// BusinessError is a business-rule violation with a stable code, an HTTP
// status class, and machine-readable details for the caller.
type BusinessError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func errExceedMaxEarnLimit(requested, maxLimit int64) *BusinessError {
	return &BusinessError{
		Code:       "EXCEED_MAX_EARN_LIMIT",
		Message:    fmt.Sprintf("earn amount %d exceeds the per-transaction limit %d", requested, maxLimit),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"requestedAmount": requested, "maxLimit": maxLimit},
	}
}

func errExceedUserMaxBalance(currentBalance, maxBalance, requested int64) *BusinessError {
	return &BusinessError{
		Code:       "EXCEED_USER_MAX_BALANCE",
		Message:    fmt.Sprintf("balance %d plus %d exceeds the per-user limit %d", currentBalance, requested, maxBalance),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"currentBalance": currentBalance, "maxBalance": maxBalance, "requestedAmount": requested},
	}
}

func errInsufficientBalance(available, requested int64) *BusinessError {
	return &BusinessError{
		Code:       "INSUFFICIENT_POINT_BALANCE",
		Message:    fmt.Sprintf("available balance %d is less than the requested %d", available, requested),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"availableBalance": available, "requestedAmount": requested},
	}
}

func errPointKeyNotFound(pointKey string) *BusinessError {
	return &BusinessError{
		Code:       "POINT_KEY_NOT_FOUND",
		Message:    fmt.Sprintf("point key not found: %s", pointKey),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"pointKey": pointKey},
	}
}

func errCannotCancelUsedPoint(pointKey string, usedAmount, totalAmount int64) *BusinessError {
	return &BusinessError{
		Code:       "CANNOT_CANCEL_USED_POINT",
		Message:    fmt.Sprintf("point %s has %d of %d already used and cannot be canceled", pointKey, usedAmount, totalAmount),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"pointKey": pointKey, "usedAmount": usedAmount, "totalAmount": totalAmount},
	}
}

func errExceedOriginalUseAmount(originalAmount, requestedCancel, alreadyCanceled int64) *BusinessError {
	return &BusinessError{
		Code:       "EXCEED_ORIGINAL_USE_AMOUNT",
		Message:    fmt.Sprintf("cancel amount %d exceeds the remaining cancelable amount (original %d, already canceled %d)", requestedCancel, originalAmount, alreadyCanceled),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"originalAmount": originalAmount, "requestedCancelAmount": requestedCancel, "alreadyCanceledAmount": alreadyCanceled},
	}
}

func errInvalidExpirationDays(requested, minDays, maxDays int) *BusinessError {
	return &BusinessError{
		Code:       "INVALID_EXPIRATION_DAYS",
		Message:    fmt.Sprintf("expiration days %d outside the allowed range %d..%d", requested, minDays, maxDays),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"requestedDays": requested, "minDays": minDays, "maxDays": maxDays},
	}
}

func errInvalidAmount(amount int64) *BusinessError {
	return &BusinessError{
		Code:       "INVALID_AMOUNT",
		Message:    fmt.Sprintf("amount must be a positive integer, got %d", amount),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"amount": amount},
	}
}

func errInvalidRequest(message string) *BusinessError {
	return &BusinessError{
		Code:       "INVALID_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func errDuplicateOrderNumber(orderNumber string) *BusinessError {
	return &BusinessError{
		Code:       "DUPLICATE_ORDER_NUMBER",
		Message:    fmt.Sprintf("order %s already has a point use recorded", orderNumber),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"orderNumber": orderNumber},
	}
}

func errConcurrencyConflict() *BusinessError {
	return &BusinessError{
		Code:       "CONCURRENCY_CONFLICT",
		Message:    "the operation conflicted with a concurrent update; retry the request",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"retryable": true},
	}
}

func errDuplicateIdempotencyKey(key string) *BusinessError {
	return &BusinessError{
		Code:       "DUPLICATE_IDEMPOTENCY_KEY",
		Message:    fmt.Sprintf("a concurrent request with idempotency key %s is being processed", key),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotencyKey": key},
	}
}

// errInternal hides invariant-violation detail behind an opaque code; the
// full context goes to the log, not the caller.
func errInternal() *BusinessError {
	return &BusinessError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred while processing the request",
		HTTPStatus: http.StatusInternalServerError,
	}
}
