package models

import (
	"errors"
	"fmt"
)

// ErrGatewayUnavailable means the payment widget could not be used and no
// hosted redirect URL was available either.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// ValidationError is a user-facing rejection (bad or expired coupon). It
// carries the backend's message verbatim and never implies order mutation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConflictError is the backend's ORDER_ALREADY_EXISTS signal. It is a
// recovery hint, not a failure: OrderID points at the order to reuse.
type ConflictError struct {
	OrderID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order already exists: %s", e.OrderID)
}

// TransientError wraps a backend call failure that the scheduled-check/poll
// mechanism is expected to absorb by retrying.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalPaymentError is the widget's onError outcome: surfaced to the user as
// an actionable failure, never retried automatically.
type FatalPaymentError struct {
	Reason string
}

func (e *FatalPaymentError) Error() string {
	if e.Reason == "" {
		return "payment failed"
	}
	return e.Reason
}
