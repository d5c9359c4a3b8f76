package checkout

import (
	"fmt"
	"time"
)

// ValidationError is returned when the caller supplied unusable input.
// It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

var (
	ErrEmptyCart         = &ValidationError{Field: "items", Message: "cart is empty"}
	ErrNoUnit            = &ValidationError{Field: "unitId", Message: "unit is required"}
	ErrNoCashbackPreview = &ValidationError{Field: "cashback", Message: "redemption requires a computed cashback preview"}
)

// NotFoundError is returned when an order id is unknown upstream.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidOrderStateError is returned when an operation is attempted in the
// wrong lifecycle state.
type InvalidOrderStateError struct {
	OrderID string
	Status  Status
	Op      string
}

func (e *InvalidOrderStateError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("cannot %s: no active order", e.Op)
	}
	if e.Status == "" {
		return fmt.Sprintf("cannot %s order %s", e.Op, e.OrderID)
	}
	return fmt.Sprintf("cannot %s order %s in status %s", e.Op, e.OrderID, e.Status)
}

// AlreadyTerminalError is returned by cancel when the order already reached
// a terminal state other than canceled.
type AlreadyTerminalError struct {
	OrderID string
	Status  Status
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("order %s is already %s", e.OrderID, e.Status)
}

// OrderTerminalError is returned by the payment watcher when the order ends
// without being paid.
type OrderTerminalError struct {
	OrderID string
	Status  Status
}

func (e *OrderTerminalError) Error() string {
	return fmt.Sprintf("order %s ended as %s before payment", e.OrderID, e.Status)
}

type NoSelectionError struct {
	OrderID string
}

func (e *NoSelectionError) Error() string {
	return fmt.Sprintf("no delivery option selected for order %s", e.OrderID)
}

// DispatchConflictError is returned when an order already carries a dispatch
// bound to a different option.
type DispatchConflictError struct {
	OrderID    string
	Dispatched string
	Requested  string
}

func (e *DispatchConflictError) Error() string {
	return fmt.Sprintf("order %s already dispatched with option %s (requested %s)", e.OrderID, e.Dispatched, e.Requested)
}

// TimeoutError is returned when payment was not observed within the poll
// window. Re-invoking the watcher is safe.
type TimeoutError struct {
	OrderID  string
	Attempts int
	Window   time.Duration
	Last     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("payment not confirmed within expected window: order %s after %d attempts (%s)", e.OrderID, e.Attempts, e.Window)
}

func (e *TimeoutError) Unwrap() error { return e.Last }

type AlreadyReservingError struct{}

func (e *AlreadyReservingError) Error() string { return "a reservation is already in flight" }

// RedemptionError means payment was confirmed but the cashback redemption
// failed. The user earned the reward and did not receive it.
type RedemptionError struct {
	OrderID string
	Amount  int64
	Err     error
}

func (e *RedemptionError) Error() string {
	return fmt.Sprintf("cashback redemption of %d failed for paid order %s: %v", e.Amount, e.OrderID, e.Err)
}

func (e *RedemptionError) Unwrap() error { return e.Err }
