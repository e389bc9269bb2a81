package domain

import (
	"errors"
	"fmt"
)

// Reason is a machine-checkable cause attached to every refusal or failure
// surfaced to callers.
type Reason string

const (
	ReasonStudentNotFound    Reason = "StudentNotFound"
	ReasonRoomNotFound       Reason = "RoomNotFound"
	ReasonHostelNotFound     Reason = "HostelNotFound"
	ReasonAllocationNotFound Reason = "AllocationNotFound"
	ReasonPaymentNotFound    Reason = "PaymentNotFound"

	ReasonAlreadyAllocated    Reason = "AlreadyAllocated"
	ReasonRoomFull            Reason = "RoomFull"
	ReasonGenderMismatch      Reason = "GenderMismatch"
	ReasonPaymentNotConfirmed Reason = "PaymentNotConfirmed"
	ReasonPaymentSettled      Reason = "PaymentSettled"

	ReasonLockTimeout          Reason = "LockTimeout"
	ReasonSerializationFailure Reason = "SerializationFailure"

	ReasonInvalidInput Reason = "InvalidInput"
	ReasonStoreFailure Reason = "StoreFailure"
)

// ValidationError reports missing or malformed input. Not retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Reason() Reason { return ReasonInvalidInput }

// NotFoundError reports an absent entity.
type NotFoundError struct {
	Code Reason
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s (id=%d)", e.Code, e.ID)
}

func (e *NotFoundError) Reason() Reason { return e.Code }

func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	return ok && t.Code == e.Code
}

// DenyError is a business-rule refusal. It is a normal negative outcome,
// not a system failure.
type DenyError struct {
	Code Reason
}

func (e *DenyError) Error() string { return "allocation denied: " + string(e.Code) }

func (e *DenyError) Reason() Reason { return e.Code }

func (e *DenyError) Is(target error) bool {
	t, ok := target.(*DenyError)
	return ok && t.Code == e.Code
}

// ConflictError reports a lock timeout or serialization failure. No partial
// state survives it; the whole operation is safe to retry.
type ConflictError struct {
	Code Reason
	Err  error
}

func (e *ConflictError) Error() string {
	if e.Err == nil {
		return "conflict: " + string(e.Code)
	}
	return fmt.Sprintf("conflict: %s: %v", e.Code, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

func (e *ConflictError) Reason() Reason { return e.Code }

func (e *ConflictError) Is(target error) bool {
	t, ok := target.(*ConflictError)
	return ok && t.Code == e.Code
}

// StoreError wraps an underlying persistence failure. The enclosing
// transaction is always rolled back.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Reason() Reason { return ReasonStoreFailure }

// Comparable sentinels for errors.Is.
var (
	ErrStudentNotFound    = &NotFoundError{Code: ReasonStudentNotFound}
	ErrRoomNotFound       = &NotFoundError{Code: ReasonRoomNotFound}
	ErrHostelNotFound     = &NotFoundError{Code: ReasonHostelNotFound}
	ErrAllocationNotFound = &NotFoundError{Code: ReasonAllocationNotFound}
	ErrPaymentNotFound    = &NotFoundError{Code: ReasonPaymentNotFound}

	ErrAlreadyAllocated    = &DenyError{Code: ReasonAlreadyAllocated}
	ErrRoomFull            = &DenyError{Code: ReasonRoomFull}
	ErrGenderMismatch      = &DenyError{Code: ReasonGenderMismatch}
	ErrPaymentNotConfirmed = &DenyError{Code: ReasonPaymentNotConfirmed}
	ErrPaymentSettled      = &DenyError{Code: ReasonPaymentSettled}

	ErrLockTimeout          = &ConflictError{Code: ReasonLockTimeout}
	ErrSerializationFailure = &ConflictError{Code: ReasonSerializationFailure}
)

func NotFound(code Reason, id int64) error {
	return &NotFoundError{Code: code, ID: id}
}

// ReasonOf extracts the reason code carried by err, or ReasonStoreFailure for
// anything unclassified.
func ReasonOf(err error) Reason {
	var r interface{ Reason() Reason }
	if errors.As(err, &r) {
		return r.Reason()
	}
	return ReasonStoreFailure
}

// IsRetryable reports whether err is a ConflictError.
func IsRetryable(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
