package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict: resource already exists")
	ErrInternal       = errors.New("internal server error")
	ErrRateLimited    = errors.New("too many requests")
	ErrSessionExpired = errors.New("session expired or invalid")
	ErrBadRequest     = errors.New("bad request")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrNoConflictTarget is returned by the store when an upsert names a
	// conflict target that has no matching unique constraint.
	ErrNoConflictTarget = errors.New("no unique constraint matches conflict target")
)

// Billing and entitlement errors
var (
	ErrNoBillingCustomer         = errors.New("no billing customer found: start a checkout first")
	ErrReconciliationWriteFailed = errors.New("failed to persist reconciled subscription")
	ErrEntitlementExceeded       = errors.New("boost limit reached for current plan")
)

// Claim workflow errors
var (
	ErrAlreadyOwned     = errors.New("you already own this listing")
	ErrOwnedByOther     = errors.New("listing is already owned by another user")
	ErrDuplicatePending = errors.New("you already have a pending claim for this listing")
	ErrContestedPending = errors.New("another claim for this listing is awaiting review")
	ErrClaimNotPending  = errors.New("claim has already been decided")
)

// ReconciliationWriteError carries the store error behind a failed final upsert.
type ReconciliationWriteError struct {
	UserID int64
	Err    error
}

func (e *ReconciliationWriteError) Error() string {
	return fmt.Sprintf("%s (user %d): %v", ErrReconciliationWriteFailed.Error(), e.UserID, e.Err)
}

func (e *ReconciliationWriteError) Unwrap() error { return e.Err }

func (e *ReconciliationWriteError) Is(target error) bool {
	return target == ErrReconciliationWriteFailed
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
