package models

import (
	"errors"
	"fmt"
)

var (
	ErrNoRecord         = errors.New("models: no matching record found")
	ErrUserNotFound     = errors.New("models: user not found")
	ErrProductNotFound  = errors.New("models: product not found")
	ErrOwnerNotFound    = errors.New("models: transaction owner not found")
	ErrNotInitialized   = errors.New("models: billing session is not initialized")
	ErrDeviceOffline    = errors.New("models: no connected device for user")
	ErrListenerAttached = errors.New("models: platform listener already attached")
)

// ErrorCategory is the caller-facing classification of a purchase failure.
// Raw platform and verification status codes never leave the billing
// packages; they are always wrapped into one of these categories.
type ErrorCategory string

const (
	CategoryUserCancelled       ErrorCategory = "user_cancelled"
	CategoryTransient           ErrorCategory = "transient"
	CategoryEnvironmentMismatch ErrorCategory = "environment_mismatch"
	CategoryTerminalInvalid     ErrorCategory = "terminal_invalid"
	CategoryIdentityUnresolved  ErrorCategory = "identity_unresolved"
	CategoryPersistenceFailure  ErrorCategory = "persistence_failure"
	CategoryCatalogMiss         ErrorCategory = "catalog_miss"
	CategoryNotInitialized      ErrorCategory = "not_initialized"
)

// PurchaseError carries a category plus a display string. Code preserves the
// originating platform or verification status code for logs only.
type PurchaseError struct {
	Category ErrorCategory
	Code     int
	Message  string
}

func (e *PurchaseError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Category, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func NewPurchaseError(category ErrorCategory, code int, message string) *PurchaseError {
	return &PurchaseError{Category: category, Code: code, Message: message}
}

// IsCancellation reports whether err is the user-cancellation signal rather
// than a real failure.
func IsCancellation(err error) bool {
	var pe *PurchaseError
	return errors.As(err, &pe) && pe.Category == CategoryUserCancelled
}
