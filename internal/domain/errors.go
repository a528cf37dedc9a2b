package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrValidation       = errors.New("invalid request")
	ErrNotFound         = errors.New("not found")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrDuplicateRequest = errors.New("workout completion already recorded for this request id")
	ErrInternalError    = errors.New("internal server error")
	ErrCatalogInvalid   = errors.New("invalid catalog")

	ErrDrillsNotFound  = fmt.Errorf("%w: no valid drills found", ErrNotFound)
	ErrUnknownBadge    = fmt.Errorf("%w: unknown badge", ErrNotFound)
	ErrInvalidCurrency = fmt.Errorf("%w: malformed currency name", ErrValidation)
	ErrInvalidAmount   = fmt.Errorf("%w: amount not allowed for transaction type", ErrValidation)
	ErrEmptyDrillList  = fmt.Errorf("%w: at least one drill id is required", ErrValidation)
	ErrInvalidWorkout  = fmt.Errorf("%w: unknown workout type", ErrValidation)
	ErrMissingUser     = fmt.Errorf("%w: user id is required", ErrValidation)
	ErrUnknownAxis     = fmt.Errorf("%w: unknown membership context", ErrValidation)
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error was caused by caller input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}
