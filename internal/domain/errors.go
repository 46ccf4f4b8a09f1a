package domain

import (
	"errors"
	"fmt"
)

// RejectionError means the venue refused an order for an economic reason
// (insufficient balance, invalid price). Not retriable within the same cycle;
// the next cycle may try again with fresh state.
type RejectionError struct {
	Op     string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: rejected by venue: %s", e.Op, e.Reason)
}

// TransientError wraps a network/timeout/rate-limit failure. The affected
// order is simply revisited next cycle.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient venue error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// InvariantViolation signals engine state corruption: two live records for
// the same (market, role), take-profit fractions not summing to 1, etc.
// Fatal for the affected market's cycle; never silently swallowed.
type InvariantViolation struct {
	MarketID string
	Detail   string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on %s: %s", e.MarketID, e.Detail)
}

// ConfigurationError means an input outside the valid domain (e.g. a
// negative price fed to the pricing table). The market is excluded from
// placement for the cycle.
type ConfigurationError struct {
	Field  string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

// IsRejection reports whether err is (or wraps) a venue rejection.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// IsTransient reports whether err is (or wraps) a transient venue failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsInvariantViolation reports whether err is (or wraps) an invariant violation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}
