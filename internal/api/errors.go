package api

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransient covers 5xx responses and transport-level failures. Callers
	// retry on their next natural cycle, never with ad-hoc timers.
	ErrTransient = errors.New("transient backend error")

	// ErrAlreadyProcessed is returned when the backend reports a mutation as
	// already applied (duplicate gift accept, repeated notification ack).
	// Callers treat it as success.
	ErrAlreadyProcessed = errors.New("already processed")

	ErrNotFound = errors.New("not found")
)

type InsufficientBalanceError struct {
	RequiredCoins int64
	CurrentCoins  int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %d, have %d", e.RequiredCoins, e.CurrentCoins)
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ValidationError marks a 422 response. The deduction meter treats it as
// retryable: an undercharge is acceptable, a false termination is not.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Code
}
