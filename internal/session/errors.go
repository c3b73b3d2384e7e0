package session

import "errors"

var (
	ErrSessionTerminated = errors.New("session_terminated")
	ErrConnectTimeout    = errors.New("connect_timeout")
	ErrRoleNotAllowed    = errors.New("role_not_allowed")

	// ErrGiftsDisabled is returned while the low-balance gate is active.
	ErrGiftsDisabled         = errors.New("gifts_disabled")
	ErrInsufficientGiftCoins = errors.New("insufficient_gift_coins")

	// ErrGiftOutcomeUnknown reports an accept whose network outcome could
	// not be confirmed either way. The UI shows a neutral message, never a
	// failure.
	ErrGiftOutcomeUnknown = errors.New("gift_outcome_unknown")

	ErrGiftNotFound = errors.New("gift_not_found")
)
