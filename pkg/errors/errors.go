// Package apperrors holds the sentinel errors the engine classifies gateway
// and internal failures against.
package apperrors

import "errors"

// Gateway-facing errors, retried or escalated per policy.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrNetwork               = errors.New("network error")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrExchangeMaintenance   = errors.New("exchange maintenance")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrSystemOverload        = errors.New("system overload")
	ErrTimestampOutOfBounds  = errors.New("timestamp out of bounds")
)

// Error kinds named in the engine's error-handling design. Each maps to a
// concept-level policy (retry, tick walk, reconcile-forcing, abort, ...)
// applied by the component that produces it.
var (
	ErrTransientNetwork   = errors.New("transient network failure")
	ErrTickMismatch       = errors.New("price rejected by tick constraint")
	ErrSignatureRejected  = errors.New("signature or auth rejected")
	ErrPartialPlacement   = errors.New("multi-order placement partially failed")
	ErrCancelUnverified   = errors.New("cancel accepted but order still visible")
	ErrInvariantViolation = errors.New("grid state invariant violated")
	ErrFatalConfig        = errors.New("fatal configuration error")
)
