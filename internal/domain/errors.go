package domain

import "errors"

// Sentinel errors for the five failure categories of spec §7. Components
// wrap these with fmt.Errorf("...: %w", ErrX) so callers can dispatch on
// errors.Is without string-matching.
var (
	// ErrTransientExternal marks a bureau/gateway/broker timeout: retry
	// with backoff, never fatal for a single message.
	ErrTransientExternal = errors.New("transient external failure")

	// ErrConfiguration marks an invalid policy or missing region table:
	// fatal at process startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrSchema marks bad JSON or a missing required field: counted,
	// logged, not committed until resolved or poisoned.
	ErrSchema = errors.New("schema decode error")

	// ErrBusinessLogic marks an unknown signal type or out-of-range
	// value: the offending unit is dropped, no hard failure.
	ErrBusinessLogic = errors.New("business logic error")

	// ErrInvariant marks a defect — lock ordering, negative risk
	// contribution — that must never happen in correct code.
	ErrInvariant = errors.New("internal invariant violated")
)
