package types

import "errors"

// Sentinel errors implementing the error taxonomy of the design: the
// controller is the only place that flattens these into user-visible
// text; every other layer returns one of these (wrapped with context
// via fmt.Errorf("...: %w", ...)).
var (
	// ErrInputRejected — malformed directive; reported to the user,
	// no state change.
	ErrInputRejected = errors.New("input rejected")

	// ErrLocalModelFailed — spawn error, timeout, or empty stdout
	// from the local model adapter.
	ErrLocalModelFailed = errors.New("local model failed")

	// ErrSourceUnavailable — a fallback source timed out or returned
	// a transport error. The cascade advances past it.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrAllSourcesExhausted — every cascade source failed.
	ErrAllSourcesExhausted = errors.New("all sources exhausted")

	// ErrPersistenceWarning — a disk write failed; in-memory state
	// continues, the user is not interrupted.
	ErrPersistenceWarning = errors.New("persistence warning")

	// ErrBridgeDenied — a LocalBridge request violated the denylist
	// or the loopback-peer check.
	ErrBridgeDenied = errors.New("bridge request denied")

	// ErrInternalInvariant — e.g. a question_id mismatch between the
	// tracer and the controller. Treated as a bug: the current
	// prompt is aborted safely, the session continues.
	ErrInternalInvariant = errors.New("internal invariant violation")
)
