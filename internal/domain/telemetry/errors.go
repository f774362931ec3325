package telemetry

import "errors"

var (
	// ErrCollectorStopped is returned by control-plane calls made after
	// Shutdown has already been processed.
	ErrCollectorStopped = errors.New("telemetry: collector stopped")
	// ErrSubscriberNotFound is returned by UpdateSubscriber/UnregisterSubscriber
	// for an unknown id.
	ErrSubscriberNotFound = errors.New("telemetry: subscriber not found")
	// ErrMissingSpanID mirrors the Rust collector's debug-mode panic on an
	// unregistered non-zero span id; in release builds it silently treats
	// the event as unspanned. Go has no compile-time debug_assertions
	// switch, so StrictSpanChecking (collector.go) gates this at runtime
	// instead - see the StrictSpanChecking entries in DESIGN.md.
	ErrMissingSpanID = errors.New("telemetry: unregistered span id")
)
