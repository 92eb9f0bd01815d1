// Package domainerr defines the sentinel error kinds shared across the
// pulse lifecycle (spec.md §7). Components wrap these with context via
// fmt.Errorf("...: %w", err) and callers distinguish them with errors.Is.
package domainerr

import "errors"

var (
	// ErrAlreadyStarted: a user already has a live StartedPulse.
	ErrAlreadyStarted = errors.New("pulse already started")
	// ErrNotStarted: a user has no live StartedPulse to stop.
	ErrNotStarted = errors.New("no pulse started")
	// ErrAlreadyArchived: conditional insert into ArchivedPulse found an
	// existing row; treated as a no-op, not a failure.
	ErrAlreadyArchived = errors.New("pulse already archived")
	// ErrNotFound: point get found no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a conditional-put found an existing row where none was
	// expected.
	ErrConflict = errors.New("conflict")
	// ErrStopFailed: stop() could not complete atomically and the
	// compensating delete had to run.
	ErrStopFailed = errors.New("stop failed")
	// ErrValidation: caller-supplied input failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrBudgetExceeded: the admission controller rejected an enhancement
	// on budget grounds. Not surfaced as an API error; captured in the
	// decision trace.
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrModelUnavailable: every model in the LLM fallback chain failed
	// its probe.
	ErrModelUnavailable = errors.New("no llm model available")
	// ErrModelParseError: a model response could not be parsed after
	// cleaning.
	ErrModelParseError = errors.New("llm response parse error")
	// ErrCostOverrun: estimated cost exceeds the per-pulse cap.
	ErrCostOverrun = errors.New("estimated cost exceeds per-pulse cap")
	// ErrTransient: a retryable storage or network error. The caller
	// should retry with jittered backoff or rely on stream redelivery.
	ErrTransient = errors.New("transient error")
)
