// Package engineerr is the engine-wide error taxonomy: a flat set of
// sentinel errors for runner lifecycle and strategy execution failures.
// Network and parsing errors already have idiomatic stdlib/library
// equivalents used directly where they occur (net, encoding/json), so
// this package only covers failure modes specific to the engine.
package engineerr

import (
	"errors"
	"fmt"
)

var (
	// ErrRunnerAlreadyExists is returned by AddRunner when the given
	// runner ID is already registered.
	ErrRunnerAlreadyExists = errors.New("runner already exists")

	// ErrRunnerNotFound is returned by any lookup keyed on a runner ID
	// the engine does not recognize.
	ErrRunnerNotFound = errors.New("runner not found")

	// ErrNoRunnersForSymbol is returned by FeedData when no runner
	// subscribes to the fed symbol.
	ErrNoRunnersForSymbol = errors.New("no runners subscribed to symbol")

	// ErrCommandTimeout is returned when a runner does not reply to an
	// introspection command within its deadline.
	ErrCommandTimeout = errors.New("runner did not reply before the deadline")

	// ErrStrategyError wraps a failure returned by a strategy callback.
	ErrStrategyError = errors.New("strategy error")
)

// ChannelFullError reports that a runner's data inbox was at capacity
// and the bar fed to it was dropped.
type ChannelFullError struct {
	RunnerID string
}

func (e *ChannelFullError) Error() string {
	return fmt.Sprintf("runner %s: data channel full, bar dropped", e.RunnerID)
}

// ChannelClosedError reports that a runner's data inbox was already
// closed (the runner has stopped) when a bar was fed to it.
type ChannelClosedError struct {
	RunnerID string
}

func (e *ChannelClosedError) Error() string {
	return fmt.Sprintf("runner %s: data channel closed", e.RunnerID)
}

// TaskPanicError wraps a panic recovered from a runner's goroutine,
// analogous to a Tokio JoinError in the reference engine.
type TaskPanicError struct {
	RunnerID string
	Cause    any
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("runner %s panicked: %v", e.RunnerID, e.Cause)
}
