package runner

import (
	"time"

	"github.com/marksmithsgit/lumen-engine/internal/events"
	"github.com/marksmithsgit/lumen-engine/internal/fsm"
)

// Status is a runner's execution status.
type Status string

const (
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// IsActive reports whether the runner processes ticks in this status.
func (s Status) IsActive() bool { return s == StatusRunning }

// Snapshot is a point-in-time, serializable copy of a runner's complete
// state, suitable for a dashboard or the HTTP introspection API.
type Snapshot struct {
	RunnerID          string               `json:"runner_id"`
	Symbol            string               `json:"symbol"`
	Status            Status               `json:"status"`
	CurrentState      fsm.State            `json:"current_state"`
	Position          *events.PositionView `json:"position,omitempty"`
	Context           fsm.Snapshot         `json:"context"`
	Stats             Stats                `json:"stats"`
	UptimeSecs        uint64               `json:"uptime_secs"`
	SnapshotTimestamp int64                `json:"snapshot_timestamp"`
}

// HasPosition reports whether the runner held an open position at
// snapshot time.
func (s Snapshot) HasPosition() bool { return s.Position != nil && s.Position.ExitPrice == nil }

func newSnapshot(runnerID, symbol string, status Status, state fsm.State, pos *events.PositionView, ctx fsm.Snapshot, stats Stats, uptime time.Duration, nowMs int64) Snapshot {
	return Snapshot{
		RunnerID:          runnerID,
		Symbol:            symbol,
		Status:            status,
		CurrentState:      state,
		Position:          pos,
		Context:           ctx,
		Stats:             stats,
		UptimeSecs:        uint64(uptime.Seconds()),
		SnapshotTimestamp: nowMs,
	}
}
