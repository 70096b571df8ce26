package runner

import "time"

// Stats accumulates per-runner counters: ticks processed, actions
// executed, errors, and tick-processing latency extremes.
type Stats struct {
	TicksProcessed  uint64
	ActionsExecuted uint64
	Errors          uint64
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration

	totalDuration time.Duration
}

// NewStats returns a zeroed Stats with MinTickDuration primed to the
// largest representable duration so the first recorded tick always wins.
func NewStats() Stats {
	return Stats{MinTickDuration: time.Duration(1<<63 - 1)}
}

// RecordTick folds one tick's processing duration into the running
// average and the min/max extremes.
func (s *Stats) RecordTick(d time.Duration) {
	s.TicksProcessed++
	s.totalDuration += d
	if d < s.MinTickDuration {
		s.MinTickDuration = d
	}
	if d > s.MaxTickDuration {
		s.MaxTickDuration = d
	}
	s.AvgTickDuration = s.totalDuration / time.Duration(s.TicksProcessed)
}

// RecordAction increments the executed-action counter.
func (s *Stats) RecordAction() { s.ActionsExecuted++ }

// RecordError increments the error counter.
func (s *Stats) RecordError() { s.Errors++ }

// ErrorRate returns errors per 1000 ticks.
func (s *Stats) ErrorRate() float64 {
	if s.TicksProcessed == 0 {
		return 0
	}
	return (float64(s.Errors) / float64(s.TicksProcessed)) * 1000
}

// ActionRate returns actions per 100 ticks.
func (s *Stats) ActionRate() float64 {
	if s.TicksProcessed == 0 {
		return 0
	}
	return (float64(s.ActionsExecuted) / float64(s.TicksProcessed)) * 100
}

// Reset zeroes all counters.
func (s *Stats) Reset() { *s = NewStats() }
