package runner

// Config controls a SymbolRunner's error handling and logging verbosity.
type Config struct {
	// StopOnError terminates the runner on the first processing error
	// instead of counting it and continuing.
	StopOnError bool
	// LogActions logs every action the strategy returns before it is
	// applied to the FSM.
	LogActions bool
	// LogPositions logs position mark-to-market on every tick while a
	// position is open.
	LogPositions bool
	// CollectMetrics enables stats recording (ticks/actions/errors and
	// min/avg/max tick duration).
	CollectMetrics bool
	// StatsInterval is how many processed ticks elapse between emitted
	// StatsUpdate events. Zero disables the periodic event (metrics are
	// still exported continuously via internal/metrics).
	StatsInterval uint64
}

// DefaultConfig is a development-leaning default: errors are logged and
// counted rather than fatal, actions are logged, position marks are
// not (too noisy), and metrics are always collected.
func DefaultConfig() Config {
	return Config{
		StopOnError:    false,
		LogActions:     true,
		LogPositions:   false,
		CollectMetrics: true,
		StatsInterval:  50,
	}
}

// ProductionConfig stops on the first error and logs every position mark.
func ProductionConfig() Config {
	return Config{
		StopOnError:    true,
		LogActions:     true,
		LogPositions:   true,
		CollectMetrics: true,
		StatsInterval:  50,
	}
}

// QuietConfig minimizes logging while still collecting metrics.
func QuietConfig() Config {
	return Config{
		StopOnError:    false,
		LogActions:     false,
		LogPositions:   false,
		CollectMetrics: true,
		StatsInterval:  200,
	}
}
