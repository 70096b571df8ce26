// Package engine implements the multi-runner supervisor: it owns every
// SymbolRunner's lifecycle, routes market data to every runner
// subscribed to a symbol, and aggregates every runner's events onto
// fan-out subscriber channels. Grounded on the reference engine's
// TradingEngine (runner/engine.rs), restructured around Go channels and
// goroutines instead of Tokio tasks and async mpsc.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marksmithsgit/lumen-engine/internal/engineerr"
	"github.com/marksmithsgit/lumen-engine/internal/events"
	"github.com/marksmithsgit/lumen-engine/internal/market"
	"github.com/marksmithsgit/lumen-engine/internal/runner"
	"github.com/marksmithsgit/lumen-engine/internal/strategy"
)

// DefaultCommandTimeout bounds any introspection RPC issued without an
// explicit deadline in its context.
const DefaultCommandTimeout = 100 * time.Millisecond

// aggregatorBuffer sizes the engine's internal event collection channel;
// every runner's emit() already drops events under backpressure, so this
// only needs to smooth out bursts across many runners, not provide
// unbounded absorption.
const aggregatorBuffer = 4096

type runnerHandle struct {
	r         *runner.SymbolRunner
	symbol    string
	startedAt time.Time
	done      chan struct{}
}

// Engine owns a fleet of SymbolRunners, routes data and commands to them,
// and fans their events out to any number of subscribers.
type Engine struct {
	mu            sync.RWMutex
	runners       map[string]*runnerHandle
	subscriptions map[string][]string // symbol -> runner ids

	defaultConfig     runner.Config
	defaultWindowSize int

	aggregate chan events.RunnerEvent

	subMu       sync.Mutex
	subscribers []chan events.RunnerEvent

	log zerolog.Logger
}

// New returns an Engine using the given defaults for runners added via
// AddRunner, and starts its event aggregation goroutine.
func New(defaultConfig runner.Config, defaultWindowSize int, log zerolog.Logger) *Engine {
	e := &Engine{
		runners:           make(map[string]*runnerHandle),
		subscriptions:     make(map[string][]string),
		defaultConfig:     defaultConfig,
		defaultWindowSize: defaultWindowSize,
		aggregate:         make(chan events.RunnerEvent, aggregatorBuffer),
		log:               log.With().Str("component", "engine").Logger(),
	}
	go e.runAggregator()
	return e
}

// runAggregator is the engine's single consumer of every runner's event
// stream; it fans each event out to every current subscriber, pruning
// any whose receive side is no longer being drained.
func (e *Engine) runAggregator() {
	for ev := range e.aggregate {
		e.subMu.Lock()
		live := e.subscribers[:0]
		for _, sub := range e.subscribers {
			select {
			case sub <- ev:
				live = append(live, sub)
			default:
				if ev.IsCritical() {
					// A critical event is worth blocking briefly for
					// rather than silently dropping.
					select {
					case sub <- ev:
						live = append(live, sub)
					case <-time.After(10 * time.Millisecond):
						e.log.Warn().Msg("dropping critical event: subscriber too slow")
					}
				} else {
					e.log.Debug().Msg("dropping event: subscriber full")
				}
			}
		}
		e.subscribers = live
		e.subMu.Unlock()
	}
}

// Subscribe returns a channel receiving every event emitted by every
// runner in this engine, from this point forward.
func (e *Engine) Subscribe(buffer int) <-chan events.RunnerEvent {
	ch := make(chan events.RunnerEvent, buffer)
	e.subMu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.subMu.Unlock()
	return ch
}

// AddRunner starts a new SymbolRunner trading symbol with strat, using
// the engine's default window size and config.
func (e *Engine) AddRunner(runnerID, symbol string, strat strategy.Strategy) error {
	return e.AddRunnerWithConfig(runnerID, symbol, strat, e.defaultWindowSize, e.defaultConfig)
}

// AddRunnerWithConfig starts a new SymbolRunner with explicit window size
// and config, failing if runnerID is already registered.
func (e *Engine) AddRunnerWithConfig(runnerID, symbol string, strat strategy.Strategy, windowSize int, cfg runner.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.runners[runnerID]; exists {
		return fmt.Errorf("%w: %s", engineerr.ErrRunnerAlreadyExists, runnerID)
	}

	r := runner.New(runnerID, symbol, strat, windowSize, cfg, e.aggregate, e.log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if rec := recover(); rec != nil {
				e.log.Error().Interface("panic", rec).Str("runner_id", runnerID).Msg("runner goroutine panicked")
			}
		}()
		r.Run()
	}()

	e.runners[runnerID] = &runnerHandle{r: r, symbol: symbol, startedAt: time.Now(), done: done}
	e.subscriptions[symbol] = append(e.subscriptions[symbol], runnerID)
	return nil
}

// RemoveRunner stops and unregisters a runner, closing its data inbox so
// its goroutine exits, and waits up to timeout for it to finish.
func (e *Engine) RemoveRunner(runnerID string, timeout time.Duration) error {
	e.mu.Lock()
	h, ok := e.runners[runnerID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", engineerr.ErrRunnerNotFound, runnerID)
	}
	delete(e.runners, runnerID)
	e.subscriptions[h.symbol] = removeID(e.subscriptions[h.symbol], runnerID)
	e.mu.Unlock()

	close(h.r.DataInbox())
	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("runner %s did not stop within %s", runnerID, timeout)
	}
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// FeedData routes one bar to every runner subscribed to its symbol. Each
// send is non-blocking and attempted independently (a full inbox on one
// runner does not block delivery to the others, and a runner removed
// since the routing table was read is skipped); FeedData returns the
// first error encountered, if any, after attempting every subscriber.
func (e *Engine) FeedData(bar market.Bar) error {
	e.mu.RLock()
	ids := append([]string(nil), e.subscriptions[bar.Symbol]...)
	e.mu.RUnlock()

	if len(ids) == 0 {
		return fmt.Errorf("%w: %s", engineerr.ErrNoRunnersForSymbol, bar.Symbol)
	}

	var firstErr error
	for _, id := range ids {
		e.mu.RLock()
		h, ok := e.runners[id]
		e.mu.RUnlock()
		if !ok {
			continue
		}
		select {
		case h.r.DataInbox() <- bar:
		default:
			if firstErr == nil {
				firstErr = &engineerr.ChannelFullError{RunnerID: id}
			}
		}
	}
	return firstErr
}

// FeedBatch feeds a slice of bars in order, collecting (not stopping on)
// every FeedData error and returning only the first.
func (e *Engine) FeedBatch(bars []market.Bar) error {
	var firstErr error
	for _, b := range bars {
		if err := e.FeedData(b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// commandWithTimeout ensures ctx carries a deadline, defaulting to
// DefaultCommandTimeout when the caller did not set one.
func commandWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultCommandTimeout)
}

// GetRunnerSnapshot asks a runner for its current state, bounded by
// ctx's deadline (or DefaultCommandTimeout if ctx has none).
func (e *Engine) GetRunnerSnapshot(ctx context.Context, runnerID string) (runner.Snapshot, error) {
	h, err := e.handle(runnerID)
	if err != nil {
		return runner.Snapshot{}, err
	}
	ctx, cancel := commandWithTimeout(ctx)
	defer cancel()

	cmd, reply := runner.GetSnapshotCommand()
	select {
	case h.r.CommandInbox() <- cmd:
	case <-ctx.Done():
		return runner.Snapshot{}, engineerr.ErrCommandTimeout
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return runner.Snapshot{}, engineerr.ErrCommandTimeout
	}
}

// GetPriceHistory asks a runner for up to count of its most recent bars
// (nil count means "all available").
func (e *Engine) GetPriceHistory(ctx context.Context, runnerID string, count *int) ([]market.Bar, error) {
	h, err := e.handle(runnerID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := commandWithTimeout(ctx)
	defer cancel()

	cmd, reply := runner.GetPriceHistoryCommand(count)
	select {
	case h.r.CommandInbox() <- cmd:
	case <-ctx.Done():
		return nil, engineerr.ErrCommandTimeout
	}
	select {
	case bars := <-reply:
		return bars, nil
	case <-ctx.Done():
		return nil, engineerr.ErrCommandTimeout
	}
}

// PauseRunner and ResumeRunner toggle whether a runner processes bars it
// receives, without tearing down its goroutine or losing its state.
func (e *Engine) PauseRunner(ctx context.Context, runnerID string) error {
	return e.boolCommand(ctx, runnerID, runner.PauseCommand)
}

func (e *Engine) ResumeRunner(ctx context.Context, runnerID string) error {
	return e.boolCommand(ctx, runnerID, runner.ResumeCommand)
}

func (e *Engine) boolCommand(ctx context.Context, runnerID string, newCmd func() (runner.Command, chan bool)) error {
	h, err := e.handle(runnerID)
	if err != nil {
		return err
	}
	ctx, cancel := commandWithTimeout(ctx)
	defer cancel()

	cmd, reply := newCmd()
	select {
	case h.r.CommandInbox() <- cmd:
	case <-ctx.Done():
		return engineerr.ErrCommandTimeout
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return engineerr.ErrCommandTimeout
	}
}

func (e *Engine) handle(runnerID string) (*runnerHandle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.runners[runnerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engineerr.ErrRunnerNotFound, runnerID)
	}
	return h, nil
}

// RunnerIDs returns every currently registered runner ID.
func (e *Engine) RunnerIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.runners))
	for id := range e.runners {
		ids = append(ids, id)
	}
	return ids
}

// ActiveSymbols returns every symbol with at least one subscribed runner.
func (e *Engine) ActiveSymbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	symbols := make([]string, 0, len(e.subscriptions))
	for sym, ids := range e.subscriptions {
		if len(ids) > 0 {
			symbols = append(symbols, sym)
		}
	}
	return symbols
}

// RunnerCountForSymbol returns how many runners currently subscribe to
// symbol.
func (e *Engine) RunnerCountForSymbol(symbol string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscriptions[symbol])
}

// RunnersForSymbol returns the runner IDs currently subscribed to symbol.
func (e *Engine) RunnersForSymbol(symbol string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.subscriptions[symbol]...)
}

// RunnerCount returns the total number of registered runners.
func (e *Engine) RunnerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.runners)
}

// HasRunner reports whether runnerID is currently registered.
func (e *Engine) HasRunner(runnerID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.runners[runnerID]
	return ok
}

// RunnerSymbol returns the symbol a runner trades, if it exists.
func (e *Engine) RunnerSymbol(runnerID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.runners[runnerID]
	if !ok {
		return "", false
	}
	return h.symbol, true
}

// RunnerUptime returns how long a runner has been registered, if it
// exists.
func (e *Engine) RunnerUptime(runnerID string) (time.Duration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.runners[runnerID]
	if !ok {
		return 0, false
	}
	return time.Since(h.startedAt), true
}

// RunnerIsHealthy reports whether a runner's goroutine is still running
// (its done channel has not closed).
func (e *Engine) RunnerIsHealthy(runnerID string) (bool, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.runners[runnerID]
	if !ok {
		return false, false
	}
	select {
	case <-h.done:
		return false, true
	default:
		return true, true
	}
}

// HealthCheck reports every runner's health keyed by ID.
func (e *Engine) HealthCheck() map[string]bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]bool, len(e.runners))
	for id, h := range e.runners {
		select {
		case <-h.done:
			out[id] = false
		default:
			out[id] = true
		}
	}
	return out
}

// UnhealthyRunners returns the IDs of every runner whose goroutine has
// exited without going through RemoveRunner.
func (e *Engine) UnhealthyRunners() []string {
	var out []string
	for id, healthy := range e.HealthCheck() {
		if !healthy {
			out = append(out, id)
		}
	}
	return out
}

// Summary renders a one-line-per-runner human-readable status report,
// the same shape as the reference engine's summary() used in its test
// assertions.
func (e *Engine) Summary() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := fmt.Sprintf("TradingEngine: %d runner(s), %d symbol(s)\n", len(e.runners), len(e.subscriptions))
	for id, h := range e.runners {
		s += fmt.Sprintf("  %s: %s (uptime %s)\n", id, h.symbol, time.Since(h.startedAt).Round(time.Second))
	}
	return s
}

// Shutdown stops every runner and waits for all of their goroutines to
// finish, returning the first error encountered if any.
func (e *Engine) Shutdown(timeout time.Duration) error {
	results := e.ShutdownWithResults(timeout)
	for _, err := range results {
		if err != nil {
			return err
		}
	}
	return nil
}

// ShutdownWithResults stops every runner, returning a per-runner-ID
// result map instead of short-circuiting on the first error.
func (e *Engine) ShutdownWithResults(timeout time.Duration) map[string]error {
	e.mu.Lock()
	ids := make([]string, 0, len(e.runners))
	for id := range e.runners {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	results := make(map[string]error, len(ids))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := e.RemoveRunner(id, timeout)
			mu.Lock()
			results[id] = err
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	close(e.aggregate)
	return results
}
