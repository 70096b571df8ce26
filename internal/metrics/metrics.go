// Package metrics registers Prometheus collectors over per-runner
// Stats, wired the standard client_golang way: NewGaugeVec/NewCounterVec
// on a private Registry, refreshed from StatsUpdate events rather than
// scraped directly off a live runner (which has no exported mutex-free
// read path for its Stats).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marksmithsgit/lumen-engine/internal/events"
)

// Collectors holds every gauge/counter this engine exports, each
// labeled by runner_id and symbol.
type Collectors struct {
	registry *prometheus.Registry

	ticksProcessed  *prometheus.CounterVec
	actionsExecuted *prometheus.CounterVec
	errorRate       *prometheus.GaugeVec
	avgTickDuration *prometheus.GaugeVec
	unrealizedPnL   *prometheus.GaugeVec
	realizedPnL     *prometheus.CounterVec
	runnersActive   prometheus.Gauge
}

// New registers every collector on a fresh, private registry (never the
// global default one, so multiple engines in the same process binary
// don't collide on metric names).
func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		registry: reg,
		ticksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumen", Name: "ticks_processed_total", Help: "Bars processed per runner.",
		}, []string{"runner_id", "symbol"}),
		actionsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumen", Name: "actions_executed_total", Help: "FSM actions executed per runner.",
		}, []string{"runner_id", "symbol"}),
		errorRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lumen", Name: "error_rate_per_mille", Help: "Errors per 1000 ticks, most recent StatsUpdate.",
		}, []string{"runner_id", "symbol"}),
		avgTickDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lumen", Name: "avg_tick_duration_ms", Help: "Average tick processing duration in milliseconds.",
		}, []string{"runner_id", "symbol"}),
		unrealizedPnL: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lumen", Name: "unrealized_pnl", Help: "Most recently reported unrealized P&L per runner.",
		}, []string{"runner_id", "symbol"}),
		realizedPnL: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumen", Name: "realized_pnl_total", Help: "Cumulative realized profit from closed positions per runner; losing closes are not subtracted.",
		}, []string{"runner_id", "symbol"}),
		runnersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lumen", Name: "runners_active", Help: "Number of runners currently registered with the engine.",
		}),
	}
	reg.MustRegister(c.ticksProcessed, c.actionsExecuted, c.errorRate, c.avgTickDuration, c.unrealizedPnL, c.realizedPnL, c.runnersActive)
	return c
}

// Handler returns the /metrics HTTP handler for this registry.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetActiveRunners sets the runners_active gauge.
func (c *Collectors) SetActiveRunners(n int) {
	c.runnersActive.Set(float64(n))
}

// Observe folds one engine event into the relevant collectors. Only a
// subset of event kinds carry metric-relevant data; the rest are
// no-ops.
func (c *Collectors) Observe(ev events.RunnerEvent) {
	switch ev.Kind {
	case events.KindStatsUpdate:
		labels := prometheus.Labels{"runner_id": ev.RunnerID, "symbol": ev.Symbol}
		c.errorRate.With(labels).Set(ev.ErrorRate)
		c.avgTickDuration.With(labels).Set(ev.AvgTickDurationMs)
		c.ticksProcessed.With(labels).Add(0) // ensure the series exists even before the first increment
		c.actionsExecuted.With(labels).Add(0)
	case events.KindTickReceived:
		c.ticksProcessed.WithLabelValues(ev.RunnerID, ev.Symbol).Inc()
	case events.KindActionExecuted:
		c.actionsExecuted.WithLabelValues(ev.RunnerID, "").Inc()
	case events.KindPositionUpdated:
		c.unrealizedPnL.WithLabelValues(ev.RunnerID, "").Set(ev.UnrealizedPnL)
	case events.KindPositionClosed:
		if ev.RealizedPnL > 0 {
			c.realizedPnL.WithLabelValues(ev.RunnerID, "").Add(ev.RealizedPnL)
		}
	}
}
