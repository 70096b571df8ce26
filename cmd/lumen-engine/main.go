// Command lumen-engine is the process entrypoint: it wires the engine
// supervisor, a market data source, the Postgres audit store, and the
// HTTP/WebSocket surfaces together via sequential subsystem construction,
// with port-conflict retry on the HTTP listener and signal.Notify graceful
// shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/marksmithsgit/lumen-engine/internal/config"
	"github.com/marksmithsgit/lumen-engine/internal/engine"
	"github.com/marksmithsgit/lumen-engine/internal/httpapi"
	"github.com/marksmithsgit/lumen-engine/internal/metrics"
	"github.com/marksmithsgit/lumen-engine/internal/runner"
	"github.com/marksmithsgit/lumen-engine/internal/sources"
	"github.com/marksmithsgit/lumen-engine/internal/sources/amqpsource"
	"github.com/marksmithsgit/lumen-engine/internal/store"
	"github.com/marksmithsgit/lumen-engine/internal/strategy"
	"github.com/marksmithsgit/lumen-engine/internal/wsapi"
)

// instrumentList is the default symbol set this engine trades absent a
// richer dynamic-subscription API; operators add/remove runners for
// other symbols through enginectl.
var instrumentList = []string{
	"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD",
	"USDCAD", "NZDUSD", "EURJPY", "GBPJPY", "EURGBP",
}

func configureLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	var l zerolog.Logger
	if cfg.Log.Format == "json" {
		l = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return l
}

// killProcessUsingPort finds and kills whatever process is bound to
// port: lsof first, netstat as a fallback, refusing to kill our own pid.
func killProcessUsingPort(port string, l zerolog.Logger) bool {
	cmd := exec.Command("lsof", "-ti", fmt.Sprintf(":%s", port))
	output, err := cmd.Output()
	if err != nil {
		l.Warn().Msg("lsof failed, trying netstat method")
		cmd = exec.Command("sh", "-c", fmt.Sprintf("netstat -tulpn 2>/dev/null | grep :%s | awk '{print $7}' | cut -d'/' -f1", port))
		output, err = cmd.Output()
		if err != nil {
			l.Warn().Str("port", port).Msg("both lsof and netstat failed to find process using port")
			return false
		}
	}

	pidStr := strings.TrimSpace(string(output))
	if pidStr == "" {
		return false
	}
	pidStr = strings.Split(pidStr, "\n")[0]

	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		l.Warn().Str("pid", pidStr).Err(err).Msg("failed to parse pid")
		return false
	}
	if pid == os.Getpid() {
		l.Warn().Int("pid", pid).Msg("found our own process, not killing")
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if err := process.Kill(); err != nil {
		l.Warn().Int("pid", pid).Err(err).Msg("failed to kill process")
		return false
	}
	time.Sleep(500 * time.Millisecond)
	return true
}

func defaultStrategyFor(symbol string) strategy.Strategy {
	return strategy.NewEMACrossover()
}

func main() {
	configPath := "engine.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load configuration")
	}

	l := configureLogger(cfg)
	l.Info().Msg("starting lumen-engine")

	runnerCfg := runner.DefaultConfig()
	eng := engine.New(runnerCfg, cfg.Engine.DefaultWindowSize, l)
	l.Info().Msg("engine supervisor started")

	var st *store.Store
	if cfg.Storage.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		st, err = store.New(ctx, cfg.Storage.DSN)
		cancel()
		if err != nil {
			l.Warn().Err(err).Msg("audit store unavailable, continuing without it")
			st = nil
		} else {
			defer st.Close()
			l.Info().Msg("audit store connected")
		}
	}

	for _, symbol := range instrumentList {
		runnerID := symbol + "-default"
		if err := eng.AddRunner(runnerID, symbol, defaultStrategyFor(symbol)); err != nil {
			l.Error().Err(err).Str("symbol", symbol).Msg("failed to start default runner")
			continue
		}
		if st != nil {
			st.LogRunnerStarted(runnerID, symbol, "ema_crossover")
		}
	}
	l.Info().Int("runners", eng.RunnerCount()).Msg("default runners started")

	src := amqpsource.New(cfg.Sources.AMQPURI, l)
	feedCtx, feedCancel := context.WithCancel(context.Background())
	defer feedCancel()
	startFeed(feedCtx, src, eng, l)

	collectors := metrics.New()
	evCh := eng.Subscribe(4096)
	go func() {
		collectors.SetActiveRunners(eng.RunnerCount())
		for ev := range evCh {
			collectors.Observe(ev)
		}
	}()

	hub := wsapi.NewHub(l)
	hub.Attach(eng)
	go hub.Run()

	mux := http.NewServeMux()
	api := httpapi.New(eng, st, nil, l)
	api.Routes(mux)
	mux.HandleFunc("/ws", hub.ServeWs)
	mux.Handle("/metrics", collectors.Handler())

	go serveHTTP(mux, cfg.HTTP.ListenAddr, l)

	l.Info().Strs("symbols", instrumentList).Msg("lumen-engine operational")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutdown signal received, stopping engine")
	feedCancel()
	if err := eng.Shutdown(5 * time.Second); err != nil {
		l.Warn().Err(err).Msg("engine did not shut down cleanly")
	}
}

// startFeed connects and subscribes src, then drains NextBar into the
// engine's FeedData in a background goroutine until ctx is cancelled.
func startFeed(ctx context.Context, src sources.Source, eng *engine.Engine, l zerolog.Logger) {
	if err := src.Connect(ctx); err != nil {
		l.Error().Err(err).Msg("market data source failed to connect, running with no live feed")
		return
	}
	if err := src.Subscribe(ctx, instrumentList); err != nil {
		l.Error().Err(err).Msg("market data source failed to subscribe")
		return
	}
	go func() {
		defer src.Disconnect(context.Background())
		for {
			bar, err := src.NextBar(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				l.Warn().Err(err).Msg("source NextBar error")
				continue
			}
			if err := eng.FeedData(bar); err != nil {
				l.Debug().Err(err).Str("symbol", bar.Symbol).Msg("FeedData failed")
			}
		}
	}()
}

// serveHTTP listens on addr, retrying with a kill-then-retry strategy
// on "address already in use" before falling back to an alternate port.
func serveHTTP(mux *http.ServeMux, addr string, l zerolog.Logger) {
	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			if strings.Contains(err.Error(), "address already in use") {
				_, port, _ := net.SplitHostPort(addr)
				l.Warn().Str("addr", addr).Int("attempt", i+1).Msg("port already in use, attempting to kill conflicting process")
				if killProcessUsingPort(port, l) {
					time.Sleep(2 * time.Second)
					continue
				}
				l.Error().Msg("failed to kill conflicting process, falling back to :0")
				addr = ":0"
				continue
			}
			l.Fatal().Err(err).Msg("failed to start HTTP server")
		}

		l.Info().Str("addr", listener.Addr().String()).Msg("HTTP API listening")
		if err := http.Serve(listener, mux); err != nil {
			l.Error().Err(err).Msg("HTTP server error")
		}
		return
	}
	l.Fatal().Msg("failed to start HTTP server after max retries")
}
