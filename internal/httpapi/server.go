// Package httpapi exposes the engine's runner lifecycle and the
// internal/store audit trail over plain net/http, using the standard
// ServeMux + http.HandleFunc idiom with a registered handler set rather
// than hard-coded routes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/marksmithsgit/lumen-engine/internal/engine"
	"github.com/marksmithsgit/lumen-engine/internal/engineerr"
	"github.com/marksmithsgit/lumen-engine/internal/runner"
	"github.com/marksmithsgit/lumen-engine/internal/store"
	"github.com/marksmithsgit/lumen-engine/internal/strategy"
)

// StrategyFactory builds a fresh strategy.Strategy instance by name, used
// by the POST /api/runners endpoint to avoid sharing mutable strategy
// state across runners.
type StrategyFactory func(name string) (strategy.Strategy, error)

// DefaultStrategyFactory builds the three native strategies by their
// Name() identifiers; callers that also want Lua-scripted strategies
// should wrap this with their own lookup for script paths.
func DefaultStrategyFactory(name string) (strategy.Strategy, error) {
	switch name {
	case "ema_crossover":
		return strategy.NewEMACrossover(), nil
	case "donchian_breakout":
		return strategy.NewDonchianBreakout(), nil
	case "supertrend_trend":
		return strategy.NewSupertrendTrend(), nil
	default:
		return nil, errors.New("httpapi: unknown strategy " + name)
	}
}

// Server wires an *engine.Engine and an optional *store.Store to a
// net/http handler set.
type Server struct {
	eng     *engine.Engine
	store   *store.Store
	factory StrategyFactory
	log     zerolog.Logger
}

// New returns a Server; st may be nil, in which case history endpoints
// respond with an empty result instead of erroring.
func New(eng *engine.Engine, st *store.Store, factory StrategyFactory, log zerolog.Logger) *Server {
	if factory == nil {
		factory = DefaultStrategyFactory
	}
	return &Server{eng: eng, store: st, factory: factory, log: log.With().Str("component", "httpapi").Logger()}
}

// Routes registers every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/runners", s.handleRunnersCollection)
	mux.HandleFunc("/api/runners/", s.handleRunnerItem)
	mux.HandleFunc("/api/history/runners", s.handleRunnerHistory)
	mux.HandleFunc("/api/history/positions", s.handlePositionHistory)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/health", s.handleHealth)
}

type createRunnerRequest struct {
	RunnerID   string  `json:"runnerId"`
	Symbol     string  `json:"symbol"`
	Strategy   string  `json:"strategy"`
	WindowSize int     `json:"windowSize,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleRunnersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ids := s.eng.RunnerIDs()
		symbols := make([]string, len(ids))
		for i, id := range ids {
			symbols[i], _ = s.eng.RunnerSymbol(id)
		}
		writeJSON(w, http.StatusOK, map[string]any{"runnerIds": ids, "symbols": symbols})

	case http.MethodPost:
		var req createRunnerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.RunnerID == "" || req.Symbol == "" {
			writeError(w, http.StatusBadRequest, errors.New("runnerId and symbol are required"))
			return
		}
		strat, err := s.factory(req.Strategy)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.WindowSize > 0 {
			if err := s.eng.AddRunnerWithConfig(req.RunnerID, req.Symbol, strat, req.WindowSize, runner.DefaultConfig()); err != nil {
				s.writeEngineErr(w, err)
				return
			}
		} else if err := s.eng.AddRunner(req.RunnerID, req.Symbol, strat); err != nil {
			s.writeEngineErr(w, err)
			return
		}
		if s.store != nil {
			s.store.LogRunnerStarted(req.RunnerID, req.Symbol, strat.Name())
		}
		writeJSON(w, http.StatusCreated, map[string]string{"runnerId": req.RunnerID})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// runnerIDFromPath strips the "/api/runners/" prefix and any trailing
// action segment (e.g. "/pause"), returning the bare runner id plus the
// trailing segment if present.
func runnerIDFromPath(path string) (id, action string) {
	const prefix = "/api/runners/"
	rest := path[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:]
		}
	}
	return rest, ""
}

func (s *Server) handleRunnerItem(w http.ResponseWriter, r *http.Request) {
	id, action := runnerIDFromPath(r.URL.Path)
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("runner id required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			snap, err := s.eng.GetRunnerSnapshot(ctx, id)
			if err != nil {
				s.writeEngineErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		case http.MethodDelete:
			if err := s.eng.RemoveRunner(id, 2*time.Second); err != nil {
				s.writeEngineErr(w, err)
				return
			}
			if s.store != nil {
				s.store.LogRunnerStopped(id, "removed")
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	case "history":
		count := queryInt(r, "count", -1)
		var countPtr *int
		if count >= 0 {
			countPtr = &count
		}
		bars, err := s.eng.GetPriceHistory(ctx, id, countPtr)
		if err != nil {
			s.writeEngineErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bars)

	case "pause":
		if err := s.eng.PauseRunner(ctx, id); err != nil {
			s.writeEngineErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "resume":
		if err := s.eng.ResumeRunner(ctx, id); err != nil {
			s.writeEngineErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusNotFound, errors.New("unknown runner action "+action))
	}
}

func (s *Server) handleRunnerHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	symbol := r.URL.Query().Get("symbol")
	limit := queryInt(r, "limit", 100)
	rows, err := s.store.QueryRunnerHistory(r.Context(), symbol, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handlePositionHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	runnerID := r.URL.Query().Get("runnerId")
	if runnerID == "" {
		writeError(w, http.StatusBadRequest, errors.New("runnerId is required"))
		return
	}
	limit := queryInt(r, "limit", 200)
	rows, err := s.store.QueryClosedPositions(r.Context(), runnerID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":     s.eng.Summary(),
		"runnerCount": s.eng.RunnerCount(),
		"symbols":     s.eng.ActiveSymbols(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"health":     s.eng.HealthCheck(),
		"unhealthy":  s.eng.UnhealthyRunners(),
	})
}

func (s *Server) writeEngineErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engineerr.ErrRunnerNotFound), errors.Is(err, engineerr.ErrNoRunnersForSymbol):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, engineerr.ErrRunnerAlreadyExists):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, engineerr.ErrCommandTimeout):
		writeError(w, http.StatusGatewayTimeout, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
