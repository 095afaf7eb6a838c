// Package api provides the HTTP JSON API for the backtest service.
//
// Endpoints:
//
//	GET  /api/v1/status             - Service health check
//	POST /api/v1/strategies/parse   - Canonical rule text -> AST summary
//	POST /api/v1/strategies/compile - NL text or structured rules -> canonical text
//	POST /api/v1/backtests          - Run a backtest, returns trades + summary
//	GET  /api/v1/runs               - List runs
//	GET  /api/v1/runs/{run_id}      - Run detail
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradescript/tradescript/pkg/backtest"
	"github.com/tradescript/tradescript/pkg/bus"
	"github.com/tradescript/tradescript/pkg/dsl"
	"github.com/tradescript/tradescript/pkg/eval"
	"github.com/tradescript/tradescript/pkg/feed"
	"github.com/tradescript/tradescript/pkg/metrics"
	"github.com/tradescript/tradescript/pkg/nl"
	"github.com/tradescript/tradescript/pkg/rules"
	"github.com/tradescript/tradescript/pkg/runtracker"
	"github.com/tradescript/tradescript/pkg/store"
	"github.com/tradescript/tradescript/pkg/types"
)

// Server holds dependencies for the API handlers. Store and Bus are
// optional; when nil the corresponding side effects are skipped.
type Server struct {
	Tracker        *runtracker.Tracker
	Metrics        *metrics.Recorder
	Store          *store.Client
	Bus            *bus.Bus
	InitialCapital float64
	Logger         *slog.Logger
}

// NewServer creates a new API server.
func NewServer(tracker *runtracker.Tracker, rec *metrics.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Tracker: tracker,
		Metrics: rec,
		Logger:  logger,
	}
}

// RegisterRoutes registers all API routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/status", s.HandleStatus)
	mux.HandleFunc("POST /api/v1/strategies/parse", s.HandleParse)
	mux.HandleFunc("POST /api/v1/strategies/compile", s.HandleCompile)
	mux.HandleFunc("POST /api/v1/backtests", s.HandleBacktest)
	mux.HandleFunc("GET /api/v1/runs", s.HandleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{run_id}", s.HandleGetRun)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// ---------------------------------------------------------------------------
// Request / response types
// ---------------------------------------------------------------------------

type statusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version"`
}

type parseRequest struct {
	Text string `json:"text"`
}

type indicatorItem struct {
	Kind   string `json:"kind"`
	Source string `json:"source"`
	Period int    `json:"period"`
}

type parseResponse struct {
	Canonical  string          `json:"canonical"`
	Entry      string          `json:"entry"`
	Exit       string          `json:"exit"`
	Indicators []indicatorItem `json:"indicators"`
}

type compileRequest struct {
	Text  string          `json:"text,omitempty"`  // natural language
	Rules json.RawMessage `json:"rules,omitempty"` // structured rule set
}

type compileResponse struct {
	Canonical string   `json:"canonical"`
	Problems  []string `json:"problems,omitempty"`
}

type apiBar struct {
	Timestamp string  `json:"timestamp,omitempty"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type backtestRequest struct {
	StrategyName   string              `json:"strategy_name,omitempty"`
	Text           string              `json:"text"`
	Bars           []apiBar            `json:"bars,omitempty"`
	Synthetic      *feed.SyntheticSpec `json:"synthetic,omitempty"`
	InitialCapital float64             `json:"initial_capital,omitempty"`
	Persist        bool                `json:"persist,omitempty"`
}

type apiTrade struct {
	EntryIndex int     `json:"entry_index"`
	ExitIndex  int     `json:"exit_index"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	ReturnPct  float64 `json:"return_pct"`
	ExitReason string  `json:"exit_reason"`
}

type backtestResponse struct {
	RunID   string        `json:"run_id"`
	Trades  []apiTrade    `json:"trades"`
	Summary types.Summary `json:"summary"`
}

type runListResponse struct {
	Runs      []*runtracker.Run `json:"runs"`
	TotalRuns int               `json:"total_runs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// HandleStatus returns overall service health and uptime.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:        "healthy",
		UptimeSeconds: s.Tracker.UptimeSeconds(),
		Version:       s.Tracker.Version(),
	})
}

// HandleParse parses canonical rule text and returns an AST summary.
func (s *Server) HandleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	strategy, err := dsl.Parse(req.Text)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.RecordParseError()
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	indicators := dsl.RequiredIndicators(strategy)
	items := make([]indicatorItem, len(indicators))
	for i, ind := range indicators {
		items[i] = indicatorItem{Kind: string(ind.Kind), Source: ind.Source.Name, Period: ind.Period}
	}

	writeJSON(w, http.StatusOK, parseResponse{
		Canonical:  strategy.Canonical(),
		Entry:      strategy.Entry.Canonical(),
		Exit:       strategy.Exit.Canonical(),
		Indicators: items,
	})
}

// HandleCompile maps natural-language text or a structured rule set to
// canonical rule text.
func (s *Server) HandleCompile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	var rs rules.RuleSet
	switch {
	case len(req.Rules) > 0:
		parsed, err := rules.ParseRuleSet(req.Rules)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		rs = parsed
	case req.Text != "":
		rs = nl.MapRules(req.Text)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "either text or rules is required"})
		return
	}

	writeJSON(w, http.StatusOK, compileResponse{
		Canonical: rules.ToDSL(rs),
		Problems:  rules.Validate(rs),
	})
}

// HandleBacktest parses the rule text, evaluates it over the supplied
// bars, runs the simulator, and returns the trade log and summary.
func (s *Server) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}

	var bars []types.Bar
	switch {
	case len(req.Bars) > 0:
		bars = convertBars(req.Bars)
	case req.Synthetic != nil:
		bars = feed.Synthetic(*req.Synthetic)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "either bars or synthetic is required"})
		return
	}

	strategy, err := dsl.Parse(req.Text)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.RecordParseError()
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	name := req.StrategyName
	if name == "" {
		name = "ad_hoc"
	}

	runID, result, err := s.executeBacktest(name, strategy, bars, req.InitialCapital)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	s.persistAndPublish(r.Context(), req, runID, name, strategy, bars, result)

	trades := make([]apiTrade, len(result.Trades))
	for i, t := range result.Trades {
		trades[i] = apiTrade{
			EntryIndex: t.EntryIndex,
			ExitIndex:  t.ExitIndex,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			ReturnPct:  t.ReturnPct,
			ExitReason: t.ExitReason,
		}
	}

	writeJSON(w, http.StatusOK, backtestResponse{
		RunID:   runID,
		Trades:  trades,
		Summary: result.Summary,
	})
}

// executeBacktest runs the parsed strategy over bars under the run
// tracker, recording metrics. A capital at or below zero falls back to
// the server default. Shared by the HTTP handler and the event
// listener.
func (s *Server) executeBacktest(name string, strategy *dsl.Strategy, bars []types.Bar, capital float64) (string, backtest.Result, error) {
	if capital <= 0 {
		capital = s.InitialCapital
	}
	runID := s.Tracker.StartRun(name, strategy.Canonical(), len(bars))
	started := time.Now()

	signals := eval.New(bars, s.Logger).Evaluate(strategy)
	sim := backtest.NewSimulator(capital, s.Logger)
	result, err := sim.Run(bars, signals)
	if err != nil {
		s.Tracker.FailRun(runID, err.Error())
		if s.Metrics != nil {
			s.Metrics.RecordBacktest("failed", time.Since(started).Seconds())
		}
		return runID, backtest.Result{}, err
	}

	s.Tracker.CompleteRun(runID, result.Summary)
	if s.Metrics != nil {
		s.Metrics.RecordBacktest("completed", time.Since(started).Seconds())
		s.Metrics.RecordTrades(len(result.Trades))
		s.Metrics.RecordTotalReturn(name, result.Summary.TotalReturnPct)
	}
	return runID, result, nil
}

// persistAndPublish performs the optional storage and event side
// effects of a completed backtest. Failures are logged, never surfaced
// to the API caller.
func (s *Server) persistAndPublish(
	ctx context.Context,
	req backtestRequest,
	runID, name string,
	strategy *dsl.Strategy,
	bars []types.Bar,
	result backtest.Result,
) {
	if req.Persist && s.Store != nil {
		strategyID, err := s.Store.SaveStrategy(ctx, name, strategy.Canonical())
		if err != nil {
			s.Logger.Warn("Failed to save strategy", "run_id", runID, "error", err)
		} else {
			rec := store.ResultFromSummary(runID, strategyID, len(bars), result.Summary)
			if _, err := s.Store.SaveResult(ctx, rec, result.Trades); err != nil {
				s.Logger.Warn("Failed to save backtest result", "run_id", runID, "error", err)
			}
		}
	}

	if s.Bus != nil {
		event := &bus.Event{
			EventType:     bus.EventBacktestCompleted,
			Source:        "tradescript-api",
			CorrelationID: runID,
			Payload: map[string]any{
				"run_id":           runID,
				"strategy_name":    name,
				"bars":             len(bars),
				"trade_count":      result.Summary.TradeCount,
				"total_return_pct": result.Summary.TotalReturnPct,
				"win_rate":         result.Summary.WinRate,
			},
		}
		if err := s.Bus.Publish(ctx, event); err != nil {
			s.Logger.Warn("Failed to publish backtest event", "run_id", runID, "error", err)
		}
	}
}

// HandleListRuns returns tracked runs, most recent first.
func (s *Server) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs := s.Tracker.ListRuns(q.Get("status"), limit)
	writeJSON(w, http.StatusOK, runListResponse{Runs: runs, TotalRuns: len(runs)})
}

// HandleGetRun returns the detail of a single run.
func (s *Server) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "run_id is required"})
		return
	}

	run := s.Tracker.GetRun(runID)
	if run == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

func convertBars(in []apiBar) []types.Bar {
	bars := make([]types.Bar, len(in))
	for i, b := range in {
		var ts time.Time
		if b.Timestamp != "" {
			if parsed, err := time.Parse(time.RFC3339, b.Timestamp); err == nil {
				ts = parsed
			}
		}
		bars[i] = types.Bar{
			Index:     i,
			Timestamp: ts,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return bars
}
