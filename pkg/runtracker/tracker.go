// Package runtracker provides in-memory tracking of backtest run state
// so the monitoring API can report live status without touching the
// database.
package runtracker

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradescript/tradescript/pkg/types"
)

// RunStatus represents the overall status of a backtest run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run tracks one backtest execution.
type Run struct {
	RunID        string         `json:"run_id"`
	StrategyName string         `json:"strategy_name"`
	DSLText      string         `json:"dsl_text"`
	Bars         int            `json:"bars"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      *time.Time     `json:"end_time"`
	Status       RunStatus      `json:"status"`
	TradeCount   int            `json:"trade_count"`
	Summary      *types.Summary `json:"summary,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// ElapsedSeconds returns seconds elapsed since the run started, frozen
// at completion.
func (r *Run) ElapsedSeconds() float64 {
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime).Seconds()
	}
	return time.Since(r.StartTime).Seconds()
}

// Tracker provides thread-safe management of backtest run state.
type Tracker struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	logger *slog.Logger

	startedAt time.Time
	version   string
}

// NewTracker creates a new run tracker.
func NewTracker(logger *slog.Logger, version string) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	return &Tracker{
		runs:      make(map[string]*Run),
		logger:    logger,
		startedAt: time.Now(),
		version:   version,
	}
}

// Version returns the version string.
func (t *Tracker) Version() string { return t.version }

// UptimeSeconds returns seconds since the tracker was created.
func (t *Tracker) UptimeSeconds() float64 {
	return time.Since(t.startedAt).Seconds()
}

// StartRun registers a new run and returns its run_id.
func (t *Tracker) StartRun(strategyName, dslText string, bars int) string {
	runID := uuid.NewString()
	run := &Run{
		RunID:        runID,
		StrategyName: strategyName,
		DSLText:      dslText,
		Bars:         bars,
		StartTime:    time.Now(),
		Status:       StatusRunning,
	}

	t.mu.Lock()
	t.runs[runID] = run
	t.mu.Unlock()

	t.logger.Debug("Run started", "run_id", runID, "strategy", strategyName, "bars", bars)
	return runID
}

// CompleteRun marks a run completed with its summary.
func (t *Tracker) CompleteRun(runID string, summary types.Summary) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		return
	}
	run.Status = StatusCompleted
	run.EndTime = &now
	run.TradeCount = summary.TradeCount
	run.Summary = &summary
}

// FailRun marks a run failed with an error message.
func (t *Tracker) FailRun(runID, errMsg string) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		return
	}
	run.Status = StatusFailed
	run.EndTime = &now
	run.ErrorMessage = errMsg
}

// GetRun returns a copy of the run with the given ID, or nil.
func (t *Tracker) GetRun(runID string) *Run {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[runID]
	if !ok {
		return nil
	}
	cp := *run
	return &cp
}

// ListRuns returns copies of runs, most recent first, optionally
// filtered by status, up to limit.
func (t *Tracker) ListRuns(statusFilter string, limit int) []*Run {
	t.mu.RLock()
	out := make([]*Run, 0, len(t.runs))
	for _, run := range t.runs {
		if statusFilter != "" && string(run.Status) != statusFilter {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
