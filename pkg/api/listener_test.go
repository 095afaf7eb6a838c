package api

import (
	"context"
	"testing"

	"github.com/tradescript/tradescript/pkg/bus"
	"github.com/tradescript/tradescript/pkg/runtracker"
)

func requestEvent(payload map[string]any) *bus.Event {
	return &bus.Event{
		EventType:     bus.EventBacktestRequested,
		Source:        "test",
		CorrelationID: "corr-1",
		Payload:       payload,
	}
}

func TestHandleBacktestRequest(t *testing.T) {
	s, _ := newTestServer()

	err := s.handleBacktestRequest(context.Background(), requestEvent(map[string]any{
		"strategy_name":  "event_strategy",
		"text":           "ENTRY: close > SMA(close, 3)\nEXIT: close < SMA(close, 3)",
		"synthetic_bars": float64(120),
		"seed":           float64(7),
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	runs := s.Tracker.ListRuns(string(runtracker.StatusCompleted), 10)
	if len(runs) != 1 {
		t.Fatalf("expected 1 completed run, got %d", len(runs))
	}
	if runs[0].StrategyName != "event_strategy" {
		t.Errorf("strategy name = %q, want event_strategy", runs[0].StrategyName)
	}
}

func TestHandleBacktestRequestBadRules(t *testing.T) {
	s, _ := newTestServer()

	err := s.handleBacktestRequest(context.Background(), requestEvent(map[string]any{
		"text":           "ENTRY close > 100\nEXIT: TRUE",
		"synthetic_bars": float64(50),
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if runs := s.Tracker.ListRuns("", 10); len(runs) != 0 {
		t.Errorf("expected no runs for unparsable rules, got %d", len(runs))
	}
}

func TestHandleBacktestRequestIncomplete(t *testing.T) {
	s, _ := newTestServer()

	// Requests missing rule text or a data source are dropped, not
	// treated as handler failures.
	cases := []map[string]any{
		{"synthetic_bars": float64(50)},
		{"text": "ENTRY: close > 100\nEXIT: TRUE"},
		{"text": "ENTRY: TRUE\nEXIT: TRUE", "seed": 1.0},
	}
	for _, payload := range cases {
		if err := s.handleBacktestRequest(context.Background(), requestEvent(payload)); err != nil {
			t.Errorf("payload %v: handler returned error: %v", payload, err)
		}
	}
	if runs := s.Tracker.ListRuns("", 10); len(runs) != 0 {
		t.Errorf("expected no runs for incomplete requests, got %d", len(runs))
	}
}

func TestRunListenerRequiresBus(t *testing.T) {
	s, _ := newTestServer()
	if err := s.RunListener(context.Background()); err == nil {
		t.Fatal("expected error when no bus is configured")
	}
}
