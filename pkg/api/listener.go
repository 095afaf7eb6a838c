package api

import (
	"context"
	"fmt"
	"time"

	"github.com/tradescript/tradescript/pkg/bus"
	"github.com/tradescript/tradescript/pkg/dsl"
	"github.com/tradescript/tradescript/pkg/feed"
)

// RunListener subscribes to backtest_requested events and runs each
// request through the backtest pipeline, publishing a completed or
// failed event with the request's correlation ID. Blocks until ctx is
// cancelled.
func (s *Server) RunListener(ctx context.Context) error {
	if s.Bus == nil {
		return fmt.Errorf("listener requires a bus")
	}

	s.Logger.Info("Starting backtest request listener")

	return s.Bus.Subscribe(ctx, bus.EventBacktestRequested, s.handleBacktestRequest)
}

func (s *Server) handleBacktestRequest(ctx context.Context, event *bus.Event) error {
	text := payloadString(event.Payload, "text")
	if text == "" {
		s.Logger.Warn("Received backtest request with no rule text",
			"correlation_id", event.CorrelationID,
		)
		return nil
	}

	name := payloadString(event.Payload, "strategy_name")
	if name == "" {
		name = "event_request"
	}

	synthBars := payloadInt(event.Payload, "synthetic_bars")
	if synthBars <= 0 {
		s.Logger.Warn("Received backtest request with no data source",
			"correlation_id", event.CorrelationID,
		)
		return nil
	}
	bars := feed.Synthetic(feed.SyntheticSpec{
		Bars: synthBars,
		Seed: int64(payloadInt(event.Payload, "seed")),
	})

	s.Logger.Info("Processing backtest request",
		"strategy_name", name,
		"bars", len(bars),
		"correlation_id", event.CorrelationID,
		"source", event.Source,
	)

	strategy, err := dsl.Parse(text)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.RecordParseError()
		}
		return s.publishFailure(ctx, event, name, err)
	}

	capital := 0.0
	if v, ok := event.Payload["initial_capital"].(float64); ok {
		capital = v
	}

	runID, result, err := s.executeBacktest(name, strategy, bars, capital)
	if err != nil {
		return s.publishFailure(ctx, event, name, err)
	}

	return s.publishEvent(ctx, &bus.Event{
		EventType:     bus.EventBacktestCompleted,
		Source:        "tradescript-api",
		CorrelationID: event.CorrelationID,
		Payload: map[string]any{
			"run_id":           runID,
			"strategy_name":    name,
			"bars":             len(bars),
			"trade_count":      result.Summary.TradeCount,
			"total_return_pct": result.Summary.TotalReturnPct,
			"win_rate":         result.Summary.WinRate,
		},
	})
}

func (s *Server) publishFailure(ctx context.Context, event *bus.Event, name string, cause error) error {
	s.Logger.Error("Backtest request failed",
		"strategy_name", name,
		"error", cause,
		"correlation_id", event.CorrelationID,
	)
	return s.publishEvent(ctx, &bus.Event{
		EventType:     bus.EventBacktestFailed,
		Source:        "tradescript-api",
		Timestamp:     time.Now().UTC(),
		CorrelationID: event.CorrelationID,
		Payload: map[string]any{
			"strategy_name": name,
			"error":         cause.Error(),
		},
	})
}

// publishEvent forwards to the bus when one is configured. Keeps the
// handler usable with the same optional-Bus contract as the HTTP path.
func (s *Server) publishEvent(ctx context.Context, event *bus.Event) error {
	if s.Bus == nil {
		return nil
	}
	return s.Bus.Publish(ctx, event)
}

func payloadString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

// payloadInt reads a JSON number from the payload. Decoded JSON
// numbers arrive as float64.
func payloadInt(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
