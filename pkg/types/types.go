// Package types defines the core data structures shared across the
// TradeScript pipeline: OHLCV bars, boolean signal series, simulated
// trades, and backtest summaries.
package types

import (
	"fmt"
	"math"
	"time"
)

// Bar represents a single OHLCV bar.
// Bars are ordered by Index; Timestamp is informational and may be zero
// for synthetic series.
type Bar struct {
	Index     int
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Field returns the named price field of the bar.
// Valid names are open, high, low, close, volume.
func (b Bar) Field(name string) (float64, bool) {
	switch name {
	case "open":
		return b.Open, true
	case "high":
		return b.High, true
	case "low":
		return b.Low, true
	case "close":
		return b.Close, true
	case "volume":
		return b.Volume, true
	}
	return math.NaN(), false
}

// Series extracts the named field of every bar as a float64 slice.
// Returns nil if the name is not a known field.
func Series(bars []Bar, name string) []float64 {
	if len(bars) == 0 {
		return []float64{}
	}
	if _, ok := bars[0].Field(name); !ok {
		return nil
	}
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i], _ = b.Field(name)
	}
	return out
}

// Signals holds the entry and exit boolean series produced by the
// evaluator, aligned 1:1 with the bar series they were computed from.
type Signals struct {
	Entry []bool
	Exit  []bool
}

// Exit reasons recorded on trades.
const (
	ExitSignal    = "signal_exit"
	ExitEndOfData = "end_of_data"
)

// Trade represents a completed simulated trade.
// A trade is appended to the trade log at exit and never mutated after.
type Trade struct {
	EntryIndex int
	ExitIndex  int
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	ReturnPct  float64
	ExitReason string
}

// String returns a human-readable representation of the trade.
func (t Trade) String() string {
	return fmt.Sprintf(
		"entry[%d]=%.4f exit[%d]=%.4f return=%.4f%% reason=%s",
		t.EntryIndex, t.EntryPrice, t.ExitIndex, t.ExitPrice, t.ReturnPct*100, t.ExitReason,
	)
}

// Summary holds aggregate statistics for one backtest run.
type Summary struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	TradeCount     int     `json:"trade_count"`
	WinRate        float64 `json:"win_rate"`
}
