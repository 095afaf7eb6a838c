// Package backtest runs the single-position simulation over
// precomputed entry/exit signals.
//
// The simulator is a two-state machine (flat, long) stepped bar by bar
// in index order. Trades execute at the same bar's close with full
// allocation and no pyramiding. A bar performs at most one transition:
// a bar that closes a trade never reopens on the same bar. A position
// still open at the end of data is force-closed at the final close and
// recorded with the "end_of_data" exit reason.
package backtest

import (
	"fmt"
	"log/slog"

	"github.com/tradescript/tradescript/pkg/types"
)

// DefaultInitialCapital is used when a Simulator is created with a
// non-positive capital.
const DefaultInitialCapital = 1000.0

// Result bundles the trade log, the per-bar equity curve, and the
// summary statistics of one simulation run.
type Result struct {
	Trades      []types.Trade
	EquityCurve []float64
	Summary     types.Summary
}

// Simulator runs strategies' signal series through the position state
// machine. A Simulator holds no state between runs.
type Simulator struct {
	initialCapital float64
	logger         *slog.Logger
}

// NewSimulator creates a Simulator with the given starting capital.
func NewSimulator(initialCapital float64, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	if initialCapital <= 0 {
		initialCapital = DefaultInitialCapital
	}
	return &Simulator{initialCapital: initialCapital, logger: logger}
}

// Run simulates the signals over the bars and returns the trade log,
// equity curve, and summary. Signal series must be aligned 1:1 with the
// bars; a zero-length bar series yields an empty result.
func (s *Simulator) Run(bars []types.Bar, signals types.Signals) (Result, error) {
	if len(signals.Entry) != len(bars) || len(signals.Exit) != len(bars) {
		return Result{}, fmt.Errorf(
			"signal length mismatch: %d bars, %d entry, %d exit",
			len(bars), len(signals.Entry), len(signals.Exit),
		)
	}

	trades := make([]types.Trade, 0, 16)
	equity := s.initialCapital
	equityCurve := make([]float64, 0, len(bars))

	var (
		inPosition bool
		position   float64 // units held while in a position
		entryPrice float64
		entryIndex int
	)

	for i, bar := range bars {
		price := bar.Close

		switch {
		case inPosition && signals.Exit[i]:
			equity = position * price
			trades = append(trades, closedTrade(bars, entryIndex, i, entryPrice, price, types.ExitSignal))
			inPosition = false
			position = 0

		case !inPosition && signals.Entry[i]:
			if price > 0 {
				entryPrice = price
				entryIndex = i
				position = equity / price
				inPosition = true
			}
		}

		if inPosition {
			equityCurve = append(equityCurve, position*price)
		} else {
			equityCurve = append(equityCurve, equity)
		}
	}

	// Force-close an open position at the final close for reporting.
	if inPosition {
		finalPrice := bars[len(bars)-1].Close
		equity = position * finalPrice
		trades = append(trades, closedTrade(bars, entryIndex, len(bars)-1, entryPrice, finalPrice, types.ExitEndOfData))
		s.logger.Debug("Force-closed open position at end of data",
			"entry_index", entryIndex,
			"exit_price", finalPrice,
		)
	}

	result := Result{
		Trades:      trades,
		EquityCurve: equityCurve,
		Summary:     summarize(trades, s.initialCapital, equity, equityCurve),
	}
	s.logger.Debug("Simulation complete",
		"bars", len(bars),
		"trades", len(trades),
		"total_return_pct", result.Summary.TotalReturnPct,
	)
	return result, nil
}

// closedTrade builds the immutable trade record appended at exit.
func closedTrade(bars []types.Bar, entryIdx, exitIdx int, entryPrice, exitPrice float64, reason string) types.Trade {
	return types.Trade{
		EntryIndex: entryIdx,
		ExitIndex:  exitIdx,
		EntryTime:  bars[entryIdx].Timestamp,
		ExitTime:   bars[exitIdx].Timestamp,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		ReturnPct:  (exitPrice - entryPrice) / entryPrice,
		ExitReason: reason,
	}
}

// summarize derives the aggregate statistics after the loop.
// Total return compounds per-trade returns; win rate is the fraction of
// trades with positive return.
func summarize(trades []types.Trade, initialCapital, finalEquity float64, equityCurve []float64) types.Summary {
	compounded := 1.0
	wins := 0
	for _, t := range trades {
		compounded *= 1 + t.ReturnPct
		if t.ReturnPct > 0 {
			wins++
		}
	}

	winRate := 0.0
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades))
	}

	return types.Summary{
		InitialCapital: initialCapital,
		FinalEquity:    finalEquity,
		TotalReturnPct: (compounded - 1) * 100,
		MaxDrawdownPct: maxDrawdown(equityCurve),
		TradeCount:     len(trades),
		WinRate:        winRate,
	}
}

// maxDrawdown returns the largest peak-to-trough decline of the equity
// curve as a negative percentage (0 when the curve never declines).
func maxDrawdown(curve []float64) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD * 100
}
