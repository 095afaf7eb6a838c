package backtest

import (
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/tradescript/tradescript/pkg/dsl"
	"github.com/tradescript/tradescript/pkg/eval"
	"github.com/tradescript/tradescript/pkg/types"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func barsFromCloses(closes []float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{
			Index:     i,
			Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func signalsAt(n int, entries, exits []int) types.Signals {
	sig := types.Signals{Entry: make([]bool, n), Exit: make([]bool, n)}
	for _, i := range entries {
		sig.Entry[i] = true
	}
	for _, i := range exits {
		sig.Exit[i] = true
	}
	return sig
}

func TestRunSignalLengthMismatch(t *testing.T) {
	sim := NewSimulator(1000, newTestLogger())
	bars := barsFromCloses([]float64{10, 11})
	_, err := sim.Run(bars, types.Signals{Entry: []bool{true}, Exit: []bool{false}})
	if err == nil {
		t.Fatal("expected error for mismatched signal lengths")
	}
}

func TestRunEmptyBars(t *testing.T) {
	sim := NewSimulator(1000, newTestLogger())
	result, err := sim.Run(nil, types.Signals{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Trades) != 0 || len(result.EquityCurve) != 0 {
		t.Error("expected empty result for empty bars")
	}
	if result.Summary.FinalEquity != 1000 {
		t.Errorf("expected untouched capital, got %v", result.Summary.FinalEquity)
	}
}

func TestRunSingleTrade(t *testing.T) {
	bars := barsFromCloses([]float64{100, 110, 120, 115, 110})
	sig := signalsAt(len(bars), []int{1}, []int{3})

	sim := NewSimulator(1000, newTestLogger())
	result, err := sim.Run(bars, sig)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	tr := result.Trades[0]
	if tr.EntryIndex != 1 || tr.ExitIndex != 3 {
		t.Errorf("expected entry 1 / exit 3, got %d / %d", tr.EntryIndex, tr.ExitIndex)
	}
	if tr.EntryPrice != 110 || tr.ExitPrice != 115 {
		t.Errorf("expected entry 110 / exit 115, got %v / %v", tr.EntryPrice, tr.ExitPrice)
	}
	wantReturn := (115.0 - 110.0) / 110.0
	if math.Abs(tr.ReturnPct-wantReturn) > 1e-12 {
		t.Errorf("expected return %v, got %v", wantReturn, tr.ReturnPct)
	}
	if tr.ExitReason != types.ExitSignal {
		t.Errorf("expected %q exit reason, got %q", types.ExitSignal, tr.ExitReason)
	}
	if math.Abs(result.Summary.FinalEquity-1000*115/110) > 1e-9 {
		t.Errorf("unexpected final equity %v", result.Summary.FinalEquity)
	}
}

func TestRunEntryExitOrdering(t *testing.T) {
	bars := barsFromCloses([]float64{10, 11, 12, 13, 14, 15, 16, 17})
	sig := signalsAt(len(bars), []int{0, 2, 5}, []int{1, 4, 7})

	sim := NewSimulator(1000, newTestLogger())
	result, err := sim.Run(bars, sig)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(result.Trades))
	}
	for i, tr := range result.Trades {
		if tr.EntryIndex >= tr.ExitIndex {
			t.Errorf("trade %d: entry index %d not before exit index %d", i, tr.EntryIndex, tr.ExitIndex)
		}
		if i > 0 && result.Trades[i-1].ExitIndex >= tr.EntryIndex {
			t.Errorf("trade %d overlaps previous trade", i)
		}
	}
}

func TestRunIgnoresSignalsWhileFlat(t *testing.T) {
	// Exit signals while flat and entry signals while in a position are
	// no-ops.
	bars := barsFromCloses([]float64{10, 11, 12, 13})
	sig := types.Signals{
		Entry: []bool{false, true, true, false},
		Exit:  []bool{true, false, false, true},
	}
	sim := NewSimulator(1000, newTestLogger())
	result, err := sim.Run(bars, sig)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	if tr := result.Trades[0]; tr.EntryIndex != 1 || tr.ExitIndex != 3 {
		t.Errorf("expected entry 1 / exit 3, got %d / %d", tr.EntryIndex, tr.ExitIndex)
	}
}

func TestRunNoReentrySameBar(t *testing.T) {
	// A bar that both exits and re-signals entry performs only the exit.
	bars := barsFromCloses([]float64{10, 11, 12, 13})
	sig := types.Signals{
		Entry: []bool{true, false, true, false},
		Exit:  []bool{false, false, true, false},
	}
	sim := NewSimulator(1000, newTestLogger())
	result, err := sim.Run(bars, sig)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	if tr := result.Trades[0]; tr.ExitIndex != 2 || tr.ExitReason != types.ExitSignal {
		t.Errorf("expected signal exit at index 2, got %+v", tr)
	}
}

func TestRunForceCloseAtEnd(t *testing.T) {
	bars := barsFromCloses([]float64{100, 105, 110})
	sig := signalsAt(len(bars), []int{0}, nil)

	sim := NewSimulator(1000, newTestLogger())
	result, err := sim.Run(bars, sig)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 force-closed trade, got %d", len(result.Trades))
	}
	tr := result.Trades[0]
	if tr.ExitReason != types.ExitEndOfData {
		t.Errorf("expected %q exit reason, got %q", types.ExitEndOfData, tr.ExitReason)
	}
	if tr.ExitIndex != 2 || tr.ExitPrice != 110 {
		t.Errorf("expected exit at final bar close, got index %d price %v", tr.ExitIndex, tr.ExitPrice)
	}
	if math.Abs(result.Summary.TotalReturnPct-10) > 1e-9 {
		t.Errorf("expected 10%% total return, got %v", result.Summary.TotalReturnPct)
	}
}

func TestRunSkipsZeroPriceEntry(t *testing.T) {
	bars := barsFromCloses([]float64{0, 10, 11})
	sig := signalsAt(len(bars), []int{0, 1}, []int{2})

	sim := NewSimulator(1000, newTestLogger())
	result, err := sim.Run(bars, sig)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	if result.Trades[0].EntryIndex != 1 {
		t.Errorf("entry at zero price must be skipped, got entry index %d", result.Trades[0].EntryIndex)
	}
}

func TestSummaryStatistics(t *testing.T) {
	// Two trades: +10% then -5%.
	bars := barsFromCloses([]float64{100, 110, 100, 95})
	sig := types.Signals{
		Entry: []bool{true, false, true, false},
		Exit:  []bool{false, true, false, true},
	}
	sim := NewSimulator(1000, newTestLogger())
	result, err := sim.Run(bars, sig)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sum := result.Summary
	if sum.TradeCount != 2 {
		t.Fatalf("expected 2 trades, got %d", sum.TradeCount)
	}
	wantTotal := (1.10*0.95 - 1) * 100
	if math.Abs(sum.TotalReturnPct-wantTotal) > 1e-9 {
		t.Errorf("expected total return %v, got %v", wantTotal, sum.TotalReturnPct)
	}
	if sum.WinRate != 0.5 {
		t.Errorf("expected win rate 0.5, got %v", sum.WinRate)
	}
	if sum.InitialCapital != 1000 {
		t.Errorf("expected initial capital 1000, got %v", sum.InitialCapital)
	}
	if sum.MaxDrawdownPct >= 0 {
		t.Errorf("expected negative max drawdown, got %v", sum.MaxDrawdownPct)
	}
}

func TestMaxDrawdown(t *testing.T) {
	cases := []struct {
		name  string
		curve []float64
		want  float64
	}{
		{"monotonic rise", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 120, 90, 130}, -25},
		{"empty", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := maxDrawdown(tc.curve)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestNewSimulatorDefaults(t *testing.T) {
	sim := NewSimulator(0, nil)
	result, err := sim.Run(barsFromCloses([]float64{10}), signalsAt(1, nil, nil))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Summary.InitialCapital != DefaultInitialCapital {
		t.Errorf("expected default capital, got %v", result.Summary.InitialCapital)
	}
}

// Full pipeline over a small hand-computed series: parse, evaluate,
// simulate.
func TestRunFromParsedStrategy(t *testing.T) {
	bars := barsFromCloses([]float64{10, 11, 12, 11, 13})
	strategy, err := dsl.Parse("ENTRY: close > SMA(close, 2)\nEXIT: close < SMA(close, 2)")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	signals := eval.New(bars, newTestLogger()).Evaluate(strategy)
	sim := NewSimulator(1000, newTestLogger())
	result, err := sim.Run(bars, signals)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Entry fires at index 1 (11 > 10.5), exit at index 3 (11 < 11.5),
	// re-entry at index 4 (13 > 12) force-closed at end of data. Both
	// round trips exit at their entry price.
	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d: %v", len(result.Trades), result.Trades)
	}
	first := result.Trades[0]
	if first.EntryIndex != 1 || first.ExitIndex != 3 || first.ReturnPct != 0 {
		t.Errorf("unexpected first trade: %+v", first)
	}
	second := result.Trades[1]
	if second.EntryIndex != 4 || second.ExitReason != types.ExitEndOfData || second.ReturnPct != 0 {
		t.Errorf("unexpected second trade: %+v", second)
	}
	if result.Summary.TotalReturnPct != 0 {
		t.Errorf("expected flat total return, got %v", result.Summary.TotalReturnPct)
	}
}

func TestEquityCurveLength(t *testing.T) {
	bars := barsFromCloses([]float64{10, 11, 12, 13, 14})
	sig := signalsAt(len(bars), []int{1}, []int{3})
	sim := NewSimulator(1000, newTestLogger())
	result, err := sim.Run(bars, sig)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.EquityCurve) != len(bars) {
		t.Fatalf("expected equity curve of length %d, got %d", len(bars), len(result.EquityCurve))
	}
	if result.EquityCurve[0] != 1000 {
		t.Errorf("expected starting capital on the first bar, got %v", result.EquityCurve[0])
	}
}
