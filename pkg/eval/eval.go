// Package eval walks a parsed Strategy AST against an OHLCV series and
// produces entry/exit boolean signal series.
//
// Evaluation is total: indices with insufficient indicator history
// evaluate to false, never to an error. All structural validation
// happens at parse time. Indicator series are cached per evaluator,
// keyed by (kind, source, period), so an indicator shared between the
// ENTRY and EXIT expressions is computed once.
package eval

import (
	"log/slog"
	"math"

	"github.com/tradescript/tradescript/pkg/dsl"
	"github.com/tradescript/tradescript/pkg/types"
)

// indicatorKey identifies one computed indicator series by value.
type indicatorKey struct {
	Kind   dsl.IndicatorKind
	Source string
	Period int
}

// Evaluator computes signal series for strategies over one bar series.
// It is not safe for concurrent use; concurrent evaluations of
// different strategies should each use their own Evaluator.
type Evaluator struct {
	bars   []types.Bar
	cache  map[indicatorKey][]float64
	logger *slog.Logger
}

// New creates an Evaluator over the given bars. The bars are read, never
// mutated.
func New(bars []types.Bar, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		bars:   bars,
		cache:  make(map[indicatorKey][]float64),
		logger: logger,
	}
}

// Evaluate produces the entry and exit signal series for a strategy.
// Both series have the same length as the bar series; a zero-length bar
// series yields empty signals.
func (e *Evaluator) Evaluate(s *dsl.Strategy) types.Signals {
	sig := types.Signals{
		Entry: e.evalExpr(s.Entry),
		Exit:  e.evalExpr(s.Exit),
	}
	e.logger.Debug("Evaluated strategy signals",
		"bars", len(e.bars),
		"entry_true", countTrue(sig.Entry),
		"exit_true", countTrue(sig.Exit),
		"indicators_cached", len(e.cache),
	)
	return sig
}

// Indicator returns the cached series for an indicator call, computing
// it on first use. Undefined warm-up indices are NaN.
func (e *Evaluator) Indicator(ind dsl.Indicator) []float64 {
	key := indicatorKey{Kind: ind.Kind, Source: ind.Source.Name, Period: ind.Period}
	if series, ok := e.cache[key]; ok {
		return series
	}

	source := types.Series(e.bars, ind.Source.Name)
	var series []float64
	switch ind.Kind {
	case dsl.RSI:
		series = ComputeRSI(source, ind.Period)
	default:
		series = ComputeSMA(source, ind.Period)
	}
	e.cache[key] = series
	return series
}

func (e *Evaluator) evalExpr(expr dsl.Expr) []bool {
	n := len(e.bars)
	out := make([]bool, n)

	switch node := expr.(type) {
	case *dsl.BoolLit:
		for i := range out {
			out[i] = node.Value
		}

	case *dsl.Comparison:
		left := e.operand(node.Left)
		right := e.operand(node.Right)
		for i := 0; i < n; i++ {
			lv, lok := left.at(i)
			rv, rok := right.at(i)
			if lok && rok {
				out[i] = compare(node.Op, lv, rv)
			}
		}

	case *dsl.CrossExpr:
		a := e.operand(node.Series)
		b := e.operand(node.Right)
		for i := 1; i < n; i++ {
			prevA, ok1 := a.at(i - 1)
			curA, ok2 := a.at(i)
			prevB, ok3 := b.at(i - 1)
			curB, ok4 := b.at(i)
			if !(ok1 && ok2 && ok3 && ok4) {
				continue
			}
			if node.Direction == dsl.CrossAbove {
				out[i] = prevA <= prevB && curA > curB
			} else {
				out[i] = prevA >= prevB && curA < curB
			}
		}

	case *dsl.PctIncrease:
		series := types.Series(e.bars, node.Series.Name)
		baseline := rollingMean(series, node.Period)
		for i := 0; i < n; i++ {
			base := baseline[i]
			if !defined(base) || base == 0 {
				continue
			}
			out[i] = (series[i]/base-1)*100 > node.Pct
		}

	case *dsl.LogicalExpr:
		sub := e.evalExpr(node.Operands[0])
		copy(out, sub)
		for _, operand := range node.Operands[1:] {
			next := e.evalExpr(operand)
			for i := 0; i < n; i++ {
				if node.Op == dsl.LogicAnd {
					out[i] = out[i] && next[i]
				} else {
					out[i] = out[i] || next[i]
				}
			}
		}
	}

	return out
}

// operand resolves a Value to a per-index lookup: a raw series, a
// cached indicator series, or a constant broadcast.
func (e *Evaluator) operand(v dsl.Value) operand {
	switch val := v.(type) {
	case dsl.SeriesRef:
		return operand{series: types.Series(e.bars, val.Name)}
	case dsl.Indicator:
		return operand{series: e.Indicator(val)}
	case dsl.NumberLit:
		return operand{konst: val.Value, isConst: true}
	}
	return operand{}
}

type operand struct {
	series  []float64
	konst   float64
	isConst bool
}

// at returns the operand's value at index i and whether it is defined.
func (o operand) at(i int) (float64, bool) {
	if o.isConst {
		return o.konst, true
	}
	if i < 0 || i >= len(o.series) {
		return math.NaN(), false
	}
	v := o.series[i]
	return v, defined(v)
}

func compare(op dsl.CompareOp, a, b float64) bool {
	switch op {
	case dsl.OpGT:
		return a > b
	case dsl.OpLT:
		return a < b
	case dsl.OpGE:
		return a >= b
	case dsl.OpLE:
		return a <= b
	case dsl.OpEQ:
		return a == b
	}
	return false
}

func defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func countTrue(s []bool) int {
	n := 0
	for _, v := range s {
		if v {
			n++
		}
	}
	return n
}
