package dsl

import (
	"fmt"
	"strconv"
	"strings"
)

// IndicatorKind identifies a built-in indicator.
type IndicatorKind string

const (
	SMA IndicatorKind = "SMA"
	RSI IndicatorKind = "RSI"
)

// CompareOp is one of the comparison operators.
type CompareOp string

const (
	OpGT CompareOp = ">"
	OpLT CompareOp = "<"
	OpGE CompareOp = ">="
	OpLE CompareOp = "<="
	OpEQ CompareOp = "=="
)

// CrossDirection is the direction of a cross event.
type CrossDirection string

const (
	CrossAbove CrossDirection = "CROSS_ABOVE"
	CrossBelow CrossDirection = "CROSS_BELOW"
)

// LogicOp combines expressions in a logical chain.
type LogicOp string

const (
	LogicAnd LogicOp = "AND"
	LogicOr  LogicOp = "OR"
)

// Value is a closed variant over the operand kinds a comparison or
// indicator call may reference: a raw series, an indicator, or a
// numeric literal.
type Value interface {
	valueNode()
	Canonical() string
}

// Expr is a closed variant over the boolean expression kinds.
type Expr interface {
	exprNode()
	Canonical() string
}

// SeriesRef references one of the five OHLCV series by name
// (open, high, low, close, volume).
type SeriesRef struct {
	Name string
}

func (SeriesRef) valueNode()          {}
func (s SeriesRef) Canonical() string { return s.Name }

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

func (NumberLit) valueNode() {}
func (n NumberLit) Canonical() string {
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// Indicator is an indicator call over a raw series with an integer period.
type Indicator struct {
	Kind   IndicatorKind
	Source SeriesRef
	Period int
}

func (Indicator) valueNode() {}
func (ind Indicator) Canonical() string {
	return fmt.Sprintf("%s(%s,%d)", ind.Kind, ind.Source.Name, ind.Period)
}

// Comparison applies a comparison operator elementwise to two values.
type Comparison struct {
	Left  Value
	Op    CompareOp
	Right Value
}

func (*Comparison) exprNode() {}
func (c *Comparison) Canonical() string {
	return fmt.Sprintf("%s %s %s", c.Left.Canonical(), c.Op, c.Right.Canonical())
}

// CrossExpr is a cross event between a raw series and an indicator or
// another raw series.
type CrossExpr struct {
	Direction CrossDirection
	Series    SeriesRef
	Right     Value // Indicator or SeriesRef
}

func (*CrossExpr) exprNode() {}
func (c *CrossExpr) Canonical() string {
	return fmt.Sprintf("%s(%s, %s)", c.Direction, c.Series.Name, c.Right.Canonical())
}

// PctIncrease is true where a series exceeds its trailing mean by more
// than Pct percent. The baseline window covers the Period bars before
// the current one.
type PctIncrease struct {
	Series SeriesRef
	Period int
	Pct    float64
}

func (*PctIncrease) exprNode() {}
func (p *PctIncrease) Canonical() string {
	return fmt.Sprintf("PCT_INCREASE(%s, %d, %s)",
		p.Series.Name, p.Period, strconv.FormatFloat(p.Pct, 'f', -1, 64))
}

// BoolLit is a constant boolean expression. The canonicalizer emits
// TRUE/FALSE for rule sides with no conditions.
type BoolLit struct {
	Value bool
}

func (*BoolLit) exprNode() {}
func (b *BoolLit) Canonical() string {
	if b.Value {
		return "TRUE"
	}
	return "FALSE"
}

// LogicalExpr is a flattened chain of two or more operands joined by a
// single logical operator. Mixed AND/OR chains only occur through
// explicit parenthesized sub-expressions.
type LogicalExpr struct {
	Op       LogicOp
	Operands []Expr
}

func (*LogicalExpr) exprNode() {}
func (l *LogicalExpr) Canonical() string {
	parts := make([]string, len(l.Operands))
	for i, op := range l.Operands {
		if nested, ok := op.(*LogicalExpr); ok {
			parts[i] = "(" + nested.Canonical() + ")"
		} else {
			parts[i] = op.Canonical()
		}
	}
	return strings.Join(parts, " "+string(l.Op)+" ")
}

// Strategy is the parse root: one entry expression and one exit
// expression.
type Strategy struct {
	Entry Expr
	Exit  Expr
}

// Canonical renders the strategy back to canonical rule text.
// Parsing the result yields a structurally equal Strategy.
func (s *Strategy) Canonical() string {
	return fmt.Sprintf("ENTRY: %s\nEXIT: %s", s.Entry.Canonical(), s.Exit.Canonical())
}
