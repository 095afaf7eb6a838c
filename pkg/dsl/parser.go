package dsl

import "strconv"

// maxDepth bounds parenthesized nesting so adversarial input cannot
// drive the recursive-descent parser into unbounded recursion.
const maxDepth = 32

// seriesNames are the identifiers that resolve to a SeriesRef.
// "price" is accepted as an alias for "close".
var seriesNames = map[string]string{
	"open":   "open",
	"high":   "high",
	"low":    "low",
	"close":  "close",
	"volume": "volume",
	"price":  "close",
}

type parser struct {
	tokens []Token
	pos    int
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) next() Token {
	t := p.tokens[p.pos]
	if t.Kind != TokenEOF {
		p.pos++
	}
	return t
}

// expect consumes the next token if it has the wanted kind, otherwise
// fails with a ParseError naming the expected construct.
func (p *parser) expect(kind TokenKind, expected string) (Token, error) {
	t := p.peek()
	if t.Kind != kind {
		return Token{}, parseErr(expected, t)
	}
	return p.next(), nil
}

// expectKeyword consumes the next token if it is the given keyword.
func (p *parser) expectKeyword(word, expected string) error {
	t := p.peek()
	if t.Kind != TokenKeyword || t.Text != word {
		return parseErr(expected, t)
	}
	p.next()
	return nil
}

// parseStrategy parses the root production:
// ENTRY ':' exprList NEWLINE EXIT ':' exprList
func (p *parser) parseStrategy() (*Strategy, error) {
	if err := p.expectKeyword("entry", "ENTRY"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenColon, "':' after ENTRY"); err != nil {
		return nil, err
	}
	entry, err := p.parseExprList(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenNewline, "newline separating ENTRY and EXIT blocks"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("exit", "EXIT"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenColon, "':' after EXIT"); err != nil {
		return nil, err
	}
	exit, err := p.parseExprList(0)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenEOF, "end of input after EXIT expression"); err != nil {
		return nil, err
	}
	return &Strategy{Entry: entry, Exit: exit}, nil
}

// parseExprList parses expr (("AND"|"OR") expr)*. A chain must use one
// consistent operator; mixing AND and OR at the same parenthesis depth
// is ambiguous and rejected rather than given an implicit precedence.
func (p *parser) parseExprList(depth int) (Expr, error) {
	first, err := p.parseExpr(depth)
	if err != nil {
		return nil, err
	}
	if !p.atLogicOp() {
		return first, nil
	}

	opTok := p.next()
	chainOp := logicOpFor(opTok.Text)
	operands := []Expr{first}

	for {
		operand, err := p.parseExpr(depth)
		if err != nil {
			return nil, err
		}
		operands = append(operands, operand)

		if !p.atLogicOp() {
			break
		}
		t := p.next()
		if logicOpFor(t.Text) != chainOp {
			return nil, parseErr("a single logical operator per group (parenthesize to mix AND with OR)", t)
		}
	}

	return &LogicalExpr{Op: chainOp, Operands: operands}, nil
}

func (p *parser) atLogicOp() bool {
	t := p.peek()
	return t.Kind == TokenKeyword && (t.Text == "and" || t.Text == "or")
}

func logicOpFor(text string) LogicOp {
	if text == "and" {
		return LogicAnd
	}
	return LogicOr
}

// parseExpr dispatches on lookahead: cross call, boolean literal,
// parenthesized group, or comparison.
func (p *parser) parseExpr(depth int) (Expr, error) {
	if depth > maxDepth {
		return nil, parseErr("expression nested less than the depth limit", p.peek())
	}

	t := p.peek()
	switch {
	case t.Kind == TokenLParen:
		p.next()
		inner, err := p.parseExprList(depth + 1)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, "')' closing group"); err != nil {
			return nil, err
		}
		return inner, nil

	case t.Kind == TokenKeyword && (t.Text == "cross_above" || t.Text == "cross_below"):
		return p.parseCross()

	case t.Kind == TokenKeyword && t.Text == "pct_increase":
		return p.parsePctIncrease()

	case t.Kind == TokenKeyword && (t.Text == "true" || t.Text == "false"):
		p.next()
		return &BoolLit{Value: t.Text == "true"}, nil

	case t.Kind == TokenIdent || t.Kind == TokenNumber ||
		(t.Kind == TokenKeyword && (t.Text == "sma" || t.Text == "rsi")):
		return p.parseComparison()

	default:
		return nil, parseErr("expression", t)
	}
}

// parseComparison parses value comp_op value.
func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	opTok, err := p.expect(TokenOperator, "comparison operator (>, <, >=, <=, ==)")
	if err != nil {
		return nil, err
	}
	right, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &Comparison{Left: left, Op: CompareOp(opTok.Text), Right: right}, nil
}

// parseValue resolves a series name, an indicator call, or a numeric
// literal.
func (p *parser) parseValue() (Value, error) {
	t := p.peek()
	switch {
	case t.Kind == TokenNumber:
		p.next()
		v, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, parseErr("numeric literal", t)
		}
		return NumberLit{Value: v}, nil

	case t.Kind == TokenKeyword && (t.Text == "sma" || t.Text == "rsi"):
		return p.parseIndicator()

	case t.Kind == TokenIdent:
		return p.parseSeriesRef()

	default:
		return nil, parseErr("value (series name, indicator call, or number)", t)
	}
}

// parseSeriesRef resolves an identifier against the known series names.
func (p *parser) parseSeriesRef() (SeriesRef, error) {
	t := p.peek()
	if t.Kind != TokenIdent {
		return SeriesRef{}, parseErr("series name (open, high, low, close, volume)", t)
	}
	name, ok := seriesNames[t.Text]
	if !ok {
		return SeriesRef{}, parseErr("known series name (open, high, low, close, volume)", t)
	}
	p.next()
	return SeriesRef{Name: name}, nil
}

// parseIndicator parses SMA(series, period) or RSI(series, period).
func (p *parser) parseIndicator() (Indicator, error) {
	t := p.next()
	kind := SMA
	if t.Text == "rsi" {
		kind = RSI
	}
	if _, err := p.expect(TokenLParen, "'(' after indicator name"); err != nil {
		return Indicator{}, err
	}
	source, err := p.parseSeriesRef()
	if err != nil {
		return Indicator{}, err
	}
	if _, err := p.expect(TokenComma, "',' between indicator arguments"); err != nil {
		return Indicator{}, err
	}
	period, err := p.parsePositiveInt("positive integer period")
	if err != nil {
		return Indicator{}, err
	}
	if _, err := p.expect(TokenRParen, "')' closing indicator call"); err != nil {
		return Indicator{}, err
	}
	return Indicator{Kind: kind, Source: source, Period: period}, nil
}

// parseCross parses CROSS_ABOVE(series, indicator|series) and its
// CROSS_BELOW mirror. The second argument must resolve to a series or
// indicator, never a bare number.
func (p *parser) parseCross() (Expr, error) {
	t := p.next()
	dir := CrossAbove
	if t.Text == "cross_below" {
		dir = CrossBelow
	}
	if _, err := p.expect(TokenLParen, "'(' after cross function"); err != nil {
		return nil, err
	}
	series, err := p.parseSeriesRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenComma, "',' between cross arguments"); err != nil {
		return nil, err
	}
	rightTok := p.peek()
	right, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if _, isNum := right.(NumberLit); isNum {
		return nil, parseErr("indicator or series as second cross argument", rightTok)
	}
	if _, err := p.expect(TokenRParen, "')' closing cross call"); err != nil {
		return nil, err
	}
	return &CrossExpr{Direction: dir, Series: series, Right: right}, nil
}

// parsePctIncrease parses PCT_INCREASE(series, period, pct).
func (p *parser) parsePctIncrease() (Expr, error) {
	p.next()
	if _, err := p.expect(TokenLParen, "'(' after PCT_INCREASE"); err != nil {
		return nil, err
	}
	series, err := p.parseSeriesRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenComma, "',' after PCT_INCREASE series"); err != nil {
		return nil, err
	}
	period, err := p.parsePositiveInt("positive integer baseline period")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenComma, "',' before PCT_INCREASE percentage"); err != nil {
		return nil, err
	}
	pctTok, err := p.expect(TokenNumber, "percentage threshold")
	if err != nil {
		return nil, err
	}
	pct, err := strconv.ParseFloat(pctTok.Text, 64)
	if err != nil {
		return nil, parseErr("numeric percentage threshold", pctTok)
	}
	if _, err := p.expect(TokenRParen, "')' closing PCT_INCREASE call"); err != nil {
		return nil, err
	}
	return &PctIncrease{Series: series, Period: period, Pct: pct}, nil
}

// parsePositiveInt consumes a number token that must be an integer >= 1.
func (p *parser) parsePositiveInt(expected string) (int, error) {
	t, err := p.expect(TokenNumber, expected)
	if err != nil {
		return 0, err
	}
	v, convErr := strconv.Atoi(t.Text)
	if convErr != nil || v <= 0 {
		return 0, parseErr(expected, t)
	}
	return v, nil
}
