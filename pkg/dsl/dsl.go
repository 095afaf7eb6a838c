// Package dsl implements the TradeScript rule language front end.
//
// It tokenizes and parses canonical rule text of the form
//
//	ENTRY: close > SMA(close,20) AND volume > 1000000
//	EXIT: RSI(close,14) < 30
//
// into a Strategy AST consumed by the eval and backtest packages.
// Keywords and identifiers are case-insensitive. Parsing is strict:
// malformed input fails with a *LexError or *ParseError, never a
// partial AST.
package dsl

// Parse tokenizes and parses canonical rule text into a Strategy AST.
func Parse(text string) (*Strategy, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	return p.parseStrategy()
}
