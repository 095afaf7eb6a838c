package dsl

import "fmt"

// LexError reports an unrecognized character or malformed token in the
// rule text. Pos is the byte offset of the offending input.
type LexError struct {
	Pos  int
	Text string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at offset %d: unrecognized input %q", e.Pos, e.Text)
}

// ParseError reports a grammar violation. Expected names the construct
// the parser was looking for; Got is the token actually found.
type ParseError struct {
	Expected string
	Got      Token
}

func (e *ParseError) Error() string {
	if e.Got.Kind == TokenEOF {
		return fmt.Sprintf("parse error: expected %s, got end of input", e.Expected)
	}
	return fmt.Sprintf("parse error at offset %d: expected %s, got %q", e.Got.Pos, e.Expected, e.Got.Text)
}

// parseErr builds a *ParseError for the given token.
func parseErr(expected string, got Token) error {
	return &ParseError{Expected: expected, Got: got}
}
