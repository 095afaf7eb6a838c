package dsl

import (
	"strings"
	"unicode"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokenKeyword TokenKind = iota
	TokenIdent
	TokenNumber
	TokenOperator
	TokenLParen
	TokenRParen
	TokenComma
	TokenColon
	TokenNewline
	TokenEOF
)

// kindNames is used for error messages only.
var kindNames = map[TokenKind]string{
	TokenKeyword:  "keyword",
	TokenIdent:    "identifier",
	TokenNumber:   "number",
	TokenOperator: "operator",
	TokenLParen:   "'('",
	TokenRParen:   "')'",
	TokenComma:    "','",
	TokenColon:    "':'",
	TokenNewline:  "newline",
	TokenEOF:      "end of input",
}

func (k TokenKind) String() string { return kindNames[k] }

// Token is a single lexical token. Text is normalized to lower case for
// keywords and identifiers so later stages compare without folding.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

// keywords are the reserved words of the grammar. Series names stay
// plain identifiers so the parser can report unknown ones precisely.
var keywords = map[string]bool{
	"entry": true, "exit": true,
	"and": true, "or": true,
	"true": true, "false": true,
	"sma": true, "rsi": true,
	"cross_above": true, "cross_below": true,
	"pct_increase": true,
}

// Tokenize splits canonical rule text into tokens terminated by an EOF
// marker. Whitespace separates tokens; newlines are significant and
// produced as TokenNewline (consecutive newlines collapse into one).
func Tokenize(text string) ([]Token, error) {
	var tokens []Token
	i := 0
	n := len(text)

	emit := func(kind TokenKind, s string, pos int) {
		tokens = append(tokens, Token{Kind: kind, Text: s, Pos: pos})
	}

	for i < n {
		c := text[i]

		switch {
		case c == '\n':
			// Collapse runs of newlines and surrounding blank space.
			start := i
			for i < n && (text[i] == '\n' || text[i] == '\r' || text[i] == ' ' || text[i] == '\t') {
				i++
			}
			if len(tokens) > 0 && tokens[len(tokens)-1].Kind != TokenNewline {
				emit(TokenNewline, "\n", start)
			}

		case c == ' ' || c == '\t' || c == '\r':
			i++

		case c == '(':
			emit(TokenLParen, "(", i)
			i++
		case c == ')':
			emit(TokenRParen, ")", i)
			i++
		case c == ',':
			emit(TokenComma, ",", i)
			i++
		case c == ':':
			emit(TokenColon, ":", i)
			i++

		case c == '>' || c == '<':
			start := i
			i++
			if i < n && text[i] == '=' {
				i++
			}
			emit(TokenOperator, text[start:i], start)

		case c == '=':
			if i+1 < n && text[i+1] == '=' {
				emit(TokenOperator, "==", i)
				i += 2
			} else {
				return nil, &LexError{Pos: i, Text: text[i : i+1]}
			}

		case c >= '0' && c <= '9' || c == '.':
			start := i
			for i < n && (text[i] >= '0' && text[i] <= '9' || text[i] == '.') {
				i++
			}
			word := text[start:i]
			// A numeral carries at most one decimal point and at least
			// one digit; "1.2.3" and a bare "." fail here, not in the
			// parser.
			if word == "." || strings.Count(word, ".") > 1 {
				return nil, &LexError{Pos: start, Text: word}
			}
			emit(TokenNumber, word, start)

		case isIdentStart(rune(c)):
			start := i
			for i < n && isIdentPart(rune(text[i])) {
				i++
			}
			word := strings.ToLower(text[start:i])
			if keywords[word] {
				emit(TokenKeyword, word, start)
			} else {
				emit(TokenIdent, word, start)
			}

		default:
			return nil, &LexError{Pos: i, Text: text[i : i+1]}
		}
	}

	// Drop a trailing newline so the parser only sees the one separator
	// between the ENTRY and EXIT blocks.
	if len(tokens) > 0 && tokens[len(tokens)-1].Kind == TokenNewline {
		tokens = tokens[:len(tokens)-1]
	}

	tokens = append(tokens, Token{Kind: TokenEOF, Pos: n})
	return tokens, nil
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
