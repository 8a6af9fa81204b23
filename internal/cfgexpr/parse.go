package cfgexpr

import (
	"fmt"
	"strings"
)

// ParseError distinguishes the error shapes a malformed cfg expression
// can take by name, so callers (and tests) can match on Kind rather
// than scraping message text.
type ParseErrorKind int

const (
	ErrExpressionEnded ParseErrorKind = iota
	ErrExpectedIdent
	ErrUnterminatedString
	ErrTrailingGarbage
	ErrUnexpectedChar
	ErrMissingParen
)

type ParseError struct {
	Kind  ParseErrorKind
	Input string
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse `%s` as a cfg expression: %s", e.Input, e.Msg)
}

func parseErr(input string, kind ParseErrorKind, msg string) error {
	return &ParseError{Kind: kind, Input: input, Msg: msg}
}

// tokenizer is a minimal hand-rolled lexer over the small cfg grammar:
// identifiers, string literals, '=', ',', '(' , ')'. Whitespace is
// skipped between tokens.
type tokenizer struct {
	src string
	pos int
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokEquals
	tokComma
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func (t *tokenizer) skipSpace() {
	for t.pos < len(t.src) && (t.src[t.pos] == ' ' || t.src[t.pos] == '\t' || t.src[t.pos] == '\n' || t.src[t.pos] == '\r') {
		t.pos++
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// peek returns the next token without a position-advancing side
// effect beyond skipping leading whitespace.
func (t *tokenizer) peek() (token, error) {
	save := t.pos
	tok, err := t.next()
	t.pos = save
	return tok, err
}

func (t *tokenizer) next() (token, error) {
	t.skipSpace()
	if t.pos >= len(t.src) {
		return token{kind: tokEOF}, nil
	}
	c := t.src[t.pos]
	switch {
	case c == '(':
		t.pos++
		return token{kind: tokLParen, text: "("}, nil
	case c == ')':
		t.pos++
		return token{kind: tokRParen, text: ")"}, nil
	case c == ',':
		t.pos++
		return token{kind: tokComma, text: ","}, nil
	case c == '=':
		t.pos++
		return token{kind: tokEquals, text: "="}, nil
	case c == '"':
		start := t.pos
		t.pos++
		for t.pos < len(t.src) && t.src[t.pos] != '"' {
			t.pos++
		}
		if t.pos >= len(t.src) {
			return token{}, parseErr(t.src, ErrUnterminatedString, "unterminated string")
		}
		str := t.src[start+1 : t.pos]
		t.pos++ // closing quote
		return token{kind: tokString, text: str}, nil
	case isIdentStart(c):
		start := t.pos
		for t.pos < len(t.src) && isIdentCont(t.src[t.pos]) {
			t.pos++
		}
		return token{kind: tokIdent, text: t.src[start:t.pos]}, nil
	default:
		return token{}, parseErr(t.src, ErrUnexpectedChar, fmt.Sprintf("unexpected character %q", c))
	}
}

// Parse parses a single cfg expression string (the contents that would
// appear inside "cfg(...)", i.e. without the wrapping "cfg(" ")").
func Parse(input string) (*Expr, error) {
	t := &tokenizer{src: input}
	t.skipSpace()
	if t.pos >= len(input) {
		return nil, parseErr(input, ErrExpressionEnded, "but cfg expression ended")
	}

	e, err := parseExpr(t)
	if err != nil {
		return nil, err
	}

	t.skipSpace()
	if t.pos < len(input) {
		return nil, parseErr(input, ErrTrailingGarbage,
			fmt.Sprintf("unexpected content `%s` found after cfg expression", input[t.pos:]))
	}
	return e, nil
}

func parseExpr(t *tokenizer) (*Expr, error) {
	tok, err := t.peek()
	if err != nil {
		return nil, err
	}
	switch tok.kind {
	case tokEOF:
		return nil, parseErr(t.src, ErrExpressionEnded, "but cfg expression ended")
	case tokIdent:
		switch tok.text {
		case "all":
			return parseCombinator(t, kindAll)
		case "any":
			return parseCombinator(t, kindAny)
		case "not":
			return parseNot(t)
		default:
			return parseValue(t)
		}
	default:
		return nil, parseErr(t.src, ErrExpectedIdent, "expected identifier")
	}
}

func parseValue(t *tokenizer) (*Expr, error) {
	ident, err := t.next() // consume the ident peeked by parseExpr
	if err != nil {
		return nil, err
	}
	if ident.kind != tokIdent {
		return nil, parseErr(t.src, ErrExpectedIdent, "expected identifier")
	}

	tok, err := t.peek()
	if err != nil {
		return nil, err
	}
	if tok.kind != tokEquals {
		return valueExpr(Name(ident.text)), nil
	}
	if _, err := t.next(); err != nil { // consume '='
		return nil, err
	}

	strTok, err := t.next()
	if err != nil {
		return nil, err
	}
	if strTok.kind != tokString {
		return nil, parseErr(t.src, ErrExpectedIdent, "expected a string")
	}
	return valueExpr(KeyValue(ident.text, strTok.text)), nil
}

func parseNot(t *tokenizer) (*Expr, error) {
	if _, err := t.next(); err != nil { // consume "not"
		return nil, err
	}
	if err := expectLParen(t); err != nil {
		return nil, err
	}
	inner, err := parseExpr(t)
	if err != nil {
		return nil, err
	}
	if err := expectRParen(t); err != nil {
		return nil, err
	}
	return &Expr{k: kindNot, operand: inner}, nil
}

func parseCombinator(t *tokenizer, k kind) (*Expr, error) {
	if _, err := t.next(); err != nil { // consume "all"/"any"
		return nil, err
	}
	if err := expectLParen(t); err != nil {
		return nil, err
	}

	var ops []*Expr
	for {
		tok, err := t.peek()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokRParen {
			break
		}
		op, err := parseExpr(t)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)

		tok, err = t.peek()
		if err != nil {
			return nil, err
		}
		if tok.kind == tokComma {
			if _, err := t.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if err := expectRParen(t); err != nil {
		return nil, err
	}
	return &Expr{k: k, ops: ops}, nil
}

func expectLParen(t *tokenizer) error {
	tok, err := t.next()
	if err != nil {
		return err
	}
	if tok.kind != tokLParen {
		return parseErr(t.src, ErrMissingParen, "expected `(`")
	}
	return nil
}

func expectRParen(t *tokenizer) error {
	tok, err := t.next()
	if err != nil {
		return err
	}
	if tok.kind != tokRParen {
		return parseErr(t.src, ErrMissingParen, "expected `)`")
	}
	return nil
}

// ParsePlatformString implements rule for strings that
// are not already wrapped in cfg(...): they are accepted as an
// explicit target-triple match, except that a bare `!` or an
// unexpected `(` must still produce a cfg-style diagnostic (these are
// the two ways a user most often mistypes a cfg expression without the
// wrapping `cfg(...)`).
func ParsePlatformString(s string) (triple string, expr *Expr, err error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "cfg(") && strings.HasSuffix(trimmed, ")") {
		inner := trimmed[len("cfg(") : len(trimmed)-1]
		e, err := Parse(inner)
		if err != nil {
			return "", nil, err
		}
		return "", e, nil
	}
	if strings.HasPrefix(trimmed, "!") {
		return "", nil, parseErr(s, ErrUnexpectedChar, "unexpected character `!`: invalid target specifier, cfg expressions must be wrapped in `cfg(...)`")
	}
	if strings.Contains(trimmed, "(") {
		return "", nil, parseErr(s, ErrUnexpectedChar, "unexpected `(` character: invalid target specifier, cfg expressions must be wrapped in `cfg(...)`")
	}
	return trimmed, nil, nil
}
