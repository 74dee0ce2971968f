package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIllegal
	tokIdent  // bare or quoted identifier
	tokNumber // 123, 4.5, 1e10
	tokString // 'text'
	tokParam  // ? or :name or $1
	tokOp     // operators and punctuation other than the ones below
	tokDot
	tokComma
	tokLParen
	tokRParen
	tokSemicolon
)

// token is one lexical unit. Keywords are idents; the parser compares them
// case-insensitively through is.
type token struct {
	kind   tokenKind
	text   string
	quoted bool
	line   int
	col    int
}

// is reports whether t is the unquoted keyword kw (lower case).
func (t token) is(kw string) bool {
	return t.kind == tokIdent && !t.quoted && strings.EqualFold(t.text, kw)
}

func (t token) isOp(op string) bool {
	return t.kind == tokOp && t.text == op
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of statement"
	case tokString:
		return fmt.Sprintf("'%s'", t.text)
	}
	return fmt.Sprintf("%q", t.text)
}

// lexer tokenizes one SQL statement.
type lexer struct {
	input string
	pos   int
	line  int
	col   int
	// doubleQuoteStrings lexes "x" as a string literal (Hive) instead of an
	// identifier (ANSI).
	doubleQuoteStrings bool
}

func newLexer(input string, doubleQuoteStrings bool) *lexer {
	return &lexer{input: input, line: 1, col: 1, doubleQuoteStrings: doubleQuoteStrings}
}

// tokenize returns every token up to and including EOF.
func tokenize(input string, doubleQuoteStrings bool) []token {
	l := newLexer(input, doubleQuoteStrings)
	var out []token
	for {
		tok := l.next()
		out = append(out, tok)
		if tok.kind == tokEOF {
			return out
		}
	}
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off >= len(l.input) {
		return 0
	}
	return l.input[l.pos+off]
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.input); i++ {
		if l.input[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *lexer) next() token {
	l.skipSpaceAndComments()
	tok := token{line: l.line, col: l.col}
	if l.pos >= len(l.input) {
		tok.kind = tokEOF
		return tok
	}

	ch := l.input[l.pos]
	switch {
	case ch == '\'':
		tok.kind, tok.text = tokString, l.readQuoted('\'')
	case ch == '"' && l.doubleQuoteStrings:
		tok.kind, tok.text = tokString, l.readQuoted('"')
	case ch == '"' || ch == '`':
		tok.kind, tok.text, tok.quoted = tokIdent, l.readQuoted(ch), true
	case isDigit(ch) || (ch == '.' && isDigit(l.peekByte(1))):
		tok.kind, tok.text = tokNumber, l.readNumber()
	case isIdentStart(l.input[l.pos:]):
		tok.kind, tok.text = tokIdent, l.readIdent()
	case ch == '?':
		l.advance(1)
		tok.kind, tok.text = tokParam, "?"
	case ch == '$' && isDigit(l.peekByte(1)):
		l.advance(1)
		tok.kind, tok.text = tokParam, "$"+l.readNumber()
	case ch == ':' && isIdentStart(l.input[l.pos+1:]):
		l.advance(1)
		tok.kind, tok.text = tokParam, ":"+l.readIdent()
	case ch == '.':
		l.advance(1)
		tok.kind, tok.text = tokDot, "."
	case ch == ',':
		l.advance(1)
		tok.kind, tok.text = tokComma, ","
	case ch == '(':
		l.advance(1)
		tok.kind, tok.text = tokLParen, "("
	case ch == ')':
		l.advance(1)
		tok.kind, tok.text = tokRParen, ")"
	case ch == ';':
		l.advance(1)
		tok.kind, tok.text = tokSemicolon, ";"
	default:
		tok.kind, tok.text = l.readOperator()
	}
	return tok
}

var operators = []string{
	"::", "||", "<=", ">=", "<>", "!=", "==", "<=>", "->>", "->",
	"+", "-", "*", "/", "%", "=", "<", ">", "&", "|", "^", "~", "!", ":", "[", "]", "{", "}",
}

func (l *lexer) readOperator() (tokenKind, string) {
	rest := l.input[l.pos:]
	best := ""
	for _, op := range operators {
		if strings.HasPrefix(rest, op) && len(op) > len(best) {
			best = op
		}
	}
	if best == "" {
		_, size := utf8.DecodeRuneInString(rest)
		text := rest[:size]
		l.advance(size)
		return tokIllegal, text
	}
	l.advance(len(best))
	return tokOp, best
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f':
			l.advance(1)
		case ch == '-' && l.peekByte(1) == '-', ch == '#':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance(1)
			}
		case ch == '/' && l.peekByte(1) == '*':
			l.advance(2)
			for l.pos < len(l.input) && !(l.input[l.pos] == '*' && l.peekByte(1) == '/') {
				l.advance(1)
			}
			l.advance(2)
		default:
			return
		}
	}
}

// readQuoted reads a literal delimited by q. A doubled delimiter escapes it,
// and backslash escapes the next byte inside single-quoted strings.
func (l *lexer) readQuoted(q byte) string {
	l.advance(1)
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '\\' && q == '\'' && l.pos+1 < len(l.input):
			b.WriteByte(l.input[l.pos+1])
			l.advance(2)
		case ch == q && l.peekByte(1) == q:
			b.WriteByte(q)
			l.advance(2)
		case ch == q:
			l.advance(1)
			return b.String()
		default:
			b.WriteByte(ch)
			l.advance(1)
		}
	}
	return b.String()
}

func (l *lexer) readIdent() string {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if r != '_' && r != '$' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		l.advance(size)
	}
	return l.input[start:l.pos]
}

func (l *lexer) readNumber() string {
	start := l.pos
	for isDigit(l.peekByte(0)) {
		l.advance(1)
	}
	if l.peekByte(0) == '.' && isDigit(l.peekByte(1)) {
		l.advance(1)
		for isDigit(l.peekByte(0)) {
			l.advance(1)
		}
	}
	if c := l.peekByte(0); c == 'e' || c == 'E' {
		next := l.peekByte(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peekByte(2))) {
			l.advance(2)
			for isDigit(l.peekByte(0)) {
				l.advance(1)
			}
		}
	}
	// Hive allows identifiers such as 1st_col; keep them whole.
	if isIdentStart(l.input[l.pos:]) {
		l.readIdent()
	}
	return l.input[start:l.pos]
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(s string) bool {
	if s == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r == '_' || unicode.IsLetter(r)
}
