// Package split prepares script text for the lineage engine: it removes
// comments, parameters and storage clauses, and splits the script into
// ordered statements.
package split

import (
	"errors"
	"strings"
)

// ErrUnterminated is returned when a quote or block comment never closes.
var ErrUnterminated = errors.New("unterminated quote or comment")

// Split returns the trimmed, non-empty statements of a script in order.
// If the script cannot be tokenized it falls back to splitting on every ';'.
func Split(script string) []string {
	stmts, err := Statements(script)
	if err != nil {
		return Naive(script)
	}
	return stmts
}

// Statements splits on ';' outside of quotes and comments. Comments are kept
// in the statement text. A trailing statement without ';' is kept.
func Statements(script string) ([]string, error) {
	var statements []string
	var current strings.Builder
	var quote rune
	inComment := false
	inBlockComment := false

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case inComment:
			if ch == '\n' {
				inComment = false
			}
		case inBlockComment:
			if ch == '*' && next == '/' {
				inBlockComment = false
				current.WriteRune(ch)
				current.WriteRune(next)
				i++
				continue
			}
		case quote != 0:
			if ch == '\\' && quote != '`' && next != 0 {
				current.WriteRune(ch)
				current.WriteRune(next)
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
		default:
			switch {
			case ch == '-' && next == '-':
				inComment = true
			case ch == '/' && next == '*':
				inBlockComment = true
				current.WriteRune(ch)
				current.WriteRune(next)
				i++
				continue
			case ch == '\'' || ch == '"' || ch == '`':
				quote = ch
			case ch == ';':
				statements = appendTrimmed(statements, current.String())
				current.Reset()
				continue
			}
		}

		current.WriteRune(ch)
	}

	if quote != 0 || inBlockComment {
		return nil, ErrUnterminated
	}
	return appendTrimmed(statements, current.String()), nil
}

// Naive splits on every ';' regardless of quoting.
func Naive(script string) []string {
	var statements []string
	for _, part := range strings.Split(script, ";") {
		statements = appendTrimmed(statements, part)
	}
	return statements
}

func appendTrimmed(statements []string, stmt string) []string {
	if s := strings.TrimSpace(stmt); s != "" {
		return append(statements, s)
	}
	return statements
}
