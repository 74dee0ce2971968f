package parser

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// Func adapts a plain function to core.Parser.
type Func func(ctx context.Context, stmt, dialect string, hint core.Schema) (*core.Graph, error)

// Parse implements core.Parser.
func (f Func) Parse(ctx context.Context, stmt, dialect string, hint core.Schema) (*core.Graph, error) {
	return f(ctx, stmt, dialect, hint)
}

// Recover wraps a parser so a panic becomes an error for that statement only.
func Recover(p core.Parser) core.Parser {
	return Func(func(ctx context.Context, stmt, dialect string, hint core.Schema) (g *core.Graph, err error) {
		defer func() {
			if r := recover(); r != nil {
				g = nil
				err = fmt.Errorf("parser panic: %v", r)
			}
		}()
		return p.Parse(ctx, stmt, dialect, hint)
	})
}
