package lineage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leaplineage/internal/source"
	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// Input is the entry contract: exactly one of SQL, File or Dir.
type Input struct {
	SQL  string
	File string
	Dir  string
}

// Validate reports an ErrUsage error unless exactly one source is set.
func (in Input) Validate() error {
	n := 0
	for _, v := range []string{in.SQL, in.File, in.Dir} {
		if v != "" {
			n++
		}
	}
	switch n {
	case 0:
		return fmt.Errorf("%w: one of sql, file or dir is required", ErrUsage)
	case 1:
		return nil
	default:
		return fmt.Errorf("%w: sql, file and dir are mutually exclusive", ErrUsage)
	}
}

// Run validates the input and processes every script it names. A missing
// path yields a single failed ScriptResult rather than an error.
func (e *Engine) Run(ctx context.Context, in Input) ([]ScriptResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	switch {
	case in.SQL != "":
		return []ScriptResult{e.ProcessScript(ctx, source.FromSQL(in.SQL))}, nil

	case in.File != "":
		// A directory given as a file is processed as a directory.
		if info, err := os.Stat(in.File); err == nil && info.IsDir() {
			return e.runDir(ctx, in.File), nil
		}
		return e.ProcessPaths(ctx, []string{in.File}, "", extensionDialect), nil

	default:
		return e.runDir(ctx, in.Dir), nil
	}
}

func (e *Engine) runDir(ctx context.Context, dir string) []ScriptResult {
	paths, err := source.Discover(dir)
	if err != nil {
		return []ScriptResult{failed(dir, err)}
	}
	e.logger.Info("scripts discovered", "dir", dir, "count", len(paths))
	return e.ProcessPaths(ctx, paths, dir, extensionDialect)
}

// extensionDialect picks hive for .hql and .hive files and otherwise leaves
// the dialect to the header or the engine default.
func extensionDialect(path string) string {
	return source.DialectFor(path, "")
}

// ProcessBatch runs scripts concurrently, bounded by Options.Workers.
// Results keep input order. Once ctx is cancelled no new script starts and
// the remaining results carry the context error.
func (e *Engine) ProcessBatch(ctx context.Context, scripts []source.Script) []ScriptResult {
	return e.batch(ctx, len(scripts), func(ctx context.Context, i int) ScriptResult {
		return e.ProcessScript(ctx, scripts[i])
	}, func(i int) source.Script { return scripts[i] })
}

// ProcessPaths loads and runs script files concurrently. Job info is derived
// relative to base; an empty base uses each file's directory. dialectFor, when
// set, picks the dialect per path.
func (e *Engine) ProcessPaths(ctx context.Context, paths []string, base string, dialectFor func(string) string) []ScriptResult {
	return e.batch(ctx, len(paths), func(ctx context.Context, i int) ScriptResult {
		s, err := source.Load(paths[i], base)
		if err != nil {
			return failed(paths[i], err)
		}
		if dialectFor != nil {
			s.Dialect = dialectFor(paths[i])
		}
		return e.ProcessScript(ctx, s)
	}, func(i int) source.Script {
		return source.Script{ID: paths[i], Job: core.JobInfo{Path: paths[i]}}
	})
}

func (e *Engine) batch(ctx context.Context, n int, work func(context.Context, int) ScriptResult, placeholder func(int) source.Script) []ScriptResult {
	results := make([]ScriptResult, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i := range n {
		if err := gctx.Err(); err != nil {
			for j := i; j < n; j++ {
				results[j] = ScriptResult{Script: placeholder(j), Err: err}
			}
			break
		}
		g.Go(func() error {
			results[i] = work(gctx, i)
			if results[i].Err != nil {
				e.logger.Warn("script failed", "script", results[i].Script.ID, "error", results[i].Err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func failed(path string, err error) ScriptResult {
	if errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("input not found: %w", err)
	}
	return ScriptResult{
		Script: source.Script{ID: path, Job: core.JobInfo{Job: filepath.Base(path), Path: path}},
		Err:    err,
	}
}
