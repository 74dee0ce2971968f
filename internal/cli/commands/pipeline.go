package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/detect"
	"github.com/leapstack-labs/leaplineage/internal/emit"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/metadata"
	"github.com/leapstack-labs/leaplineage/internal/parser"
	"github.com/leapstack-labs/leaplineage/internal/state"
	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// Pipeline wires configuration into an engine and its persistence:
// the state store for run history and the optional database sink.
type Pipeline struct {
	Engine *lineage.Engine

	cfg     *config.Config
	logger  *slog.Logger
	store   *state.SQLiteStore
	sink    *emit.Sink
	closers []func() error
}

// Report is the outcome of one pipeline execution.
type Report struct {
	RunID    string
	Results  []lineage.ScriptResult
	Groups   []emit.Group
	Scripts  int
	Records  int
	Failures int
	Skipped  int
	Stats    lineage.Stats
}

// newParser returns the configured external parser command, or the
// built-in parser when none is set.
func newParser(cfg *config.Config, logger *slog.Logger) core.Parser {
	if cfg.Parser.Command == "" {
		logger.Debug("using built-in parser")
		return parser.NewBuiltin()
	}
	return parser.NewCommand(cfg.Parser.Command, cfg.Parser.Args, cfg.Parser.Timeout, logger)
}

// NewPipeline builds the engine from cfg. withState opens the state store
// at cfg.StatePath.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, withState bool) (*Pipeline, error) {
	policy, err := detect.ParsePolicy(cfg.EphemeralPolicy)
	if err != nil {
		return nil, err
	}
	mode, err := lineage.ParseMode(cfg.EphemeralMode)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg, logger: logger}

	registry, err := p.openMetadata(ctx)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	opts := lineage.Options{
		Parser:        newParser(cfg, logger),
		MetadataNames: cfg.Metadata.Names,
		Dialect:       cfg.Dialect,
		Policy:        policy,
		Mode:          mode,
		Clean:         cfg.Clean.Enabled,
		Workers:       cfg.Workers,
		Logger:        logger,
	}
	if registry != nil {
		opts.Metadata = registry
	}
	p.Engine, err = lineage.New(opts)
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	if withState {
		store := state.NewSQLiteStore(logger)
		if err := store.Open(cfg.StatePath); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		p.store = store
		p.closers = append(p.closers, store.Close)
	}

	if cfg.Sink.Driver != "" && cfg.Sink.Driver != config.DefaultSinkDriver {
		sink, err := emit.OpenSink(cfg.Sink.Driver, cfg.Sink.DSN, cfg.Sink.Table, logger)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.closers = append(p.closers, sink.Close)
		if err := sink.EnsureTable(ctx); err != nil {
			_ = p.Close()
			return nil, err
		}
		p.sink = sink
	}
	return p, nil
}

// openMetadata builds the registry behind parser hints. It returns nil when
// no metadata source is configured.
func (p *Pipeline) openMetadata(ctx context.Context) (*metadata.Registry, error) {
	m := p.cfg.Metadata

	var inner metadata.Loader
	switch m.Source {
	case "files":
		if len(m.Paths) > 0 {
			files, err := metadata.NewFileLoader(m.Paths)
			if err != nil {
				return nil, err
			}
			inner = files
		}
	case "postgres", "duckdb":
		live, closeFn, err := openLiveSource(ctx, m, p.logger)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, closeFn)
		inner = live
	}

	if m.CachePath != "" {
		cache, err := metadata.OpenSQLiteCache(m.CachePath)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, cache.Close)
		inner = metadata.Cached(cache, inner)
	}

	if inner == nil {
		return nil, nil
	}
	return metadata.NewRegistry(inner, p.logger), nil
}

// Store returns the state store, or nil when the pipeline runs without one.
func (p *Pipeline) Store() *state.SQLiteStore {
	return p.store
}

// Close releases everything the pipeline opened, last opened first.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// Execute records a run around process and persists what it returns.
// Script failures are counted in the report; only persistence problems are
// returned as errors.
func (p *Pipeline) Execute(ctx context.Context, src string, process func(context.Context) []lineage.ScriptResult) (*Report, error) {
	var run *state.Run
	if p.store != nil {
		var err error
		run, err = p.store.CreateRun(ctx, src)
		if err != nil {
			return nil, err
		}
	}

	rep := &Report{Results: process(ctx)}
	rep.Groups = Groups(rep.Results)
	for _, r := range rep.Results {
		rep.Scripts++
		rep.Records += len(r.Records)
		rep.Stats.Add(r.Stats)
		switch {
		case r.Err != nil:
			rep.Failures++
		case r.Skipped:
			rep.Skipped++
		}
	}

	if run == nil {
		return rep, p.writeSink(ctx, rep.Groups)
	}
	rep.RunID = run.ID

	persistErr := p.persist(ctx, run.ID, rep)
	if persistErr == nil {
		persistErr = p.writeSink(ctx, rep.Groups)
	}

	status, msg := state.RunStatusCompleted, ""
	if persistErr != nil {
		status, msg = state.RunStatusFailed, persistErr.Error()
	}
	totals := state.RunTotals{Scripts: rep.Scripts, Records: rep.Records, Failures: rep.Failures}
	if err := p.store.CompleteRun(ctx, run.ID, status, totals, msg); err != nil {
		return rep, errors.Join(persistErr, err)
	}
	return rep, persistErr
}

func (p *Pipeline) persist(ctx context.Context, runID string, rep *Report) error {
	for _, g := range rep.Groups {
		if err := p.store.ReplaceJobRecords(ctx, runID, g.Job, g.Records); err != nil {
			return err
		}
	}
	for _, r := range rep.Results {
		path := r.Script.Job.Path
		if r.Err != nil {
			if path == "" {
				continue
			}
			if err := p.store.RecordFailure(ctx, runID, path, r.Err.Error()); err != nil {
				return err
			}
			continue
		}
		if path != "" {
			if err := p.store.ClearFailure(ctx, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) writeSink(ctx context.Context, groups []emit.Group) error {
	if p.sink == nil || len(groups) == 0 {
		return nil
	}
	return p.sink.Write(ctx, groups)
}

// Groups collects the lineage of every processed script, in result order.
// Failed and skipped scripts contribute nothing so their stored lineage is
// left alone. Scripts sharing a (system, job) key form one group.
func Groups(results []lineage.ScriptResult) []emit.Group {
	groups := make([]emit.Group, 0, len(results))
	for _, r := range results {
		if r.Err != nil || r.Skipped {
			continue
		}
		groups = append(groups, emit.Group{Job: r.Script.Job, Records: r.Records})
	}
	return emit.Merge(groups)
}

// WriteOutput renders groups in the configured format to the configured
// output file, or to w.
func WriteOutput(w io.Writer, cfg *config.Config, groups []emit.Group) error {
	format, err := emit.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}
	if cfg.OutputFile == "" {
		if format == emit.FormatXLSX && output.IsTerminal(w) {
			return errors.New("xlsx output is binary, pass --output-file")
		}
		return emit.Write(w, format, cfg.Sink.Table, groups)
	}

	if dir := filepath.Dir(cfg.OutputFile); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := emit.Write(f, format, cfg.Sink.Table, groups); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
