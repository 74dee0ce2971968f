// Package lineage turns SQL scripts into column lineage records.
//
// A script is processed strictly in statement order:
//
//	clean -> detect ephemeral tables -> split ->
//	per statement: classify -> [USE | skip | parse -> resolve -> normalize] -> aggregate
//
// The SQL parser is an external collaborator behind core.Parser. A parser
// failure affects only its statement; the rest of the script still produces
// records. Scripts of a batch run concurrently, each on its own goroutine.
package lineage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/leapstack-labs/leaplineage/internal/classify"
	"github.com/leapstack-labs/leaplineage/internal/detect"
	"github.com/leapstack-labs/leaplineage/internal/metadata"
	"github.com/leapstack-labs/leaplineage/internal/normalize"
	"github.com/leapstack-labs/leaplineage/internal/parser"
	"github.com/leapstack-labs/leaplineage/internal/resolve"
	"github.com/leapstack-labs/leaplineage/internal/source"
	"github.com/leapstack-labs/leaplineage/internal/split"
	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// ErrUsage marks invalid entry arguments, reported before any processing.
var ErrUsage = errors.New("usage error")

// Mode selects how ephemeral and subquery endpoints appear in the output.
type Mode string

const (
	// ModeTag keeps tagged ephemeral and subquery endpoints.
	ModeTag Mode = "tag"
	// ModeCollapse splices records through ephemeral tables into real-to-real records.
	ModeCollapse Mode = "collapse"
)

// ParseMode converts a configuration value into a Mode. Empty means ModeTag.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeTag:
		return ModeTag, nil
	case ModeCollapse:
		return ModeCollapse, nil
	default:
		return "", fmt.Errorf("unknown ephemeral mode %q (want %s or %s)", s, ModeTag, ModeCollapse)
	}
}

// Options configures an Engine.
type Options struct {
	Parser core.Parser
	// Metadata supplies parser hints; nil runs without metadata.
	Metadata core.MetadataProvider
	// MetadataNames are the caches merged into the hint of every script.
	MetadataNames []string
	Dialect       string
	Policy        detect.Policy
	Mode          Mode
	// Clean strips parameters, comments and storage clauses before splitting.
	Clean   bool
	Workers int
	Logger  *slog.Logger
}

// Engine processes scripts. It is safe for concurrent use.
type Engine struct {
	parser core.Parser
	opts   Options
	logger *slog.Logger
}

// New creates an engine. A parser is required.
func New(opts Options) (*Engine, error) {
	if opts.Parser == nil {
		return nil, fmt.Errorf("%w: a parser is required", ErrUsage)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Dialect == "" {
		opts.Dialect = core.DialectOracle
	}
	if opts.Policy == "" {
		opts.Policy = detect.DefaultPolicy
	}
	if opts.Mode == "" {
		opts.Mode = ModeTag
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Engine{parser: parser.Recover(opts.Parser), opts: opts, logger: opts.Logger}, nil
}

// Stats counts what happened to the statements of a script.
type Stats struct {
	Statements    int `json:"statements"`
	Selectors     int `json:"selectors"`
	Skipped       int `json:"skipped"`
	Parsed        int `json:"parsed"`
	ParseFailures int `json:"parse_failures"`
	Records       int `json:"records"`
	Dropped       int `json:"dropped"`
	Pruned        int `json:"pruned"`
	Traced        int `json:"traced"`
	SelfLoops     int `json:"self_loops"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Statements += other.Statements
	s.Selectors += other.Selectors
	s.Skipped += other.Skipped
	s.Parsed += other.Parsed
	s.ParseFailures += other.ParseFailures
	s.Records += other.Records
	s.Dropped += other.Dropped
	s.Pruned += other.Pruned
	s.Traced += other.Traced
	s.SelfLoops += other.SelfLoops
}

// ScriptResult is the outcome of one script. Err is set when the script
// could not be read or its header is invalid; statement failures only show
// up in Stats.
type ScriptResult struct {
	Script    source.Script
	Records   []core.LineageRecord
	Ephemeral []string
	Stats     Stats
	Skipped   bool
	Err       error
}

// scriptRun is the per-script mutable state. It never outlives ProcessScript.
type scriptRun struct {
	script    source.Script
	dialect   string
	hint      core.Schema
	ephemeral detect.Set
	lifecycle Lifecycle
	current   string // database selected by the latest USE
	records   []core.LineageRecord
	stats     Stats
	logger    *slog.Logger
}

// ProcessScript resolves every statement of one script.
func (e *Engine) ProcessScript(ctx context.Context, s source.Script) ScriptResult {
	res := ScriptResult{Script: s}

	hdr, err := source.ExtractHeader(s.Text)
	if err != nil {
		res.Err = fmt.Errorf("failed to read script header: %w", err)
		return res
	}
	h := hdr.Header
	s.Job = h.Apply(s.Job)
	res.Script = s
	if h.Skip {
		res.Skipped = true
		return res
	}

	policy := e.opts.Policy
	if h.EphemeralPolicy != "" {
		// Already validated by ExtractHeader.
		policy, _ = detect.ParsePolicy(h.EphemeralPolicy)
	}

	text := hdr.SQL
	if e.opts.Clean {
		text = split.Clean(text)
	}

	run := &scriptRun{
		script:    s,
		dialect:   firstNonEmpty(h.Dialect, s.Dialect, e.opts.Dialect),
		hint:      e.hint(ctx, append(append([]string{}, e.opts.MetadataNames...), h.Metadata...)),
		ephemeral: detect.Detect(text, policy),
		lifecycle: Lifecycle{},
		logger:    e.logger.With("script", s.ID),
	}
	res.Ephemeral = run.ephemeral.Names()

	for i, stmt := range split.Split(text) {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		run.statement(ctx, e.parser, i+1, stmt)
	}

	res.Records = run.records
	if e.opts.Mode == ModeCollapse {
		res.Records = Collapse(res.Records, run.lifecycle)
	}
	run.stats.Records = len(res.Records)
	res.Stats = run.stats

	run.logger.Debug("script processed",
		"statements", res.Stats.Statements,
		"records", res.Stats.Records,
		"parse_failures", res.Stats.ParseFailures,
		"dropped", res.Stats.Dropped)
	return res
}

// attacher is implemented by providers that can load a cache on demand.
type attacher interface {
	Attach(ctx context.Context, name string) (core.Schema, error)
}

func (e *Engine) hint(ctx context.Context, names []string) core.Schema {
	if len(names) == 0 {
		return nil
	}
	if e.opts.Metadata == nil {
		e.logger.Warn("metadata requested but no metadata source configured", "names", names)
		return nil
	}
	if a, ok := e.opts.Metadata.(attacher); ok {
		for _, name := range names {
			if _, err := a.Attach(ctx, name); err != nil {
				e.logger.Debug("metadata attach failed", "name", name, "error", err)
			}
		}
	}
	hint, missing := metadata.Merge(e.opts.Metadata, names...)
	if len(missing) > 0 {
		e.logger.Warn("metadata not loaded, continuing without it", "names", missing)
	}
	return hint
}

func (r *scriptRun) statement(ctx context.Context, p core.Parser, idx int, stmt string) {
	r.stats.Statements++
	for _, name := range detect.Lifecycle(stmt) {
		if r.ephemeral.Contains(name) {
			r.lifecycle.Mark(name, idx)
		}
	}

	c := classify.Classify(stmt)
	switch c.Kind {
	case classify.Selector:
		r.current = c.Database
		r.stats.Selectors++
		r.logger.Debug("default database selected", "sql_no", idx, "database", c.Database)
		return
	case classify.Skip:
		r.stats.Skipped++
		r.logger.Debug("statement skipped", "sql_no", idx, "reason", c.Reason)
		return
	}

	g, err := p.Parse(ctx, stmt, classify.Dialect(stmt, r.dialect), r.hint)
	if err != nil {
		r.stats.ParseFailures++
		r.logger.Warn("statement parse failed", "sql_no", idx, "error", err)
		return
	}
	r.stats.Parsed++

	res := resolve.Resolve(g, r.ephemeral)
	r.stats.Pruned += res.Stats.Pruned
	r.stats.Traced += res.Stats.Traced
	r.stats.SelfLoops += res.Stats.SelfLoops

	nctx := normalize.Context{
		Ephemeral:       r.ephemeral,
		SubQueries:      res.SubQueries,
		CurrentDatabase: r.current,
		ScriptID:        r.script.ID,
		StatementIndex:  idx,
	}

	added := 0
	for _, pair := range res.Pairs {
		src, ok := nctx.Normalize(pair.Source, res.Nodes[pair.Source].ParentCandidates)
		if !ok {
			r.stats.Dropped++
			continue
		}
		tgt, ok := nctx.Normalize(pair.Target, res.Nodes[pair.Target].ParentCandidates)
		if !ok {
			r.stats.Dropped++
			continue
		}
		r.records = append(r.records, core.LineageRecord{
			ScriptID:       r.script.ID,
			Job:            r.script.Job,
			StatementIndex: idx,
			Source:         src,
			Target:         tgt,
		})
		added++
	}
	r.logger.Debug("statement resolved",
		"sql_no", idx, "pairs", len(res.Pairs), "added", added,
		"pruned", res.Stats.Pruned, "traced", res.Stats.Traced)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
