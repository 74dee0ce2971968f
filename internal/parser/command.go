package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// DefaultTimeout bounds a single external parser invocation.
const DefaultTimeout = 60 * time.Second

// ErrNoCommand is returned when no parser command is configured.
var ErrNoCommand = errors.New("no parser command configured")

// Command runs an external lineage tool once per statement.
type Command struct {
	Path    string
	Args    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

type request struct {
	SQL      string      `json:"sql"`
	Dialect  string      `json:"dialect"`
	Metadata core.Schema `json:"metadata,omitempty"`
}

// NewCommand creates a Command parser. A zero timeout uses DefaultTimeout.
func NewCommand(path string, args []string, timeout time.Duration, logger *slog.Logger) *Command {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Command{Path: path, Args: args, Timeout: timeout, Logger: logger}
}

// Parse implements core.Parser.
func (c *Command) Parse(ctx context.Context, stmt, dialect string, hint core.Schema) (*core.Graph, error) {
	if c.Path == "" {
		return nil, ErrNoCommand
	}

	body, err := json.Marshal(request{SQL: stmt, Dialect: dialect, Metadata: hint})
	if err != nil {
		return nil, fmt.Errorf("failed to encode parser request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(body)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("parser timed out after %s: %w", c.Timeout, ctx.Err())
		}
		return nil, fmt.Errorf("parser command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	c.Logger.Debug("parser finished", "dialect", dialect, "duration", time.Since(start), "bytes", stdout.Len())

	return DecodeCytoscape(&stdout)
}
