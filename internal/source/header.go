package source

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaplineage/internal/detect"
	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// Header holds per-script overrides declared in a leading /*--- ... ---*/ block.
// Unknown fields cause parse errors.
type Header struct {
	System          string   `yaml:"system"`
	Job             string   `yaml:"job"`
	AppName         string   `yaml:"app_name"`
	Dialect         string   `yaml:"dialect"`
	EphemeralPolicy string   `yaml:"ephemeral_policy"`
	Metadata        []string `yaml:"metadata"` // cache names to attach
	Skip            bool     `yaml:"skip"`
}

// HeaderResult holds the result of header extraction.
type HeaderResult struct {
	Header    *Header
	SQL       string // script text after the header block
	HasHeader bool
}

var headerPattern = regexp.MustCompile(`(?s)^\s*/\*---\s*\n(.*?)\s*---\*/`)

var knownHeaderFields = map[string]bool{
	"system":           true,
	"job":              true,
	"app_name":         true,
	"dialect":          true,
	"ephemeral_policy": true,
	"metadata":         true,
	"skip":             true,
}

// ExtractHeader splits an optional header block off a script.
// Scripts without a header come back unchanged with an empty Header.
func ExtractHeader(content string) (*HeaderResult, error) {
	result := &HeaderResult{Header: &Header{}, SQL: content}

	matches := headerPattern.FindStringSubmatch(content)
	if len(matches) < 2 {
		return result, nil
	}

	h, err := parseHeaderYAML(matches[1])
	if err != nil {
		return nil, err
	}

	result.Header = h
	result.HasHeader = true
	result.SQL = strings.TrimSpace(content[len(matches[0]):])
	return result, nil
}

func parseHeaderYAML(content string) (*Header, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return nil, &HeaderParseError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	for field := range raw {
		if !knownHeaderFields[field] {
			return nil, &UnknownFieldError{Field: field}
		}
	}

	var h Header
	if err := yaml.Unmarshal([]byte(content), &h); err != nil {
		return nil, &HeaderParseError{Message: fmt.Sprintf("failed to parse header: %v", err)}
	}

	if h.EphemeralPolicy != "" {
		if _, err := detect.ParsePolicy(h.EphemeralPolicy); err != nil {
			return nil, &HeaderParseError{Message: err.Error()}
		}
	}
	return &h, nil
}

// Apply overlays non-empty header fields onto path-derived job info.
func (h *Header) Apply(info core.JobInfo) core.JobInfo {
	if h == nil {
		return info
	}
	if h.System != "" {
		info.System = h.System
		if h.AppName == "" {
			info.AppName = appNameOf(h.System)
		}
	}
	if h.Job != "" {
		info.Job = h.Job
	}
	if h.AppName != "" {
		info.AppName = h.AppName
	}
	return info
}

// HeaderParseError reports a malformed header block.
type HeaderParseError struct {
	File    string
	Message string
}

func (e *HeaderParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// UnknownFieldError reports a header field that is not recognised.
type UnknownFieldError struct {
	File  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	msg := fmt.Sprintf("unknown field %q in script header", e.Field)
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, msg)
	}
	return msg
}
