// Package metadata provides table schema caches used as parser hints.
//
// A Registry holds named caches for the life of a process. Caches are
// attached on first use from a Loader: JSON or YAML files, a SQLite cache
// shared between processes, or a live Postgres or DuckDB catalog.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/leaplineage/pkg/core"
)

// ErrNotFound is returned when no loader knows a cache name.
var ErrNotFound = errors.New("metadata cache not found")

// Loader produces the schema for a cache name.
type Loader interface {
	Load(ctx context.Context, name string) (core.Schema, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, name string) (core.Schema, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, name string) (core.Schema, error) {
	return f(ctx, name)
}

// Chain tries each loader in order and returns the first hit.
// ErrNotFound from one loader moves on to the next; other errors stop the chain.
func Chain(loaders ...Loader) Loader {
	return LoaderFunc(func(ctx context.Context, name string) (core.Schema, error) {
		for _, l := range loaders {
			if l == nil {
				continue
			}
			s, err := l.Load(ctx, name)
			if err == nil {
				return s, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	})
}

// Registry is the process-wide set of attached caches.
// Attach is create-or-attach: concurrent first loads of one name run the
// loader once. Lookups never block.
type Registry struct {
	loader Loader
	logger *slog.Logger
	caches sync.Map // name -> core.Schema
	group  singleflight.Group
}

// NewRegistry creates a registry backed by loader, which may be nil.
func NewRegistry(loader Loader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{loader: loader, logger: logger}
}

// Attach returns the named cache, loading it on first use.
func (r *Registry) Attach(ctx context.Context, name string) (core.Schema, error) {
	if s, ok := r.Lookup(name); ok {
		return s, nil
	}
	if r.loader == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	v, err, shared := r.group.Do(name, func() (any, error) {
		if s, ok := r.Lookup(name); ok {
			return s, nil
		}
		s, err := r.loader.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		r.caches.Store(name, s)
		r.logger.Debug("metadata attached", "name", name, "tables", len(s))
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach metadata %q: %w", name, err)
	}
	if shared {
		r.logger.Debug("metadata load shared", "name", name)
	}
	return v.(core.Schema), nil
}

// Put registers a cache directly, replacing any previous one.
func (r *Registry) Put(name string, s core.Schema) {
	r.caches.Store(name, s)
}

// Lookup implements core.MetadataProvider.
func (r *Registry) Lookup(name string) (core.Schema, bool) {
	v, ok := r.caches.Load(name)
	if !ok {
		return nil, false
	}
	return v.(core.Schema), true
}

// Names returns the attached cache names, sorted.
func (r *Registry) Names() []string {
	var names []string
	r.caches.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Merge combines the named caches of a provider into one hint.
// Earlier names win on conflicting tables; unknown names are reported.
func Merge(p core.MetadataProvider, names ...string) (core.Schema, []string) {
	if p == nil {
		return nil, names
	}
	var merged core.Schema
	var missing []string
	for _, name := range names {
		s, ok := p.Lookup(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		if merged == nil {
			merged = make(core.Schema, len(s))
		}
		for table, cols := range s {
			if _, exists := merged[table]; !exists {
				merged[table] = cols
			}
		}
	}
	return merged, missing
}
