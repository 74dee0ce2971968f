package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaplineage/internal/cli/output"
	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
	"github.com/leapstack-labs/leaplineage/internal/metadata"
)

// NewMetadataCommand creates the metadata command group.
func NewMetadataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Manage the metadata cache used as parser hints",
		Long: `Manage the column metadata handed to the parser as hints.

Metadata files are JSON or YAML documents mapping table names to column
lists; each file is a cache named after the file. Live catalogs (postgres,
duckdb) expose one cache per schema.`,
	}
	cmd.AddCommand(newMetadataLoadCommand())
	cmd.AddCommand(newMetadataListCommand())
	return cmd
}

func newMetadataLoadCommand() *cobra.Command {
	var schemas []string

	cmd := &cobra.Command{
		Use:   "load [paths...]",
		Short: "Load metadata files or live schemas into the persistent cache",
		Example: `  leaplineage metadata load ./meta --metadata-cache .leaplineage/meta.db
  leaplineage metadata load --schema ods --metadata-source postgres --metadata-dsn $PG_DSN`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(schemas) == 0 {
				return fmt.Errorf("%w: pass metadata paths or --schema", lineage.ErrUsage)
			}
			return runMetadataLoad(cmd, args, schemas)
		},
	}
	cmd.Flags().StringSliceVar(&schemas, "schema", nil, "Load this schema from the live metadata source (repeatable)")
	return cmd
}

func runMetadataLoad(cmd *cobra.Command, paths, schemas []string) error {
	env, err := newEnv(cmd, output.ModeText)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	m := env.cfg.Metadata
	if m.CachePath == "" {
		return fmt.Errorf("%w: metadata.cache_path is required", lineage.ErrUsage)
	}

	cache, err := metadata.OpenSQLiteCache(m.CachePath)
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	store := func(loader metadata.Loader, name string) error {
		s, err := loader.Load(ctx, name)
		if err != nil {
			return err
		}
		if err := cache.Store(ctx, name, s); err != nil {
			return err
		}
		env.out.Success(fmt.Sprintf("%s: %d tables", name, len(s)))
		return nil
	}

	if len(paths) > 0 {
		files, err := metadata.NewFileLoader(paths)
		if err != nil {
			return err
		}
		for _, name := range files.Names() {
			if err := store(files, name); err != nil {
				return err
			}
		}
	}

	if len(schemas) > 0 {
		live, closeFn, err := openLiveSource(ctx, m, env.logger)
		if err != nil {
			return err
		}
		defer func() { _ = closeFn() }()
		for _, name := range schemas {
			if err := store(live, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func newMetadataListCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the caches available to scripts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := output.ModeText
			if asJSON {
				mode = output.ModeJSON
			}
			env, err := newEnv(cmd, mode)
			if err != nil {
				return err
			}
			entries, err := listCaches(cmd.Context(), env.cfg.Metadata)
			if err != nil {
				return err
			}
			if env.out.EffectiveMode() == output.ModeJSON {
				return env.out.JSON(entries)
			}
			if len(entries) == 0 {
				env.out.Println("no metadata caches")
				return nil
			}
			env.out.Header("Metadata caches")
			for _, e := range entries {
				env.out.KeyValue(e.Name, e.Origin)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

type cacheEntry struct {
	Name   string `json:"name"`
	Origin string `json:"origin"` // "cache" or "file"
}

// listCaches merges the persistent cache with the configured metadata files.
// A name present in both is reported once, as cache.
func listCaches(ctx context.Context, m config.MetadataConfig) ([]cacheEntry, error) {
	seen := make(map[string]string)
	if len(m.Paths) > 0 {
		files, err := metadata.NewFileLoader(m.Paths)
		if err != nil {
			return nil, err
		}
		for _, n := range files.Names() {
			seen[n] = "file"
		}
	}
	if m.CachePath != "" {
		cache, err := metadata.OpenSQLiteCache(m.CachePath)
		if err != nil {
			return nil, err
		}
		defer func() { _ = cache.Close() }()
		names, err := cache.Names(ctx)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			seen[n] = "cache"
		}
	}

	entries := make([]cacheEntry, 0, len(seen))
	for n, origin := range seen {
		entries = append(entries, cacheEntry{Name: n, Origin: origin})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// openLiveSource connects to the configured catalog database.
func openLiveSource(ctx context.Context, m config.MetadataConfig, logger *slog.Logger) (metadata.Loader, func() error, error) {
	switch m.Source {
	case "postgres":
		pg, err := metadata.NewPostgresSource(ctx, m.DSN, m.Schemas, logger)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() error { pg.Close(); return nil }, nil
	case "duckdb":
		db, err := metadata.OpenDuckDB(m.DSN)
		if err != nil {
			return nil, nil, err
		}
		src := metadata.NewSQLSource(db, m.Schemas, logger)
		return src, src.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: metadata.source %q has no live catalog (want postgres or duckdb)", lineage.ErrUsage, m.Source)
	}
}
