package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kadirbelkuyu/metasync/internal/catalog"
	"github.com/kadirbelkuyu/metasync/internal/config"
	"github.com/kadirbelkuyu/metasync/internal/database"
	"github.com/kadirbelkuyu/metasync/internal/introspect"
	"github.com/kadirbelkuyu/metasync/internal/sync"
	"github.com/kadirbelkuyu/metasync/pkg/logger"
	"github.com/kadirbelkuyu/metasync/pkg/progress"
)

const cacheEntries = 16384

var rootCmd = &cobra.Command{
	Use:   "metasync",
	Short: "Schema catalog reconciliation for external databases",
	Long:  `Introspects externally-owned databases and keeps the stored catalog in step with their live schemas: new tables, column changes, relations and junction tables, without ever touching the source.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the catalog tables",
	RunE:  runInit,
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Preview schema changes without applying them",
	RunE:  runDiff,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Apply schema changes to the catalog",
	RunE:  runSync,
}

var (
	configPath string
	sourceID   string
	verbose    bool
)

func init() {
	for _, cmd := range []*cobra.Command{initCmd, diffCmd, syncCmd} {
		cmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration file")
		cmd.Flags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
		cmd.MarkFlagRequired("config")
	}
	diffCmd.Flags().StringVar(&sourceID, "source", "", "Only this source id")
	syncCmd.Flags().StringVar(&sourceID, "source", "", "Only this source id")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(syncCmd)

	cobra.OnInitialize(func() {
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	log := logger.NewLogger(verbose)

	conn, err := database.NewConnection(cfg.Catalog.ConnectionString())
	if err != nil {
		return fmt.Errorf("cannot connect to catalog database: %w", err)
	}
	defer conn.Close()

	if err := catalog.NewSQLStore(conn.DB).Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("cannot create catalog tables: %w", err)
	}
	log.Info("Catalog tables are ready")
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	log := logger.NewLogger(verbose)

	store, cleanup, err := openCatalog(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	return forEachSource(cmd.Context(), cfg, func(ctx context.Context, src *config.SourceConfig) error {
		svc, scope, closeSource, err := openSource(cfg, src, store, log)
		if err != nil {
			return err
		}
		defer closeSource()

		diffs, err := svc.ComputeDiff(ctx, scope)
		if err != nil {
			return err
		}
		if len(diffs) == 0 {
			fmt.Printf("%s: catalog is up to date\n", src.ID)
			return nil
		}
		for _, td := range diffs {
			fmt.Printf("%s: %s\n", src.ID, td.TableName)
			for _, ch := range td.Changes {
				fmt.Printf("  %-26s %s\n", ch.Kind, ch.Message)
			}
		}
		return nil
	})
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	log := logger.NewLogger(verbose)

	store, cleanup, err := openCatalog(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	sources := selectedSources(cfg)
	bar := progress.NewBar(int64(len(sources)), "Syncing sources")
	defer bar.Finish()

	return forEachSource(cmd.Context(), cfg, func(ctx context.Context, src *config.SourceConfig) error {
		svc, scope, closeSource, err := openSource(cfg, src, store, log)
		if err != nil {
			return err
		}
		defer closeSource()

		if err := svc.ApplyDiff(ctx, scope); err != nil {
			return fmt.Errorf("sync of source %s failed: %w", src.ID, err)
		}
		bar.Increment()
		return nil
	})
}

// openCatalog wires the SQL-backed store behind the ristretto cache.
func openCatalog(cfg *config.Config, log *logger.Logger) (catalog.Store, func(), error) {
	conn, err := database.NewConnection(cfg.Catalog.ConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to catalog database: %w", err)
	}
	cache, err := catalog.NewMetaCache(cacheEntries, log)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("cannot build catalog cache: %w", err)
	}
	store := catalog.NewCachedStore(catalog.NewSQLStore(conn.DB), cache, log)
	cleanup := func() {
		cache.Close()
		conn.Close()
	}
	return store, cleanup, nil
}

func openSource(cfg *config.Config, src *config.SourceConfig, store catalog.Store, log *logger.Logger) (*sync.Service, catalog.Scope, func(), error) {
	var scope catalog.Scope
	if src.Client != "postgres" {
		return nil, scope, nil, fmt.Errorf("client %q is not supported", src.Client)
	}
	conn, err := database.NewConnection(src.ConnectionString())
	if err != nil {
		return nil, scope, nil, fmt.Errorf("cannot connect to source %s: %w", src.ID, err)
	}
	insp := introspect.NewPostgres(conn, log)
	svc := sync.NewService(store, insp, log, nil, nil, src.Client, src.Schema)
	scope = catalog.Scope{
		WorkspaceID: cfg.Catalog.WorkspaceID,
		BaseID:      cfg.Catalog.BaseID,
		SourceID:    src.ID,
	}
	return svc, scope, func() { conn.Close() }, nil
}

func selectedSources(cfg *config.Config) []*config.SourceConfig {
	if sourceID == "" {
		out := make([]*config.SourceConfig, 0, len(cfg.Sources))
		for i := range cfg.Sources {
			out = append(out, &cfg.Sources[i])
		}
		return out
	}
	if src, ok := cfg.Source(sourceID); ok {
		return []*config.SourceConfig{src}
	}
	return nil
}

func forEachSource(ctx context.Context, cfg *config.Config, fn func(context.Context, *config.SourceConfig) error) error {
	sources := selectedSources(cfg)
	if len(sources) == 0 {
		return fmt.Errorf("no matching sources in config")
	}
	for _, src := range sources {
		if err := fn(ctx, src); err != nil {
			return err
		}
	}
	return nil
}
