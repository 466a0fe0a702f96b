// Package main is the operator CLI for Edge & Altar.
//
// Usage:
//
//	go run ./cmd/ops migrate up
//	go run ./cmd/ops migrate down
//	go run ./cmd/ops import-profiles --file users.json --dry-run
//	go run ./cmd/ops import-profiles --file users.json --batch-size 200
//
// Both commands read DATABASE_URL (and the DB_* pool settings) from the
// environment or a .env file; nothing else is required.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"edgealtar/internal/config"
	"edgealtar/internal/db"
	"edgealtar/internal/importer"
	"edgealtar/internal/platform/wiring"
)

// Version is injected via ldflags.
var Version = "dev"

// app carries the side-effecting dependencies so commands can be tested
// without a database.
type app struct {
	logger    *slog.Logger
	loadDB    func() (config.DatabaseConfig, error)
	migrate   func(databaseURL string, direction db.MigrateDirection, logger *slog.Logger) error
	openStore func(ctx context.Context, cfg config.DatabaseConfig) (importer.Upserter, func(), error)
}

func defaultApp() *app {
	return &app{
		logger:  wiring.NewLogger(os.Getenv("LOG_LEVEL"), "edgealtar-ops"),
		loadDB:  config.LoadDatabaseConfig,
		migrate: db.Migrate,
		openStore: func(ctx context.Context, cfg config.DatabaseConfig) (importer.Upserter, func(), error) {
			pool, err := db.NewPool(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			return db.NewImportRepository(pool), pool.Close, nil
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultApp()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ops",
		Short:         "Edge & Altar operator tasks",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(a))
	root.AddCommand(importProfilesCmd(a))
	return root
}

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply (up) or roll back one step of (down) the schema migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(db.MigrateUp), string(db.MigrateDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := db.MigrateUp
			if len(args) == 1 {
				direction = db.MigrateDirection(args[0])
			}

			cfg, err := a.loadDB()
			if err != nil {
				return fmt.Errorf("loading database configuration: %w", err)
			}
			if err := a.migrate(cfg.URL.Unmask(), direction, a.logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: done\n", direction)
			return nil
		},
	}
}

func importProfilesCmd(a *app) *cobra.Command {
	var (
		file      string
		batchSize int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "import-profiles",
		Short: "Import a Firebase users export into the profiles table",
		Long: `Import a Firestore users collection export (a JSON array of user
documents) into Supabase profiles.

Rows are upserted by user id and never overwrite a profile whose stored
state is newer than the export, so the import can be re-run safely while
webhooks keep arriving. Use --file - to read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("opening export: %w", err)
				}
				defer f.Close()
				in = f
			}

			var store importer.Upserter
			if !dryRun {
				cfg, err := a.loadDB()
				if err != nil {
					return fmt.Errorf("loading database configuration: %w", err)
				}
				s, closeFn, err := a.openStore(ctx, cfg)
				if err != nil {
					return fmt.Errorf("connecting to database: %w", err)
				}
				defer closeFn()
				store = s
			}

			report, err := importer.New(store, importer.Options{
				BatchSize: batchSize,
				DryRun:    dryRun,
			}, a.logger).Run(ctx, in)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "read=%d skipped=%d premium=%d written=%d unchanged=%d dry_run=%t\n",
				report.Read, report.Skipped, report.Premium, report.Written, report.Unchanged, dryRun)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the users export (- for stdin)")
	cmd.Flags().IntVar(&batchSize, "batch-size", importer.DefaultBatchSize, "rows per database round trip")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and count without writing")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
