package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"archive/internal/config"
	archiveRepo "archive/internal/domain/repositories/archive"
	"archive/internal/repository/postgres"
	postgresArchive "archive/internal/repository/postgres/archive"
	service "archive/internal/service/archive"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	tablePrefix    string
	rollbackSteps  int
	listLimit      int
	listOffset     int
	republishOld   int64
	republishNew   int64
	republishSkip  []string
	dumpOutput     string
	asJSON         bool
	verbose        bool
	seedDrop       bool
	seedSchemaOnly bool
	resetForce     bool

	rootCmd = &cobra.Command{
		Use:   "archivectl",
		Short: "Operate the versioned document archive",
		Long: `archivectl runs schema migrations, inspects latest revisions and
trees, triggers republication and moves collections between databases.`,
		SilenceUsage: true,
	}

	// --- Schema ---
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	}
	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDown,
	}
	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Drop every archive table for the configured prefix",
		Args:  cobra.NoArgs,
		RunE:  runReset, // Defined in cmd_seed.go
	}
	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Apply migrations and publish a sample collection",
		Args:  cobra.NoArgs,
		RunE:  runSeed,
	}

	// --- Inspection ---
	latestCmd = &cobra.Command{
		Use:   "latest [identity]",
		Short: "Show the latest revision of an identity, or list all latest pointers",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLatest, // Defined in cmd_archive.go
	}
	treeCmd = &cobra.Command{
		Use:   "tree [document-id]",
		Short: "Print the table of contents of a collection revision",
		Args:  cobra.ExactArgs(1),
		RunE:  runTree,
	}

	// --- Republication ---
	republishCmd = &cobra.Command{
		Use:   "republish",
		Short: "Republish every latest collection containing a replaced revision",
		Args:  cobra.NoArgs,
		RunE:  runRepublish,
	}

	// --- Dump / Restore ---
	dumpCmd = &cobra.Command{
		Use:   "dump [document-id | identity@version]",
		Short: "Export a collection revision and everything its trees reference as YAML",
		Args:  cobra.ExactArgs(1),
		RunE:  runDump, // Defined in cmd_dump.go
	}
	restoreCmd = &cobra.Command{
		Use:   "restore [bundle.yaml]",
		Short: "Import a dumped collection, keeping its identifiers",
		Args:  cobra.ExactArgs(1),
		RunE:  runRestore,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&tablePrefix, "table-prefix", "", "Table prefix (defaults to the environment's)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	migrateDownCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)

	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Allow dropping tables without a prefix")
	seedCmd.Flags().BoolVar(&seedDrop, "drop-tables", false, "Drop all tables before seeding (fresh start)")
	seedCmd.Flags().BoolVar(&seedSchemaOnly, "schema-only", false, "Only set up schema, don't publish documents")

	latestCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum pointers to list")
	latestCmd.Flags().IntVar(&listOffset, "offset", 0, "Pointers to skip")
	latestCmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	treeCmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	republishCmd.Flags().Int64Var(&republishOld, "old", 0, "Replaced document id")
	republishCmd.Flags().Int64Var(&republishNew, "new", 0, "Replacing document id")
	republishCmd.Flags().StringSliceVar(&republishSkip, "exclude", nil, "Root collection identities to leave alone")
	_ = republishCmd.MarkFlagRequired("old")
	_ = republishCmd.MarkFlagRequired("new")

	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "", "Output file (default stdout)")

	rootCmd.AddCommand(migrateCmd, resetCmd, seedCmd, latestCmd, treeCmd, republishCmd, dumpCmd, restoreCmd)
}

// archive is the connected tool state shared by the commands.
type archive struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	docs   archiveRepo.DocumentRepository
	latest archiveRepo.LatestRepository
	svcs   *service.Services
	logger *slog.Logger
}

// openArchive connects to the configured database. Republication runs
// synchronously; the command waits for it.
func openArchive(ctx context.Context) (*archive, error) {
	cfg := config.Load()
	if tablePrefix != "" {
		cfg.TablePrefix = tablePrefix
	}
	// Logs go to stderr so dumps can be piped from stdout
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{Pool: pool, Tables: tables, Logger: logger}
	txManager := postgres.NewTransactionManager(pool, logger)
	docs := postgresArchive.NewDocumentRepository(repoConfig)
	latest := postgresArchive.NewLatestRepository(repoConfig)
	deps := service.Dependencies{
		Documents: docs,
		Controls:  postgresArchive.NewControlRepository(repoConfig),
		Trees:     postgresArchive.NewTreeRepository(repoConfig),
		Latest:    latest,
		Events:    postgresArchive.NewEventRepository(repoConfig),
		Jobs:      postgresArchive.NewJobRepository(repoConfig),
		TxManager: txManager,
		Locker:    postgres.NewIdentityLocker(pool, txManager),
	}

	return &archive{
		cfg:    cfg,
		pool:   pool,
		tables: tables,
		docs:   docs,
		latest: latest,
		svcs:   service.NewServices(deps, service.Options{RepublishMode: service.RepublishSync, Parallelism: cfg.RepublishParallelism}, logger),
		logger: logger,
	}, nil
}

func (a *archive) Close() {
	a.pool.Close()
}
