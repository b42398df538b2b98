package main

import (
	"context"
	"fmt"
	"io"
	"log"

	models "archive/internal/domain/models/archive"
	archiveSvc "archive/internal/domain/services/archive"
	"archive/internal/repository/postgres"
	service "archive/internal/service/archive"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openArchive(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// SAFETY: Prevent destructive operations in production
	if a.cfg.Environment == "prod" && seedDrop {
		return fmt.Errorf("🚫 BLOCKED: Cannot run destructive operations (--drop-tables) in production environment")
	}

	log.Printf("🌱 Seeding archive (environment: %s, prefix: %s)", a.cfg.Environment, a.tables.Prefix)

	if seedDrop {
		log.Println("🗑️  Dropping all tables...")
		if err := dropAllTables(ctx, a.pool, a.tables); err != nil {
			return fmt.Errorf("drop tables: %w", err)
		}
		log.Println("✅ Tables dropped")
	}

	log.Println("📋 Ensuring database schema is up to date...")
	if err := postgres.RunMigrations(a.pool, a.tables, a.logger); err != nil {
		return err
	}
	log.Println("✅ Schema ready")

	if seedSchemaOnly {
		log.Println("✅ Schema setup complete (schema-only mode)")
		return nil
	}

	if err := seedArchive(ctx, a.svcs, cmd.OutOrStdout()); err != nil {
		return err
	}
	log.Println("🎉 Seeding complete!")
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openArchive(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Environment == "prod" {
		return fmt.Errorf("🚫 BLOCKED: Cannot drop tables in production environment")
	}
	if a.tables.Prefix == "" && !resetForce {
		return fmt.Errorf("refusing to drop unprefixed tables without --force")
	}

	log.Printf("🗑️  Dropping archive tables with prefix %q...", a.tables.Prefix)
	if err := dropAllTables(ctx, a.pool, a.tables); err != nil {
		return err
	}
	log.Println("✅ All tables dropped. Run 'archivectl migrate up' to recreate them.")
	return nil
}

// dropAllTables drops the archive tables, dependents first, then the
// migration bookkeeping so the next migrate starts from scratch.
func dropAllTables(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	tableNames := []string{
		tables.RepublishJobs,
		tables.Events,
		tables.LatestDocuments,
		tables.TreeNodes,
		tables.DocumentACL,
		tables.DocumentControls,
		tables.Documents,
		tables.SchemaMigrations,
	}

	for _, table := range tableNames {
		dropSQL := "DROP TABLE IF EXISTS " + table + " CASCADE"
		if _, err := pool.Exec(ctx, dropSQL); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
		log.Printf("  ✓ Dropped %s", table)
	}
	return nil
}

// seedArchive publishes a small textbook: three modules filed in a
// collection with one subcollection, then a revision of one module so the
// collection is republished.
func seedArchive(ctx context.Context, svcs *service.Services, out io.Writer) error {
	modules := make(map[string]*models.Document)
	for _, title := range []string{"Motion", "Forces", "Energy"} {
		res, err := svcs.Publication.Publish(ctx, &archiveSvc.PublishRequest{
			Kind:      models.KindModule,
			Title:     title,
			License:   "CC-BY-4.0",
			Language:  "en",
			Authors:   []string{"seed"},
			Submitter: "seed",
			SubmitLog: "initial import",
		})
		if err != nil {
			return fmt.Errorf("publish module %q: %w", title, err)
		}
		modules[title] = res.Document
		fmt.Fprintf(out, "module     %-8s %s\n", title, res.Document.Ident())
	}

	book, err := svcs.Publication.Publish(ctx, &archiveSvc.PublishRequest{
		Kind:      models.KindCollection,
		Title:     "Introductory Physics",
		License:   "CC-BY-4.0",
		Language:  "en",
		Authors:   []string{"seed"},
		Submitter: "seed",
		SubmitLog: "initial import",
	})
	if err != nil {
		return fmt.Errorf("publish collection: %w", err)
	}

	_, err = svcs.Ingest.BuildTree(ctx, &archiveSvc.BuildTreeRequest{
		CollectionID: book.Document.ID,
		Children: []models.NodeSpec{
			{Title: "Mechanics", Children: []models.NodeSpec{
				{Title: "Motion", DocumentID: &modules["Motion"].ID},
				{Title: "Forces", DocumentID: &modules["Forces"].ID},
			}},
			{Title: "Energy", DocumentID: &modules["Energy"].ID},
		},
	})
	if err != nil {
		return fmt.Errorf("build tree: %w", err)
	}
	fmt.Fprintf(out, "collection %s\n", book.Document.Ident())

	forces := modules["Forces"]
	revised, err := svcs.Publication.Publish(ctx, &archiveSvc.PublishRequest{
		Identity:  &forces.Identity,
		Kind:      models.KindModule,
		Title:     forces.Title,
		License:   forces.License,
		Language:  forces.Language,
		Authors:   forces.Authors,
		Submitter: "seed",
		SubmitLog: "corrected free-body diagrams",
	})
	if err != nil {
		return fmt.Errorf("revise module: %w", err)
	}
	fmt.Fprintf(out, "revised    %-8s %s\n", forces.Title, revised.Document.Ident())

	if rep := revised.Republish; rep != nil {
		for _, root := range rep.Roots {
			fmt.Fprintf(out, "republished %s\n", root.Ident())
		}
		if err := rep.Err(); err != nil {
			return err
		}
	}
	return nil
}
