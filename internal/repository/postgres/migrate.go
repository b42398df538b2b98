package postgres

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const prefixPlaceholder = "${prefix}"

// RunMigrations applies all pending migrations for the configured table prefix.
// Each prefix keeps its own schema_migrations table.
func RunMigrations(pool *pgxpool.Pool, tables *TableNames, logger *slog.Logger) error {
	m, err := newMigrator(pool, tables)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("database migrations applied", "version", version, "dirty", dirty, "prefix", tables.Prefix)
	return nil
}

// RollbackMigrations reverts the given number of migration steps.
func RollbackMigrations(pool *pgxpool.Pool, tables *TableNames, steps int) error {
	m, err := newMigrator(pool, tables)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	return nil
}

func newMigrator(pool *pgxpool.Pool, tables *TableNames) (*migrate.Migrate, error) {
	source, err := iofs.New(prefixedFS{fsys: migrationFiles, prefix: tables.Prefix}, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{
		MigrationsTable: tables.SchemaMigrations,
	})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

// prefixedFS substitutes the table prefix into embedded SQL files.
type prefixedFS struct {
	fsys   embed.FS
	prefix string
}

func (p prefixedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return p.fsys.ReadDir(name)
}

func (p prefixedFS) Open(name string) (fs.File, error) {
	if !strings.HasSuffix(name, ".sql") {
		return p.fsys.Open(name)
	}
	raw, err := p.fsys.ReadFile(name)
	if err != nil {
		return nil, err
	}
	body := strings.ReplaceAll(string(raw), prefixPlaceholder, p.prefix)
	return &sqlFile{Reader: bytes.NewReader([]byte(body)), name: name}, nil
}

type sqlFile struct {
	*bytes.Reader
	name string
}

func (f *sqlFile) Stat() (fs.FileInfo, error) { return f, nil }
func (f *sqlFile) Close() error               { return nil }

func (f *sqlFile) Name() string       { return path.Base(f.name) }
func (f *sqlFile) Mode() fs.FileMode  { return 0o444 }
func (f *sqlFile) ModTime() time.Time { return time.Time{} }
func (f *sqlFile) IsDir() bool        { return false }
func (f *sqlFile) Sys() any           { return nil }
