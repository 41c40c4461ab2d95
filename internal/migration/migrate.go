package migration

import (
	"context"
	"database/sql"
	"embed"
	"sync"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Embed SQL files from the local migrations folder
//
//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const (
	schemaName   = "job_market_raw"
	versionTable = schemaName + ".goose_db_version"
)

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// Migrator brings the destination schema up to date without dropping data.
type Migrator struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMigrator(db *sql.DB, logger zerolog.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger.With().Str("component", "migrator").Logger(),
	}
}

// EnsureSchema creates the schema if needed and applies pending migrations.
func (m *Migrator) EnsureSchema(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	// Ensure the target schema exists before goose creates its version table
	if _, err := m.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schemaName); err != nil {
		m.logger.Error().Err(err).Msg("Failed to create schema")
		return errors.Wrapf(err, "failed to create schema %s", schemaName)
	}

	goose.SetLogger(NewGooseAdapter(m.logger))
	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(versionTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "failed to set goose dialect")
	}

	if err := goose.UpContext(ctx, m.db, "migrations"); err != nil {
		m.logger.Error().Err(err).Msg("Failed to run migrations")
		return errors.Wrap(err, "failed to run migrations")
	}

	m.logger.Info().Msg("Migrations completed successfully")
	return nil
}
