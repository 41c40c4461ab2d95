package pipeline

import (
	"database/sql"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/jobmarket-etl/internal/cleaner"
	"github.com/stanstork/jobmarket-etl/internal/config"
	"github.com/stanstork/jobmarket-etl/internal/fetcher"
	"github.com/stanstork/jobmarket-etl/internal/metrics"
	"github.com/stanstork/jobmarket-etl/internal/migration"
	"github.com/stanstork/jobmarket-etl/internal/notification"
	"github.com/stanstork/jobmarket-etl/internal/repository"
	"github.com/stanstork/jobmarket-etl/internal/storage"
)

// Build wires a Pipeline from cfg against the S3 bucket and db.
func Build(cfg *config.Config, db *sql.DB, logger zerolog.Logger) (*Pipeline, error) {
	store, err := storage.NewMinioStore(cfg.Storage, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create object store client")
	}
	return BuildWithStore(cfg, store, db, logger)
}

// BuildWithStore is Build with an explicit object store.
func BuildWithStore(cfg *config.Config, store storage.ObjectStore, db *sql.DB, logger zerolog.Logger) (*Pipeline, error) {
	loc := cfg.Location()
	repo := repository.NewListingRepository(db, logger)

	var schema SchemaManager = repo
	if cfg.Job.SchemaMode == config.SchemaModeMigrate {
		schema = migration.NewMigrator(db, logger)
	}

	notifiers := []notification.Notifier{notification.NewLogNotifier(logger)}
	if cfg.Email.Enabled() {
		email, err := notification.NewEmailNotifier(cfg.Email, logger)
		if err != nil {
			return nil, errors.Wrap(err, "failed to configure email notifier")
		}
		notifiers = append(notifiers, email)
	}

	deps := Deps{
		Extractor:   fetcher.New(store, cfg.Storage.Bucket, cfg.Job.Source, logger),
		Transformer: cleaner.New(loc, logger),
		Schema:      schema,
		Loader:      repo,
		Recorder:    metrics.NewRecorder(cfg.Metrics.PushgatewayURL, logger),
		Notifier:    notification.NewService(logger, notifiers...),
	}
	return New(deps, Options{
		Source:     cfg.Job.Source,
		SchemaMode: cfg.Job.SchemaMode,
		RunDate:    cfg.Job.RunDate,
		Location:   loc,
	}, logger), nil
}
