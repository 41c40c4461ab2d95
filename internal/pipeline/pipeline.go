package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stanstork/jobmarket-etl/internal/cleaner"
	"github.com/stanstork/jobmarket-etl/internal/fetcher"
	"github.com/stanstork/jobmarket-etl/internal/models"
	"github.com/stanstork/jobmarket-etl/internal/repository"
)

// Stage identifies where in the pipeline an error occurred.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageSchema    Stage = "schema"
	StageLoad      Stage = "load"
)

// StageError wraps the error that stopped a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Extractor interface {
	Fetch(ctx context.Context, date string) (models.Dataset, fetcher.FetchStats, error)
}

type Transformer interface {
	Clean(ds models.Dataset) ([]models.JobListing, cleaner.CleanStats, error)
}

type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
}

type Loader interface {
	BulkUpsert(ctx context.Context, listings []models.JobListing) (repository.UpsertResult, error)
}

// Recorder receives the finished report, e.g. metrics.Recorder.
type Recorder interface {
	Observe(report models.RunReport)
	Push(ctx context.Context, source string) error
}

// RunNotifier receives the finished report, e.g. notification.Service.
type RunNotifier interface {
	RunFinished(ctx context.Context, report models.RunReport)
}

type Deps struct {
	Extractor   Extractor
	Transformer Transformer
	Schema      SchemaManager
	Loader      Loader
	Recorder    Recorder
	Notifier    RunNotifier
}

type Options struct {
	Source     string
	SchemaMode string
	// RunDate pins the target day; empty means yesterday in Location.
	RunDate  string
	Location *time.Location
	Now      func() time.Time
}

type Pipeline struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
}

func New(deps Deps, opts Options, logger zerolog.Logger) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

// TargetDate is the day Run will load.
func (p *Pipeline) TargetDate() string {
	if p.opts.RunDate != "" {
		return p.opts.RunDate
	}
	return fetcher.TargetDate(p.opts.Now(), p.opts.Location)
}

// Run loads the target day.
func (p *Pipeline) Run(ctx context.Context) (models.RunReport, error) {
	return p.RunForDate(ctx, p.TargetDate())
}

// RunForDate fetches, cleans and loads the exports for date. Any stage error
// stops the run and is returned as a *StageError; the report is still
// recorded and sent to the notifier.
func (p *Pipeline) RunForDate(ctx context.Context, date string) (report models.RunReport, err error) {
	report = models.RunReport{
		RunID:      uuid.NewString(),
		TargetDate: date,
		Source:     p.opts.Source,
		SchemaMode: p.opts.SchemaMode,
		StartedAt:  p.opts.Now(),
	}
	logger := p.logger.With().Str("run_id", report.RunID).Str("target_date", date).Logger()
	logger.Info().Msg("Starting run")

	defer func() {
		report.FinishedAt = p.opts.Now()
		if err != nil {
			report.Status = models.RunStatusFailed
			report.Error = err.Error()
			logger.Error().Err(err).Msg("Run failed")
		} else {
			report.Status = models.RunStatusSucceeded
		}
		p.finish(ctx, report)
	}()

	ds, fetchStats, err := p.deps.Extractor.Fetch(ctx, date)
	report.ObjectsListed = fetchStats.ObjectsListed
	report.ObjectsMatched = fetchStats.ObjectsMatched
	report.BytesFetched = fetchStats.BytesRead
	if err != nil {
		return report, &StageError{Stage: StageExtract, Err: err}
	}
	report.RowsFetched = ds.Len()

	listings, cleanStats, err := p.deps.Transformer.Clean(ds)
	if err != nil {
		return report, &StageError{Stage: StageTransform, Err: err}
	}
	report.RowsDeduped = cleanStats.Output
	report.RowsDropped = cleanStats.MissingKey

	if err := p.deps.Schema.EnsureSchema(ctx); err != nil {
		return report, &StageError{Stage: StageSchema, Err: err}
	}

	if len(listings) == 0 {
		logger.Warn().Msg("Nothing to load")
		return report, nil
	}

	res, err := p.deps.Loader.BulkUpsert(ctx, listings)
	report.RowsInserted = res.Inserted
	report.RowsConflicted = res.Conflicted
	if err != nil {
		return report, &StageError{Stage: StageLoad, Err: err}
	}

	logger.Info().
		Int64("inserted", res.Inserted).
		Int64("conflicted", res.Conflicted).
		Msg("Run complete")
	return report, nil
}

func (p *Pipeline) finish(ctx context.Context, report models.RunReport) {
	if p.deps.Recorder != nil {
		p.deps.Recorder.Observe(report)
		if err := p.deps.Recorder.Push(ctx, report.Source); err != nil {
			p.logger.Warn().Err(err).Msg("failed to push metrics")
		}
	}
	if p.deps.Notifier != nil {
		p.deps.Notifier.RunFinished(ctx, report)
	}
}
