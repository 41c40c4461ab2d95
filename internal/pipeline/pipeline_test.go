package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/jobmarket-etl/internal/cleaner"
	"github.com/stanstork/jobmarket-etl/internal/fetcher"
	"github.com/stanstork/jobmarket-etl/internal/models"
	"github.com/stanstork/jobmarket-etl/internal/repository"
	"github.com/stanstork/jobmarket-etl/internal/storage"
)

const bucket = "exports"

var runAt = time.Date(2024, 3, 15, 14, 30, 45, 0, time.UTC)

type fakeRepo struct {
	schemaCalls int
	schemaErr   error
	upserts     [][]models.JobListing
	seen        map[string]bool
	upsertErr   error
}

func (f *fakeRepo) EnsureSchema(context.Context) error {
	f.schemaCalls++
	return f.schemaErr
}

func (f *fakeRepo) BulkUpsert(_ context.Context, listings []models.JobListing) (repository.UpsertResult, error) {
	f.upserts = append(f.upserts, listings)
	if f.upsertErr != nil {
		return repository.UpsertResult{Attempted: int64(len(listings))}, f.upsertErr
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	res := repository.UpsertResult{Attempted: int64(len(listings)), Statements: 1}
	for _, l := range listings {
		if f.seen[l.JobKey] {
			res.Conflicted++
			continue
		}
		f.seen[l.JobKey] = true
		res.Inserted++
	}
	return res, nil
}

type fakeRecorder struct {
	observed []models.RunReport
	pushed   []string
	pushErr  error
}

func (f *fakeRecorder) Observe(report models.RunReport) {
	f.observed = append(f.observed, report)
}

func (f *fakeRecorder) Push(_ context.Context, source string) error {
	f.pushed = append(f.pushed, source)
	return f.pushErr
}

type fakeNotifier struct {
	reports []models.RunReport
}

func (f *fakeNotifier) RunFinished(_ context.Context, report models.RunReport) {
	f.reports = append(f.reports, report)
}

type harness struct {
	store    *storage.MemoryStore
	repo     *fakeRepo
	recorder *fakeRecorder
	notifier *fakeNotifier
	pipeline *Pipeline
}

func newHarness(t *testing.T, runDate string) *harness {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	h := &harness{
		store:    storage.NewMemoryStore(),
		repo:     &fakeRepo{},
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
	}
	clock := func() time.Time { return runAt }
	h.pipeline = New(Deps{
		Extractor:   fetcher.New(h.store, bucket, "indeed", zerolog.Nop()),
		Transformer: cleaner.New(loc, zerolog.Nop(), cleaner.WithClock(clock)),
		Schema:      h.repo,
		Loader:      h.repo,
		Recorder:    h.recorder,
		Notifier:    h.notifier,
	}, Options{
		Source:     "indeed",
		SchemaMode: "recreate",
		RunDate:    runDate,
		Location:   loc,
		Now:        clock,
	}, zerolog.Nop())
	return h
}

const exportCSV = "Job Key,Title Job,Company Job,pub_date\n" +
	"A,Engineer,Acme,1700000000000\n" +
	"B,Analyst,Globex,1700000000000\n"

func TestTargetDateDefaultsToYesterdayEastern(t *testing.T) {
	h := newHarness(t, "")
	assert.Equal(t, "2024-03-14", h.pipeline.TargetDate())

	h = newHarness(t, "2023-11-14")
	assert.Equal(t, "2023-11-14", h.pipeline.TargetDate())
}

func TestRunLoadsYesterdaysExports(t *testing.T) {
	h := newHarness(t, "")
	h.store.Put(bucket, "2024-03-14_indeed_part1.csv", []byte(exportCSV))
	h.store.Put(bucket, "2024-03-14_indeed_part2.csv", []byte("Job Key,Title Job,Company Job,pub_date\nA,Other,Other,1700000000000\nC,Nurse,Initech,1700000000000\n"))
	h.store.Put(bucket, "2024-03-14_linkedin.csv", []byte(exportCSV))
	h.store.Put(bucket, "2024-03-13_indeed.csv", []byte(exportCSV))

	report, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSucceeded, report.Status)
	assert.Equal(t, "2024-03-14", report.TargetDate)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.ObjectsMatched)
	assert.Equal(t, 4, report.RowsFetched)
	assert.Equal(t, 3, report.RowsDeduped)
	assert.Equal(t, int64(3), report.RowsInserted)

	require.Len(t, h.repo.upserts, 1)
	assert.Equal(t, 1, h.repo.schemaCalls)
	first := h.repo.upserts[0][0]
	assert.Equal(t, "A", first.JobKey)
	require.NotNil(t, first.TitleJob)
	assert.Equal(t, "Engineer", *first.TitleJob)

	require.Len(t, h.recorder.observed, 1)
	assert.Equal(t, []string{"indeed"}, h.recorder.pushed)
	require.Len(t, h.notifier.reports, 1)
	assert.Equal(t, report, h.notifier.reports[0])
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t, "2024-03-14")
	h.store.Put(bucket, "2024-03-14_indeed.csv", []byte(exportCSV))

	_, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)
	report, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), report.RowsInserted)
	assert.Equal(t, int64(2), report.RowsConflicted)
	assert.Len(t, h.repo.seen, 2)
}

func TestRunWithNoExportsLoadsNothing(t *testing.T) {
	h := newHarness(t, "")
	h.store.Put(bucket, "2024-03-13_indeed.csv", []byte(exportCSV))

	report, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSucceeded, report.Status)
	assert.Equal(t, 0, report.ObjectsMatched)
	assert.Empty(t, h.repo.upserts)
	require.Len(t, h.notifier.reports, 1)
}

func TestRunStopsOnFetchError(t *testing.T) {
	h := newHarness(t, "")
	h.store.ListErr = errors.New("access denied")

	report, err := h.pipeline.Run(context.Background())
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageExtract, stageErr.Stage)
	assert.Equal(t, models.RunStatusFailed, report.Status)
	assert.Contains(t, report.Error, "access denied")
	assert.Zero(t, h.repo.schemaCalls)
	assert.Empty(t, h.repo.upserts)
	require.Len(t, h.notifier.reports, 1)
	assert.True(t, h.notifier.reports[0].Failed())
}

func TestRunStopsOnCleanError(t *testing.T) {
	h := newHarness(t, "")
	h.store.Put(bucket, "2024-03-14_indeed.csv", []byte("job_key,pub_date\nA,yesterday\n"))

	_, err := h.pipeline.Run(context.Background())
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageTransform, stageErr.Stage)

	var fieldErr *cleaner.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "pub_date", fieldErr.Column)
	assert.Empty(t, h.repo.upserts)
}

func TestRunPropagatesSchemaError(t *testing.T) {
	h := newHarness(t, "")
	h.store.Put(bucket, "2024-03-14_indeed.csv", []byte(exportCSV))
	h.repo.schemaErr = errors.New("permission denied for database")

	_, err := h.pipeline.Run(context.Background())

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSchema, stageErr.Stage)
	assert.Empty(t, h.repo.upserts)
}

func TestRunPropagatesLoadError(t *testing.T) {
	h := newHarness(t, "")
	h.store.Put(bucket, "2024-03-14_indeed.csv", []byte(exportCSV))
	loadErr := errors.New("connection reset by peer")
	h.repo.upsertErr = loadErr

	report, err := h.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, loadErr)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageLoad, stageErr.Stage)
	assert.Equal(t, "load: connection reset by peer", err.Error())
	assert.Equal(t, models.RunStatusFailed, report.Status)
	require.Len(t, h.recorder.observed, 1)
	assert.True(t, h.recorder.observed[0].Failed())
}

func TestRunIgnoresPushFailure(t *testing.T) {
	h := newHarness(t, "")
	h.store.Put(bucket, "2024-03-14_indeed.csv", []byte(exportCSV))
	h.recorder.pushErr = errors.New("gateway unreachable")

	report, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, report.Status)
}
