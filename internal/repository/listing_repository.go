package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/jobmarket-etl/internal/models"
)

const (
	ListingSchema = "job_market_raw"
	ListingTable  = ListingSchema + ".raw_job_data"
)

// Postgres caps bind parameters per statement at 65535.
const maxBindParams = 65535

// DefaultChunkSize keeps one INSERT well under the bind parameter limit.
const DefaultChunkSize = 1000

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS job_market_raw.raw_job_data (
		job_key              varchar(255) PRIMARY KEY,
		feed_id              int,
		company_search       varchar(255),
		companyoverviewlink  varchar(255),
		rating_search        float,
		review_count_search  int,
		title_search         varchar(255),
		salary_max           float,
		salary_min           float,
		salary_type          varchar(50),
		location_search      varchar(255),
		relative_time        varchar(50),
		city                 varchar(100),
		city_extras          varchar(100),
		postal               varchar(20),
		state                varchar(50),
		pub_date             date,
		currency             varchar(20),
		salary_info          text,
		taxonomyattributes   text,
		job_type_search      varchar(100),
		link                 text,
		company_job          varchar(255),
		overview_link        varchar(255),
		review_link          text,
		rating_job           float,
		review_count_job     int,
		title_job            varchar(255),
		subtitle             varchar(255),
		location_job         varchar(255),
		job_type_job         varchar(100),
		job_description      text,
		update_timestamp     timestamp
	)
`

// UpsertResult tells a caller what a BulkUpsert did. A nil error with
// Inserted == 0 means every row already existed.
type UpsertResult struct {
	Attempted  int64
	Inserted   int64
	Conflicted int64
	Statements int
}

type ListingRepository interface {
	// EnsureSchema makes the destination table ready for BulkUpsert.
	EnsureSchema(ctx context.Context) error
	// BulkUpsert inserts listings, leaving rows whose job_key exists untouched.
	BulkUpsert(ctx context.Context, listings []models.JobListing) (UpsertResult, error)
}

type listingRepository struct {
	db        *sql.DB
	chunkSize int
	logger    zerolog.Logger
}

func NewListingRepository(db *sql.DB, logger zerolog.Logger) ListingRepository {
	return newListingRepository(db, DefaultChunkSize, logger)
}

func newListingRepository(db *sql.DB, chunkSize int, logger zerolog.Logger) *listingRepository {
	if limit := maxBindParams / len(models.ListingColumns); chunkSize <= 0 || chunkSize > limit {
		chunkSize = limit
	}
	return &listingRepository{
		db:        db,
		chunkSize: chunkSize,
		logger:    logger.With().Str("component", "listing_repository").Logger(),
	}
}

// EnsureSchema drops and recreates the destination table, emptying it.
func (r *listingRepository) EnsureSchema(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			r.logger.Error().Err(err).Msg("Error creating table")
		}
	}()

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to acquire connection")
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stmts := []string{
		"CREATE SCHEMA IF NOT EXISTS " + ListingSchema,
		"DROP TABLE IF EXISTS " + ListingTable,
		createTableSQL,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute %q", firstLine(stmt))
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit schema")
	}

	r.logger.Info().Str("table", ListingTable).Msg("Table created successfully")
	return nil
}

func (r *listingRepository) BulkUpsert(ctx context.Context, listings []models.JobListing) (res UpsertResult, err error) {
	if len(listings) == 0 {
		return res, nil
	}
	res.Attempted = int64(len(listings))
	defer func() {
		if err != nil {
			r.logger.Error().Err(err).Int64("attempted", res.Attempted).Msg("Error inserting data")
		}
	}()

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return res, errors.Wrap(err, "failed to acquire connection")
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return res, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var inserted int64
	for start := 0; start < len(listings); start += r.chunkSize {
		end := start + r.chunkSize
		if end > len(listings) {
			end = len(listings)
		}
		chunk := listings[start:end]

		query, args := buildUpsert(chunk)
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return res, errors.Wrapf(err, "failed to insert rows %d-%d", start, end-1)
		}
		res.Statements++

		n, err := result.RowsAffected()
		if err != nil {
			return res, errors.Wrap(err, "failed to get rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return res, errors.Wrap(err, "failed to commit inserts")
	}

	res.Inserted = inserted
	res.Conflicted = res.Attempted - inserted
	r.logger.Info().
		Int64("inserted", res.Inserted).
		Int64("conflicted", res.Conflicted).
		Int("statements", res.Statements).
		Msg("Data inserted successfully")
	return res, nil
}

// buildUpsert renders one multi-row INSERT for rows.
func buildUpsert(rows []models.JobListing) (string, []interface{}) {
	cols := len(models.ListingColumns)
	args := make([]interface{}, 0, len(rows)*cols)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(ListingTable)
	b.WriteString(" (")
	b.WriteString(strings.Join(models.ListingColumns, ", "))
	b.WriteString(") VALUES ")

	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < cols; j++ {
			if j > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "$%d", i*cols+j+1)
		}
		b.WriteByte(')')
		args = append(args, listingValues(row)...)
	}
	b.WriteString(" ON CONFLICT (job_key) DO NOTHING")
	return b.String(), args
}

// listingValues returns the column values for l in ListingColumns order.
// Missing values become SQL NULL.
func listingValues(l models.JobListing) []interface{} {
	return []interface{}{
		l.JobKey,
		nullInt(l.FeedID),
		nullString(l.CompanySearch),
		nullString(l.CompanyOverviewLink),
		nullFloat(l.RatingSearch),
		nullInt(l.ReviewCountSearch),
		nullString(l.TitleSearch),
		nullFloat(l.SalaryMax),
		nullFloat(l.SalaryMin),
		nullString(l.SalaryType),
		nullString(l.LocationSearch),
		nullString(l.RelativeTime),
		nullString(l.City),
		nullString(l.CityExtras),
		nullString(l.Postal),
		nullString(l.State),
		nullDate(l.PubDate),
		nullString(l.Currency),
		nullString(l.SalaryInfo),
		nullString(l.TaxonomyAttributes),
		nullString(l.JobTypeSearch),
		nullString(l.Link),
		nullString(l.CompanyJob),
		nullString(l.OverviewLink),
		nullString(l.ReviewLink),
		nullFloat(l.RatingJob),
		nullInt(l.ReviewCountJob),
		nullString(l.TitleJob),
		nullString(l.Subtitle),
		nullString(l.LocationJob),
		nullString(l.JobTypeJob),
		nullString(l.JobDescription),
		nullTimestamp(l.UpdateTimestamp),
	}
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(n *int64) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// nullDate sends a date as YYYY-MM-DD; nil or zero dates become NULL.
func nullDate(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(time.DateOnly)
}

// nullTimestamp sends the wall-clock time of t; the column has no zone.
func nullTimestamp(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format("2006-01-02 15:04:05")
}

func firstLine(stmt string) string {
	s := strings.TrimSpace(stmt)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
