package cleaner

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/jobmarket-etl/internal/models"
)

const (
	jobKeyColumn  = "job_key"
	pubDateColumn = "pub_date"
)

// ErrMissingColumn is returned when a column the cleaner depends on is not in
// the dataset at all.
var ErrMissingColumn = errors.New("missing column")

// FieldError reports a cell that could not be converted. One bad cell fails
// the whole clean.
type FieldError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("row %d: %s: %v", e.Row, e.Column, e.Err)
	}
	return fmt.Sprintf("row %d: %s: invalid value %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

var errMissingValue = errors.New("value is missing")

// naTokens are cell values read as missing, matching the usual CSV reader
// defaults for NA markers.
var naTokens = map[string]struct{}{
	"#N/A": {}, "N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "nan": {}, "null": {}, "n/a": {}, "<NA>": {},
}

// CleanStats counts rows through each cleaning step.
type CleanStats struct {
	Input      int
	Duplicates int
	MissingKey int
	Output     int
}

type Cleaner struct {
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithClock overrides the source of the processing timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Cleaner) { c.now = now }
}

func New(loc *time.Location, logger zerolog.Logger, opts ...Option) *Cleaner {
	c := &Cleaner{
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "cleaner").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeColumn lowercases a header and replaces spaces with underscores.
func NormalizeColumn(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// pub_date must land in years 0001 through 9999.
var (
	minEpochMillis = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	maxEpochMillis = time.Date(9999, 12, 31, 23, 59, 59, 999e6, time.UTC).UnixMilli()
)

var errEpochOutOfRange = errors.New("epoch milliseconds out of range")

// EpochMillisToDate converts epoch milliseconds to a UTC calendar date.
func EpochMillisToDate(ms float64) time.Time {
	t := time.UnixMilli(int64(ms)).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Clean deduplicates ds by job key (first occurrence wins), normalizes column
// names, converts pub_date and stamps every listing with the same processing
// time. An empty dataset yields an empty result.
func (c *Cleaner) Clean(ds models.Dataset) ([]models.JobListing, CleanStats, error) {
	stats := CleanStats{Input: ds.Len()}
	if ds.Empty() {
		c.logger.Warn().Msg("No data to clean")
		return []models.JobListing{}, stats, nil
	}
	c.logger.Info().Int("rows", ds.Len()).Msg("Starting data cleaning process")

	// normalized name -> raw headers, first-seen order
	rename := make(map[string][]string, len(ds.Columns))
	for _, col := range ds.Columns {
		n := NormalizeColumn(col)
		rename[n] = append(rename[n], col)
	}
	if _, ok := rename[jobKeyColumn]; !ok {
		return nil, stats, errors.Wrapf(ErrMissingColumn, "no %s column in %v", jobKeyColumn, ds.Columns)
	}
	if _, ok := rename[pubDateColumn]; !ok {
		return nil, stats, errors.Wrapf(ErrMissingColumn, "no %s column in %v", pubDateColumn, ds.Columns)
	}

	stamp := c.now().UTC().Truncate(time.Second).In(c.loc)

	seen := make(map[string]struct{}, ds.Len())
	listings := make([]models.JobListing, 0, ds.Len())
	for i, raw := range ds.Rows {
		row := normalizeRow(raw, rename)

		key, ok := row[jobKeyColumn]
		if !ok {
			stats.MissingKey++
			continue
		}
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		listing, err := toListing(i, row)
		if err != nil {
			return nil, stats, err
		}
		listing.UpdateTimestamp = stamp
		listings = append(listings, listing)
	}
	stats.Output = len(listings)

	if stats.MissingKey > 0 {
		c.logger.Warn().Int("rows", stats.MissingKey).Msg("Dropped rows without a job key")
	}
	c.logger.Info().
		Int("duplicates", stats.Duplicates).
		Int("rows", stats.Output).
		Time("update_timestamp", stamp).
		Msg("Data cleaning complete")
	return listings, stats, nil
}

// normalizeRow re-keys a raw row by normalized column name, dropping missing
// cells. When several headers normalize to the same name the first present
// value wins.
func normalizeRow(raw models.Row, rename map[string][]string) map[string]string {
	row := make(map[string]string, len(rename))
	for name, sources := range rename {
		for _, src := range sources {
			v, ok := raw.Get(src)
			if !ok || isNA(v) {
				continue
			}
			row[name] = v
			break
		}
	}
	return row
}

func isNA(v string) bool {
	_, ok := naTokens[strings.TrimSpace(v)]
	return ok || strings.TrimSpace(v) == ""
}

func toListing(idx int, row map[string]string) (models.JobListing, error) {
	p := parser{row: row, idx: idx}
	l := models.JobListing{
		JobKey:              row[jobKeyColumn],
		FeedID:              p.integer("feed_id"),
		CompanySearch:       p.str("company_search"),
		CompanyOverviewLink: p.str("companyoverviewlink"),
		RatingSearch:        p.float("rating_search"),
		ReviewCountSearch:   p.integer("review_count_search"),
		TitleSearch:         p.str("title_search"),
		SalaryMax:           p.float("salary_max"),
		SalaryMin:           p.float("salary_min"),
		SalaryType:          p.str("salary_type"),
		LocationSearch:      p.str("location_search"),
		RelativeTime:        p.str("relative_time"),
		City:                p.str("city"),
		CityExtras:          p.str("city_extras"),
		Postal:              p.str("postal"),
		State:               p.str("state"),
		PubDate:             p.pubDate(),
		Currency:            p.str("currency"),
		SalaryInfo:          p.str("salary_info"),
		TaxonomyAttributes:  p.str("taxonomyattributes"),
		JobTypeSearch:       p.str("job_type_search"),
		Link:                p.str("link"),
		CompanyJob:          p.str("company_job"),
		OverviewLink:        p.str("overview_link"),
		ReviewLink:          p.str("review_link"),
		RatingJob:           p.float("rating_job"),
		ReviewCountJob:      p.integer("review_count_job"),
		TitleJob:            p.str("title_job"),
		Subtitle:            p.str("subtitle"),
		LocationJob:         p.str("location_job"),
		JobTypeJob:          p.str("job_type_job"),
		JobDescription:      p.str("job_description"),
	}
	if p.err != nil {
		return models.JobListing{}, p.err
	}
	return l, nil
}

// parser converts cells of one row, keeping the first error.
type parser struct {
	row map[string]string
	idx int
	err error
}

func (p *parser) fail(column, value string, err error) {
	if p.err == nil {
		p.err = &FieldError{Row: p.idx, Column: column, Value: value, Err: err}
	}
}

func (p *parser) str(column string) *string {
	v, ok := p.row[column]
	if !ok {
		return nil
	}
	return &v
}

func (p *parser) number(column string) (float64, string, bool) {
	v, ok := p.row[column]
	if !ok {
		return 0, "", false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.fail(column, v, errors.New("not a number"))
		return 0, v, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, v, false
	}
	return f, v, true
}

func (p *parser) float(column string) *float64 {
	f, _, ok := p.number(column)
	if !ok {
		return nil
	}
	return &f
}

func (p *parser) integer(column string) *int64 {
	f, v, ok := p.number(column)
	if !ok {
		return nil
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		p.fail(column, v, errors.New("not an integer"))
		return nil
	}
	n := int64(f)
	return &n
}

func (p *parser) pubDate() *time.Time {
	v, present := p.row[pubDateColumn]
	if !present {
		p.fail(pubDateColumn, "", errMissingValue)
		return nil
	}
	ms, _, ok := p.number(pubDateColumn)
	if !ok {
		// number already recorded a parse failure; NaN and Inf land here too
		p.fail(pubDateColumn, v, errors.New("not epoch milliseconds"))
		return nil
	}
	if ms < float64(minEpochMillis) || ms > float64(maxEpochMillis) {
		p.fail(pubDateColumn, v, errEpochOutOfRange)
		return nil
	}
	d := EpochMillisToDate(ms)
	return &d
}
