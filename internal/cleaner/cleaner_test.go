package cleaner

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/jobmarket-etl/internal/models"
)

var fixedNow = time.Date(2024, 3, 15, 14, 30, 45, 123456789, time.UTC)

func newCleaner(t *testing.T) *Cleaner {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return New(loc, zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))
}

func dataset(columns []string, rows ...[]string) models.Dataset {
	var ds models.Dataset
	var out []models.Row
	for _, r := range rows {
		row := models.Row{}
		for i, v := range r {
			if v != "" {
				row[columns[i]] = v
			}
		}
		out = append(out, row)
	}
	ds.Append(columns, out)
	return ds
}

func TestNormalizeColumn(t *testing.T) {
	cases := map[string]string{
		"Job Key":             "job_key",
		"Company Search":      "company_search",
		"companyOverviewLink": "companyoverviewlink",
		"pub_date":            "pub_date",
		"Review  Count":       "review__count",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeColumn(in), in)
	}
}

func TestEpochMillisToDate(t *testing.T) {
	d := EpochMillisToDate(1700000000000)
	assert.Equal(t, "2023-11-14", d.Format(time.DateOnly))
	assert.Equal(t, 0, d.Hour())
	assert.Equal(t, time.UTC, d.Location())
}

func TestCleanDeduplicatesFirstOccurrence(t *testing.T) {
	ds := dataset(
		[]string{"Job Key", "Company Search", "pub_date"},
		[]string{"A", "first", "1700000000000"},
		[]string{"A", "second", "1700000000000"},
		[]string{"B", "third", "1700000000000"},
	)

	listings, stats, err := newCleaner(t).Clean(ds)
	require.NoError(t, err)

	require.Len(t, listings, 2)
	assert.Equal(t, "A", listings[0].JobKey)
	require.NotNil(t, listings[0].CompanySearch)
	assert.Equal(t, "first", *listings[0].CompanySearch)
	assert.Equal(t, "B", listings[1].JobKey)
	assert.Equal(t, "third", *listings[1].CompanySearch)

	assert.Equal(t, CleanStats{Input: 3, Duplicates: 1, Output: 2}, stats)
}

func TestCleanConvertsFields(t *testing.T) {
	ds := dataset(
		[]string{"Job Key", "feed_id", "Rating Search", "review_count_search", "salary_max", "postal", "pub_date", "Unknown Extra"},
		[]string{"A", "12.0", "4.5", "1200", "", "02115", "1700000000000", "ignored"},
		[]string{"B", "", "NaN", "", "95000", "", "1700000000000.0", ""},
	)

	listings, _, err := newCleaner(t).Clean(ds)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	a := listings[0]
	require.NotNil(t, a.FeedID)
	assert.Equal(t, int64(12), *a.FeedID)
	assert.InDelta(t, 4.5, *a.RatingSearch, 1e-9)
	assert.Equal(t, int64(1200), *a.ReviewCountSearch)
	assert.Nil(t, a.SalaryMax)
	assert.Equal(t, "02115", *a.Postal)
	require.NotNil(t, a.PubDate)
	assert.Equal(t, "2023-11-14", a.PubDate.Format(time.DateOnly))

	b := listings[1]
	assert.Nil(t, b.FeedID)
	assert.Nil(t, b.RatingSearch)
	assert.Nil(t, b.Postal)
	assert.InDelta(t, 95000.0, *b.SalaryMax, 1e-9)
	assert.Equal(t, "2023-11-14", b.PubDate.Format(time.DateOnly))
}

func TestCleanStampsSharedEasternTimestamp(t *testing.T) {
	ds := dataset(
		[]string{"Job Key", "pub_date"},
		[]string{"A", "1700000000000"},
		[]string{"B", "1700000000000"},
	)

	listings, _, err := newCleaner(t).Clean(ds)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, listings[0].UpdateTimestamp, listings[1].UpdateTimestamp)
	ts := listings[0].UpdateTimestamp
	assert.Equal(t, "America/New_York", ts.Location().String())
	assert.Equal(t, "2024-03-15 10:30:45", ts.Format(time.DateTime))
	assert.Zero(t, ts.Nanosecond())
}

func TestCleanFailsOnBadPubDate(t *testing.T) {
	cases := map[string][]string{
		"missing":     {"A", ""},
		"non numeric": {"A", "yesterday"},
		"far future":  {"A", "1e17"},
		"huge":        {"A", "1e30"},
		"huge past":   {"A", "-1e30"},
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			ds := dataset([]string{"Job Key", "pub_date"}, []string{"OK", "1700000000000"}, row)

			listings, _, err := newCleaner(t).Clean(ds)
			require.Error(t, err)
			assert.Nil(t, listings)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, "pub_date", fe.Column)
			assert.Equal(t, 1, fe.Row)
		})
	}
}

func TestCleanAcceptsEpochBounds(t *testing.T) {
	ds := dataset([]string{"Job Key", "pub_date"},
		[]string{"A", "-62135596800000"},
		[]string{"B", "253402300799999"})

	listings, _, err := newCleaner(t).Clean(ds)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "0001-01-01", listings[0].PubDate.Format(time.DateOnly))
	assert.Equal(t, "9999-12-31", listings[1].PubDate.Format(time.DateOnly))
}

func TestCleanFailsOnNonNumericField(t *testing.T) {
	ds := dataset([]string{"Job Key", "review_count_job", "pub_date"}, []string{"A", "many", "1700000000000"})

	_, _, err := newCleaner(t).Clean(ds)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "review_count_job", fe.Column)
	assert.Equal(t, "many", fe.Value)
}

func TestCleanMissingColumns(t *testing.T) {
	_, _, err := newCleaner(t).Clean(dataset([]string{"Title"}, []string{"x"}))
	assert.True(t, errors.Is(err, ErrMissingColumn))

	_, _, err = newCleaner(t).Clean(dataset([]string{"Job Key"}, []string{"A"}))
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestCleanDropsRowsWithoutKey(t *testing.T) {
	ds := dataset(
		[]string{"Job Key", "pub_date"},
		[]string{"", "1700000000000"},
		[]string{"A", "1700000000000"},
	)

	listings, stats, err := newCleaner(t).Clean(ds)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, 1, stats.MissingKey)
}

func TestCleanEmptyDataset(t *testing.T) {
	listings, stats, err := newCleaner(t).Clean(models.Dataset{})
	require.NoError(t, err)
	assert.Empty(t, listings)
	assert.Equal(t, 0, stats.Output)
}
