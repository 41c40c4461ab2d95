package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/jobmarket-etl/internal/models"
	"github.com/stanstork/jobmarket-etl/internal/storage"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FetchStats counts what a fetch touched.
type FetchStats struct {
	ObjectsListed  int
	ObjectsMatched int
	BytesRead      int64
}

type Fetcher struct {
	store  storage.ObjectStore
	bucket string
	source string
	logger zerolog.Logger
}

// New returns a Fetcher reading CSV exports for source from bucket.
func New(store storage.ObjectStore, bucket, source string, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		store:  store,
		bucket: bucket,
		source: source,
		logger: logger.With().Str("component", "fetcher").Logger(),
	}
}

// TargetDate returns the calendar day before now in loc, as YYYY-MM-DD.
func TargetDate(now time.Time, loc *time.Location) string {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()-1, 0, 0, 0, 0, loc).Format(time.DateOnly)
}

// Matches reports whether key is one of the source's CSV exports.
func (f *Fetcher) Matches(key string) bool {
	return strings.Contains(key, f.source) && strings.HasSuffix(key, ".csv")
}

// Fetch downloads every matching export whose key starts with date and
// concatenates them in listing order. No matching objects is not an error.
func (f *Fetcher) Fetch(ctx context.Context, date string) (models.Dataset, FetchStats, error) {
	var (
		ds    models.Dataset
		stats FetchStats
	)
	f.logger.Info().Str("date", date).Msg("Fetching files")

	objects, err := f.store.ListObjects(ctx, f.bucket, date)
	if err != nil {
		return ds, stats, errors.Wrapf(err, "failed to list objects for %s", date)
	}
	stats.ObjectsListed = len(objects)

	for _, obj := range objects {
		if !f.Matches(obj.Key) {
			continue
		}
		stats.ObjectsMatched++

		f.logger.Info().Str("key", obj.Key).Int64("size", obj.Size).Msg("Downloading object")
		header, rows, n, err := f.readCSV(ctx, obj.Key)
		if err != nil {
			return models.Dataset{}, stats, err
		}
		stats.BytesRead += n
		ds.Append(header, rows)
	}

	if stats.ObjectsMatched == 0 {
		f.logger.Warn().Str("date", date).Str("source", f.source).Msg("No files found for date")
	}
	f.logger.Info().Int("rows", ds.Len()).Int("files", stats.ObjectsMatched).Msg("Total rows combined")
	return ds, stats, nil
}

func (f *Fetcher) readCSV(ctx context.Context, key string) ([]string, []models.Row, int64, error) {
	body, err := f.store.GetObject(ctx, f.bucket, key)
	if err != nil {
		return nil, nil, 0, errors.Wrapf(err, "failed to download %s", key)
	}
	defer body.Close()

	counter := &countingReader{r: body}
	header, rows, err := DecodeCSV(counter)
	if err != nil {
		return nil, nil, counter.n, errors.Wrapf(err, "failed to parse %s", key)
	}
	return header, rows, counter.n, nil
}

// DecodeCSV parses a header row followed by records. Short rows leave their
// trailing columns absent; a row longer than the header is an error.
func DecodeCSV(r io.Reader) ([]string, []models.Row, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "error reading CSV header")
	}
	header = uniqueHeader(header)

	var rows []models.Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "error reading CSV record")
		}
		if len(record) > len(header) {
			line, _ := reader.FieldPos(0)
			return nil, nil, errors.Errorf("line %d: expected %d fields, saw %d", line, len(header), len(record))
		}
		row := make(models.Row, len(header))
		for i, cell := range record {
			if cell != "" {
				row[header[i]] = cell
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// uniqueHeader suffixes repeated names with .1, .2, ... so no column is lost.
func uniqueHeader(header []string) []string {
	out := make([]string, len(header))
	counts := make(map[string]int, len(header))
	for i, h := range header {
		name := h
		if n := counts[h]; n > 0 {
			name = h + "." + strconv.Itoa(n)
		}
		counts[h]++
		out[i] = name
	}
	return out
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
