package models

import "time"

// Row is one CSV record keyed by header name. A header that is missing from
// the row, or whose cell is empty, is treated as an absent value.
type Row map[string]string

// Get returns the cell for column and whether it holds a value.
func (r Row) Get(column string) (string, bool) {
	v, ok := r[column]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Dataset is the concatenation of every fetched CSV file. Columns is the union
// of all headers in first-seen order.
type Dataset struct {
	Columns []string
	Rows    []Row
}

func (d Dataset) Len() int {
	return len(d.Rows)
}

func (d Dataset) Empty() bool {
	return len(d.Rows) == 0
}

// Append adds the rows of a single file, extending Columns with any header
// not seen before.
func (d *Dataset) Append(header []string, rows []Row) {
	seen := make(map[string]struct{}, len(d.Columns))
	for _, c := range d.Columns {
		seen[c] = struct{}{}
	}
	for _, h := range header {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		d.Columns = append(d.Columns, h)
	}
	d.Rows = append(d.Rows, rows...)
}

// JobListing is a cleaned listing ready for job_market_raw.raw_job_data.
// Pointer fields are nullable columns.
type JobListing struct {
	JobKey              string     `json:"job_key" db:"job_key"`
	FeedID              *int64     `json:"feed_id" db:"feed_id"`
	CompanySearch       *string    `json:"company_search" db:"company_search"`
	CompanyOverviewLink *string    `json:"companyoverviewlink" db:"companyoverviewlink"`
	RatingSearch        *float64   `json:"rating_search" db:"rating_search"`
	ReviewCountSearch   *int64     `json:"review_count_search" db:"review_count_search"`
	TitleSearch         *string    `json:"title_search" db:"title_search"`
	SalaryMax           *float64   `json:"salary_max" db:"salary_max"`
	SalaryMin           *float64   `json:"salary_min" db:"salary_min"`
	SalaryType          *string    `json:"salary_type" db:"salary_type"`
	LocationSearch      *string    `json:"location_search" db:"location_search"`
	RelativeTime        *string    `json:"relative_time" db:"relative_time"`
	City                *string    `json:"city" db:"city"`
	CityExtras          *string    `json:"city_extras" db:"city_extras"`
	Postal              *string    `json:"postal" db:"postal"`
	State               *string    `json:"state" db:"state"`
	PubDate             *time.Time `json:"pub_date" db:"pub_date"`
	Currency            *string    `json:"currency" db:"currency"`
	SalaryInfo          *string    `json:"salary_info" db:"salary_info"`
	TaxonomyAttributes  *string    `json:"taxonomyattributes" db:"taxonomyattributes"`
	JobTypeSearch       *string    `json:"job_type_search" db:"job_type_search"`
	Link                *string    `json:"link" db:"link"`
	CompanyJob          *string    `json:"company_job" db:"company_job"`
	OverviewLink        *string    `json:"overview_link" db:"overview_link"`
	ReviewLink          *string    `json:"review_link" db:"review_link"`
	RatingJob           *float64   `json:"rating_job" db:"rating_job"`
	ReviewCountJob      *int64     `json:"review_count_job" db:"review_count_job"`
	TitleJob            *string    `json:"title_job" db:"title_job"`
	Subtitle            *string    `json:"subtitle" db:"subtitle"`
	LocationJob         *string    `json:"location_job" db:"location_job"`
	JobTypeJob          *string    `json:"job_type_job" db:"job_type_job"`
	JobDescription      *string    `json:"job_description" db:"job_description"`
	UpdateTimestamp     time.Time  `json:"update_timestamp" db:"update_timestamp"`
}

// ListingColumns is the destination column order for raw_job_data.
var ListingColumns = []string{
	"job_key", "feed_id", "company_search", "companyoverviewlink", "rating_search",
	"review_count_search", "title_search", "salary_max", "salary_min", "salary_type",
	"location_search", "relative_time", "city", "city_extras", "postal",
	"state", "pub_date", "currency", "salary_info", "taxonomyattributes",
	"job_type_search", "link", "company_job", "overview_link", "review_link",
	"rating_job", "review_count_job", "title_job", "subtitle", "location_job",
	"job_type_job", "job_description", "update_timestamp",
}
