package models

import "time"

type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunReport summarises one pipeline pass.
type RunReport struct {
	RunID          string    `json:"run_id"`
	TargetDate     string    `json:"target_date"`
	Source         string    `json:"source"`
	SchemaMode     string    `json:"schema_mode"`
	Status         RunStatus `json:"status"`
	ObjectsListed  int       `json:"objects_listed"`
	ObjectsMatched int       `json:"objects_matched"`
	BytesFetched   int64     `json:"bytes_fetched"`
	RowsFetched    int       `json:"rows_fetched"`
	RowsDeduped    int       `json:"rows_deduped"`
	RowsDropped    int       `json:"rows_dropped"`
	RowsInserted   int64     `json:"rows_inserted"`
	RowsConflicted int64     `json:"rows_conflicted"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Error          string    `json:"error,omitempty"`
}

func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r RunReport) Failed() bool {
	return r.Status == RunStatusFailed
}
