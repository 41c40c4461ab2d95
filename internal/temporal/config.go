package temporal

import "time"

// TaskQueueName is the Temporal task queue the daily load worker polls.
const TaskQueueName = "JOBMARKET_DAILY_LOAD"

// DailyLoadWorkflowIDPrefix prefixes daily load workflow IDs; the target date
// is appended.
const DailyLoadWorkflowIDPrefix = "jobmarket-daily-load-"

// DefaultActivityTimeout bounds one pipeline pass.
const DefaultActivityTimeout = 30 * time.Minute

// DailyLoadParams is the input of DailyLoadWorkflow.
type DailyLoadParams struct {
	// RunDate is YYYY-MM-DD. Empty means yesterday in the job time zone,
	// taken from workflow time.
	RunDate string
}

// WorkflowID returns the ID used when starting a load for date.
func WorkflowID(date string) string {
	return DailyLoadWorkflowIDPrefix + date
}
