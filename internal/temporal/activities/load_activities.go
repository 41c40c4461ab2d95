package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/stanstork/jobmarket-etl/internal/models"
	"github.com/stanstork/jobmarket-etl/internal/pipeline"
)

// Runner runs one pipeline pass for a date, e.g. *pipeline.Pipeline.
type Runner interface {
	RunForDate(ctx context.Context, date string) (models.RunReport, error)
}

type Activities struct {
	Runner Runner
}

// RunDailyLoadActivity runs the whole fetch, clean and load pass inside one
// activity so the dataset never crosses the workflow boundary. Failures are
// non-retryable and typed with the failing stage.
func (a *Activities) RunDailyLoadActivity(ctx context.Context, date string) (models.RunReport, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Running daily load", "TargetDate", date)

	report, err := a.Runner.RunForDate(ctx, date)
	if err != nil {
		errType := "pipeline"
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			errType = string(stageErr.Stage)
		}
		logger.Error("Daily load failed", "RunID", report.RunID, "error", err)
		return report, sdktemporal.NewNonRetryableApplicationError(err.Error(), errType, err)
	}

	logger.Info("Daily load complete",
		"RunID", report.RunID,
		"RowsInserted", report.RowsInserted,
		"RowsConflicted", report.RowsConflicted)
	return report, nil
}
