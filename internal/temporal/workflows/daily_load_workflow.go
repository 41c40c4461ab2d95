package workflows

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/stanstork/jobmarket-etl/internal/config"
	"github.com/stanstork/jobmarket-etl/internal/fetcher"
	"github.com/stanstork/jobmarket-etl/internal/models"
	"github.com/stanstork/jobmarket-etl/internal/temporal"
	"github.com/stanstork/jobmarket-etl/internal/temporal/activities"
)

func DailyLoadWorkflow(ctx workflow.Context, params temporal.DailyLoadParams) (models.RunReport, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		// A failed day is rerun by hand with RunDate set.
		RetryPolicy: &sdktemporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)

	date := params.RunDate
	if date == "" {
		loc, err := time.LoadLocation(config.TimeZone)
		if err != nil {
			return models.RunReport{}, err
		}
		date = fetcher.TargetDate(workflow.Now(ctx), loc)
	}
	logger.Info("Starting daily load workflow", "TargetDate", date)

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities

	var report models.RunReport
	err := workflow.ExecuteActivity(ctx, a.RunDailyLoadActivity, date).Get(ctx, &report)
	if err != nil {
		logger.Error("Daily load workflow failed.", "TargetDate", date, "error", err)
		return report, err
	}

	logger.Info("Daily load workflow completed successfully.", "TargetDate", date, "RunID", report.RunID)
	return report, nil
}
