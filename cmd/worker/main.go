package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/stanstork/jobmarket-etl/internal/config"
	"github.com/stanstork/jobmarket-etl/internal/fetcher"
	"github.com/stanstork/jobmarket-etl/internal/models"
	"github.com/stanstork/jobmarket-etl/internal/pipeline"
	"github.com/stanstork/jobmarket-etl/internal/temporal"
	"github.com/stanstork/jobmarket-etl/internal/temporal/activities"
	"github.com/stanstork/jobmarket-etl/internal/temporal/workflows"
)

func main() {
	start := flag.Bool("start", false, "start a DailyLoadWorkflow for RUN_DATE (default yesterday) and wait for it instead of running a worker")
	flag.Parse()

	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporal.NewTemporalAdapter(logger),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	if *start {
		if err := startDailyLoad(temporalClient, cfg, logger); err != nil {
			logger.Error().Err(err).Msg("Daily load workflow failed")
			temporalClient.Close()
			os.Exit(1)
		}
		return
	}

	db, err := sql.Open("postgres", cfg.Database.URL())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	db.SetMaxOpenConns(2)

	p, err := pipeline.Build(cfg, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up pipeline")
	}

	w := worker.New(temporalClient, temporal.TaskQueueName, worker.Options{
		// One load at a time against the database.
		MaxConcurrentActivityExecutionSize: 1,
	})
	w.RegisterWorkflow(workflows.DailyLoadWorkflow)
	w.RegisterActivity(&activities.Activities{Runner: p})

	logger.Info().Str("task_queue", temporal.TaskQueueName).Msg("Starting Temporal worker...")
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal().Err(err).Msg("Unable to start worker")
	}
	logger.Info().Msg("Temporal worker stopped.")
}

func startDailyLoad(c tc.Client, cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	date := cfg.Job.RunDate
	if date == "" {
		date = fetcher.TargetDate(time.Now(), cfg.Location())
	}

	run, err := c.ExecuteWorkflow(ctx, tc.StartWorkflowOptions{
		ID:        temporal.WorkflowID(date),
		TaskQueue: temporal.TaskQueueName,
	}, workflows.DailyLoadWorkflow, temporal.DailyLoadParams{RunDate: date})
	if err != nil {
		return err
	}
	logger.Info().Str("workflow_id", run.GetID()).Str("run_id", run.GetRunID()).Msg("Started daily load workflow")

	var report models.RunReport
	if err := run.Get(ctx, &report); err != nil {
		return err
	}
	logger.Info().
		Str("target_date", report.TargetDate).
		Int64("rows_inserted", report.RowsInserted).
		Int64("rows_conflicted", report.RowsConflicted).
		Msg("Daily load workflow completed")
	return nil
}
