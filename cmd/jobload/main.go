package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/stanstork/jobmarket-etl/internal/config"
	"github.com/stanstork/jobmarket-etl/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		logger.Warn().Str("log_level", cfg.LogLevel).Msg("Unknown log level, using info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.URL())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to the database")
		return 1
	}
	defer db.Close()
	db.SetMaxOpenConns(2)

	if err := db.PingContext(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to ping database")
		return 1
	}

	p, err := pipeline.Build(cfg, db, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to set up pipeline")
		return 1
	}

	report, err := p.Run(ctx)
	if err != nil {
		return 1
	}

	logger.Info().
		Str("target_date", report.TargetDate).
		Int64("rows_inserted", report.RowsInserted).
		Dur("duration", report.Duration()).
		Msg("Job finished")
	return 0
}
