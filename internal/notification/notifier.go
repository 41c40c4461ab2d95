package notification

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stanstork/jobmarket-etl/internal/models"
)

// Notifier delivers a finished run report to one channel.
type Notifier interface {
	Notify(ctx context.Context, report models.RunReport) error
}

// LogNotifier writes the report as a structured log line.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("notifier", "log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, report models.RunReport) error {
	var event *zerolog.Event
	if report.Failed() {
		event = n.logger.Error().Str("error", report.Error)
	} else {
		event = n.logger.Info()
	}
	event.
		Str("run_id", report.RunID).
		Str("target_date", report.TargetDate).
		Str("status", string(report.Status)).
		Int("objects_matched", report.ObjectsMatched).
		Int("rows_fetched", report.RowsFetched).
		Int("rows_deduped", report.RowsDeduped).
		Int64("rows_inserted", report.RowsInserted).
		Int64("rows_conflicted", report.RowsConflicted).
		Dur("duration", report.Duration()).
		Msg("run finished")
	return nil
}

func sanitizeRecipients(recipients []string) []string {
	var cleaned []string
	for _, recipient := range recipients {
		if r := strings.TrimSpace(recipient); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return cleaned
}

func logNotifyError(logger zerolog.Logger, err error, channel string, report models.RunReport) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("run_id", report.RunID).
		Str("channel", channel).
		Msg("failed to deliver notification")
}
