package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stanstork/jobmarket-etl/internal/models"
)

type Service interface {
	// RunFinished fans the report out to every notifier. Delivery failures
	// are logged and never returned.
	RunFinished(ctx context.Context, report models.RunReport)
}

type service struct {
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

func (s *service) RunFinished(ctx context.Context, report models.RunReport) {
	for _, notifier := range s.notifiers {
		err := notifier.Notify(ctx, report)
		logNotifyError(s.logger, err, channelName(notifier), report)
	}
}

func channelName(n Notifier) string {
	if s, ok := n.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", n)
}
