package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanstork/jobmarket-etl/internal/config"
	"github.com/stanstork/jobmarket-etl/internal/models"
)

const subjectPrefix = "[jobmarket-etl]"

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailNotifier struct {
	host       string
	port       int
	username   string
	password   string
	from       string
	recipients []string
	send       sendMailFunc
	logger     zerolog.Logger
}

func NewEmailNotifier(cfg config.EmailConfig, logger zerolog.Logger) (*EmailNotifier, error) {
	recipients := sanitizeRecipients(cfg.AlertRecipients)
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required for email notifier")
	}
	if from == "" {
		return nil, fmt.Errorf("from is required for email notifier")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	return &EmailNotifier{
		host:       host,
		port:       port,
		username:   strings.TrimSpace(cfg.Username),
		password:   cfg.Password,
		from:       from,
		recipients: recipients,
		send:       smtp.SendMail,
		logger:     logger.With().Str("notifier", "email").Logger(),
	}, nil
}

func (n *EmailNotifier) Notify(_ context.Context, report models.RunReport) error {
	if len(n.recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("%s %s load for %s %s", subjectPrefix, report.Source, report.TargetDate, report.Status)

	body := strings.Builder{}
	if report.Failed() {
		body.WriteString(fmt.Sprintf("The run failed: %s\n\n", report.Error))
	}
	body.WriteString(fmt.Sprintf("Run: %s\n", report.RunID))
	body.WriteString(fmt.Sprintf("Target date: %s\n", report.TargetDate))
	body.WriteString(fmt.Sprintf("Schema mode: %s\n", report.SchemaMode))
	body.WriteString(fmt.Sprintf("Files matched: %d\n", report.ObjectsMatched))
	body.WriteString(fmt.Sprintf("Rows fetched: %d\n", report.RowsFetched))
	body.WriteString(fmt.Sprintf("Rows after dedup: %d\n", report.RowsDeduped))
	body.WriteString(fmt.Sprintf("Rows inserted: %d\n", report.RowsInserted))
	body.WriteString(fmt.Sprintf("Rows already present: %d\n", report.RowsConflicted))
	body.WriteString(fmt.Sprintf("Started: %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST")))
	body.WriteString(fmt.Sprintf("Duration: %s\n", report.Duration().Round(time.Second)))

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		n.from, strings.Join(n.recipients, ","), subject)

	message := []byte(headers + body.String())
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	if err := n.send(addr, auth, n.from, n.recipients, message); err != nil {
		return err
	}

	n.logger.Info().
		Str("run_id", report.RunID).
		Strs("recipients", n.recipients).
		Msg("email notification sent")
	return nil
}

func (n *EmailNotifier) String() string {
	return "EmailNotifier"
}
