package metrics

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"

	"github.com/stanstork/jobmarket-etl/internal/models"
)

const jobName = "jobmarket_etl"

// Recorder holds the gauges for the last pipeline run and pushes them to a
// pushgateway.
type Recorder struct {
	registry *prometheus.Registry
	gateway  string
	logger   zerolog.Logger

	objectsMatched prometheus.Gauge
	bytesFetched   prometheus.Gauge
	rows           *prometheus.GaugeVec
	duration       prometheus.Gauge
	success        prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

// NewRecorder returns a Recorder. An empty gateway disables Push.
func NewRecorder(gateway string, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		gateway:  gateway,
		logger:   logger.With().Str("component", "metrics").Logger(),

		objectsMatched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobmarket_etl_objects_matched",
			Help: "CSV exports matched for the target date",
		}),
		bytesFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobmarket_etl_bytes_fetched",
			Help: "Bytes downloaded from the object store",
		}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobmarket_etl_rows",
			Help: "Rows seen at each pipeline step",
		}, []string{"step"}), // fetched, deduped, dropped, inserted, conflicted
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobmarket_etl_duration_seconds",
			Help: "Wall time of the last run",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobmarket_etl_last_run_success",
			Help: "1 if the last run succeeded, 0 otherwise",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobmarket_etl_last_success_timestamp_seconds",
			Help: "Unix time the last successful run finished",
		}),
	}
	r.registry.MustRegister(r.objectsMatched, r.bytesFetched, r.rows, r.duration, r.success, r.lastSuccess)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe copies a run report into the gauges.
func (r *Recorder) Observe(report models.RunReport) {
	r.objectsMatched.Set(float64(report.ObjectsMatched))
	r.bytesFetched.Set(float64(report.BytesFetched))
	r.rows.WithLabelValues("fetched").Set(float64(report.RowsFetched))
	r.rows.WithLabelValues("deduped").Set(float64(report.RowsDeduped))
	r.rows.WithLabelValues("dropped").Set(float64(report.RowsDropped))
	r.rows.WithLabelValues("inserted").Set(float64(report.RowsInserted))
	r.rows.WithLabelValues("conflicted").Set(float64(report.RowsConflicted))
	r.duration.Set(report.Duration().Seconds())

	if report.Failed() {
		r.success.Set(0)
		return
	}
	r.success.Set(1)
	r.lastSuccess.Set(float64(report.FinishedAt.Unix()))
}

// Push sends the gauges to the pushgateway, grouped by source.
func (r *Recorder) Push(ctx context.Context, source string) error {
	if r.gateway == "" {
		return nil
	}
	err := push.New(r.gateway, jobName).
		Gatherer(r.registry).
		Grouping("source", source).
		PushContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to push metrics to %s", r.gateway)
	}
	r.logger.Debug().Str("gateway", r.gateway).Msg("pushed metrics")
	return nil
}
