package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/temcen/crowdlens/pkg/models"
)

var (
	funnelMetricRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funnel_metric_records_total",
		Help: "Total funnel metric rows recorded, by team and funnel stage",
	}, []string{"team", "funnel_name"})

	funnelMetricFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funnel_metric_record_failures_total",
		Help: "Total funnel metric rows that failed to persist",
	})

	funnelFilterCandidates = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "funnel_filter_candidates",
		Help: "Candidate count surviving the filter stage, by team and filter",
	}, []string{"team", "filter"})
)

// MetricsSink records funnel-stage metric rows. Callers treat recording as
// fire-and-forget; failures are theirs to isolate.
type MetricsSink interface {
	Record(ctx context.Context, metric *models.FunnelMetric) error
}

// PostgresMetricsSink persists metric rows to the funnel_metrics table and
// mirrors them into Prometheus.
type PostgresMetricsSink struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewPostgresMetricsSink(db DatabaseQuerier, logger *logrus.Logger) *PostgresMetricsSink {
	return &PostgresMetricsSink{
		db:     db,
		logger: logger,
	}
}

func (s *PostgresMetricsSink) Record(ctx context.Context, metric *models.FunnelMetric) error {
	metadata, err := json.Marshal(metric.Metadata)
	if err != nil {
		funnelMetricFailures.Inc()
		return fmt.Errorf("failed to marshal metric metadata: %w", err)
	}

	query := `
		INSERT INTO funnel_metrics
			(request_id, team_name, funnel_name, user_id, content_id,
			 metric_funnel_type, metric_type, metric_value, metric_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.db.Exec(ctx, query,
		metric.RequestID, string(metric.Team), metric.FunnelName,
		metric.UserID, metric.ContentID,
		string(metric.FunnelType), string(metric.MetricType),
		metric.Value, metadata)
	if err != nil {
		funnelMetricFailures.Inc()
		return fmt.Errorf("failed to insert funnel metric: %w", err)
	}

	funnelMetricRecords.WithLabelValues(string(metric.Team), metric.FunnelName).Inc()
	if metric.FunnelType == models.MetricFunnelFiltering && metric.Value >= 0 {
		funnelFilterCandidates.WithLabelValues(string(metric.Team), metric.FunnelName).Set(metric.Value)
	}

	return nil
}
