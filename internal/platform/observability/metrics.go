package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const defaultMeterName = "github.com/partner-scorecard/api"

// EvaluationMetrics records scoring activity. Instruments come from the global meter provider, so
// they are no-ops until an exporter is installed.
type EvaluationMetrics struct {
	saved  metric.Int64Counter
	scores metric.Float64Histogram
	backup metric.Int64Counter
}

// NewEvaluationMetrics registers the instruments on the provided meter provider (the global one
// when nil) under the given meter name.
func NewEvaluationMetrics(provider metric.MeterProvider, name string) (*EvaluationMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	if name == "" {
		name = defaultMeterName
	}
	meter := provider.Meter(name)

	saved, err := meter.Int64Counter("partnerscore.evaluations.saved",
		metric.WithDescription("Evaluations persisted"),
		metric.WithUnit("{evaluation}"))
	if err != nil {
		return nil, err
	}
	scores, err := meter.Float64Histogram("partnerscore.evaluations.score",
		metric.WithDescription("Distribution of saved evaluation scores"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(20, 40, 60, 80, 100))
	if err != nil {
		return nil, err
	}
	backup, err := meter.Int64Counter("partnerscore.backups.completed",
		metric.WithDescription("Backups written to object storage"),
		metric.WithUnit("{backup}"))
	if err != nil {
		return nil, err
	}
	return &EvaluationMetrics{saved: saved, scores: scores, backup: backup}, nil
}

// RecordSaved counts a persisted evaluation and its score.
func (m *EvaluationMetrics) RecordSaved(ctx context.Context, scope, rating string, score float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("rating", rating),
	)
	m.saved.Add(ctx, 1, attrs)
	m.scores.Record(ctx, score, attrs)
}

// RecordBackup counts a completed backup run.
func (m *EvaluationMetrics) RecordBackup(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	m.backup.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}
