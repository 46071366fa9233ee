package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestEvaluationMetricsRecord(t *testing.T) {
	m, err := NewEvaluationMetrics(noop.NewMeterProvider(), "scorecard-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.RecordSaved(context.Background(), "domestic", "GOOD", 91)
	m.RecordBackup(context.Background(), "scheduler")
}

func TestEvaluationMetricsNilSafe(t *testing.T) {
	var m *EvaluationMetrics
	m.RecordSaved(context.Background(), "overseas", "OK", 70)
	m.RecordBackup(context.Background(), "manual")
}
