package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader sdkmetric.Reader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func counterValue(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()

	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum")

	var total int64
	for _, dp := range sum.DataPoints {
		if key == "" {
			total += dp.Value
			continue
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMonitorMetrics_NilProvider(t *testing.T) {
	t.Parallel()

	metrics, err := NewMonitorMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)

	// recording on nil metrics must not panic
	metrics.RecordCycle(context.Background(), time.Second, true)
	metrics.RecordCheck(context.Background(), CheckOutcomeChecked)
	metrics.RecordTransitions(context.Background(), 2)
	metrics.RecordNotification(context.Background(), NotifyOutcomeSent)
}

func TestMonitorMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewMonitorMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.RecordCycle(ctx, 1500*time.Millisecond, true)
	metrics.RecordCheck(ctx, CheckOutcomeChecked)
	metrics.RecordCheck(ctx, CheckOutcomeChecked)
	metrics.RecordCheck(ctx, CheckOutcomeFailed)
	metrics.RecordTransitions(ctx, 3)
	metrics.RecordTransitions(ctx, 0)
	metrics.RecordNotification(ctx, NotifyOutcomeSent)
	metrics.RecordNotification(ctx, NotifyOutcomeSkipped)

	data := collect(t, reader)

	hist, ok := data["seatwatch_cycle_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)

	assert.Equal(t, int64(2), counterValue(t, data["seatwatch_checks_total"], "outcome", CheckOutcomeChecked))
	assert.Equal(t, int64(1), counterValue(t, data["seatwatch_checks_total"], "outcome", CheckOutcomeFailed))
	assert.Equal(t, int64(3), counterValue(t, data["seatwatch_transitions_total"], "", ""))
	assert.Equal(t, int64(1), counterValue(t, data["seatwatch_notifications_total"], "outcome", NotifyOutcomeSkipped))
}
