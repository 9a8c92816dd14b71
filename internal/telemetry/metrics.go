package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MonitorMetricsMeterName is the meter name of the monitoring cycle instruments
const MonitorMetricsMeterName = "github.com/stacklok/seatwatch/monitor"

// Check outcomes used as the "outcome" attribute of seatwatch_checks_total
const (
	CheckOutcomeChecked    = "checked"
	CheckOutcomeFailed     = "failed"
	CheckOutcomeSuperseded = "superseded"
)

// Notification outcomes used as the "outcome" attribute of seatwatch_notifications_total
const (
	NotifyOutcomeSent    = "sent"
	NotifyOutcomeFailed  = "failed"
	NotifyOutcomeSkipped = "skipped"
)

// MonitorMetrics holds the instruments of the monitoring cycle.
// A nil *MonitorMetrics records nothing.
type MonitorMetrics struct {
	cycleDuration metric.Float64Histogram
	checks        metric.Int64Counter
	transitions   metric.Int64Counter
	notifications metric.Int64Counter
}

// NewMonitorMetrics creates the instruments. If provider is nil it returns nil.
func NewMonitorMetrics(provider metric.MeterProvider) (*MonitorMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(MonitorMetricsMeterName)

	cycleDuration, err := meter.Float64Histogram(
		"seatwatch_cycle_duration_seconds",
		metric.WithDescription("Duration of monitoring cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, err
	}

	checks, err := meter.Int64Counter(
		"seatwatch_checks_total",
		metric.WithDescription("Availability checks by outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"seatwatch_transitions_total",
		metric.WithDescription("Courses observed going from closed to open"),
		metric.WithUnit("{course}"),
	)
	if err != nil {
		return nil, err
	}

	notifications, err := meter.Int64Counter(
		"seatwatch_notifications_total",
		metric.WithDescription("Notifications by outcome"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	return &MonitorMetrics{
		cycleDuration: cycleDuration,
		checks:        checks,
		transitions:   transitions,
		notifications: notifications,
	}, nil
}

// RecordCycle records the duration of one cycle
func (m *MonitorMetrics) RecordCycle(ctx context.Context, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordCheck counts one availability check
func (m *MonitorMetrics) RecordCheck(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.checks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTransitions counts courses that became open
func (m *MonitorMetrics) RecordTransitions(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.transitions.Add(ctx, int64(n))
}

// RecordNotification counts one notification attempt
func (m *MonitorMetrics) RecordNotification(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
