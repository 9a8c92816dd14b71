// Package monitor checks tracked courses against the registration source, detects
// closed-to-open transitions and notifies the users tracking them.
//
// The pipeline is strictly one-way:
//
//	Orchestrator -> Scanner -> Checker -> source.Adapter
//	Orchestrator -> notify.Resolver -> notify.Dispatcher -> notify.Transport
//
// Adapter failures are contained per course and reported as data on the
// CheckResult. Store failures abort the enclosing operation. Dispatch failures
// are counted and never stop the remaining fan-out.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/seatwatch/internal/course"
	"github.com/stacklok/seatwatch/internal/source"
	"github.com/stacklok/seatwatch/internal/store"
	"github.com/stacklok/seatwatch/internal/telemetry"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=monitor.go Service

const (
	// DefaultSourceTimeout bounds a single adapter call
	DefaultSourceTimeout = 30 * time.Second
	// DefaultConcurrency is the number of courses checked at once
	DefaultConcurrency = 4
	// DefaultNotifyConcurrency is the number of notifications dispatched at once
	DefaultNotifyConcurrency = 8

	// NoTransitionsMessage is the summary message of a cycle without transitions
	NoTransitionsMessage = "No newly opened courses found"

	// TracerName is the tracer name of the monitoring spans
	TracerName = "github.com/stacklok/seatwatch/monitor"
)

// ErrCourseNotFound is returned when a checked course is not tracked
var ErrCourseNotFound = fmt.Errorf("course not found: %w", store.ErrNotFound)

// KindUnknown tags an adapter failure that carries no source classification
const KindUnknown source.Kind = "unknown"

// Failure describes why a course could not be checked
type Failure struct {
	Kind   source.Kind `json:"kind"`
	Reason string      `json:"reason"`
}

// CheckResult is the outcome of checking one course.
//
// On failure IsOpen and SeatsAvailable repeat the stored state, which is left unchanged.
type CheckResult struct {
	CourseID       string          `json:"course_id"`
	CRN            string          `json:"crn"`
	Year           int             `json:"year"`
	Semester       course.Semester `json:"semester"`
	IsOpen         bool            `json:"is_open"`
	SeatsAvailable int             `json:"seats_available"`
	StatusChanged  bool            `json:"status_changed"`
	PreviousStatus bool            `json:"previous_status"`
	CheckedAt      *time.Time      `json:"checked_at,omitempty"`
	Superseded     bool            `json:"superseded,omitempty"`
	Failure        *Failure        `json:"failure,omitempty"`
}

// Failed reports whether the adapter call failed
func (r *CheckResult) Failed() bool {
	return r.Failure != nil
}

// Opened reports whether the check moved the course from closed to open
func (r *CheckResult) Opened() bool {
	return r.Failure == nil && r.StatusChanged && r.IsOpen
}

// Course returns the course as it was written by the check
func (r *CheckResult) Course() *course.TrackedCourse {
	return &course.TrackedCourse{
		ID:             r.CourseID,
		CRN:            r.CRN,
		Year:           r.Year,
		Semester:       r.Semester,
		IsOpen:         r.IsOpen,
		SeatsAvailable: r.SeatsAvailable,
		LastChecked:    r.CheckedAt,
	}
}

// Summary is the outcome of a check-and-notify cycle
type Summary struct {
	CoursesChecked       int    `json:"courses_checked"`
	ChecksFailed         int    `json:"checks_failed"`
	CoursesTransitioned  int    `json:"courses_transitioned"`
	NotificationsSent    int    `json:"notifications_sent"`
	NotificationsFailed  int    `json:"notifications_failed"`
	NotificationsSkipped int    `json:"notifications_skipped"`
	Message              string `json:"message,omitempty"`
}

// Service is the surface the HTTP API and the scheduler drive
type Service interface {
	// RunCycle checks every course and notifies the trackers of newly opened ones
	RunCycle(ctx context.Context) (*Summary, error)

	// CheckAll checks every course without notifying anyone
	CheckAll(ctx context.Context) ([]CheckResult, error)

	// CheckOne checks a single course. ErrCourseNotFound if it is not tracked.
	CheckOne(ctx context.Context, courseID string) (*CheckResult, error)
}

type options struct {
	sourceTimeout     time.Duration
	concurrency       int
	notifyConcurrency int
	metrics           *telemetry.MonitorMetrics
	tracer            trace.Tracer
	now               func() time.Time
}

// Option configures the monitoring components
type Option func(*options)

// WithSourceTimeout bounds each adapter call
func WithSourceTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sourceTimeout = d
		}
	}
}

// WithConcurrency sets the number of courses checked concurrently
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithNotifyConcurrency sets the number of notifications dispatched concurrently
func WithNotifyConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.notifyConcurrency = n
		}
	}
}

// WithMetrics records checks, transitions and notifications on m
func WithMetrics(m *telemetry.MonitorMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer traces cycles, scans and checks with t
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithClock replaces the time source used for last-checked timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		sourceTimeout:     DefaultSourceTimeout,
		concurrency:       DefaultConcurrency,
		notifyConcurrency: DefaultNotifyConcurrency,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
