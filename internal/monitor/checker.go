package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/seatwatch/internal/otel"
	"github.com/stacklok/seatwatch/internal/source"
	"github.com/stacklok/seatwatch/internal/store"
	"github.com/stacklok/seatwatch/internal/telemetry"
)

// Checker refreshes the stored availability of one course at a time
type Checker struct {
	courses store.CourseStore
	adapter source.Adapter
	opts    *options
}

// NewChecker creates a checker reading and writing courses and querying adapter
func NewChecker(courses store.CourseStore, adapter source.Adapter, opts ...Option) *Checker {
	return &Checker{courses: courses, adapter: adapter, opts: newOptions(opts)}
}

// Check fetches the live availability of courseID and stores it.
//
// An adapter failure is returned in the result with a nil error and nothing is
// written. The write is conditional on the stored is_open being unchanged since it
// was read; when another check won that race the result is marked Superseded and
// reports no status change.
func (c *Checker) Check(ctx context.Context, courseID string) (*CheckResult, error) {
	ctx, span := otel.StartSpan(ctx, c.opts.tracer, "monitor.Check",
		trace.WithAttributes(otel.AttrCourseID.String(courseID)))
	defer span.End()

	current, err := c.courses.GetCourse(ctx, courseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCourseNotFound, courseID)
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to read course %s: %w", courseID, err)
	}
	span.SetAttributes(otel.AttrCRN.String(current.CRN))

	result := &CheckResult{
		CourseID:       current.ID,
		CRN:            current.CRN,
		Year:           current.Year,
		Semester:       current.Semester,
		IsOpen:         current.IsOpen,
		SeatsAvailable: current.SeatsAvailable,
		PreviousStatus: current.IsOpen,
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.sourceTimeout)
	avail, err := c.adapter.Fetch(fetchCtx, current.CRN, current.Year, current.Semester)
	cancel()
	if err != nil {
		// A cancelled caller is not a per-course failure
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		result.Failure = newFailure(err)
		span.SetAttributes(otel.AttrFailureKind.String(string(result.Failure.Kind)))
		c.opts.metrics.RecordCheck(ctx, telemetry.CheckOutcomeFailed)
		slog.Warn("Availability check failed",
			"course_id", courseID,
			"kind", result.Failure.Kind,
			"error", err)
		return result, nil
	}

	checkedAt := c.opts.now().UTC().Truncate(time.Microsecond)
	applied, err := c.courses.UpdateAvailability(ctx, courseID, current.IsOpen, *avail, checkedAt)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCourseNotFound, courseID)
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to update course %s: %w", courseID, err)
	}

	result.IsOpen = avail.IsOpen
	result.SeatsAvailable = avail.SeatsAvailable
	if !applied {
		result.Superseded = true
		c.opts.metrics.RecordCheck(ctx, telemetry.CheckOutcomeSuperseded)
		slog.Info("Availability write superseded by a concurrent check", "course_id", courseID)
		return result, nil
	}

	result.CheckedAt = &checkedAt
	result.StatusChanged = avail.IsOpen != current.IsOpen
	span.SetAttributes(
		otel.AttrStatus.Bool(result.IsOpen),
		otel.AttrChanged.Bool(result.StatusChanged),
	)
	c.opts.metrics.RecordCheck(ctx, telemetry.CheckOutcomeChecked)
	slog.Debug("Checked course availability",
		"course_id", courseID,
		"is_open", result.IsOpen,
		"seats_available", result.SeatsAvailable,
		"status_changed", result.StatusChanged)
	return result, nil
}

func newFailure(err error) *Failure {
	if srcErr, ok := source.AsError(err); ok {
		return &Failure{Kind: srcErr.Kind, Reason: srcErr.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: source.KindTimeout, Reason: err.Error()}
	}
	return &Failure{Kind: KindUnknown, Reason: err.Error()}
}
