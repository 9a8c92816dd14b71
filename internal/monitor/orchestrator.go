package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/seatwatch/internal/notify"
	"github.com/stacklok/seatwatch/internal/otel"
	"github.com/stacklok/seatwatch/internal/source"
	"github.com/stacklok/seatwatch/internal/store"
	"github.com/stacklok/seatwatch/internal/telemetry"
)

// Orchestrator runs the check-and-notify cycle
type Orchestrator struct {
	checker    *Checker
	scanner    *Scanner
	resolver   *notify.Resolver
	dispatcher *notify.Dispatcher
	ledger     store.NotificationLedger
	opts       *options
}

var _ Service = (*Orchestrator)(nil)

// New wires a checker, a scanner and a resolver over st and returns the orchestrator
func New(st store.Store, adapter source.Adapter, dispatcher *notify.Dispatcher, opts ...Option) *Orchestrator {
	checker := NewChecker(st, adapter, opts...)
	return &Orchestrator{
		checker:    checker,
		scanner:    NewScanner(st, checker, opts...),
		resolver:   notify.NewResolver(st, st),
		dispatcher: dispatcher,
		ledger:     st,
		opts:       newOptions(opts),
	}
}

// CheckOne checks a single course
func (o *Orchestrator) CheckOne(ctx context.Context, courseID string) (*CheckResult, error) {
	return o.checker.Check(ctx, courseID)
}

// CheckAll checks every course
func (o *Orchestrator) CheckAll(ctx context.Context) ([]CheckResult, error) {
	return o.scanner.CheckAll(ctx)
}

// dispatchJob is one (course, subscriber) pair to notify
type dispatchJob struct {
	result     *CheckResult
	subscriber notify.Subscriber
}

// RunCycle scans every course, keeps the ones that just opened and notifies each of
// their subscribers once.
//
// Each notification is guarded by an idempotency key claimed in the ledger before
// publishing, so a rerun over the same transition skips it. A failed publish keeps
// its claim: delivery is at most once.
func (o *Orchestrator) RunCycle(ctx context.Context) (summary *Summary, err error) {
	start := time.Now()
	ctx, span := otel.StartSpan(ctx, o.opts.tracer, "monitor.RunCycle")
	defer func() {
		otel.RecordError(span, err)
		span.End()
		o.opts.metrics.RecordCycle(ctx, time.Since(start), err == nil)
	}()

	results, err := o.scanner.CheckAll(ctx)
	if err != nil {
		return nil, err
	}

	summary = &Summary{CoursesChecked: len(results)}
	var opened []*CheckResult
	for i := range results {
		r := &results[i]
		if r.Failed() {
			summary.ChecksFailed++
			continue
		}
		if r.Opened() {
			opened = append(opened, r)
		}
	}
	summary.CoursesTransitioned = len(opened)
	o.opts.metrics.RecordTransitions(ctx, len(opened))

	if len(opened) == 0 {
		summary.Message = NoTransitionsMessage
		slog.Info("Monitoring cycle completed",
			"courses_checked", summary.CoursesChecked,
			"checks_failed", summary.ChecksFailed,
			"message", summary.Message)
		return summary, nil
	}

	var jobs []dispatchJob
	for _, r := range opened {
		subscribers, err := o.resolver.Resolve(ctx, r.CourseID)
		if err != nil {
			return nil, err
		}
		slog.Info("Course opened", "course_id", r.CourseID, "subscribers", len(subscribers))
		for _, sub := range subscribers {
			jobs = append(jobs, dispatchJob{result: r, subscriber: sub})
		}
	}

	if err := o.dispatchAll(ctx, jobs, summary); err != nil {
		return nil, err
	}

	summary.Message = fmt.Sprintf("Notifications sent for %d newly opened courses", summary.CoursesTransitioned)
	slog.Info("Monitoring cycle completed",
		"courses_checked", summary.CoursesChecked,
		"checks_failed", summary.ChecksFailed,
		"courses_transitioned", summary.CoursesTransitioned,
		"notifications_sent", summary.NotificationsSent,
		"notifications_failed", summary.NotificationsFailed,
		"notifications_skipped", summary.NotificationsSkipped)
	return summary, nil
}

// dispatchAll notifies every job with bounded concurrency. Only ledger failures are
// returned; publish failures are counted in summary.
func (o *Orchestrator) dispatchAll(ctx context.Context, jobs []dispatchJob, summary *Summary) error {
	var mu sync.Mutex
	count := func(outcome string) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case telemetry.NotifyOutcomeSent:
			summary.NotificationsSent++
		case telemetry.NotifyOutcomeFailed:
			summary.NotificationsFailed++
		case telemetry.NotifyOutcomeSkipped:
			summary.NotificationsSkipped++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.notifyConcurrency)
	for _, job := range jobs {
		g.Go(func() error {
			outcome, err := o.dispatch(gctx, job)
			if err != nil {
				return err
			}
			o.opts.metrics.RecordNotification(gctx, outcome)
			count(outcome)
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) dispatch(ctx context.Context, job dispatchJob) (string, error) {
	r, sub := job.result, job.subscriber
	ctx, span := otel.StartSpan(ctx, o.opts.tracer, "monitor.Dispatch", trace.WithAttributes(
		otel.AttrCourseID.String(r.CourseID),
		otel.AttrUserID.String(sub.UserID),
	))
	defer span.End()

	key := IdempotencyKey(r.CourseID, *r.CheckedAt, sub.UserID)
	claimed, err := o.ledger.ClaimNotification(ctx, key)
	if err != nil {
		otel.RecordError(span, err)
		return "", fmt.Errorf("failed to claim notification for %s: %w", r.CourseID, err)
	}
	if !claimed {
		slog.Debug("Notification already sent", "course_id", r.CourseID, "user_id", sub.UserID)
		return telemetry.NotifyOutcomeSkipped, nil
	}

	res, err := o.dispatcher.Notify(ctx, sub.UserID, sub.Email, r.Course())
	if err != nil {
		otel.RecordError(span, err)
		slog.Error("Failed to send notification",
			"course_id", r.CourseID,
			"user_id", sub.UserID,
			"error", err)
		return telemetry.NotifyOutcomeFailed, nil
	}
	slog.Debug("Notification sent",
		"course_id", r.CourseID,
		"user_id", sub.UserID,
		"message_id", res.MessageID)
	return telemetry.NotifyOutcomeSent, nil
}

// IdempotencyKey identifies the notification of userID about the transition of
// courseID recorded at transitionTime
func IdempotencyKey(courseID string, transitionTime time.Time, userID string) string {
	sum := sha256.Sum256([]byte(courseID + "|" + transitionTime.UTC().Format(time.RFC3339Nano) + "|" + userID))
	return hex.EncodeToString(sum[:])
}
