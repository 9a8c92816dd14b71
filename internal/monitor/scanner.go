package monitor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/seatwatch/internal/otel"
	"github.com/stacklok/seatwatch/internal/store"
)

// Scanner checks every tracked course
type Scanner struct {
	courses store.CourseStore
	checker *Checker
	opts    *options
}

// NewScanner creates a scanner enumerating courses and checking them with checker
func NewScanner(courses store.CourseStore, checker *Checker, opts ...Option) *Scanner {
	return &Scanner{courses: courses, checker: checker, opts: newOptions(opts)}
}

// CheckAll checks every course currently tracked and returns one result per course,
// including failed checks. Order is unspecified.
//
// A store error aborts the scan. If ctx is cancelled, the results collected so far
// are returned together with the context error.
func (s *Scanner) CheckAll(ctx context.Context) ([]CheckResult, error) {
	ctx, span := otel.StartSpan(ctx, s.opts.tracer, "monitor.CheckAll")
	defer span.End()

	var (
		mu      sync.Mutex
		results []CheckResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.concurrency)

	for c, err := range s.courses.ScanCourses(gctx) {
		if err != nil {
			// Stop launching and let running checks observe the cancelled group context
			g.Go(func() error { return fmt.Errorf("failed to scan courses: %w", err) })
			break
		}
		courseID := c.ID
		g.Go(func() error {
			result, err := s.checker.Check(gctx, courseID)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, *result)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(results)))
	if err != nil {
		otel.RecordError(span, err)
		return results, err
	}
	return results, nil
}
