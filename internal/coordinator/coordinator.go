// Package coordinator runs the check-and-notify cycle on a schedule.
//
// The coordinator performs one cycle as soon as it starts and then one per tick.
// The tick interval is the configured monitor interval with a random jitter of up
// to ten percent, so several instances sharing a store do not poll in lockstep.
// A failed cycle is logged and the loop carries on; the next tick is the retry.
package coordinator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/stacklok/seatwatch/internal/monitor"
)

// jitterFraction is the maximum relative offset applied to the interval
const jitterFraction = 0.1

// Coordinator manages the background monitoring loop
type Coordinator interface {
	// Start runs cycles until the context is cancelled or Stop is called
	Start(ctx context.Context) error

	// Stop cancels the loop and waits for the running cycle to finish
	Stop() error
}

type defaultCoordinator struct {
	service  monitor.Service
	interval time.Duration

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// New creates a coordinator running service every interval
func New(service monitor.Service, interval time.Duration) Coordinator {
	return &defaultCoordinator{
		service:  service,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// calculateInterval returns base with a random jitter of up to ±10%
func calculateInterval(base time.Duration) time.Duration {
	jitter := time.Duration(float64(base) * jitterFraction)
	if jitter <= 0 {
		return base
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return base + offset
}

// Start runs the monitoring loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	slog.Info("Starting monitoring coordinator", "interval", c.interval)

	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		close(c.done)
		slog.Info("Monitoring coordinator shut down")
	}()

	interval := calculateInterval(c.interval)
	slog.Info("Configured monitoring interval",
		"base_interval", c.interval,
		"actual_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.runCycle(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.runCycle(coordCtx)
			ticker.Reset(calculateInterval(c.interval))
		case <-coordCtx.Done():
			slog.Info("Monitoring coordinator stopping")
			return nil
		}
	}
}

// Stop cancels the loop and waits for it to exit
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping monitoring coordinator")
		cancel()
		<-c.done
	}
	return nil
}

func (c *defaultCoordinator) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	summary, err := c.service.RunCycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("Monitoring cycle interrupted by shutdown")
			return
		}
		slog.Error("Monitoring cycle failed", "error", err)
		return
	}
	slog.Info("Monitoring cycle finished",
		"courses_checked", summary.CoursesChecked,
		"courses_transitioned", summary.CoursesTransitioned,
		"notifications_sent", summary.NotificationsSent,
		"notifications_failed", summary.NotificationsFailed)
}
