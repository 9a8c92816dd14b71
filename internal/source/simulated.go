package source

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/stacklok/seatwatch/internal/course"
)

const (
	simulatedOpenChance = 0.3
	simulatedMaxSeats   = 10
)

// SimulatedAdapter returns random availability without network access.
// A course is open 30% of the time, with 1 to 10 seats.
type SimulatedAdapter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var _ Adapter = (*SimulatedAdapter)(nil)

// SimulatedOption configures a SimulatedAdapter
type SimulatedOption func(*SimulatedAdapter)

// WithSeed makes the adapter deterministic
func WithSeed(seed uint64) SimulatedOption {
	return func(a *SimulatedAdapter) {
		a.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// NewSimulatedAdapter creates a randomly seeded simulated adapter
func NewSimulatedAdapter(opts ...SimulatedOption) *SimulatedAdapter {
	a := &SimulatedAdapter{
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fetch returns a random availability
func (a *SimulatedAdapter) Fetch(ctx context.Context, _ string, _ int, _ course.Semester) (*course.Availability, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rng.Float64() >= simulatedOpenChance {
		return &course.Availability{}, nil
	}
	return &course.Availability{
		IsOpen:         true,
		SeatsAvailable: 1 + a.rng.IntN(simulatedMaxSeats),
	}, nil
}
