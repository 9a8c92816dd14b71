// Package inmemory provides a process-local implementation of store.Store.
package inmemory

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/stacklok/seatwatch/internal/course"
	"github.com/stacklok/seatwatch/internal/store"
)

type trackingKey struct {
	userID   string
	courseID string
}

// Store keeps all records in maps guarded by a single mutex
type Store struct {
	mu        sync.RWMutex
	courses   map[string]course.TrackedCourse
	users     map[string]course.User
	trackings map[trackingKey]course.Tracking
	ledger    map[string]time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		courses:   make(map[string]course.TrackedCourse),
		users:     make(map[string]course.User),
		trackings: make(map[trackingKey]course.Tracking),
		ledger:    make(map[string]time.Time),
	}
}

// GetCourse returns a copy of the stored course
func (s *Store) GetCourse(_ context.Context, id string) (*course.TrackedCourse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyCourse(c), nil
}

// CreateCourse stores c unless a course with the same id exists
func (s *Store) CreateCourse(_ context.Context, c *course.TrackedCourse) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.courses[c.ID]; exists {
		return false, nil
	}
	s.courses[c.ID] = *copyCourse(*c)
	return true, nil
}

// UpdateAvailability applies the availability write if is_open still matches expectOpen
func (s *Store) UpdateAvailability(
	_ context.Context, id string, expectOpen bool, avail course.Availability, checkedAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.courses[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if c.IsOpen != expectOpen {
		return false, nil
	}

	c.IsOpen = avail.IsOpen
	c.SeatsAvailable = avail.SeatsAvailable
	c.LastChecked = &checkedAt
	s.courses[id] = c
	return true, nil
}

// ScanCourses yields a snapshot of all courses ordered by id
func (s *Store) ScanCourses(ctx context.Context) iter.Seq2[*course.TrackedCourse, error] {
	return func(yield func(*course.TrackedCourse, error) bool) {
		s.mu.RLock()
		snapshot := make([]course.TrackedCourse, 0, len(s.courses))
		for _, c := range s.courses {
			snapshot = append(snapshot, c)
		}
		s.mu.RUnlock()

		slices.SortFunc(snapshot, func(a, b course.TrackedCourse) int {
			return cmp.Compare(a.ID, b.ID)
		})

		for _, c := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(copyCourse(c), nil) {
				return
			}
		}
	}
}

// PutTracking records the tracking relation
func (s *Store) PutTracking(_ context.Context, t course.Tracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := trackingKey{userID: t.UserID, courseID: t.CourseID}
	if _, exists := s.trackings[k]; !exists {
		s.trackings[k] = t
	}
	return nil
}

// ListTrackingByUser returns the trackings of a user
func (s *Store) ListTrackingByUser(_ context.Context, userID string) ([]course.Tracking, error) {
	return s.listTrackings(func(k trackingKey) bool { return k.userID == userID }), nil
}

// ListTrackingByCourse returns the trackings of a course
func (s *Store) ListTrackingByCourse(_ context.Context, courseID string) ([]course.Tracking, error) {
	return s.listTrackings(func(k trackingKey) bool { return k.courseID == courseID }), nil
}

func (s *Store) listTrackings(match func(trackingKey) bool) []course.Tracking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []course.Tracking
	for k, t := range s.trackings {
		if match(k) {
			result = append(result, t)
		}
	}
	slices.SortFunc(result, func(a, b course.Tracking) int {
		if c := cmp.Compare(a.UserID, b.UserID); c != 0 {
			return c
		}
		return cmp.Compare(a.CourseID, b.CourseID)
	})
	return result
}

// GetUser returns a copy of the user record
func (s *Store) GetUser(_ context.Context, id string) (*course.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

// PutUser creates or replaces the user record
func (s *Store) PutUser(_ context.Context, u *course.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[u.ID] = *u
	return nil
}

// ClaimNotification records key if it is new
func (s *Store) ClaimNotification(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ledger[key]; exists {
		return false, nil
	}
	s.ledger[key] = time.Now()
	return true, nil
}

// Ping always succeeds
func (*Store) Ping(context.Context) error {
	return nil
}

// Close is a no-op
func (*Store) Close() {}

func copyCourse(c course.TrackedCourse) *course.TrackedCourse {
	if c.LastChecked != nil {
		t := *c.LastChecked
		c.LastChecked = &t
	}
	return &c
}
