// Package store defines the persistence contracts used by the monitor.
//
// Three record types are stored: tracked courses, user trackings (with a secondary
// index by course) and user identity records. A fourth table, the notification
// ledger, records idempotency keys of notifications that have been dispatched.
package store

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/stacklok/seatwatch/internal/course"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// CourseStore persists tracked courses
type CourseStore interface {
	// GetCourse returns the course with the given id, or ErrNotFound
	GetCourse(ctx context.Context, id string) (*course.TrackedCourse, error)

	// CreateCourse stores c if no course with the same id exists.
	// It reports whether the record was created.
	CreateCourse(ctx context.Context, c *course.TrackedCourse) (bool, error)

	// UpdateAvailability overwrites the availability fields and last-checked timestamp
	// of a course, provided its stored is_open still equals expectOpen. It reports
	// whether the write was applied. ErrNotFound is returned if the course is gone.
	UpdateAvailability(
		ctx context.Context, id string, expectOpen bool, avail course.Availability, checkedAt time.Time,
	) (bool, error)

	// ScanCourses iterates over every tracked course. Paging is handled internally;
	// iteration stops at the first error, which is yielded as the second value.
	ScanCourses(ctx context.Context) iter.Seq2[*course.TrackedCourse, error]
}

// TrackingStore persists the user/course tracking relation
type TrackingStore interface {
	// PutTracking records that userID tracks courseID. It is idempotent.
	PutTracking(ctx context.Context, t course.Tracking) error

	// ListTrackingByUser returns the trackings of a user
	ListTrackingByUser(ctx context.Context, userID string) ([]course.Tracking, error)

	// ListTrackingByCourse returns the trackings of a course, using the course index
	ListTrackingByCourse(ctx context.Context, courseID string) ([]course.Tracking, error)
}

// UserStore persists user identity records
type UserStore interface {
	// GetUser returns the user with the given id, or ErrNotFound
	GetUser(ctx context.Context, id string) (*course.User, error)

	// PutUser creates or replaces a user record
	PutUser(ctx context.Context, u *course.User) error
}

// NotificationLedger records which notifications were already dispatched
type NotificationLedger interface {
	// ClaimNotification atomically records key. It returns false if the key was
	// already recorded by an earlier claim.
	ClaimNotification(ctx context.Context, key string) (bool, error)
}

// Store is the full persistence surface
type Store interface {
	CourseStore
	TrackingStore
	UserStore
	NotificationLedger

	// Ping verifies that the backing store is reachable
	Ping(ctx context.Context) error

	// Close releases the resources held by the store
	Close()
}
