// Package tracking manages which courses users track and how they are reached.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/stacklok/seatwatch/internal/course"
	"github.com/stacklok/seatwatch/internal/notify"
	"github.com/stacklok/seatwatch/internal/source"
	"github.com/stacklok/seatwatch/internal/store"
)

const (
	// seedTimeout bounds the availability lookup made when a course is first tracked
	seedTimeout = 10 * time.Second

	courseAddedMessage   = "Course added successfully"
	subscriptionsMessage = "Subscriptions created successfully"
)

var (
	// ErrEmailRequired is returned when subscribing a principal without an email
	ErrEmailRequired = errors.New("user email not found")
	// ErrInvalidCourse is returned when the course key is incomplete or malformed
	ErrInvalidCourse = errors.New("invalid course")
)

// Principal is the authenticated caller as asserted by the identity provider
type Principal struct {
	UserID string
	Email  string
	Groups []string
}

// InGroup reports whether the principal belongs to group
func (p Principal) InGroup(group string) bool {
	return slices.Contains(p.Groups, group)
}

type principalKey struct{}

// ContextWithPrincipal returns a copy of ctx carrying p
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by ContextWithPrincipal
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Store is the persistence the tracking service needs
type Store interface {
	store.CourseStore
	store.TrackingStore
	store.UserStore
}

// TrackResult is returned after a course was added to a user's list
type TrackResult struct {
	Message string `json:"message"`
	ClassID string `json:"class_id"`
}

// SubscribeResult is returned after the user's endpoints were subscribed
type SubscribeResult struct {
	Message     string `json:"message"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Service implements course tracking and notification subscription
type Service struct {
	store      Store
	adapter    source.Adapter
	dispatcher *notify.Dispatcher
	now        func() time.Time
}

// New creates a tracking service
func New(st Store, adapter source.Adapter, dispatcher *notify.Dispatcher) *Service {
	return &Service{
		store:      st,
		adapter:    adapter,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Track adds the course identified by key to the principal's tracked courses.
//
// A course seen for the first time is created with the availability the source
// reports for it; if the source cannot be reached the course starts closed and the
// next check fills it in. Tracking the same course twice is not an error.
func (s *Service) Track(ctx context.Context, p Principal, key course.Key) (*TrackResult, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCourse, err)
	}
	if err := s.upsertUser(ctx, p, ""); err != nil {
		return nil, err
	}

	classID := key.ID()
	_, err := s.store.GetCourse(ctx, classID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := s.createCourse(ctx, key); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read course %s: %w", classID, err)
	}

	err = s.store.PutTracking(ctx, course.Tracking{
		UserID:    p.UserID,
		CourseID:  classID,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to track course %s: %w", classID, err)
	}

	slog.Info("Course tracked", "user_id", p.UserID, "course_id", classID)
	return &TrackResult{Message: courseAddedMessage, ClassID: classID}, nil
}

func (s *Service) createCourse(ctx context.Context, key course.Key) error {
	c := course.NewTrackedCourse(key)

	fetchCtx, cancel := context.WithTimeout(ctx, seedTimeout)
	avail, err := s.adapter.Fetch(fetchCtx, key.CRN, key.Year, key.Semester)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("Could not read initial availability, starting closed",
			"course_id", c.ID,
			"error", err)
	} else {
		checkedAt := s.now().UTC().Truncate(time.Microsecond)
		c.IsOpen = avail.IsOpen
		c.SeatsAvailable = avail.SeatsAvailable
		c.LastChecked = &checkedAt
	}

	// Losing a creation race to another request is fine: the course exists either way
	if _, err := s.store.CreateCourse(ctx, c); err != nil {
		return fmt.Errorf("failed to create course %s: %w", c.ID, err)
	}
	return nil
}

// ListCourses returns the courses userID tracks. Trackings pointing at a course
// that no longer exists are skipped.
func (s *Service) ListCourses(ctx context.Context, userID string) ([]course.TrackedCourse, error) {
	trackings, err := s.store.ListTrackingByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trackings of %s: %w", userID, err)
	}

	courses := make([]course.TrackedCourse, 0, len(trackings))
	for _, t := range trackings {
		c, err := s.store.GetCourse(ctx, t.CourseID)
		if errors.Is(err, store.ErrNotFound) {
			slog.Debug("Skipping tracking of missing course", "user_id", userID, "course_id", t.CourseID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read course %s: %w", t.CourseID, err)
		}
		courses = append(courses, *c)
	}
	return courses, nil
}

// Subscribe registers the principal's email, and phone when given, on the
// notification topic
func (s *Service) Subscribe(ctx context.Context, p Principal, phone string) (*SubscribeResult, error) {
	if p.Email == "" {
		return nil, ErrEmailRequired
	}

	emailSub, err := s.dispatcher.Subscribe(ctx, notify.ProtocolEmail, p.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe email: %w", err)
	}
	slog.Info("Email subscription created", "user_id", p.UserID, "subscription_id", emailSub)

	if phone != "" {
		smsSub, err := s.dispatcher.Subscribe(ctx, notify.ProtocolSMS, phone)
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe phone: %w", err)
		}
		slog.Info("SMS subscription created", "user_id", p.UserID, "subscription_id", smsSub)
	}

	if err := s.upsertUser(ctx, p, phone); err != nil {
		return nil, err
	}

	return &SubscribeResult{
		Message:     subscriptionsMessage,
		Email:       p.Email,
		PhoneNumber: phone,
	}, nil
}

// upsertUser records the principal's identity, keeping stored fields the
// principal does not carry
func (s *Service) upsertUser(ctx context.Context, p Principal, phone string) error {
	user, err := s.store.GetUser(ctx, p.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		user = &course.User{ID: p.UserID}
	case err != nil:
		return fmt.Errorf("failed to read user %s: %w", p.UserID, err)
	}

	updated := *user
	if p.Email != "" {
		updated.Email = p.Email
	}
	if phone != "" {
		updated.Phone = phone
	}
	if err == nil && updated == *user {
		return nil
	}

	if err := s.store.PutUser(ctx, &updated); err != nil {
		return fmt.Errorf("failed to store user %s: %w", p.UserID, err)
	}
	return nil
}
