package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stacklok/seatwatch/internal/store"
)

// Subscriber is a user to notify about a course
type Subscriber struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Resolver finds the subscribers of a course
type Resolver struct {
	trackings store.TrackingStore
	users     store.UserStore
}

// NewResolver creates a resolver reading trackings and user records
func NewResolver(trackings store.TrackingStore, users store.UserStore) *Resolver {
	return &Resolver{trackings: trackings, users: users}
}

// Resolve returns every user tracking courseID that has an email address.
// Users without a record or without an email are skipped.
func (r *Resolver) Resolve(ctx context.Context, courseID string) ([]Subscriber, error) {
	trackings, err := r.trackings.ListTrackingByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trackers of %s: %w", courseID, err)
	}

	subscribers := make([]Subscriber, 0, len(trackings))
	for _, t := range trackings {
		user, err := r.users.GetUser(ctx, t.UserID)
		if errors.Is(err, store.ErrNotFound) {
			slog.Debug("Skipping tracker without user record", "course_id", courseID, "user_id", t.UserID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get user %s: %w", t.UserID, err)
		}
		if user.Email == "" {
			slog.Debug("Skipping tracker without email", "course_id", courseID, "user_id", t.UserID)
			continue
		}
		subscribers = append(subscribers, Subscriber{UserID: user.ID, Email: user.Email})
	}
	return subscribers, nil
}
