package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/seatwatch/internal/course"
	"github.com/stacklok/seatwatch/internal/notify"
	"github.com/stacklok/seatwatch/internal/store"
	"github.com/stacklok/seatwatch/internal/store/inmemory"
)

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := inmemory.New()

	require.NoError(t, s.PutUser(ctx, &course.User{ID: "alice", Email: "alice@example.com"}))
	require.NoError(t, s.PutUser(ctx, &course.User{ID: "bob"}))
	require.NoError(t, s.PutUser(ctx, &course.User{ID: "carol", Email: "carol@example.com"}))

	for _, u := range []string{"alice", "bob", "carol", "ghost"} {
		require.NoError(t, s.PutTracking(ctx, course.Tracking{UserID: u, CourseID: "c1", CreatedAt: time.Now()}))
	}
	require.NoError(t, s.PutTracking(ctx, course.Tracking{UserID: "alice", CourseID: "c2"}))

	subs, err := notify.NewResolver(s, s).Resolve(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []notify.Subscriber{
		{UserID: "alice", Email: "alice@example.com"},
		{UserID: "carol", Email: "carol@example.com"},
	}, subs)

	subs, err = notify.NewResolver(s, s).Resolve(ctx, "nobody-tracks-this")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

type failingUsers struct{ err error }

func (f failingUsers) GetUser(context.Context, string) (*course.User, error) { return nil, f.err }
func (failingUsers) PutUser(context.Context, *course.User) error { return nil }

type failingTrackings struct{ store.TrackingStore }

func (failingTrackings) ListTrackingByCourse(context.Context, string) ([]course.Tracking, error) {
	return nil, errors.New("index unavailable")
}

func TestResolver_StoreFailuresPropagate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := inmemory.New()
	require.NoError(t, s.PutTracking(ctx, course.Tracking{UserID: "alice", CourseID: "c1"}))

	_, err := notify.NewResolver(s, failingUsers{err: errors.New("connection reset")}).Resolve(ctx, "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	_, err = notify.NewResolver(failingTrackings{}, s).Resolve(ctx, "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
}

