package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/seatwatch/internal/course"
	"github.com/stacklok/seatwatch/internal/source"
	sourcemocks "github.com/stacklok/seatwatch/internal/source/mocks"
	"github.com/stacklok/seatwatch/internal/store"
	"github.com/stacklok/seatwatch/internal/store/inmemory"
)

const testCourseID = "CRN123-2024-Fall"

var fixedNow = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func seedCourse(t *testing.T, st *inmemory.Store, id string, open bool, seats int) {
	t.Helper()
	key, err := course.ParseID(id)
	require.NoError(t, err)
	c := course.NewTrackedCourse(key)
	c.IsOpen = open
	c.SeatsAvailable = seats
	created, err := st.CreateCourse(context.Background(), c)
	require.NoError(t, err)
	require.True(t, created)
}

// failingStore fails the course operations it is told to
type failingStore struct {
	*inmemory.Store
	getErr    error
	updateErr error
	scanErr   error
	claimErr  error
}

func (f *failingStore) GetCourse(ctx context.Context, id string) (*course.TrackedCourse, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.GetCourse(ctx, id)
}

func (f *failingStore) UpdateAvailability(
	ctx context.Context, id string, expectOpen bool, avail course.Availability, checkedAt time.Time,
) (bool, error) {
	if f.updateErr != nil {
		return false, f.updateErr
	}
	return f.Store.UpdateAvailability(ctx, id, expectOpen, avail, checkedAt)
}

func (f *failingStore) ClaimNotification(ctx context.Context, key string) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	return f.Store.ClaimNotification(ctx, key)
}

func TestChecker_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		storedOpen   bool
		storedSeats  int
		avail        *course.Availability
		fetchErr     error
		wantChanged  bool
		wantOpen     bool
		wantSeats    int
		wantFailure  source.Kind
		wantChecked  bool
		wantPrevious bool
	}{
		{
			name:        "closed course opens",
			avail:       &course.Availability{IsOpen: true, SeatsAvailable: 5},
			wantChanged: true,
			wantOpen:    true,
			wantSeats:   5,
			wantChecked: true,
		},
		{
			name:        "closed course stays closed",
			avail:       &course.Availability{IsOpen: false},
			wantChecked: true,
		},
		{
			name:         "open course closes",
			storedOpen:   true,
			storedSeats:  2,
			avail:        &course.Availability{IsOpen: false},
			wantChanged:  true,
			wantChecked:  true,
			wantPrevious: true,
		},
		{
			name:         "open course seat count refreshes",
			storedOpen:   true,
			storedSeats:  2,
			avail:        &course.Availability{IsOpen: true, SeatsAvailable: 7},
			wantOpen:     true,
			wantSeats:    7,
			wantChecked:  true,
			wantPrevious: true,
		},
		{
			name:        "timeout is reported as data",
			fetchErr:    &source.Error{Kind: source.KindTimeout, Err: context.DeadlineExceeded},
			wantFailure: source.KindTimeout,
		},
		{
			name:         "http failure keeps stored state",
			storedOpen:   true,
			storedSeats:  3,
			fetchErr:     &source.Error{Kind: source.KindHTTP, StatusCode: 503},
			wantFailure:  source.KindHTTP,
			wantOpen:     true,
			wantSeats:    3,
			wantPrevious: true,
		},
		{
			name:        "unclassified failure",
			fetchErr:    errors.New("boom"),
			wantFailure: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			adapter := sourcemocks.NewMockAdapter(ctrl)
			adapter.EXPECT().
				Fetch(gomock.Any(), "CRN123", 2024, course.SemesterFall).
				Return(tt.avail, tt.fetchErr)

			st := inmemory.New()
			seedCourse(t, st, testCourseID, tt.storedOpen, tt.storedSeats)
			before, err := st.GetCourse(context.Background(), testCourseID)
			require.NoError(t, err)

			checker := NewChecker(st, adapter, WithClock(fixedClock))
			result, err := checker.Check(context.Background(), testCourseID)
			require.NoError(t, err)

			assert.Equal(t, testCourseID, result.CourseID)
			assert.Equal(t, tt.wantChanged, result.StatusChanged)
			assert.Equal(t, tt.wantOpen, result.IsOpen)
			assert.Equal(t, tt.wantSeats, result.SeatsAvailable)
			assert.Equal(t, tt.wantPrevious, result.PreviousStatus)
			assert.False(t, result.Superseded)

			after, err := st.GetCourse(context.Background(), testCourseID)
			require.NoError(t, err)

			if tt.wantFailure != "" {
				require.NotNil(t, result.Failure)
				assert.Equal(t, tt.wantFailure, result.Failure.Kind)
				assert.NotEmpty(t, result.Failure.Reason)
				assert.Nil(t, result.CheckedAt)
				assert.Equal(t, before, after, "stored state must be untouched")
				return
			}

			assert.Nil(t, result.Failure)
			require.NotNil(t, result.CheckedAt)
			assert.Equal(t, fixedNow, *result.CheckedAt)
			assert.Equal(t, tt.wantOpen, after.IsOpen)
			assert.Equal(t, tt.wantSeats, after.SeatsAvailable)
			require.NotNil(t, after.LastChecked)
			assert.Equal(t, fixedNow, *after.LastChecked)
		})
	}
}

func TestChecker_SecondCheckReportsNoChange(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := sourcemocks.NewMockAdapter(ctrl)
	adapter.EXPECT().
		Fetch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&course.Availability{IsOpen: true, SeatsAvailable: 5}, nil).
		Times(2)

	st := inmemory.New()
	seedCourse(t, st, testCourseID, false, 0)
	checker := NewChecker(st, adapter)

	first, err := checker.Check(context.Background(), testCourseID)
	require.NoError(t, err)
	assert.True(t, first.StatusChanged)

	second, err := checker.Check(context.Background(), testCourseID)
	require.NoError(t, err)
	assert.False(t, second.StatusChanged)
	assert.True(t, second.PreviousStatus)
}

func TestChecker_CourseNotFound(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := sourcemocks.NewMockAdapter(ctrl)

	checker := NewChecker(inmemory.New(), adapter)
	_, err := checker.Check(context.Background(), "missing-2024-Fall")
	require.ErrorIs(t, err, ErrCourseNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChecker_StoreFailuresPropagate(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("connection reset")

	t.Run("read", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		adapter := sourcemocks.NewMockAdapter(ctrl)

		st := &failingStore{Store: inmemory.New(), getErr: storeErr}
		_, err := NewChecker(st, adapter).Check(context.Background(), testCourseID)
		require.ErrorIs(t, err, storeErr)
		assert.NotErrorIs(t, err, ErrCourseNotFound)
	})

	t.Run("write", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		adapter := sourcemocks.NewMockAdapter(ctrl)
		adapter.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&course.Availability{IsOpen: true}, nil)

		st := &failingStore{Store: inmemory.New(), updateErr: storeErr}
		seedCourse(t, st.Store, testCourseID, false, 0)
		_, err := NewChecker(st, adapter).Check(context.Background(), testCourseID)
		require.ErrorIs(t, err, storeErr)
	})
}

func TestChecker_SupersededWrite(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := sourcemocks.NewMockAdapter(ctrl)

	st := inmemory.New()
	seedCourse(t, st, testCourseID, false, 0)

	// Another check opens the course while this one is waiting on the source
	adapter.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ int, _ course.Semester) (*course.Availability, error) {
			applied, err := st.UpdateAvailability(ctx, testCourseID, false,
				course.Availability{IsOpen: true, SeatsAvailable: 1}, fixedNow)
			require.NoError(t, err)
			require.True(t, applied)
			return &course.Availability{IsOpen: true, SeatsAvailable: 2}, nil
		})

	result, err := NewChecker(st, adapter).Check(context.Background(), testCourseID)
	require.NoError(t, err)
	assert.True(t, result.Superseded)
	assert.False(t, result.StatusChanged)
	assert.False(t, result.Opened())

	stored, err := st.GetCourse(context.Background(), testCourseID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SeatsAvailable)
}

func TestChecker_SourceTimeout(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := sourcemocks.NewMockAdapter(ctrl)
	adapter.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ int, _ course.Semester) (*course.Availability, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	st := inmemory.New()
	seedCourse(t, st, testCourseID, false, 0)

	result, err := NewChecker(st, adapter, WithSourceTimeout(10*time.Millisecond)).
		Check(context.Background(), testCourseID)
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	assert.Equal(t, source.KindTimeout, result.Failure.Kind)
}

func TestChecker_CancelledCaller(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	adapter := sourcemocks.NewMockAdapter(ctrl)

	st := inmemory.New()
	seedCourse(t, st, testCourseID, false, 0)

	ctx, cancel := context.WithCancel(context.Background())
	adapter.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ int, _ course.Semester) (*course.Availability, error) {
			cancel()
			return nil, ctx.Err()
		})

	_, err := NewChecker(st, adapter).Check(ctx, testCourseID)
	require.ErrorIs(t, err, context.Canceled)
}
