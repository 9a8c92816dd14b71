// Package postgres implements store.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/seatwatch/internal/course"
	"github.com/stacklok/seatwatch/internal/store"
)

// DefaultPageSize is the number of courses fetched per scan page
const DefaultPageSize = 100

// Tables holds the names of the tables backing the store
type Tables struct {
	Courses     string
	Users       string
	UserCourses string
	Ledger      string
}

// DefaultTables returns the table names created by the bundled migrations
func DefaultTables() Tables {
	return Tables{
		Courses:     "course_classes",
		Users:       "course_users",
		UserCourses: "course_user_courses",
		Ledger:      "course_notifications",
	}
}

// querier is the subset of pgxpool.Pool used by the store
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store is a PostgreSQL backed store.Store
type Store struct {
	db       querier
	close    func()
	pageSize int
	q        queries
}

var _ store.Store = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithPageSize sets the number of rows fetched per scan page
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithTables overrides the table names
func WithTables(t Tables) Option {
	return func(s *Store) {
		s.q = buildQueries(withDefaults(t))
	}
}

// New creates a store on top of an existing pool. Close closes the pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := newStore(pool, opts...)
	s.close = pool.Close
	return s
}

func newStore(db querier, opts ...Option) *Store {
	s := &Store{
		db:       db,
		close:    func() {},
		pageSize: DefaultPageSize,
		q:        buildQueries(DefaultTables()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func withDefaults(t Tables) Tables {
	d := DefaultTables()
	if t.Courses == "" {
		t.Courses = d.Courses
	}
	if t.Users == "" {
		t.Users = d.Users
	}
	if t.UserCourses == "" {
		t.UserCourses = d.UserCourses
	}
	if t.Ledger == "" {
		t.Ledger = d.Ledger
	}
	return t
}

// GetCourse returns the course with the given id
func (s *Store) GetCourse(ctx context.Context, id string) (*course.TrackedCourse, error) {
	row := s.db.QueryRow(ctx, s.q.getCourse, id)
	c, err := scanCourse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course %s: %w", id, err)
	}
	return c, nil
}

// CreateCourse inserts c unless a row with the same id exists
func (s *Store) CreateCourse(ctx context.Context, c *course.TrackedCourse) (bool, error) {
	tag, err := s.db.Exec(ctx, s.q.createCourse,
		c.ID, c.CRN, c.Year, string(c.Semester), c.IsOpen, c.SeatsAvailable, c.LastChecked)
	if err != nil {
		return false, fmt.Errorf("failed to create course %s: %w", c.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateAvailability writes the availability fields when is_open equals expectOpen
func (s *Store) UpdateAvailability(
	ctx context.Context, id string, expectOpen bool, avail course.Availability, checkedAt time.Time,
) (bool, error) {
	tag, err := s.db.Exec(ctx, s.q.updateAvailability,
		id, expectOpen, avail.IsOpen, avail.SeatsAvailable, checkedAt)
	if err != nil {
		return false, fmt.Errorf("failed to update course %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Nothing matched: either the course is gone or is_open changed underneath us
	var exists bool
	if err := s.db.QueryRow(ctx, s.q.courseExists, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check course %s: %w", id, err)
	}
	if !exists {
		return false, store.ErrNotFound
	}
	return false, nil
}

// ScanCourses iterates over every course in id order, one page at a time
func (s *Store) ScanCourses(ctx context.Context) iter.Seq2[*course.TrackedCourse, error] {
	return func(yield func(*course.TrackedCourse, error) bool) {
		after := ""
		for {
			page, err := s.scanPage(ctx, after)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, c := range page {
				if !yield(c, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

func (s *Store) scanPage(ctx context.Context, after string) ([]*course.TrackedCourse, error) {
	rows, err := s.db.Query(ctx, s.q.scanCourses, after, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to scan courses: %w", err)
	}
	defer rows.Close()

	page := make([]*course.TrackedCourse, 0, s.pageSize)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read course row: %w", err)
		}
		page = append(page, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan courses: %w", err)
	}
	return page, nil
}

// PutTracking records the tracking relation, ignoring duplicates
func (s *Store) PutTracking(ctx context.Context, t course.Tracking) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := s.db.Exec(ctx, s.q.putTracking, t.UserID, t.CourseID, createdAt); err != nil {
		return fmt.Errorf("failed to store tracking %s/%s: %w", t.UserID, t.CourseID, err)
	}
	return nil
}

// ListTrackingByUser returns the trackings of a user
func (s *Store) ListTrackingByUser(ctx context.Context, userID string) ([]course.Tracking, error) {
	return s.listTrackings(ctx, s.q.listTrackingByUser, userID)
}

// ListTrackingByCourse returns the trackings of a course
func (s *Store) ListTrackingByCourse(ctx context.Context, courseID string) ([]course.Tracking, error) {
	return s.listTrackings(ctx, s.q.listTrackingByCourse, courseID)
}

func (s *Store) listTrackings(ctx context.Context, sql, arg string) ([]course.Tracking, error) {
	rows, err := s.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list trackings: %w", err)
	}
	trackings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (course.Tracking, error) {
		var t course.Tracking
		err := row.Scan(&t.UserID, &t.CourseID, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list trackings: %w", err)
	}
	return trackings, nil
}

// GetUser returns the user with the given id
func (s *Store) GetUser(ctx context.Context, id string) (*course.User, error) {
	var u course.User
	err := s.db.QueryRow(ctx, s.q.getUser, id).Scan(&u.ID, &u.Email, &u.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &u, nil
}

// PutUser upserts a user record
func (s *Store) PutUser(ctx context.Context, u *course.User) error {
	if _, err := s.db.Exec(ctx, s.q.putUser, u.ID, u.Email, u.Phone); err != nil {
		return fmt.Errorf("failed to store user %s: %w", u.ID, err)
	}
	return nil
}

// ClaimNotification inserts key into the ledger, reporting whether it was new
func (s *Store) ClaimNotification(ctx context.Context, key string) (bool, error) {
	tag, err := s.db.Exec(ctx, s.q.claimNotification, key)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the underlying pool
func (s *Store) Close() {
	s.close()
}

func scanCourse(row pgx.Row) (*course.TrackedCourse, error) {
	var (
		c        course.TrackedCourse
		semester string
		checked  *time.Time
	)
	if err := row.Scan(&c.ID, &c.CRN, &c.Year, &semester, &c.IsOpen, &c.SeatsAvailable, &checked); err != nil {
		return nil, err
	}
	c.Semester = course.Semester(semester)
	c.LastChecked = checked
	return &c, nil
}
