// Package course contains the domain types for tracked course sections.
package course

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Semester is the academic term of a course section
type Semester string

const (
	// SemesterSpring is the spring term
	SemesterSpring Semester = "Spring"
	// SemesterSummer is the summer term
	SemesterSummer Semester = "Summer"
	// SemesterFall is the fall term
	SemesterFall Semester = "Fall"
)

const (
	minYear = 1900
	maxYear = 9999
)

// ErrInvalidID is returned when a course identifier cannot be parsed
var ErrInvalidID = errors.New("invalid course id")

// ParseSemester parses a semester name case-insensitively
func ParseSemester(s string) (Semester, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spring":
		return SemesterSpring, nil
	case "summer":
		return SemesterSummer, nil
	case "fall":
		return SemesterFall, nil
	default:
		return "", fmt.Errorf("unknown semester %q", s)
	}
}

// Valid reports whether s is one of the known semesters
func (s Semester) Valid() bool {
	return s == SemesterSpring || s == SemesterSummer || s == SemesterFall
}

// TermCode returns the registration system suffix for the semester.
// The term parameter of a search is the year followed by this code.
func (s Semester) TermCode() string {
	switch s {
	case SemesterSpring:
		return "10"
	case SemesterSummer:
		return "20"
	default:
		return "30"
	}
}

// Key is the composite identity of a course section
type Key struct {
	CRN      string   `json:"crn" yaml:"crn"`
	Year     int      `json:"year" yaml:"year"`
	Semester Semester `json:"semester" yaml:"semester"`
}

// Validate checks that all three fields can form a stable identifier
func (k Key) Validate() error {
	if k.CRN == "" {
		return fmt.Errorf("crn is required")
	}
	if strings.IndexFunc(k.CRN, unicode.IsSpace) >= 0 {
		return fmt.Errorf("crn must not contain whitespace: %q", k.CRN)
	}
	if k.Year < minYear || k.Year > maxYear {
		return fmt.Errorf("year must be between %d and %d, got %d", minYear, maxYear, k.Year)
	}
	if !k.Semester.Valid() {
		return fmt.Errorf("unknown semester %q", k.Semester)
	}
	return nil
}

// ID returns the derived identifier for the key
func (k Key) ID() string {
	return ID(k.CRN, k.Year, k.Semester)
}

// ID builds the course identifier "{crn}-{year}-{semester}".
//
// The year is a positive integer and the semester never contains a dash, so the
// identifier is unambiguous when read from the right even if the CRN contains dashes.
func ID(crn string, year int, semester Semester) string {
	return crn + "-" + strconv.Itoa(year) + "-" + string(semester)
}

// ParseID splits an identifier produced by ID back into its key
func ParseID(id string) (Key, error) {
	semIdx := strings.LastIndexByte(id, '-')
	if semIdx <= 0 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	yearIdx := strings.LastIndexByte(id[:semIdx], '-')
	if yearIdx <= 0 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	year, err := strconv.Atoi(id[yearIdx+1 : semIdx])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: bad year", ErrInvalidID, id)
	}

	key := Key{
		CRN:      id[:yearIdx],
		Year:     year,
		Semester: Semester(id[semIdx+1:]),
	}
	if err := key.Validate(); err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	// Reject non-canonical forms such as a zero-padded year
	if key.ID() != id {
		return Key{}, fmt.Errorf("%w: %q is not canonical", ErrInvalidID, id)
	}
	return key, nil
}

// Availability is the live seat state reported by the registration source
type Availability struct {
	IsOpen         bool `json:"is_open"`
	SeatsAvailable int  `json:"seats_available"`
}

// TrackedCourse is a course section that at least one user asked to be notified about
type TrackedCourse struct {
	ID             string     `json:"class_id"`
	CRN            string     `json:"crn"`
	Year           int        `json:"year"`
	Semester       Semester   `json:"semester"`
	IsOpen         bool       `json:"is_open"`
	SeatsAvailable int        `json:"seats_available"`
	LastChecked    *time.Time `json:"last_checked,omitempty"`
}

// NewTrackedCourse returns a course in its default, never-checked state
func NewTrackedCourse(key Key) *TrackedCourse {
	return &TrackedCourse{
		ID:       key.ID(),
		CRN:      key.CRN,
		Year:     key.Year,
		Semester: key.Semester,
	}
}

// Key returns the composite key of the course
func (c *TrackedCourse) Key() Key {
	return Key{CRN: c.CRN, Year: c.Year, Semester: c.Semester}
}

// Tracking relates a user to a course they track
type Tracking struct {
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"class_id"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the identity record the notifier resolves users against
type User struct {
	ID    string `json:"user_id"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone_number,omitempty"`
}
