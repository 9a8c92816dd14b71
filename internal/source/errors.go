package source

import (
	"errors"
	"fmt"
)

// Kind classifies an adapter failure
type Kind string

const (
	// KindTimeout means the registration system did not answer in time
	KindTimeout Kind = "timeout"
	// KindHTTP means the request failed or returned a non-200 status
	KindHTTP Kind = "http"
	// KindParse means the response could not be interpreted
	KindParse Kind = "parse"
	// KindNotFound means the response has no row for the CRN
	KindNotFound Kind = "not_found"
)

// Sentinels matched by errors.Is against an *Error of the same kind
var (
	ErrTimeout  = errors.New("source timeout")
	ErrHTTP     = errors.New("source http error")
	ErrParse    = errors.New("source parse error")
	ErrNotFound = errors.New("course not found at source")
)

// Error is an adapter failure. StatusCode is set for KindHTTP when a response was received.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

// Error returns the error message
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindHTTP:
		return ErrHTTP
	case KindParse:
		return ErrParse
	case KindNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// AsError returns the *Error in err's chain, if any
func AsError(err error) (*Error, bool) {
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr, true
	}
	return nil, false
}
