// Package source fetches live seat availability from the registration system.
package source

import (
	"context"
	"fmt"

	"github.com/stacklok/seatwatch/internal/config"
	"github.com/stacklok/seatwatch/internal/course"
	"github.com/stacklok/seatwatch/internal/httpclient"
)

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks -source=adapter.go Adapter

// Adapter reports the current availability of a course section.
// Failures are returned as *Error; context cancellation is returned as is.
type Adapter interface {
	Fetch(ctx context.Context, crn string, year int, semester course.Semester) (*course.Availability, error)
}

// NewAdapter builds the adapter selected by the source configuration
func NewAdapter(cfg *config.SourceConfig) (Adapter, error) {
	switch cfg.GetType() {
	case config.SourceTypeHTML:
		if cfg.HTML == nil || cfg.HTML.BaseURL == "" {
			return nil, fmt.Errorf("source.html.baseURL is required")
		}
		return NewHTMLAdapter(cfg.HTML.BaseURL, httpclient.NewDefaultClient(cfg.GetTimeout())), nil
	case config.SourceTypeSimulated:
		return NewSimulatedAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
}
