package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/seatwatch/internal/course"
	"github.com/stacklok/seatwatch/internal/monitor"
	"github.com/stacklok/seatwatch/internal/tracking"
)

// DefaultAdminGroup is the group allowed to trigger checks by hand
const DefaultAdminGroup = "admin"

// Tracker manages the courses users track and their subscriptions
type Tracker interface {
	Track(ctx context.Context, p tracking.Principal, key course.Key) (*tracking.TrackResult, error)
	ListCourses(ctx context.Context, userID string) ([]course.TrackedCourse, error)
	Subscribe(ctx context.Context, p tracking.Principal, phone string) (*tracking.SubscribeResult, error)
}

// ReadinessChecker reports whether the backing store can serve requests
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

// ServerOption configures the API server
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	metricsHandler http.Handler
	adminGroup     string
	triggerToken   string
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// WithAdminGroup sets the group required by the manual check endpoints
func WithAdminGroup(group string) ServerOption {
	return func(cfg *serverConfig) {
		if group != "" {
			cfg.adminGroup = group
		}
	}
}

// WithTriggerToken requires the scheduler trigger to present token in X-Trigger-Token
func WithTriggerToken(token string) ServerOption {
	return func(cfg *serverConfig) {
		cfg.triggerToken = token
	}
}

// NewServer creates and configures the HTTP router
func NewServer(svc monitor.Service, tracker Tracker, ready ReadinessChecker, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{adminGroup: DefaultAdminGroup}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Mount("/", HealthRouter(ready))
	if cfg.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metricsHandler)
	}

	routes := &routes{monitor: svc, tracker: tracker}
	r.With(requireTriggerToken(cfg.triggerToken)).Post("/check-courses", routes.triggerCycle)

	r.Group(func(r chi.Router) {
		r.Use(RequireIdentity)

		r.Route("/courses", func(r chi.Router) {
			r.Post("/", routes.trackCourse)
			r.Get("/", routes.listCourses)

			r.Group(func(r chi.Router) {
				r.Use(RequireGroup(cfg.adminGroup))
				r.Post("/check", routes.checkAll)
				r.Post("/{courseID}/check", routes.checkOne)
				r.Post("/notify", routes.notifyUsers)
			})
		})

		r.Post("/notifications/subscribe", routes.subscribe)
	})

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
