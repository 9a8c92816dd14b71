package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/seatwatch/internal/api"
	"github.com/stacklok/seatwatch/internal/app/storage"
	"github.com/stacklok/seatwatch/internal/config"
	"github.com/stacklok/seatwatch/internal/coordinator"
	"github.com/stacklok/seatwatch/internal/monitor"
	"github.com/stacklok/seatwatch/internal/notify"
	"github.com/stacklok/seatwatch/internal/notify/memory"
	"github.com/stacklok/seatwatch/internal/notify/redis"
	"github.com/stacklok/seatwatch/internal/otel"
	"github.com/stacklok/seatwatch/internal/source"
	"github.com/stacklok/seatwatch/internal/store"
	"github.com/stacklok/seatwatch/internal/telemetry"
	"github.com/stacklok/seatwatch/internal/tracking"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// SeatwatchAppOptions is a function that configures the app builder
type SeatwatchAppOptions func(*seatwatchAppConfig) error

// seatwatchAppConfig collects the builder inputs.
// It supports dependency injection for testing while providing sensible defaults for production.
type seatwatchAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	storageFactory storage.Factory
	store          store.Store
	adapter        source.Adapter
	transport      notify.Transport

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler

	// releases resources created by the builder, in reverse order
	cleanups []func()
}

func baseConfig(opts ...SeatwatchAppOptions) (*seatwatchAppConfig, error) {
	cfg := &seatwatchAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (b *seatwatchAppConfig) release() {
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		b.cleanups[i]()
	}
	b.cleanups = nil
}

// NewSeatwatchApp builds the application from the given options
func NewSeatwatchApp(
	ctx context.Context,
	opts ...SeatwatchAppOptions,
) (*SeatwatchApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	// Ensure cleanup happens on error
	var cleanupNeeded = true
	defer func() {
		if cleanupNeeded {
			cfg.release()
		}
	}()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}

	components, err := buildMonitorComponents(ctx, cfg, st)
	if err != nil {
		return nil, fmt.Errorf("failed to build monitor components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	// Cleanup is now handled by the app, not in defer
	cleanupNeeded = false

	cancelFunc := func() {
		cancel()
		cfg.release()
	}

	return &SeatwatchApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancelFunc,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SeatwatchAppOptions {
	return func(cfg *seatwatchAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) SeatwatchAppOptions {
	return func(cfg *seatwatchAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SeatwatchAppOptions {
	return func(cfg *seatwatchAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout bounds request handling. The write timeout follows it so
// the timeout middleware can still answer.
func WithRequestTimeout(d time.Duration) SeatwatchAppOptions {
	return func(cfg *seatwatchAppConfig) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive")
		}
		cfg.requestTimeout = d
		cfg.writeTimeout = d + defaultWriteTimeout - defaultRequestTimeout
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) SeatwatchAppOptions {
	return func(cfg *seatwatchAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithStore uses st instead of the configured storage. The app does not close it.
func WithStore(st store.Store) SeatwatchAppOptions {
	return func(cfg *seatwatchAppConfig) error {
		cfg.store = st
		return nil
	}
}

// WithAdapter uses adapter instead of the configured source
func WithAdapter(adapter source.Adapter) SeatwatchAppOptions {
	return func(cfg *seatwatchAppConfig) error {
		cfg.adapter = adapter
		return nil
	}
}

// WithTransport uses transport instead of the configured notification transport
func WithTransport(transport notify.Transport) SeatwatchAppOptions {
	return func(cfg *seatwatchAppConfig) error {
		cfg.transport = transport
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for monitor and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) SeatwatchAppOptions {
	return func(cfg *seatwatchAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) SeatwatchAppOptions {
	return func(cfg *seatwatchAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) SeatwatchAppOptions {
	return func(cfg *seatwatchAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildStore returns the injected store or creates the configured one
func buildStore(ctx context.Context, b *seatwatchAppConfig) (store.Store, error) {
	if b.store != nil {
		return b.store, nil
	}

	if b.storageFactory == nil {
		factory, err := storage.NewStorageFactory(ctx, b.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
		b.storageFactory = factory
	}
	b.cleanups = append(b.cleanups, b.storageFactory.Cleanup)

	return b.storageFactory.CreateStore(ctx)
}

// buildTransport creates the configured notification transport
func buildTransport(ctx context.Context, b *seatwatchAppConfig) (notify.Transport, error) {
	n := b.config.Notification
	switch n.GetTransport() {
	case config.TransportMemory:
		slog.Warn("Using in-memory notification transport; notifications are not delivered")
		return memory.New(), nil
	case config.TransportRedis:
		if n.Redis == nil {
			return nil, fmt.Errorf("redis configuration is required for transport %s", config.TransportRedis)
		}
		t, err := redis.NewTransport(ctx, redis.Options{
			Addr:     n.Redis.Addr,
			Password: n.Redis.Password,
			DB:       n.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown notification transport: %s", n.GetTransport())
	}
}

// buildMonitorComponents builds the monitor, the tracker and the coordinator
func buildMonitorComponents(
	ctx context.Context,
	b *seatwatchAppConfig,
	st store.Store,
) (*AppComponents, error) {
	slog.Info("Initializing monitor components")

	adapter := b.adapter
	if adapter == nil {
		var err error
		adapter, err = source.NewAdapter(&b.config.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to create source adapter: %w", err)
		}
	}

	transport := b.transport
	if transport == nil {
		var err error
		transport, err = buildTransport(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("failed to create notification transport: %w", err)
		}
		if c, ok := transport.(io.Closer); ok {
			b.cleanups = append(b.cleanups, func() {
				if err := c.Close(); err != nil {
					slog.Error("Failed to close notification transport", "error", err)
				}
			})
		}
	}

	topic := b.config.Notification.Topic
	if topic == "" {
		slog.Warn("No notification topic configured; notifications will fail")
	}
	dispatcher := notify.NewDispatcher(transport, topic)

	monitorCfg := b.config.Monitor
	monitorOpts := []monitor.Option{
		monitor.WithSourceTimeout(monitorCfg.GetSourceTimeout()),
		monitor.WithConcurrency(monitorCfg.GetConcurrency()),
		monitor.WithNotifyConcurrency(monitorCfg.GetNotifyConcurrency()),
	}

	if b.meterProvider != nil {
		metrics, err := telemetry.NewMonitorMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create monitor metrics: %w", err)
		}
		monitorOpts = append(monitorOpts, monitor.WithMetrics(metrics))
		slog.Info("Monitor metrics enabled")
	}
	if tracer := otel.Tracer(b.tracerProvider, monitor.TracerName); tracer != nil {
		monitorOpts = append(monitorOpts, monitor.WithTracer(tracer))
	}

	orchestrator := monitor.New(st, adapter, dispatcher, monitorOpts...)

	slog.Info("Monitor components initialized successfully",
		"source", b.config.Source.GetType(),
		"transport", b.config.Notification.GetTransport(),
		"interval", monitorCfg.GetInterval())

	return &AppComponents{
		Coordinator: coordinator.New(orchestrator, monitorCfg.GetInterval()),
		Monitor:     orchestrator,
		Tracker:     tracking.New(st, adapter, dispatcher),
		Store:       st,
	}, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *seatwatchAppConfig,
	components *AppComponents,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	if b.tracerProvider != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{telemetry.TracingMiddleware(b.tracerProvider)},
			b.middlewares...)
	}

	// Prepend metrics middleware to capture all requests including rejected ones
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
		slog.Info("HTTP metrics middleware enabled")
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithAdminGroup(b.config.Auth.GetAdminGroup()),
		api.WithTriggerToken(b.config.Auth.TriggerToken),
	}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}

	router := api.NewServer(components.Monitor, components.Tracker, components.Store, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
