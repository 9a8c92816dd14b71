// Package config provides configuration loading and management for the seat monitor.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/seatwatch/internal/telemetry"
)

const (
	// SourceTypeHTML scrapes the registration system search page
	SourceTypeHTML = "html"

	// SourceTypeSimulated returns random availability, for development
	SourceTypeSimulated = "simulated"
)

const (
	// StorageTypeMemory keeps all records in process memory
	StorageTypeMemory = "memory"

	// StorageTypeDatabase stores records in PostgreSQL
	StorageTypeDatabase = "database"
)

const (
	// TransportMemory records notifications in process memory
	TransportMemory = "memory"

	// TransportRedis publishes notifications on a Redis channel
	TransportRedis = "redis"
)

// EnvPrefix is the prefix of environment variables read through viper
const EnvPrefix = "SEATWATCH"

// Defaults applied by the getters when a field is left empty
const (
	DefaultSourceTimeout     = 30 * time.Second
	DefaultInterval          = 15 * time.Minute
	DefaultConcurrency       = 4
	DefaultNotifyConcurrency = 8
	DefaultPageSize          = 100
	DefaultAdminGroup        = "admin"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Source       SourceConfig       `yaml:"source"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	Storage      StorageConfig      `yaml:"storage"`
	Database     *DatabaseConfig    `yaml:"database,omitempty"`
	Notification NotificationConfig `yaml:"notification"`
	Auth         AuthConfig         `yaml:"auth"`
	Telemetry    *telemetry.Config  `yaml:"telemetry,omitempty"`
}

// SourceConfig selects and configures the availability source
type SourceConfig struct {
	// Type is html or simulated
	Type string `yaml:"type"`

	HTML *HTMLSourceConfig `yaml:"html,omitempty"`

	// Timeout bounds a single HTTP request to the registration system (e.g. "30s")
	Timeout string `yaml:"timeout,omitempty"`
}

// HTMLSourceConfig configures the HTML scraping source
type HTMLSourceConfig struct {
	// BaseURL is the registration system root; "/search" is appended
	BaseURL string `yaml:"baseURL"`
}

// MonitorConfig holds scheduling and concurrency settings of the monitoring cycle
type MonitorConfig struct {
	// Interval between scheduled cycles (e.g. "15m")
	Interval string `yaml:"interval,omitempty"`

	// Concurrency is the number of availability checks run in parallel
	Concurrency int `yaml:"concurrency,omitempty"`

	// NotifyConcurrency is the number of notifications dispatched in parallel
	NotifyConcurrency int `yaml:"notifyConcurrency,omitempty"`

	// SourceTimeout bounds one adapter call made by the checker
	SourceTimeout string `yaml:"sourceTimeout,omitempty"`
}

// StorageConfig selects the record store
type StorageConfig struct {
	Type     string       `yaml:"type"`
	Tables   TablesConfig `yaml:"tables,omitempty"`
	PageSize int          `yaml:"pageSize,omitempty"`
}

// TablesConfig overrides table names. Empty fields use the migration defaults.
type TablesConfig struct {
	Courses     string `yaml:"courses,omitempty"`
	Users       string `yaml:"users,omitempty"`
	UserCourses string `yaml:"userCourses,omitempty"`
	Ledger      string `yaml:"ledger,omitempty"`
}

// NotificationConfig configures the notification transport
type NotificationConfig struct {
	Transport string `yaml:"transport"`

	// Topic receives every notification. Without one, dispatches fail as not configured.
	Topic string `yaml:"topic"`

	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// AuthConfig configures how the identity supplied by the upstream provider is used
type AuthConfig struct {
	// AdminGroup is the group whose members may call the administrative endpoints
	AdminGroup string `yaml:"adminGroup,omitempty"`

	// TriggerToken, when set, must be presented by the scheduler in X-Trigger-Token
	TriggerToken string `yaml:"triggerToken,omitempty"`
}

// LoadConfig loads and validates the configuration
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetType returns the source type, html by default
func (s *SourceConfig) GetType() string {
	if s.Type == "" {
		return SourceTypeHTML
	}
	return s.Type
}

// GetTimeout returns the HTTP timeout of the source
func (s *SourceConfig) GetTimeout() time.Duration {
	return durationOr(s.Timeout, DefaultSourceTimeout)
}

// GetInterval returns the schedule interval
func (m *MonitorConfig) GetInterval() time.Duration {
	return durationOr(m.Interval, DefaultInterval)
}

// GetSourceTimeout returns the per-check adapter timeout
func (m *MonitorConfig) GetSourceTimeout() time.Duration {
	return durationOr(m.SourceTimeout, DefaultSourceTimeout)
}

// GetConcurrency returns the number of parallel checks
func (m *MonitorConfig) GetConcurrency() int {
	if m.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return m.Concurrency
}

// GetNotifyConcurrency returns the number of parallel notification dispatches
func (m *MonitorConfig) GetNotifyConcurrency() int {
	if m.NotifyConcurrency <= 0 {
		return DefaultNotifyConcurrency
	}
	return m.NotifyConcurrency
}

// GetType returns the storage type, memory unless a database is configured
func (s *StorageConfig) GetType() string {
	if s.Type == "" {
		return StorageTypeMemory
	}
	return s.Type
}

// GetPageSize returns the scan page size
func (s *StorageConfig) GetPageSize() int {
	if s.PageSize <= 0 {
		return DefaultPageSize
	}
	return s.PageSize
}

// GetTransport returns the notification transport, memory by default
func (n *NotificationConfig) GetTransport() string {
	if n.Transport == "" {
		return TransportMemory
	}
	return n.Transport
}

// GetAdminGroup returns the administrative group name
func (a *AuthConfig) GetAdminGroup() string {
	if a.AdminGroup == "" {
		return DefaultAdminGroup
	}
	return a.AdminGroup
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error
	errs = append(errs, c.Source.validate()...)
	errs = append(errs, c.Monitor.validate()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.Notification.validate()...)

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (s *SourceConfig) validate() []error {
	var errs []error

	switch s.GetType() {
	case SourceTypeHTML:
		if s.HTML == nil || s.HTML.BaseURL == "" {
			errs = append(errs, fmt.Errorf("source.html.baseURL is required for source type %s", SourceTypeHTML))
		} else if u, err := url.Parse(s.HTML.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("source.html.baseURL must be an absolute URL, got %q", s.HTML.BaseURL))
		}
	case SourceTypeSimulated:
	default:
		errs = append(errs, fmt.Errorf("source.type must be %s or %s, got %q", SourceTypeHTML, SourceTypeSimulated, s.Type))
	}

	if err := validateDuration("source.timeout", s.Timeout); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func (m *MonitorConfig) validate() []error {
	var errs []error
	if err := validateDuration("monitor.interval", m.Interval); err != nil {
		errs = append(errs, err)
	}
	if err := validateDuration("monitor.sourceTimeout", m.SourceTimeout); err != nil {
		errs = append(errs, err)
	}
	if m.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("monitor.concurrency must not be negative"))
	}
	if m.NotifyConcurrency < 0 {
		errs = append(errs, fmt.Errorf("monitor.notifyConcurrency must not be negative"))
	}
	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	switch c.Storage.GetType() {
	case StorageTypeMemory:
	case StorageTypeDatabase:
		if c.Database == nil {
			errs = append(errs, fmt.Errorf("database configuration is required for storage type %s", StorageTypeDatabase))
		} else {
			errs = append(errs, c.Database.validate()...)
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be %s or %s, got %q",
			StorageTypeMemory, StorageTypeDatabase, c.Storage.Type))
	}
	if c.Storage.PageSize < 0 {
		errs = append(errs, fmt.Errorf("storage.pageSize must not be negative"))
	}
	return errs
}

func (n *NotificationConfig) validate() []error {
	var errs []error
	switch n.GetTransport() {
	case TransportMemory:
	case TransportRedis:
		if n.Redis == nil || n.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("notification.redis.addr is required for transport %s", TransportRedis))
		}
	default:
		errs = append(errs, fmt.Errorf("notification.transport must be %s or %s, got %q",
			TransportMemory, TransportRedis, n.Transport))
	}
	return errs
}

func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30s', '15m'): %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return nil
}
