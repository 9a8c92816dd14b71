package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// PasswordEnvVar is read when no password file is configured
	PasswordEnvVar = "SEATWATCH_DATABASE_PASSWORD"

	// MigrationPasswordEnvVar is read for the migration user when no migration password file is configured
	MigrationPasswordEnvVar = "SEATWATCH_DATABASE_MIGRATION_PASSWORD"

	defaultSSLMode = "require"
)

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`

	// MigrationUser runs schema migrations; defaults to User
	MigrationUser string `yaml:"migrationUser,omitempty"`

	MigrationPasswordFile string `yaml:"migrationPasswordFile,omitempty"`

	// DynamicAuth replaces static passwords with short-lived tokens
	DynamicAuth *DynamicAuthConfig `yaml:"dynamicAuth,omitempty"`
}

// DynamicAuthConfig selects a token based authentication method
type DynamicAuthConfig struct {
	AWSRDSIAM *AWSRDSIAMConfig `yaml:"awsRdsIam,omitempty"`
}

// AWSRDSIAMConfig configures AWS RDS IAM authentication
type AWSRDSIAMConfig struct {
	// Region of the RDS instance, or "detect" to read it from instance metadata
	Region string `yaml:"region"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from SEATWATCH_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	return readSecret(d.PasswordFile, PasswordEnvVar)
}

// GetMigrationUser returns the user that runs migrations
func (d *DatabaseConfig) GetMigrationUser() string {
	if d.MigrationUser == "" {
		return d.User
	}
	return d.MigrationUser
}

// GetMigrationPassword returns the migration user's password, falling back to the
// application password when no dedicated migration user is configured
func (d *DatabaseConfig) GetMigrationPassword() (string, error) {
	if d.MigrationUser == "" {
		return d.GetPassword()
	}
	return readSecret(d.MigrationPasswordFile, MigrationPasswordEnvVar)
}

// GetConnectionString returns the postgres URL for the application user
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}
	return d.BuildConnectionString(d.User, password), nil
}

// GetMigrationConnectionString returns the postgres URL for the migration user
func (d *DatabaseConfig) GetMigrationConnectionString() (string, error) {
	password, err := d.GetMigrationPassword()
	if err != nil {
		return "", err
	}
	return d.BuildConnectionString(d.GetMigrationUser(), password), nil
}

// GetConnMaxLifetime parses ConnMaxLifetime, returning zero when unset
func (d *DatabaseConfig) GetConnMaxLifetime() (time.Duration, error) {
	if d.ConnMaxLifetime == "" {
		return 0, nil
	}
	lifetime, err := time.ParseDuration(d.ConnMaxLifetime)
	if err != nil {
		return 0, fmt.Errorf("invalid connection max lifetime: %w", err)
	}
	return lifetime, nil
}

// BuildConnectionString returns the postgres URL for user. An empty password is
// left out of the URL so pgpass and BeforeConnect hooks can supply one.
func (d *DatabaseConfig) BuildConnectionString(user, password string) string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	userInfo := url.QueryEscape(user)
	if password != "" {
		userInfo += ":" + url.QueryEscape(password)
	}

	return fmt.Sprintf(
		"postgres://%s@%s:%d/%s?sslmode=%s",
		userInfo,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)
}

func (d *DatabaseConfig) validate() []error {
	var errs []error
	if d.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if d.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port is required"))
	}
	if d.User == "" {
		errs = append(errs, fmt.Errorf("database.user is required"))
	}
	if d.Database == "" {
		errs = append(errs, fmt.Errorf("database.database is required"))
	}
	if _, err := d.GetConnMaxLifetime(); err != nil {
		errs = append(errs, fmt.Errorf("database.connMaxLifetime: %w", err))
	}
	if d.DynamicAuth != nil && d.DynamicAuth.AWSRDSIAM != nil && d.DynamicAuth.AWSRDSIAM.Region == "" {
		errs = append(errs, fmt.Errorf("database.dynamicAuth.awsRdsIam.region is required"))
	}
	return errs
}

func readSecret(file, envVar string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", file, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}

	return "", fmt.Errorf("no database password configured: set a password file or the %s environment variable", envVar)
}
