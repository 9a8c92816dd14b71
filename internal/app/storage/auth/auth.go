// Package auth resolves the credentials used to reach the database.
//
// Static passwords come from the database configuration. When dynamic
// authentication is configured, short-lived tokens are issued instead: the
// connection pool requests a fresh token for every new connection, and one-off
// connections such as migrations embed a token in their connection string.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stacklok/seatwatch/internal/config"
)

// ConnectHook sets the credentials of a new pool connection
type ConnectHook func(ctx context.Context, connConfig *pgx.ConnConfig) error

var errNoMethod = errors.New("dynamic auth is configured but no supported auth method (e.g., awsRdsIam) is specified")

// Dynamic reports whether cfg uses token based authentication
func Dynamic(cfg *config.DatabaseConfig) bool {
	return cfg != nil && cfg.DynamicAuth != nil
}

// BeforeConnect returns a hook that issues a token for user on every new
// connection. It returns nil when dynamic authentication is not configured.
func BeforeConnect(ctx context.Context, cfg *config.DatabaseConfig, user string) (ConnectHook, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}
	if !Dynamic(cfg) {
		return nil, nil
	}
	if cfg.DynamicAuth.AWSRDSIAM == nil {
		return nil, errNoMethod
	}

	issuer, err := newRDSIAMIssuer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, connConfig *pgx.ConnConfig) error {
		token, err := issuer.token(ctx, user)
		if err != nil {
			return err
		}
		connConfig.Password = token
		return nil
	}, nil
}

// Token returns a single token for user, or an empty string when dynamic
// authentication is not configured
func Token(ctx context.Context, cfg *config.DatabaseConfig, user string) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}
	if !Dynamic(cfg) {
		return "", nil
	}
	if cfg.DynamicAuth.AWSRDSIAM == nil {
		return "", errNoMethod
	}

	issuer, err := newRDSIAMIssuer(ctx, cfg)
	if err != nil {
		return "", err
	}
	return issuer.token(ctx, user)
}

// ConnectionString returns the application connection string. With dynamic
// authentication the password is left out; BeforeConnect supplies it.
func ConnectionString(cfg *config.DatabaseConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}
	if Dynamic(cfg) {
		return cfg.BuildConnectionString(cfg.User, ""), nil
	}
	return cfg.GetConnectionString()
}

// MigrationConnectionString returns the connection string of the migration
// user with either its static password or a freshly issued token embedded.
// golang-migrate opens its own connection, so a hook cannot be used there.
func MigrationConnectionString(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}
	if !Dynamic(cfg) {
		return cfg.GetMigrationConnectionString()
	}

	user := cfg.GetMigrationUser()
	token, err := Token(ctx, cfg, user)
	if err != nil {
		return "", fmt.Errorf("failed to resolve auth token for migration user: %w", err)
	}
	return cfg.BuildConnectionString(user, token), nil
}
