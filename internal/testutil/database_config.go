package testutil

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// DatabaseConfig holds connection settings for an externally managed test
// database. All fields are optional; an empty config means testcontainers.
type DatabaseConfig struct {
	URL      string `env:"SCRIPTREL_TEST_DATABASE_URL"`
	Host     string `env:"SCRIPTREL_TEST_DATABASE_HOST"`
	Port     int    `env:"SCRIPTREL_TEST_DATABASE_PORT"     envDefault:"5432"`
	User     string `env:"SCRIPTREL_TEST_DATABASE_USER"     envDefault:"postgres"`
	Password string `env:"SCRIPTREL_TEST_DATABASE_PASSWORD"`
	Name     string `env:"SCRIPTREL_TEST_DATABASE_NAME"     envDefault:"postgres"`
	SSLMode  string `env:"SCRIPTREL_TEST_DATABASE_SSLMODE"  envDefault:"disable"`
}

// GetDatabaseConfig reads the test database settings from the environment.
func GetDatabaseConfig() (DatabaseConfig, error) {
	var cfg DatabaseConfig
	if err := env.Parse(&cfg); err != nil {
		return DatabaseConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// External reports whether an existing server should be used instead of a
// container.
func (c DatabaseConfig) External() bool {
	return c.URL != "" || c.Host != ""
}

// DSN returns the admin connection string of an external server.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Password != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		c.User, c.Host, c.Port, c.Name, c.SSLMode)
}
