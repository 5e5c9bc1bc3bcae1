// Package database provides the Postgres connection pool shared by the
// repository layer.
package database

import (
	"fmt"
	"time"
)

// Config defines what the database package needs to open a connection pool.
type Config struct {
	Driver          string
	DSN             string
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	QueryTimeout   time.Duration
	ConnectTimeout time.Duration

	AutoMigrate          bool
	MigrationsPath       string
	FailOnMigrationError bool
}

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Driver:          "postgres",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
		ConnectTimeout:  10 * time.Second,
		MigrationsPath:  "migrations",
		SSLMode:         "disable",
		Port:            5432,
	}
}

// GetDSN returns the connection string for the database, building one from
// components if DSN was not set explicitly.
func (c *Config) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return buildPostgresDSN(c)
}

func buildPostgresDSN(c *Config) string {
	if c.Host == "" {
		c.Host = "localhost"
	}

	dsn := "postgres://"
	if c.Username != "" {
		dsn += c.Username
		if c.Password != "" {
			dsn += ":" + c.Password
		}
		dsn += "@"
	}
	dsn += fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Database)
	dsn += "?sslmode=" + c.SSLMode
	return dsn
}

// Validate checks if the configuration is sufficient to open a connection.
func (c *Config) Validate() error {
	if c.Driver == "" {
		c.Driver = "postgres"
	}
	if c.DSN == "" && (c.Host == "" || c.Database == "") {
		return ErrInvalidDatabaseConfig
	}
	return nil
}
