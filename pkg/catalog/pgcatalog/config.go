// Package pgcatalog reads partitioning metadata from a PostgreSQL database managed by pg_pathman
package pgcatalog

import (
	"errors"
	"time"
)

// Define static errors
var (
	ErrDSNRequired         = errors.New("postgres dsn is required")
	ErrMalformedConstraint = errors.New("malformed hash partition constraint")
	ErrUnsupportedBound    = errors.New("unsupported partition bound value")
)

// Config holds connection pool settings
type Config struct {
	DSN               string        `yaml:"dsn"`
	Schema            string        `yaml:"schema" default:"public"`
	MaxConns          int32         `yaml:"maxConns" default:"10"`
	MinConns          int32         `yaml:"minConns" default:"1"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod" default:"5s"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime" default:"30m"`
	QueryTimeout      time.Duration `yaml:"queryTimeout" default:"10s"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DSN == "" {
		return ErrDSNRequired
	}

	if c.Schema == "" {
		c.Schema = "public"
	}

	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}

	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}

	return nil
}
