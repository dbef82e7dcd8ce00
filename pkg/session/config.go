// Package session wires the partition caches into one per-session service
package session

import (
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/partcache/pkg/catalog/pgcatalog"
	"github.com/ethpandaops/partcache/pkg/redis"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	// ErrCatalogRequired is returned when neither a fixture nor a postgres dsn is configured
	ErrCatalogRequired = errors.New("catalog fixture or postgres dsn is required")
	// ErrCatalogAmbiguous is returned when both a fixture and a postgres dsn are configured
	ErrCatalogAmbiguous = errors.New("catalog fixture and postgres dsn are mutually exclusive")
	// ErrInvalidLogLevel is returned when the logging level cannot be parsed
	ErrInvalidLogLevel = errors.New("invalid logging level")
)

// Config represents the complete session configuration
type Config struct {
	// Core settings
	Logging     string `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`
	MetricsAddr string `yaml:"metricsAddr" default:":9091"`

	// EnableBoundsCache toggles memoization of per-partition bounds
	EnableBoundsCache bool `yaml:"enableBoundsCache" default:"true"`

	// Catalog change notifications
	Redis redis.Config `yaml:"redis"`

	// Where partitioning metadata is read from
	Catalog CatalogConfig `yaml:"catalog"`
}

// CatalogConfig selects the catalog backend
type CatalogConfig struct {
	// Fixture is a YAML file loaded into an in-memory catalog
	Fixture  string           `yaml:"fixture"`
	Postgres pgcatalog.Config `yaml:"postgres"`
}

// Validate checks if the configuration is valid
func (c *CatalogConfig) Validate() error {
	switch {
	case c.Fixture == "" && c.Postgres.DSN == "":
		return ErrCatalogRequired
	case c.Fixture != "" && c.Postgres.DSN != "":
		return ErrCatalogAmbiguous
	case c.Postgres.DSN != "":
		return c.Postgres.Validate()
	default:
		return nil
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging)
	}

	if c.Redis.Enabled() {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	}

	return c.Catalog.Validate()
}

// LoadConfig loads the configuration from a YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	config := &Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}

// NewLogger builds a logger at the configured level
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Logging)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging)
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return log, nil
}
