// Package redis provides Redis client configuration for catalog change notifications
package redis

import (
	"errors"
	"fmt"
)

// Define static errors
var (
	ErrURLRequired     = errors.New("redis url is required")
	ErrChannelRequired = errors.New("redis channel is required")
)

// Config holds Redis client configuration
type Config struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel" default:"invalidations"`
	Prefix  string `yaml:"prefix" default:"partcache"`
	Buffer  int    `yaml:"buffer" default:"1024"`
}

// Enabled reports whether a Redis transport is configured
func (c *Config) Enabled() bool {
	return c.URL != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	if c.Channel == "" {
		return ErrChannelRequired
	}

	if c.Buffer <= 0 {
		c.Buffer = 1024
	}

	return nil
}

// ChannelName returns the pub/sub channel with the configured prefix
func (c *Config) ChannelName() string {
	if c.Prefix == "" {
		return c.Channel
	}

	return fmt.Sprintf("%s:%s", c.Prefix, c.Channel)
}
