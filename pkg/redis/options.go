package redis

import (
	"github.com/redis/go-redis/v9"
)

// NewClient parses the configured URL and returns a client
func NewClient(cfg *Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	return redis.NewClient(opt), nil
}
