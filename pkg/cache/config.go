package cache

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// RedisConfig configures a Redis-backed Cache.
type RedisConfig struct {
	Type         string
	Address      string
	Password     string
	Username     string
	Database     int
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PoolTimeout  int
	UseIAMAuth   bool
}

// NewCache builds the configured Cache implementation. Redis is the only
// backend; dispatch-core has no in-memory fallback because the encryption
// key store and rate limiter both require state shared across replicas.
func NewCache(cfg RedisConfig) (Cache, error) {
	return NewRedisCache(cfg)
}
