// Package config loads dispatch-core's configuration from a YAML file and
// DISPATCH_-prefixed environment variables using viper, mirroring the
// teacher's config-loading idiom.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/developer-mesh/dispatch-core/pkg/cache"
	"github.com/developer-mesh/dispatch-core/pkg/metrics"
)

// APIConfig configures the gin HTTP server exposing spec §6's endpoints.
type APIConfig struct {
	ListenAddress  string        `mapstructure:"listen_address"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// BearerToken authenticates POST /api/dispatch/ready (spec §6).
	BearerToken string `mapstructure:"bearer_token"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DispatcherConfig tunes the Dispatcher's tick loop (spec §4.3).
type DispatcherConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	BatchSize          int           `mapstructure:"batch_size"`
	CircuitBreakerTrip int           `mapstructure:"circuit_breaker_threshold"`
}

// ExecutorConfig tunes the Executor's tick loop and the outbound HTTP
// client to the executor service (spec §4.4).
type ExecutorConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	ClaimTimeout      time.Duration `mapstructure:"claim_timeout"`
	ServiceURL        string        `mapstructure:"service_url"`
	ServiceBearerToken string       `mapstructure:"service_bearer_token"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// ReconcilerConfig tunes the Callback Reconciler (spec §4.5).
type ReconcilerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// PromoterConfig tunes the Dependency Promoter (spec §4.6).
type PromoterConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// EncryptionConfig configures the per-tenant key derivation boundary.
type EncryptionConfig struct {
	WritePassphrase string `mapstructure:"write_passphrase"`
}

// TenantConfig identifies the single tenant/user pair this deployment
// serves (spec §6's PRIMARY_TENANT_ID / PRIMARY_USER_ID).
type TenantConfig struct {
	PrimaryTenantID string `mapstructure:"primary_tenant_id"`
	PrimaryUserID   string `mapstructure:"primary_user_id"`
}

// Config is dispatch-core's complete runtime configuration.
type Config struct {
	Environment string            `mapstructure:"environment"`
	API         APIConfig         `mapstructure:"api"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       cache.RedisConfig `mapstructure:"cache"`
	Dispatcher  DispatcherConfig  `mapstructure:"dispatcher"`
	Executor    ExecutorConfig    `mapstructure:"executor"`
	Reconciler  ReconcilerConfig  `mapstructure:"reconciler"`
	Promoter    PromoterConfig    `mapstructure:"promoter"`
	Encryption  EncryptionConfig  `mapstructure:"encryption"`
	Tenant      TenantConfig      `mapstructure:"tenant"`
	Metrics     metrics.Config    `mapstructure:"metrics"`
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// Load reads configuration from DISPATCH_CONFIG_FILE (default
// configs/config.yaml) and DISPATCH_-prefixed environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("DISPATCH_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 15*time.Second)
	v.SetDefault("api.write_timeout", 15*time.Second)
	v.SetDefault("api.idle_timeout", 60*time.Second)
	v.SetDefault("api.rate_limit_rps", 10.0)
	v.SetDefault("api.rate_limit_burst", 20)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 2*time.Minute)

	v.SetDefault("cache.type", "redis")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.dial_timeout", 5*time.Second)
	v.SetDefault("cache.read_timeout", 3*time.Second)
	v.SetDefault("cache.write_timeout", 3*time.Second)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.min_idle_conns", 2)

	v.SetDefault("dispatcher.tick_interval", 2*time.Second)
	v.SetDefault("dispatcher.batch_size", 10)
	v.SetDefault("dispatcher.circuit_breaker_threshold", 3)

	v.SetDefault("executor.tick_interval", 2*time.Second)
	v.SetDefault("executor.claim_timeout", 10*time.Minute)
	v.SetDefault("executor.request_timeout", 30*time.Second)
	v.SetDefault("executor.max_retries", 3)

	v.SetDefault("reconciler.tick_interval", 3*time.Second)
	v.SetDefault("promoter.tick_interval", 5*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.type", "prometheus")
}
