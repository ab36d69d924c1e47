// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/joeshaw/envdecode"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string `env:"SERVER_HOST,default=0.0.0.0"`
	Port            int    `env:"SERVER_PORT,default=8080"`
	ReadTimeout     int    `env:"SERVER_READ_TIMEOUT,default=15"`
	WriteTimeout    int    `env:"SERVER_WRITE_TIMEOUT,default=15"`
	ShutdownTimeout int    `env:"SERVER_SHUTDOWN_TIMEOUT,default=10"`
}

// DatabaseConfig holds database connection settings. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	Driver          string `env:"DATABASE_DRIVER,default=postgres"`
	DSN             string `env:"DATABASE_DSN"`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME,default=300"`
	Migrate         bool   `env:"DATABASE_MIGRATE,default=true"`
}

// RedisConfig holds the optional snapshot cache settings. An empty address
// disables the cache.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,default=0"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL,default=info"`
	Format     string `env:"LOG_FORMAT,default=text"`
	Output     string `env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"LOG_FILE_PREFIX"`
}

// AuthConfig holds operator authentication settings.
type AuthConfig struct {
	JWTSecret string `env:"OPERATOR_JWT_SECRET"`
}

// EntropyConfig selects the entropy source backing draw execution.
type EntropyConfig struct {
	// Source is "chain" (deterministic hash chain, development only) or
	// "beacon" (external randomness beacon over HTTP).
	Source      string `env:"ENTROPY_SOURCE,default=chain"`
	BeaconURL   string `env:"ENTROPY_BEACON_URL"`
	ChainSeed   string `env:"ENTROPY_CHAIN_SEED,default=raffle-dev-seed"`
	HTTPTimeout int    `env:"ENTROPY_HTTP_TIMEOUT,default=5"`
}

// Config is the root service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
	Auth     AuthConfig
	Entropy  EntropyConfig

	// RaffleConfigPath points at the protocol parameter file. Empty means
	// built-in defaults.
	RaffleConfigPath string `env:"RAFFLE_CONFIG_PATH"`

	// WatchdogIntervalSeconds is the round watchdog scan period. Zero
	// disables the watchdog.
	WatchdogIntervalSeconds int `env:"WATCHDOG_INTERVAL,default=15"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}
