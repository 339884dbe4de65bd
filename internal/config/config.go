package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "device", "password",
}

type Config struct {
	Port                      int    `env:"PORT" envDefault:"8080"`
	DatabaseURL               string `env:"DATABASE_URL,required"`
	RedisURL                  string `env:"REDIS_URL,required"`
	DeviceID                  string `env:"DEVICE_ID" envDefault:"kiosk-1"`
	DeviceSecret              string `env:"DEVICE_SECRET"`
	DeviceStore               string `env:"DEVICE_STORE" envDefault:"redis"`
	AdminPasswordHash         string `env:"ADMIN_PASSWORD_HASH"`
	PairingTimeoutSeconds     int    `env:"PAIRING_TIMEOUT_SECONDS" envDefault:"300"`
	WeighingTimeoutSeconds    int    `env:"WEIGHING_TIMEOUT_SECONDS" envDefault:"600"`
	SupervisorIntervalSeconds int    `env:"SUPERVISOR_INTERVAL_SECONDS" envDefault:"15"`
	RateLimitPerMin           int    `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	LogLevel                  string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) PairingTimeout() time.Duration {
	return time.Duration(c.PairingTimeoutSeconds) * time.Second
}

func (c *Config) WeighingTimeout() time.Duration {
	return time.Duration(c.WeighingTimeoutSeconds) * time.Second
}

func (c *Config) SupervisorInterval() time.Duration {
	return time.Duration(c.SupervisorIntervalSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.DeviceStore != DeviceStoreRedis && c.DeviceStore != DeviceStoreMemory {
		return fmt.Errorf("DEVICE_STORE must be %q or %q", DeviceStoreRedis, DeviceStoreMemory)
	}

	if c.PairingTimeoutSeconds <= 0 || c.WeighingTimeoutSeconds <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	if c.SupervisorIntervalSeconds <= 0 {
		return fmt.Errorf("SUPERVISOR_INTERVAL_SECONDS must be positive")
	}

	if isProduction {
		if err := validateSecret("DEVICE_SECRET", c.DeviceSecret); err != nil {
			return err
		}
		if c.DeviceStore == DeviceStoreMemory {
			return fmt.Errorf("DEVICE_STORE=memory cannot be shared between instances; use redis in production")
		}
		if c.AdminPasswordHash == "" {
			log.Warn().Msg("ADMIN_PASSWORD_HASH is empty in production: device reset is disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// SimulatorConfig drives cmd/simulator, which plays the firmware side of
// the protocol against the same Redis record.
type SimulatorConfig struct {
	RedisURL         string  `env:"REDIS_URL,required"`
	DeviceID         string  `env:"DEVICE_ID" envDefault:"kiosk-1"`
	MatchProbability float64 `env:"SIM_MATCH_PROBABILITY" envDefault:"0.8"`
	MinDelayMillis   int     `env:"SIM_MIN_DELAY_MS" envDefault:"2000"`
	MaxDelayMillis   int     `env:"SIM_MAX_DELAY_MS" envDefault:"5000"`
	SettleMillis     int     `env:"SIM_SETTLE_MS" envDefault:"3000"`
	LogLevel         string  `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *SimulatorConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelayMillis) * time.Millisecond
}

func (c *SimulatorConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMillis) * time.Millisecond
}

func (c *SimulatorConfig) SettleTime() time.Duration {
	return time.Duration(c.SettleMillis) * time.Millisecond
}

func (c *SimulatorConfig) Validate() error {
	if c.MatchProbability < 0 || c.MatchProbability > 1 {
		return fmt.Errorf("SIM_MATCH_PROBABILITY must be between 0 and 1")
	}
	if c.MinDelayMillis < 0 || c.MaxDelayMillis < c.MinDelayMillis {
		return fmt.Errorf("SIM_MAX_DELAY_MS must be at least SIM_MIN_DELAY_MS")
	}
	if c.SettleMillis < 0 {
		return fmt.Errorf("SIM_SETTLE_MS must not be negative")
	}
	return nil
}

func LoadSimulator() (*SimulatorConfig, error) {
	var cfg SimulatorConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse simulator config: %w", err)
	}
	return &cfg, nil
}
