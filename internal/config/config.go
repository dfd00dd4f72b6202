package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"lambdawarden"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MigrateOnStart bool          `env:"MIGRATE_ON_START" envDefault:"true"`

	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	AccessTokenSkew time.Duration `env:"ACCESS_TOKEN_SKEW" envDefault:"2m"`

	DisableRegistration    bool   `env:"DISABLE_USER_REGISTRATION"`
	AdminToken             string `env:"ADMIN_TOKEN"`
	TOTPIssuer             string `env:"TOTP_ISSUER" envDefault:"lambdawarden"`
	LoginAttemptsPerMinute int    `env:"LOGIN_ATTEMPTS_PER_MINUTE" envDefault:"0"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.AccessTokenTTL <= 0 {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.AccessTokenSkew < 0 {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_SKEW must not be negative")
	}
	if cfg.LoginAttemptsPerMinute < 0 {
		return Config{}, fmt.Errorf("LOGIN_ATTEMPTS_PER_MINUTE must not be negative")
	}

	if cfg.DatabaseURL == "" && !cfg.IsDev() {
		return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a local environment where the in-memory
// store is an acceptable stand-in for Postgres.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
