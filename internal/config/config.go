// Package config loads service configuration from an optional YAML file with
// environment variables layered on top.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration for the nashra auth service.
//
// Value sources, in descending priority:
//  1. explicit path passed to Load;
//  2. the CONFIG_PATH environment variable;
//  3. ./local.yaml in the working directory;
//  4. environment variables alone.
type Config struct {
	Env       string          `yaml:"env" env:"NASHRA_ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	DB        DBConfig        `yaml:"db"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// HTTPConfig holds the listener address.
type HTTPConfig struct {
	Host string `yaml:"host" env:"NASHRA_HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"NASHRA_HTTP_PORT" env-default:"8080"`
	// CORSOrigins are the exact web origins allowed to make credentialed
	// requests, e.g. https://nashra.news. Localhost is always allowed.
	CORSOrigins []string `yaml:"cors_origins" env:"NASHRA_CORS_ORIGINS"`
}

// Addr returns the address in host:port form.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// DBConfig holds the Postgres connection settings.
type DBConfig struct {
	DSN          string        `yaml:"dsn" env:"NASHRA_PG_DSN"`
	StoreTimeout time.Duration `yaml:"store_timeout" env:"NASHRA_STORE_TIMEOUT" env-default:"5s"`
}

// AuthConfig holds token issuance and cookie settings.
type AuthConfig struct {
	SigningSecret   string        `yaml:"signing_secret" env:"NASHRA_AUTH_SECRET" env-required:"true"`
	Issuer          string        `yaml:"issuer" env:"NASHRA_AUTH_ISSUER" env-default:"nashra"`
	AccessTTL       time.Duration `yaml:"access_ttl" env:"NASHRA_ACCESS_TTL" env-default:"15m"`
	RefreshTTL      time.Duration `yaml:"refresh_ttl" env:"NASHRA_REFRESH_TTL" env-default:"720h"`
	ResetTTL        time.Duration `yaml:"reset_ttl" env:"NASHRA_RESET_TTL" env-default:"1h"`
	VerificationTTL time.Duration `yaml:"verification_ttl" env:"NASHRA_VERIFICATION_TTL" env-default:"24h"`
	// SecureCookies should stay true anywhere TLS terminates in front of the
	// service; switch off only for plain-HTTP local development.
	SecureCookies bool `yaml:"secure_cookies" env:"NASHRA_SECURE_COOKIES" env-default:"true"`
}

// RateLimitConfig bounds failed login attempts per client IP.
type RateLimitConfig struct {
	LoginAttempts int           `yaml:"login_attempts" env:"NASHRA_LOGIN_ATTEMPTS" env-default:"5"`
	LoginWindow   time.Duration `yaml:"login_window" env:"NASHRA_LOGIN_WINDOW" env-default:"15m"`
}

// BootstrapConfig describes the default admin account ensured at startup.
type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email" env:"NASHRA_ADMIN_EMAIL"`
	AdminPassword string `yaml:"admin_password" env:"NASHRA_ADMIN_PASSWORD"`
}

// MustLoad wraps Load and panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from the resolved file, then applies environment
// overrides. A missing file is not an error; env-only configuration works.
func Load(path string) (*Config, error) {
	var cfg Config

	resolved := path
	if resolved == "" {
		resolved = os.Getenv("CONFIG_PATH")
	}
	if resolved == "" {
		if _, err := os.Stat("local.yaml"); err == nil {
			resolved = "local.yaml"
		}
	}

	if resolved != "" {
		if err := cleanenv.ReadConfig(resolved, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", resolved, err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	return &cfg, nil
}
