// Package config loads service configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration for the catalog API.
type Config struct {
	Env     string        `yaml:"env" env:"GEOMETA_ENV" env-default:"local"`
	HTTP    HTTPConfig    `yaml:"http"`
	DB      DBConfig      `yaml:"db"`
	Redis   RedisConfig   `yaml:"redis"`
	Auth    AuthConfig    `yaml:"auth"`
	Cookies CookieConfig  `yaml:"cookies"`
	Limits  LimitsConfig  `yaml:"limits"`
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Host string `yaml:"host" env:"GEOMETA_HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GEOMETA_HTTP_PORT" env-default:"8080"`
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// DBConfig holds the PostgreSQL connection string.
type DBConfig struct {
	DSN string `yaml:"dsn" env:"GEOMETA_PG_DSN"`
}

// RedisConfig holds the key-value store address used for revocation
// entries and rate-limit counters.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"GEOMETA_REDIS_ADDR" env-default:"127.0.0.1:6379"`
	Password string `yaml:"password" env:"GEOMETA_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"GEOMETA_REDIS_DB" env-default:"0"`
}

// AuthConfig carries token issuance and verification parameters.
// Access and refresh secrets must be configured independently so a
// leaked access secret cannot forge refresh tokens.
type AuthConfig struct {
	AccessSecret         string        `yaml:"access_secret" env:"GEOMETA_ACCESS_SECRET"`
	RefreshSecret        string        `yaml:"refresh_secret" env:"GEOMETA_REFRESH_SECRET"`
	AccessTTL            time.Duration `yaml:"access_ttl" env:"GEOMETA_ACCESS_TTL" env-default:"1h"`
	RefreshTTL           time.Duration `yaml:"refresh_ttl" env:"GEOMETA_REFRESH_TTL" env-default:"168h"`
	ResetTokenTTL        time.Duration `yaml:"reset_token_ttl" env:"GEOMETA_RESET_TOKEN_TTL" env-default:"1h"`
	Issuer               string        `yaml:"issuer" env:"GEOMETA_ISSUER" env-default:"geometa"`
	RequireVerifiedEmail bool          `yaml:"require_verified_email" env:"GEOMETA_REQUIRE_VERIFIED_EMAIL" env-default:"false"`
}

// CookieConfig controls Set-Cookie attributes on auth cookies.
type CookieConfig struct {
	Domain string `yaml:"domain" env:"GEOMETA_COOKIE_DOMAIN"`
	Secure bool   `yaml:"secure" env:"GEOMETA_COOKIE_SECURE" env-default:"false"`
}

// LimitsConfig carries fixed-window rate limiter thresholds per policy class.
type LimitsConfig struct {
	StandardMax       int           `yaml:"standard_max" env:"GEOMETA_LIMIT_STANDARD_MAX" env-default:"100"`
	StandardWindow    time.Duration `yaml:"standard_window" env:"GEOMETA_LIMIT_STANDARD_WINDOW" env-default:"1m"`
	LoginMax          int           `yaml:"login_max" env:"GEOMETA_LIMIT_LOGIN_MAX" env-default:"5"`
	LoginWindow       time.Duration `yaml:"login_window" env:"GEOMETA_LIMIT_LOGIN_WINDOW" env-default:"5m"`
	RegisterMax       int           `yaml:"register_max" env:"GEOMETA_LIMIT_REGISTER_MAX" env-default:"3"`
	RegisterWindow    time.Duration `yaml:"register_window" env:"GEOMETA_LIMIT_REGISTER_WINDOW" env-default:"1h"`
	ResetMax          int           `yaml:"reset_max" env:"GEOMETA_LIMIT_RESET_MAX" env-default:"3"`
	ResetWindow       time.Duration `yaml:"reset_window" env:"GEOMETA_LIMIT_RESET_WINDOW" env-default:"1h"`
	TransportBurst    int           `yaml:"transport_burst" env:"GEOMETA_LIMIT_TRANSPORT_BURST" env-default:"50"`
	TransportPerSec   int           `yaml:"transport_per_sec" env:"GEOMETA_LIMIT_TRANSPORT_PER_SEC" env-default:"25"`
}

// Load reads configuration from the given path when non-empty, falling
// back to GEOMETA_CONFIG and then to environment variables only.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("GEOMETA_CONFIG")
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from env: %w", err)
	}
	return &cfg, nil
}
