// Package config defines the securecore configuration, its defaults, and
// loading through viper (file, SECURECORE_* environment, flags).
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/talentsphere/securecore/internal/connector"
	"github.com/talentsphere/securecore/internal/database"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// devJWTSecret is used only in development when no secret is configured.
const devJWTSecret = "securecore-dev-secret-change-me"

// Config is the top-level securecore configuration.
type Config struct {
	Environment string         `mapstructure:"environment" yaml:"environment" validate:"oneof=development production"`
	Server      ServerConfig   `mapstructure:"server" yaml:"server"`
	Database    DatabaseConfig `mapstructure:"database" yaml:"database"`
	Auth        AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Logging     LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host               string   `mapstructure:"host" yaml:"host" validate:"required"`
	Port               int      `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	ShutdownTimeout    string   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"duration"`
	CORSOrigins        []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute" validate:"min=0"`
	MaxBodySize        int64    `mapstructure:"max_body_size" yaml:"max_body_size" validate:"min=0"`
}

// DatabaseConfig controls the connection pool.
type DatabaseConfig struct {
	Driver              string `mapstructure:"driver" yaml:"driver" validate:"required,oneof=postgres mysql sqlite mssql snowflake"`
	DSN                 string `mapstructure:"dsn" yaml:"dsn" validate:"required"`
	MinConns            int    `mapstructure:"min_conns" yaml:"min_conns" validate:"min=0"`
	MaxConns            int    `mapstructure:"max_conns" yaml:"max_conns" validate:"min=1,gtefield=MinConns"`
	IdleTimeout         string `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"duration"`
	MaxLifetime         string `mapstructure:"max_lifetime" yaml:"max_lifetime" validate:"duration"`
	AcquireTimeout      string `mapstructure:"acquire_timeout" yaml:"acquire_timeout" validate:"required,duration"`
	StatementTimeout    string `mapstructure:"statement_timeout" yaml:"statement_timeout" validate:"required,duration"`
	SlowQueryThreshold  string `mapstructure:"slow_query_threshold" yaml:"slow_query_threshold" validate:"duration"`
	HealthCheckInterval string `mapstructure:"health_check_interval" yaml:"health_check_interval" validate:"duration"`
	PrivateKeyPath      string `mapstructure:"private_key_path" yaml:"private_key_path"`
	TLSMode             string `mapstructure:"tls_mode" yaml:"tls_mode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
}

// AuthConfig controls token verification, caching and ownership checks.
type AuthConfig struct {
	JWTSecret           string   `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer              string   `mapstructure:"issuer" yaml:"issuer"`
	TokenTTL            string   `mapstructure:"token_ttl" yaml:"token_ttl" validate:"required,duration"`
	CacheTTL            string   `mapstructure:"cache_ttl" yaml:"cache_ttl" validate:"required,duration"`
	CacheSweepThreshold int      `mapstructure:"cache_sweep_threshold" yaml:"cache_sweep_threshold" validate:"min=1"`
	SkipPaths           []string `mapstructure:"skip_paths" yaml:"skip_paths"`
	OwnedResources      []string `mapstructure:"owned_resources" yaml:"owned_resources" validate:"dive,required"`
	OwnerColumn         string   `mapstructure:"owner_column" yaml:"owner_column" validate:"required"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Environment: EnvProduction,
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ShutdownTimeout:    "30s",
			CORSOrigins:        []string{"*"},
			RateLimitPerMinute: 600,
			MaxBodySize:        1 << 20,
		},
		Database: DatabaseConfig{
			Driver:              "sqlite",
			DSN:                 "securecore.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
			MinConns:            2,
			MaxConns:            database.DefaultMaxConns,
			IdleTimeout:         "30s",
			MaxLifetime:         "30m",
			AcquireTimeout:      "5s",
			StatementTimeout:    "30s",
			SlowQueryThreshold:  "1s",
			HealthCheckInterval: "1m",
		},
		Auth: AuthConfig{
			TokenTTL:            "1h",
			CacheTTL:            "5m",
			CacheSweepThreshold: 1000,
			SkipPaths:           []string{"/healthz", "/readyz", "/metrics", "/openapi.json"},
			OwnerColumn:         "user_id",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Development reports whether backend detail may be shown to clients.
func (c *Config) Development() bool { return c.Environment == EnvDevelopment }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		d, err := time.ParseDuration(s)
		return err == nil && d >= 0
	})
	return v
}

// Validate checks field constraints. Every violation is reported.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

// JWTSecret returns the signing secret. Production requires at least 32
// bytes; development falls back to a fixed secret.
func (c *Config) JWTSecret() (string, error) {
	s := c.Auth.JWTSecret
	if s == "" && c.Development() {
		return devJWTSecret, nil
	}
	if len(s) < 32 {
		return "", errors.New("config: auth.jwt_secret must be at least 32 bytes (set SECURECORE_AUTH_JWT_SECRET)")
	}
	return s, nil
}

// PoolConfig converts the database section for database.New.
func (c *Config) PoolConfig() database.Config {
	d := c.Database
	return database.Config{
		Driver:              d.Driver,
		DSN:                 connector.ApplyTLSMode(d.Driver, d.DSN, d.TLSMode),
		PrivateKeyPath:      d.PrivateKeyPath,
		MinConns:            d.MinConns,
		MaxConns:            d.MaxConns,
		IdleTimeout:         duration(d.IdleTimeout),
		MaxLifetime:         duration(d.MaxLifetime),
		AcquireTimeout:      duration(d.AcquireTimeout),
		StatementTimeout:    duration(d.StatementTimeout),
		SlowQueryThreshold:  duration(d.SlowQueryThreshold),
		HealthCheckInterval: duration(d.HealthCheckInterval),
		Development:         c.Development(),
	}
}

// ShutdownDuration returns the parsed server shutdown timeout.
func (s ServerConfig) ShutdownDuration() time.Duration { return duration(s.ShutdownTimeout) }

// TokenTTLDuration returns the parsed token lifetime.
func (a AuthConfig) TokenTTLDuration() time.Duration { return duration(a.TokenTTL) }

// CacheTTLDuration returns the parsed credential cache TTL.
func (a AuthConfig) CacheTTLDuration() time.Duration { return duration(a.CacheTTL) }

// duration parses a validated duration string; empty means zero.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
