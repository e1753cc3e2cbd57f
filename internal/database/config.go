package database

import "time"

// Defaults applied by Config.withDefaults to zero-valued fields.
const (
	DefaultMaxConns           = 10
	DefaultAcquireTimeout     = 5 * time.Second
	DefaultStatementTimeout   = 30 * time.Second
	DefaultSlowQueryThreshold = time.Second
	DefaultIdleTimeout        = 30 * time.Second
)

// Config holds the pool bounds and timeouts handed to the manager at
// construction time.
type Config struct {
	Driver         string
	DSN            string
	PrivateKeyPath string // Snowflake key-pair auth

	MinConns    int           // connections opened eagerly by Initialize
	MaxConns    int           // hard cap on open connections
	IdleTimeout time.Duration // idle connections older than this are closed
	MaxLifetime time.Duration // connections older than this are recycled

	AcquireTimeout     time.Duration // wait for a free connection before ACQUIRE_TIMEOUT
	StatementTimeout   time.Duration // per-statement deadline before QUERY_TIMEOUT
	SlowQueryThreshold time.Duration

	// HealthCheckInterval enables the background health checker when > 0.
	HealthCheckInterval time.Duration

	// Development exposes driver error text in QUERY_EXECUTION_ERROR messages.
	Development bool
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns < 0 {
		c.MinConns = 0
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = DefaultStatementTimeout
	}
	if c.SlowQueryThreshold <= 0 {
		c.SlowQueryThreshold = DefaultSlowQueryThreshold
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	return c
}
