package postgres

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/talentsphere/securecore/internal/connector"
	"github.com/talentsphere/securecore/internal/query"
)

// PostgresConnector implements connector.Connector for PostgreSQL via pgx.
type PostgresConnector struct {
	connector.Handle
}

// New creates an unconnected PostgresConnector.
func New() connector.Connector {
	return &PostgresConnector{}
}

// Connect opens a pgx-backed pool using cfg's limits.
func (c *PostgresConnector) Connect(cfg connector.Config) error {
	if err := c.Open("pgx", cfg.DSN, cfg); err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	return nil
}

// DriverName returns the driver identifier for PostgreSQL.
func (c *PostgresConnector) DriverName() string { return "postgres" }

// Placeholder returns the numbered $n marker style.
func (c *PostgresConnector) Placeholder() query.Placeholder { return query.Dollar }

func (c *PostgresConnector) Paging() query.Paging { return query.LimitOffset }

// QuoteIdentifier wraps a SQL identifier in double quotes.
func (c *PostgresConnector) QuoteIdentifier(name string) string {
	return connector.QuoteDouble(name)
}

// SupportsReturning indicates that PostgreSQL supports RETURNING clauses.
func (c *PostgresConnector) SupportsReturning() bool { return true }
