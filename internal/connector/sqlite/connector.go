package sqlite

import (
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/talentsphere/securecore/internal/connector"
	"github.com/talentsphere/securecore/internal/query"
)

// SQLiteConnector implements connector.Connector for SQLite databases.
type SQLiteConnector struct {
	connector.Handle
}

// New creates an unconnected SQLiteConnector.
func New() connector.Connector {
	return &SQLiteConnector{}
}

// Connect opens the database file named by the DSN (e.g. "/path/to/db.sqlite"
// or "file:x.db?_pragma=busy_timeout(5000)"). ":memory:" gives every pooled
// connection its own private database, so it is only useful with
// MaxOpenConns of 1.
func (c *SQLiteConnector) Connect(cfg connector.Config) error {
	if err := c.Open("sqlite", cfg.DSN, cfg); err != nil {
		return fmt.Errorf("sqlite connect: %w", err)
	}
	return nil
}

// DriverName returns the driver identifier for SQLite.
func (c *SQLiteConnector) DriverName() string { return "sqlite" }

// Placeholder returns the positional ? marker style.
func (c *SQLiteConnector) Placeholder() query.Placeholder { return query.Question }

func (c *SQLiteConnector) Paging() query.Paging { return query.LimitOffset }

// QuoteIdentifier wraps a SQL identifier in double quotes.
func (c *SQLiteConnector) QuoteIdentifier(name string) string {
	return connector.QuoteDouble(name)
}

// SupportsReturning indicates that SQLite supports RETURNING clauses (3.35+).
func (c *SQLiteConnector) SupportsReturning() bool { return true }
