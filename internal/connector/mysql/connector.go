package mysql

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/talentsphere/securecore/internal/connector"
	"github.com/talentsphere/securecore/internal/query"
)

// MySQLConnector implements connector.Connector for MySQL and MariaDB.
type MySQLConnector struct {
	connector.Handle
}

// New creates an unconnected MySQLConnector.
func New() connector.Connector {
	return &MySQLConnector{}
}

// Connect opens the pool. parseTime is forced on so DATETIME columns scan
// into time.Time rather than []byte.
func (c *MySQLConnector) Connect(cfg connector.Config) error {
	dsn := cfg.DSN
	if !strings.Contains(dsn, "parseTime=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "parseTime=true"
	}
	if err := c.Open("mysql", dsn, cfg); err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	return nil
}

// DriverName returns the driver identifier for MySQL.
func (c *MySQLConnector) DriverName() string { return "mysql" }

// Placeholder returns the positional ? marker style.
func (c *MySQLConnector) Placeholder() query.Placeholder { return query.Question }

func (c *MySQLConnector) Paging() query.Paging { return query.LimitOffset }

// QuoteIdentifier wraps a SQL identifier in backticks, doubling embedded
// backticks.
func (c *MySQLConnector) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// SupportsReturning indicates that MySQL does NOT support RETURNING clauses.
func (c *MySQLConnector) SupportsReturning() bool { return false }
