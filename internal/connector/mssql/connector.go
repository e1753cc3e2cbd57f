package mssql

import (
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/talentsphere/securecore/internal/connector"
	"github.com/talentsphere/securecore/internal/query"
)

// MSSQLConnector implements connector.Connector for SQL Server.
type MSSQLConnector struct {
	connector.Handle
}

// New creates an unconnected MSSQLConnector.
func New() connector.Connector {
	return &MSSQLConnector{}
}

// Connect opens the pool using the sqlserver driver.
func (c *MSSQLConnector) Connect(cfg connector.Config) error {
	if err := c.Open("sqlserver", cfg.DSN, cfg); err != nil {
		return fmt.Errorf("mssql connect: %w", err)
	}
	return nil
}

// DriverName returns the driver identifier for SQL Server.
func (c *MSSQLConnector) DriverName() string { return "mssql" }

// Placeholder returns the numbered @pN marker style.
func (c *MSSQLConnector) Placeholder() query.Placeholder { return query.AtP }

// Paging selects OFFSET ... ROWS FETCH NEXT ... ROWS ONLY; T-SQL has no LIMIT.
func (c *MSSQLConnector) Paging() query.Paging { return query.OffsetFetch }

// QuoteIdentifier wraps a SQL identifier in brackets, doubling embedded
// closing brackets.
func (c *MSSQLConnector) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// SupportsReturning is false; SQL Server uses OUTPUT INSERTED.* instead.
func (c *MSSQLConnector) SupportsReturning() bool { return false }
