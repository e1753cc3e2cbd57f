package connector_test

import (
	"testing"

	"github.com/talentsphere/securecore/internal/connector"
	"github.com/talentsphere/securecore/internal/connector/mssql"
	"github.com/talentsphere/securecore/internal/connector/mysql"
	"github.com/talentsphere/securecore/internal/connector/postgres"
	"github.com/talentsphere/securecore/internal/connector/snowflake"
	"github.com/talentsphere/securecore/internal/connector/sqlite"
	"github.com/talentsphere/securecore/internal/query"
)

func TestDialects(t *testing.T) {
	tests := []struct {
		conn      connector.Connector
		driver    string
		second    string
		quoted    string
		returning bool
		paging    query.Paging
	}{
		{postgres.New(), "postgres", "$2", `"user"`, true, query.LimitOffset},
		{mysql.New(), "mysql", "?", "`user`", false, query.LimitOffset},
		{sqlite.New(), "sqlite", "?", `"user"`, true, query.LimitOffset},
		{mssql.New(), "mssql", "@p2", "[user]", false, query.OffsetFetch},
		{snowflake.New(), "snowflake", "?", `"user"`, false, query.LimitOffset},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			if got := tt.conn.DriverName(); got != tt.driver {
				t.Errorf("DriverName = %q", got)
			}
			if got := tt.conn.Placeholder()(2); got != tt.second {
				t.Errorf("Placeholder(2) = %q, want %q", got, tt.second)
			}
			if got := tt.conn.QuoteIdentifier("user"); got != tt.quoted {
				t.Errorf("QuoteIdentifier = %q, want %q", got, tt.quoted)
			}
			if got := tt.conn.SupportsReturning(); got != tt.returning {
				t.Errorf("SupportsReturning = %v", got)
			}
			if got := tt.conn.Paging(); got != tt.paging {
				t.Errorf("Paging = %v, want %v", got, tt.paging)
			}
		})
	}
}

func TestSQLiteConnectAndPing(t *testing.T) {
	r := connector.NewRegistry()
	r.RegisterDriver("sqlite", sqlite.New)

	conn, err := r.Connect(connector.Config{
		Driver:       "sqlite",
		DSN:          t.TempDir() + "/ping.db",
		MaxOpenConns: 2,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Disconnect()

	if err := conn.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if got := conn.DB().Stats().MaxOpenConnections; got != 2 {
		t.Errorf("MaxOpenConnections = %d, want 2", got)
	}
}
