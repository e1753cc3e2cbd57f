package connector

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/talentsphere/securecore/internal/query"
)

// mockConnector implements Connector without a real database.
type mockConnector struct {
	Handle
	connected bool
	cfg       Config
}

func (m *mockConnector) Connect(cfg Config) error {
	if cfg.DSN == "fail" {
		return errors.New("mock connect failure")
	}
	m.connected = true
	m.cfg = cfg
	return nil
}
func (m *mockConnector) DriverName() string                { return "mock" }
func (m *mockConnector) Placeholder() query.Placeholder    { return query.Question }
func (m *mockConnector) Paging() query.Paging              { return query.LimitOffset }
func (m *mockConnector) QuoteIdentifier(name string) string { return QuoteDouble(name) }
func (m *mockConnector) SupportsReturning() bool           { return false }

func TestRegistryConnect(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	conn, err := r.Connect(Config{Driver: "mock", DSN: "test-dsn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mc := conn.(*mockConnector)
	if !mc.connected {
		t.Error("connector should be connected")
	}
	if mc.cfg.DSN != "test-dsn" {
		t.Errorf("expected DSN test-dsn, got %s", mc.cfg.DSN)
	}
}

func TestRegistryConnectErrors(t *testing.T) {
	r := NewRegistry()
	r.RegisterDriver("mock", func() Connector { return &mockConnector{} })

	if _, err := r.Connect(Config{Driver: "unknown"}); err == nil || !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("expected unsupported driver error, got %v", err)
	}
	if _, err := r.Connect(Config{Driver: "mock", DSN: "fail"}); err == nil {
		t.Error("expected error for connection failure")
	}
}

func TestRegistryDriversSorted(t *testing.T) {
	r := NewRegistry()
	for _, d := range []string{"sqlite", "mysql", "postgres"} {
		r.RegisterDriver(d, func() Connector { return &mockConnector{} })
	}
	if got := r.Drivers(); !reflect.DeepEqual(got, []string{"mysql", "postgres", "sqlite"}) {
		t.Errorf("Drivers() = %v", got)
	}
}

func TestHandleBeforeConnect(t *testing.T) {
	var h Handle
	if h.DB() != nil {
		t.Error("expected nil DB")
	}
	if err := h.Ping(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := h.Disconnect(); err != nil {
		t.Errorf("Disconnect on empty handle: %v", err)
	}
}

func TestSanitizeDSN(t *testing.T) {
	tests := []struct {
		name, driver, dsn, want string
	}{
		{"postgres hash in password", "postgres", "postgres://app:p#ss@db:5432/core", "postgres://app:p%23ss@db:5432/core"},
		{"postgres percent in password", "postgres", "postgres://app:50%off@db/core?sslmode=disable", "postgres://app:50%25off@db/core?sslmode=disable"},
		{"postgres already encoded", "postgres", "postgres://app:p%23ss@db/core", "postgres://app:p%23ss@db/core"},
		{"postgres no credentials", "postgres", "postgres://db/core", "postgres://db/core"},
		{"sqlite untouched", "sqlite", "file:x.db?_pragma=busy_timeout(5000)", "file:x.db?_pragma=busy_timeout(5000)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeDSN(tt.driver, tt.dsn); got != tt.want {
				t.Errorf("SanitizeDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestSanitizeMySQLDSN(t *testing.T) {
	for _, dsn := range []string{
		"app:secret@db:3306/core",
		"app:secret@(db:3306)/core",
		"app:secret@tcp(db:3306)/core",
	} {
		got := SanitizeDSN("mysql", dsn)
		if !strings.HasPrefix(got, "app:secret@tcp(db:3306)/core") {
			t.Errorf("SanitizeDSN(%q) = %q", dsn, got)
		}
	}
}

func TestRedactDSN(t *testing.T) {
	if got := RedactDSN("postgres://app:secret@db/core"); strings.Contains(got, "secret") {
		t.Errorf("password leaked: %s", got)
	}
	if got := RedactDSN("app:secret@tcp(db:3306)/core"); strings.Contains(got, "secret") {
		t.Errorf("password leaked: %s", got)
	}
}
