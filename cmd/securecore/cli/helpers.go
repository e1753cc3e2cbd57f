package cli

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/talentsphere/securecore/internal/config"
	"github.com/talentsphere/securecore/internal/connector"
	"github.com/talentsphere/securecore/internal/connector/mssql"
	"github.com/talentsphere/securecore/internal/connector/mysql"
	"github.com/talentsphere/securecore/internal/connector/postgres"
	"github.com/talentsphere/securecore/internal/connector/snowflake"
	"github.com/talentsphere/securecore/internal/connector/sqlite"
	"github.com/talentsphere/securecore/internal/database"
)

// newRegistry creates a connector registry with all supported database drivers registered.
func newRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	registry.RegisterDriver("postgres", postgres.New)
	registry.RegisterDriver("mysql", mysql.New)
	registry.RegisterDriver("mssql", mssql.New)
	registry.RegisterDriver("snowflake", snowflake.New)
	registry.RegisterDriver("sqlite", sqlite.New)
	return registry
}

// newLogger builds the process logger from the logging section. Development
// mode always logs at debug level.
func newLogger(w io.Writer, cfg config.LoggingConfig, development bool) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if development {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// openManager creates an uninitialized pool manager for cfg.
func openManager(cfg *config.Config, logger *slog.Logger, opts ...database.Option) (*database.Manager, error) {
	opts = append([]database.Option{database.WithLogger(logger)}, opts...)
	return database.New(cfg.PoolConfig(), newRegistry(), opts...)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
