package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/talentsphere/securecore/internal/database"
)

func newDBCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "db",
		Aliases: []string{"database"},
		Short:   "Inspect the configured database pool",
		Long:    "Check connectivity and report pool statistics for the configured database.",
	}

	cmd.AddCommand(newDBCheckCmd(opts))
	cmd.AddCommand(newDBStatsCmd(opts))

	return cmd
}

// ---------- db check ----------

func newDBCheckCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Open the pool and run a health check",
		Example: `  securecore db check
  SECURECORE_DATABASE_DRIVER=postgres SECURECORE_DATABASE_DSN=postgres://app@db/core securecore db check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBCheck(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall deadline for the check")

	return cmd
}

func runDBCheck(ctx context.Context, out, logOut io.Writer, opts *rootOptions, timeout time.Duration) error {
	st, _, err := probe(ctx, logOut, opts, timeout)
	if err != nil {
		return err
	}
	if err := writeJSON(out, st); err != nil {
		return err
	}
	if !st.Healthy() {
		return errors.New("database is unhealthy")
	}
	return nil
}

// ---------- db stats ----------

func newDBStatsCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print pool and query statistics after a health probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBStats(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall deadline for the probe")

	return cmd
}

func runDBStats(ctx context.Context, out, logOut io.Writer, opts *rootOptions, timeout time.Duration) error {
	st, stats, err := probe(ctx, logOut, opts, timeout)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{
		"health": st,
		"stats":  stats,
	})
}

// probe initializes a pool for the configured database, runs one health
// check and closes the pool again.
func probe(ctx context.Context, logOut io.Writer, opts *rootOptions, timeout time.Duration) (database.HealthStatus, database.Stats, error) {
	cfg, err := opts.load()
	if err != nil {
		return database.HealthStatus{}, database.Stats{}, err
	}
	logger := newLogger(logOut, cfg.Logging, cfg.Development())

	// The CLI only needs a single connection.
	cfg.Database.MinConns = 0
	cfg.Database.HealthCheckInterval = ""

	m, err := openManager(cfg, logger)
	if err != nil {
		return database.HealthStatus{}, database.Stats{}, err
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.Initialize(ctx); err != nil {
		return database.HealthStatus{}, database.Stats{}, fmt.Errorf("connect %s: %w", cfg.Database.Driver, err)
	}
	st := m.HealthCheck(ctx)
	return st, m.Stats(), nil
}
