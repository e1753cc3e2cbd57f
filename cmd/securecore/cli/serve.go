package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/talentsphere/securecore/internal/auth"
	"github.com/talentsphere/securecore/internal/config"
	"github.com/talentsphere/securecore/internal/database"
	"github.com/talentsphere/securecore/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the securecore API server",
		Long:  "Open the connection pool and serve the authenticated demo API, health checks and metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging, error detail in responses)")

	opts.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	opts.v.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, dev bool) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if dev {
		cfg.Environment = config.EnvDevelopment
	}
	logger := newLogger(os.Stderr, cfg.Logging, cfg.Development())

	secret, err := cfg.JWTSecret()
	if err != nil {
		return err
	}
	if cfg.Development() && cfg.Auth.JWTSecret == "" {
		logger.Warn("using the built-in development JWT secret")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	db, err := openManager(cfg, logger, database.WithMetrics(database.NewMetrics(reg)))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize database pool: %w", err)
	}
	logger.Info("database pool ready", "driver", cfg.Database.Driver, "max_conns", cfg.Database.MaxConns)

	var vopts []auth.JWTOption
	if cfg.Auth.Issuer != "" {
		vopts = append(vopts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	cache := auth.NewTokenCache(auth.NewJWTVerifier(secret, vopts...),
		auth.WithTTL(cfg.Auth.CacheTTLDuration()),
		auth.WithSweepThreshold(cfg.Auth.CacheSweepThreshold),
		auth.WithCacheLogger(logger),
		auth.WithCacheMetrics(auth.NewCacheMetrics(reg)),
	)
	owners := database.NewOwnershipStore(db, cfg.Auth.OwnerColumn, cfg.Auth.OwnedResources)

	srv := server.New(server.Config{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		ShutdownTimeout:    cfg.Server.ShutdownDuration(),
		CORSOrigins:        cfg.Server.CORSOrigins,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		MaxBodySize:        cfg.Server.MaxBodySize,
		SkipPaths:          cfg.Auth.SkipPaths,
		OwnerColumn:        cfg.Auth.OwnerColumn,
		Development:        cfg.Development(),
		Version:            cmd.Root().Version,
	}, server.Deps{
		DB:       db,
		Cache:    cache,
		Owners:   owners,
		Gatherer: reg,
	}, logger)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "→ securecore %s (%s)\n", cmd.Root().Version, cfg.Environment)
	fmt.Fprintf(out, "→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "→ Health:     http://%s:%d/readyz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "→ Metrics:    http://%s:%d/metrics\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "→ Owned resources: %v\n", owners.Resources())
	fmt.Fprintln(out)

	return srv.Run(ctx)
}
