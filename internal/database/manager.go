// Package database implements the connection pool manager: a bounded pool
// behind validated, instrumented Query/Exec/Transaction calls, typed CRUD
// helpers, pagination and health checks.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talentsphere/securecore/internal/connector"
	"github.com/talentsphere/securecore/internal/errs"
	"github.com/talentsphere/securecore/internal/query"
)

// Hooks are invoked inline after pool operations. Any field may be nil.
// Hooks run on the caller's goroutine and must not block.
type Hooks struct {
	OnConnect func(driver string)
	OnAcquire func(inUse int64, waited time.Duration)
	OnRelease func(inUse int64, held time.Duration)
	OnQuery   func(QueryEvent)
}

// QueryEvent describes one finished query attempt.
type QueryEvent struct {
	ID       string
	Name     string
	Duration time.Duration
	Slow     bool
	Err      error
}

// Manager owns one connection pool. Create it with New, call Initialize
// (or let the first query do it) and Close at shutdown.
type Manager struct {
	cfg       Config
	dialect   connector.Connector
	logger    *slog.Logger
	hooks     Hooks
	metrics   *Metrics
	validator *query.Validator

	mu          sync.Mutex
	initialized bool
	stopHealth  context.CancelFunc
	healthDone  chan struct{}

	stats    queryStats
	inUse    atomic.Int64
	peak     atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHooks installs pool instrumentation hooks.
func WithHooks(h Hooks) Option {
	return func(m *Manager) { m.hooks = h }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(mt *Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// New creates an uninitialized manager for cfg.Driver. It fails only when the
// driver is not registered; no connection is opened.
func New(cfg Config, registry *connector.Registry, opts ...Option) (*Manager, error) {
	dialect, err := registry.New(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	m := &Manager{
		cfg:     cfg.withDefaults(),
		dialect: dialect,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.validator = query.NewValidator(m.logger)
	return m, nil
}

// Dialect returns the SQL dialect of the pool.
func (m *Manager) Dialect() connector.Connector { return m.dialect }

// Initialize opens the pool, probes it once and marks the manager ready. It
// is a no-op when already initialized. On probe failure the pool is closed,
// the manager stays uninitialized and INITIALIZATION_ERROR is returned; a
// later call may retry.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.initLocked(ctx)
	return err
}

// pool returns the live pool, initializing on first use.
func (m *Manager) pool(ctx context.Context) (*sqlx.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initLocked(ctx)
}

func (m *Manager) initLocked(ctx context.Context) (*sqlx.DB, error) {
	if m.initialized {
		return m.dialect.DB(), nil
	}

	err := m.dialect.Connect(connector.Config{
		Driver:          m.cfg.Driver,
		DSN:             connector.SanitizeDSN(m.cfg.Driver, m.cfg.DSN),
		MaxOpenConns:    m.cfg.MaxConns,
		MaxIdleConns:    m.cfg.MaxConns,
		ConnMaxLifetime: m.cfg.MaxLifetime,
		ConnMaxIdleTime: m.cfg.IdleTimeout,
		PrivateKeyPath:  m.cfg.PrivateKeyPath,
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeInitializationError, err, "database initialization failed")
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout+m.cfg.StatementTimeout)
	defer cancel()
	if err := m.dialect.Ping(pingCtx); err != nil {
		m.dialect.Disconnect()
		m.logger.Error("database health probe failed", "driver", m.cfg.Driver, "error", err)
		return nil, errs.Wrap(errs.CodeInitializationError, err, "database initialization failed")
	}

	db := m.dialect.DB()
	m.warmUp(ctx, db)

	if m.cfg.HealthCheckInterval > 0 {
		hctx, stop := context.WithCancel(context.WithoutCancel(ctx))
		m.stopHealth = stop
		m.healthDone = make(chan struct{})
		go m.healthLoop(hctx, m.healthDone)
	}

	m.initialized = true
	m.logger.Info("database pool initialized",
		"driver", m.cfg.Driver,
		"dsn", connector.RedactDSN(m.cfg.DSN),
		"min_conns", m.cfg.MinConns,
		"max_conns", m.cfg.MaxConns,
	)
	if m.hooks.OnConnect != nil {
		m.hooks.OnConnect(m.cfg.Driver)
	}
	return db, nil
}

// warmUp opens MinConns connections and returns them to the idle set.
func (m *Manager) warmUp(ctx context.Context, db *sqlx.DB) {
	if m.cfg.MinConns <= 0 {
		return
	}
	conns := make([]*sqlx.Conn, 0, m.cfg.MinConns)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < m.cfg.MinConns; i++ {
		c, err := db.Connx(ctx)
		if err != nil {
			m.logger.Warn("pool warm-up incomplete", "opened", len(conns), "want", m.cfg.MinConns, "error", err)
			return
		}
		conns = append(conns, c)
	}
}

// Initialized reports whether the pool is ready.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Close stops the health checker and closes the pool. Later queries
// re-initialize.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = false
	stop, done := m.stopHealth, m.healthDone
	m.stopHealth, m.healthDone = nil, nil
	err := m.dialect.Disconnect()
	m.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	m.logger.Info("database pool closed", "driver", m.cfg.Driver)
	return err
}

// acquire checks a connection out of the pool, waiting at most
// AcquireTimeout. The returned release func must be called exactly once.
func (m *Manager) acquire(ctx context.Context) (*sqlx.Conn, func(), error) {
	db, err := m.pool(ctx)
	if err != nil {
		return nil, nil, err
	}
	return m.acquireFrom(ctx, db)
}

// livePool returns the pool without initializing it.
func (m *Manager) livePool() *sqlx.DB {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil
	}
	return m.dialect.DB()
}

func (m *Manager) acquireFrom(ctx context.Context, db *sqlx.DB) (*sqlx.Conn, func(), error) {
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	conn, err := db.Connx(actx)
	cancel()
	waited := time.Since(start)
	m.metrics.observeAcquire(waited)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			m.logger.Warn("connection acquire timed out", "waited", waited, "max_conns", m.cfg.MaxConns)
			return nil, nil, errs.Wrap(errs.CodeAcquireTimeout, err, "timed out waiting for a database connection")
		}
		return nil, nil, errs.Wrap(errs.CodeQueryExecutionError, err, "could not acquire a database connection")
	}

	n := m.inUse.Add(1)
	m.acquired.Add(1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	m.metrics.setInUse(n)
	if m.hooks.OnAcquire != nil {
		m.hooks.OnAcquire(n, waited)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Decrement before handing the connection back so the counter
			// never exceeds the number actually held.
			n := m.inUse.Add(-1)
			m.released.Add(1)
			m.metrics.setInUse(n)
			if err := conn.Close(); err != nil && !errors.Is(err, errConnDone) {
				m.logger.Warn("connection release failed", "error", err)
			}
			if m.hooks.OnRelease != nil {
				m.hooks.OnRelease(n, time.Since(start))
			}
		})
	}
	return conn, release, nil
}

// Stats returns the query aggregate and pool occupancy.
func (m *Manager) Stats() Stats {
	return Stats{Queries: m.stats.snapshot(), Pool: m.poolStats()}
}

// ResetStats clears the query aggregate. Pool counters are not affected.
func (m *Manager) ResetStats() {
	m.stats.reset()
	m.logger.Info("query statistics reset")
}

func (m *Manager) poolStats() PoolStats {
	ps := PoolStats{
		InUse:    m.inUse.Load(),
		PeakUse:  m.peak.Load(),
		Acquired: m.acquired.Load(),
		Released: m.released.Load(),
		MaxOpen:  m.cfg.MaxConns,
	}
	m.mu.Lock()
	db := m.dialect.DB()
	m.mu.Unlock()
	if db != nil {
		s := db.Stats()
		ps.Open = s.OpenConnections
		ps.Idle = s.Idle
		ps.Waits = s.WaitCount
	}
	return ps
}

// Table starts a builder for table bound to this pool's executor and
// placeholder style.
func (m *Manager) Table(table string) *query.Builder {
	return query.New(
		query.WithExecutor(m),
		query.WithPlaceholder(m.dialect.Placeholder()),
		query.WithPaging(m.dialect.Paging()),
		query.WithValidator(m.validator),
	).From(table)
}
