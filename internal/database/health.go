package database

import (
	"context"
	"time"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the result of one health probe.
type HealthStatus struct {
	Status    string    `json:"status"`
	Driver    string    `json:"driver"`
	LatencyMS float64   `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Pool      PoolStats `json:"pool"`
	CheckedAt time.Time `json:"checked_at"`
}

// Healthy reports whether the probe succeeded.
func (h HealthStatus) Healthy() bool { return h.Status == StatusHealthy }

// HealthCheck runs SELECT 1 on a pooled connection. It never returns an
// error; failures are reported in the status. It does not initialize a
// closed manager.
func (m *Manager) HealthCheck(ctx context.Context) (st HealthStatus) {
	st = HealthStatus{Status: StatusUnhealthy, Driver: m.cfg.Driver, CheckedAt: time.Now().UTC()}
	defer func() { st.Pool = m.poolStats() }()

	db := m.livePool()
	if db == nil {
		st.Error = "not initialized"
		return st
	}

	start := time.Now()
	conn, release, err := m.acquireFrom(ctx, db)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	defer release()

	qctx, cancel := context.WithTimeout(ctx, m.cfg.StatementTimeout)
	defer cancel()
	var one int
	if err := conn.QueryRowxContext(qctx, "SELECT 1").Scan(&one); err != nil {
		st.Error = err.Error()
		st.LatencyMS = msSince(start)
		return st
	}

	st.Status = StatusHealthy
	st.LatencyMS = msSince(start)
	return st
}

func (m *Manager) healthLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := m.HealthCheck(ctx)
			if st.Healthy() {
				m.logger.Debug("database healthy", "latency_ms", st.LatencyMS, "in_use", st.Pool.InUse)
			} else if ctx.Err() == nil {
				m.logger.Error("database unhealthy", "error", st.Error, "in_use", st.Pool.InUse)
			}
		}
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
