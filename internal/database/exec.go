package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/talentsphere/securecore/internal/errs"
	"github.com/talentsphere/securecore/internal/query"
)

var errConnDone = sql.ErrConnDone

var (
	// leadingVerb gates raw statement text on its first keyword.
	leadingVerb = regexp.MustCompile(`(?i)^\s*\(?\s*(SELECT|INSERT|UPDATE|DELETE|WITH|BEGIN|COMMIT|ROLLBACK)\b`)
	// sqlLiteral matches single-quoted literals so a ';' inside one is not
	// taken for a statement separator.
	sqlLiteral        = regexp.MustCompile(`'(?:[^']|'')*'`)
	trailingSemicolon = regexp.MustCompile(`;\s*$`)
)

// QueryOptions tunes one Query or Exec call.
type QueryOptions struct {
	// SkipValidation bypasses the verb whitelist and signature check. Only
	// for statement text that never contains caller input.
	SkipValidation bool
	// Timeout overrides the configured statement timeout when > 0.
	Timeout time.Duration
	// Name labels the statement in logs.
	Name string
}

// Result is the outcome of one statement.
type Result struct {
	Rows         []query.Row
	Columns      []string
	RowsAffected int64
	QueryID      string
	Duration     time.Duration
}

// queryer is satisfied by both *sqlx.Conn and *sqlx.Tx.
type queryer interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ValidateQuery rejects statement text whose first keyword is not a
// whitelisted verb (FORBIDDEN_OPERATION), that holds more than one statement
// or that carries an injection signature (INJECTION_DETECTED). A single
// trailing ';' is allowed.
func (m *Manager) ValidateQuery(text string) error {
	if strings.TrimSpace(text) == "" {
		return errs.New(errs.CodeInvalidValue, "query text is empty")
	}
	if !leadingVerb.MatchString(text) {
		m.logger.Warn("rejected sql operation", "sample", query.SanitizeForLog(text))
		return errs.New(errs.CodeForbiddenOperation, "operation not allowed")
	}
	if multipleStatements(text) {
		m.logger.Warn("rejected stacked statements", "sample", query.SanitizeForLog(text))
		return errs.New(errs.CodeInjectionDetected, "input rejected")
	}
	return m.validator.CheckText(text)
}

func multipleStatements(text string) bool {
	stripped := sqlLiteral.ReplaceAllString(text, "''")
	stripped = trailingSemicolon.ReplaceAllString(strings.TrimSpace(stripped), "")
	return strings.Contains(stripped, ";")
}

// Query runs a row-returning statement on a pooled connection.
func (m *Manager) Query(ctx context.Context, text string, params []any, opts QueryOptions) (*Result, error) {
	return m.execute(ctx, text, params, opts, true)
}

// Exec runs a statement without result rows and reports RowsAffected.
func (m *Manager) Exec(ctx context.Context, text string, params []any, opts QueryOptions) (*Result, error) {
	return m.execute(ctx, text, params, opts, false)
}

// QueryRows implements query.Executor.
func (m *Manager) QueryRows(ctx context.Context, sqlText string, args []any) ([]query.Row, error) {
	res, err := m.Query(ctx, sqlText, args, QueryOptions{})
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

func (m *Manager) execute(ctx context.Context, text string, params []any, opts QueryOptions, rows bool) (*Result, error) {
	start := time.Now()
	id := newQueryID()

	if !opts.SkipValidation {
		if err := m.ValidateQuery(text); err != nil {
			m.finish(id, opts.Name, text, time.Since(start), err)
			return nil, err
		}
	}

	conn, release, err := m.acquire(ctx)
	if err != nil {
		m.finish(id, opts.Name, text, time.Since(start), err)
		return nil, err
	}
	defer release()

	res, err := m.run(ctx, conn, id, text, params, opts, rows)
	d := time.Since(start)
	m.finish(id, opts.Name, text, d, err)
	if err != nil {
		return nil, err
	}
	res.Duration = d
	return res, nil
}

// run executes text on q under the statement timeout. The deadline is handed
// to the driver, which cancels the in-flight statement when it fires.
func (m *Manager) run(ctx context.Context, q queryer, id, text string, params []any, opts QueryOptions, rows bool) (*Result, error) {
	timeout := m.cfg.StatementTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res := &Result{QueryID: id}
	var err error
	if rows {
		var rs *sqlx.Rows
		rs, err = q.QueryxContext(qctx, text, params...)
		if err == nil {
			res.Rows, res.Columns, err = scanRows(rs)
		}
	} else {
		var r sql.Result
		r, err = q.ExecContext(qctx, text, params...)
		if err == nil {
			res.RowsAffected, _ = r.RowsAffected()
		}
	}
	if err != nil {
		return nil, m.classify(ctx, qctx, err, id, time.Since(start))
	}
	return res, nil
}

func (m *Manager) classify(ctx, qctx context.Context, err error, id string, d time.Duration) error {
	if ctx.Err() == nil && errors.Is(qctx.Err(), context.DeadlineExceeded) {
		e := errs.Wrap(errs.CodeQueryTimeout, err, "query exceeded statement timeout")
		e.QueryID, e.Duration = id, d
		return e
	}
	if errs.CodeOf(err) != "" {
		return err
	}
	msg := "query execution failed"
	if m.cfg.Development {
		msg += ": " + err.Error()
	}
	e := errs.Wrap(errs.CodeQueryExecutionError, err, "%s", msg)
	e.QueryID, e.Duration = id, d
	return e
}

// finish updates statistics, metrics and logs for one attempt.
func (m *Manager) finish(id, name, text string, d time.Duration, err error) {
	slow := d > m.cfg.SlowQueryThreshold
	m.stats.record(d, slow, err != nil)

	result := "success"
	switch {
	case err == nil:
	case errs.CodeOf(err) == errs.CodeQueryTimeout:
		result = "timeout"
	case errs.KindOf(err) == errs.KindValidation || errs.KindOf(err) == errs.KindSecurity:
		result = "rejected"
	default:
		result = "error"
	}
	m.metrics.observeQuery(result, d, slow)

	attrs := []any{"query_id", id, "duration", d, "sql", query.SanitizeForLog(text)}
	if name != "" {
		attrs = append(attrs, "name", name)
	}
	switch {
	case err != nil:
		m.logger.Error("query failed", append(attrs, "code", errs.CodeOf(err), "error", err)...)
	case slow:
		m.logger.Warn("slow query", append(attrs, "threshold", m.cfg.SlowQueryThreshold)...)
	default:
		m.logger.Debug("query executed", attrs...)
	}

	if m.hooks.OnQuery != nil {
		m.hooks.OnQuery(QueryEvent{ID: id, Name: name, Duration: d, Slow: slow, Err: err})
	}
}

func scanRows(rs *sqlx.Rows) ([]query.Row, []string, error) {
	defer rs.Close()
	cols, err := rs.Columns()
	if err != nil {
		return nil, nil, err
	}
	out := []query.Row{}
	for rs.Next() {
		row := make(query.Row, len(cols))
		if err := rs.MapScan(row); err != nil {
			return nil, nil, err
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	return out, cols, rs.Err()
}

func newQueryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
