package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talentsphere/securecore/internal/errs"
	"github.com/talentsphere/securecore/internal/query"
)

// TxOptions configures a transaction. The zero value uses the driver's
// default isolation level in read-write mode.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// Tx is the client handed to a Transaction callback. Its statements pass
// through the same validation gate as Manager.Query.
type Tx struct {
	m  *Manager
	tx *sqlx.Tx
}

// Query runs a row-returning statement inside the transaction.
func (t *Tx) Query(ctx context.Context, text string, params []any, opts QueryOptions) (*Result, error) {
	return t.execute(ctx, text, params, opts, true)
}

// Exec runs a statement without result rows inside the transaction.
func (t *Tx) Exec(ctx context.Context, text string, params []any, opts QueryOptions) (*Result, error) {
	return t.execute(ctx, text, params, opts, false)
}

// QueryRows implements query.Executor.
func (t *Tx) QueryRows(ctx context.Context, sqlText string, args []any) ([]query.Row, error) {
	res, err := t.Query(ctx, sqlText, args, QueryOptions{})
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Table starts a builder that executes inside the transaction.
func (t *Tx) Table(table string) *query.Builder {
	return query.New(
		query.WithExecutor(t),
		query.WithPlaceholder(t.m.dialect.Placeholder()),
		query.WithPaging(t.m.dialect.Paging()),
		query.WithValidator(t.m.validator),
	).From(table)
}

func (t *Tx) execute(ctx context.Context, text string, params []any, opts QueryOptions, rows bool) (*Result, error) {
	start := time.Now()
	id := newQueryID()
	if !opts.SkipValidation {
		if err := t.m.ValidateQuery(text); err != nil {
			t.m.finish(id, opts.Name, text, time.Since(start), err)
			return nil, err
		}
	}
	res, err := t.m.run(ctx, t.tx, id, text, params, opts, rows)
	d := time.Since(start)
	t.m.finish(id, opts.Name, text, d, err)
	if err != nil {
		return nil, err
	}
	res.Duration = d
	return res, nil
}

// Transaction runs fn inside BEGIN/COMMIT on a single pooled connection.
// Any error from fn, or a panic, rolls the transaction back; a rollback
// failure is logged and fn's error is returned. The connection is released
// on every path.
func (m *Manager) Transaction(ctx context.Context, fn func(tx *Tx) error, opts TxOptions) error {
	conn, release, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	sqlTx, err := conn.BeginTxx(ctx, &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly})
	if err != nil {
		return m.classifyTx(err, "begin transaction")
	}

	tx := &Tx{m: m, tx: sqlTx}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			m.logger.Error("transaction rollback failed", "error", rbErr)
		}
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		m.logger.Debug("transaction rolled back", "error", err)
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return m.classifyTx(err, "commit transaction")
	}
	committed = true
	return nil
}

func (m *Manager) classifyTx(err error, op string) error {
	msg := op + " failed"
	if m.cfg.Development {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return errs.Wrap(errs.CodeQueryExecutionError, err, "%s", msg)
}
