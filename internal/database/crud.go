package database

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/talentsphere/securecore/internal/errs"
	"github.com/talentsphere/securecore/internal/query"
)

// Pagination bounds.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxPage      = 10000
	MaxPageLimit = 1000
)

// CRUDOptions configures the CRUD helpers.
type CRUDOptions struct {
	// IDColumn names the primary key column. Defaults to "id".
	IDColumn string
	// Returning lists columns for a RETURNING clause on dialects that
	// support it. Empty means all columns.
	Returning []string
}

func (o CRUDOptions) idColumn() string {
	if o.IDColumn == "" {
		return "id"
	}
	return o.IDColumn
}

// Insert adds one row built from data. Keys are validated as column names
// and bound in sorted order. On RETURNING dialects the inserted row is in
// Result.Rows.
func (m *Manager) Insert(ctx context.Context, table string, data map[string]any, opts CRUDOptions) (*Result, error) {
	if _, err := m.validator.Identifier(table); err != nil {
		return nil, err
	}
	cols, err := m.payloadColumns(data)
	if err != nil {
		return nil, err
	}
	returning, err := m.returningClause(opts)
	if err != nil {
		return nil, err
	}

	ph := m.dialect.Placeholder()
	marks := make([]string, len(cols))
	params := make([]any, len(cols))
	for i, c := range cols {
		marks[i] = ph(i + 1)
		params[i] = data[c]
	}

	sqlText := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")" + returning
	return m.write(ctx, sqlText, params, returning != "", "insert")
}

// Update sets the columns in data on the row whose ID column equals id.
func (m *Manager) Update(ctx context.Context, table string, id any, data map[string]any, opts CRUDOptions) (*Result, error) {
	if _, err := m.validator.Identifier(table); err != nil {
		return nil, err
	}
	idCol, err := m.validator.Identifier(opts.idColumn())
	if err != nil {
		return nil, err
	}
	cols, err := m.payloadColumns(data)
	if err != nil {
		return nil, err
	}
	returning, err := m.returningClause(opts)
	if err != nil {
		return nil, err
	}

	ph := m.dialect.Placeholder()
	sets := make([]string, len(cols))
	params := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = c + " = " + ph(i+1)
		params = append(params, data[c])
	}
	params = append(params, id)

	sqlText := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + idCol + " = " + ph(len(params)) + returning
	return m.write(ctx, sqlText, params, returning != "", "update")
}

// Delete removes the row whose ID column equals id.
func (m *Manager) Delete(ctx context.Context, table string, id any, opts CRUDOptions) (*Result, error) {
	if _, err := m.validator.Identifier(table); err != nil {
		return nil, err
	}
	idCol, err := m.validator.Identifier(opts.idColumn())
	if err != nil {
		return nil, err
	}
	returning, err := m.returningClause(opts)
	if err != nil {
		return nil, err
	}

	sqlText := "DELETE FROM " + table + " WHERE " + idCol + " = " + m.dialect.Placeholder()(1) + returning
	return m.write(ctx, sqlText, []any{id}, returning != "", "delete")
}

// FindByID returns the row whose ID column equals id, or nil when absent.
func (m *Manager) FindByID(ctx context.Context, table string, id any, opts CRUDOptions) (query.Row, error) {
	return m.Table(table).Where(opts.idColumn(), "=", id).First(ctx)
}

func (m *Manager) write(ctx context.Context, sqlText string, params []any, returning bool, name string) (*Result, error) {
	if returning {
		res, err := m.Query(ctx, sqlText, params, QueryOptions{Name: name})
		if err != nil {
			return nil, err
		}
		res.RowsAffected = int64(len(res.Rows))
		return res, nil
	}
	return m.Exec(ctx, sqlText, params, QueryOptions{Name: name})
}

// payloadColumns validates and sorts the keys of data.
func (m *Manager) payloadColumns(data map[string]any) ([]string, error) {
	if len(data) == 0 {
		return nil, errs.New(errs.CodeEmptyPayload, "payload has no fields")
	}
	cols := make([]string, 0, len(data))
	for c := range data {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	if err := m.validator.Identifiers(cols); err != nil {
		return nil, err
	}
	return cols, nil
}

func (m *Manager) returningClause(opts CRUDOptions) (string, error) {
	if !m.dialect.SupportsReturning() {
		return "", nil
	}
	if len(opts.Returning) == 0 {
		return " RETURNING *", nil
	}
	if err := m.validator.Identifiers(opts.Returning); err != nil {
		return "", err
	}
	return " RETURNING " + strings.Join(opts.Returning, ", "), nil
}

// Filter is one WHERE predicate for Paginate.
type Filter struct {
	Column   string
	Operator string
	Value    any
}

// PageRequest describes one page of a table. Zero Page and Limit mean
// DefaultPage and DefaultLimit.
type PageRequest struct {
	Page      int
	Limit     int
	Columns   []string
	Filters   []Filter
	OrderBy   string
	Direction string
}

// Pagination is the page metadata returned with the rows.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// Page is one page of rows.
type Page struct {
	Data       []query.Row `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Paginate reads one page of table. The data query and the count query run
// concurrently on separate connections.
func (m *Manager) Paginate(ctx context.Context, table string, req PageRequest) (*Page, error) {
	page, limit := req.Page, req.Limit
	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if page < 1 || page > MaxPage {
		return nil, errs.New(errs.CodeOutOfBoundsPagination, "page must be between 1 and %d", MaxPage)
	}
	if limit < 1 || limit > MaxPageLimit {
		return nil, errs.New(errs.CodeOutOfBoundsPagination, "limit must be between 1 and %d", MaxPageLimit)
	}

	data := m.Table(table)
	count := m.Table(table)
	if len(req.Columns) > 0 {
		data.Select(req.Columns...)
	}
	for _, f := range req.Filters {
		data.Where(f.Column, f.Operator, f.Value)
		count.Where(f.Column, f.Operator, f.Value)
	}
	if req.OrderBy != "" {
		data.OrderBy(req.OrderBy, req.Direction)
	}
	data.Limit(limit).Offset((page - 1) * limit)
	if err := data.Err(); err != nil {
		return nil, err
	}

	var (
		rows  []query.Row
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = data.Get(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = count.Count(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &Page{
		Data: rows,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    int64(page)*int64(limit) < total,
			HasPrev:    page > 1,
		},
	}, nil
}
