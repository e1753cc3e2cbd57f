package query

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/talentsphere/securecore/internal/errs"
)

// Limit bounds enforced by Builder.Limit.
const (
	MinLimit = 1
	MaxLimit = 10000
)

// Placeholder renders the n-th (1-based) positional parameter marker.
type Placeholder func(n int) string

// Dollar renders PostgreSQL-style markers ($1, $2, ...).
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Question renders MySQL/SQLite-style markers (?).
func Question(int) string { return "?" }

// AtP renders SQL Server-style markers (@p1, @p2, ...).
func AtP(n int) string { return "@p" + strconv.Itoa(n) }

// Paging selects how LIMIT and OFFSET are rendered.
type Paging int

const (
	// LimitOffset renders "LIMIT n OFFSET m" (PostgreSQL, MySQL, SQLite,
	// Snowflake).
	LimitOffset Paging = iota
	// OffsetFetch renders "OFFSET m ROWS FETCH NEXT n ROWS ONLY" (SQL
	// Server). ORDER BY is mandatory there, so "ORDER BY (SELECT NULL)" is
	// emitted when no order was set.
	OffsetFetch
)

// Row is a single result row keyed by column name.
type Row = map[string]any

// Executor runs a built statement. The connection pool manager implements it.
type Executor interface {
	QueryRows(ctx context.Context, sql string, args []any) ([]Row, error)
}

// ErrNoExecutor is returned by the terminal methods of a builder created
// without an Executor.
var ErrNoExecutor = errors.New("query: builder has no executor")

// JoinType is the restricted set of join kinds.
type JoinType string

const (
	InnerJoin JoinType = "INNER"
	LeftJoin  JoinType = "LEFT"
	RightJoin JoinType = "RIGHT"
	FullJoin  JoinType = "FULL"
	CrossJoin JoinType = "CROSS"
)

var joinTypes = map[JoinType]bool{
	InnerJoin: true, LeftJoin: true, RightJoin: true, FullJoin: true, CrossJoin: true,
}

var operators = map[string]bool{
	"=": true, "!=": true, "<>": true, ">": true, "<": true, ">=": true, "<=": true,
	"LIKE": true, "ILIKE": true, "IN": true, "NOT IN": true, "IS NULL": true, "IS NOT NULL": true,
}

var aggregateFuncs = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
}

var (
	aggregateExpr = regexp.MustCompile(`^([A-Za-z_]+)\s*\(\s*(\*|[A-Za-z0-9_.]+)\s*\)$`)
	aliasExpr     = regexp.MustCompile(`(?i)^(.+?)\s+AS\s+(\S+)$`)
	joinCondition = regexp.MustCompile(`^\s*([A-Za-z0-9_.]+)\s*=\s*([A-Za-z0-9_.]+)\s*$`)
)

type joinClause struct {
	typ   JoinType
	table string
	on    string
}

// Builder accumulates one query definition and renders it into a single
// (sql, params) pair. Clause order in the SQL is canonical regardless of
// call order; parameter order is strictly call order, with LIMIT and OFFSET
// appended last by Build.
//
// The first validation failure is sticky: later calls are ignored and the
// failure is returned from Build and the terminal methods.
//
// OrWhere splices "OR <condition>" onto the most recent WHERE fragment
// rather than adding an independent term. Where(a).Where(b).OrWhere(c)
// renders "a AND b OR c", which SQL precedence reads as "(a AND b) OR c".
// Callers that want "a AND (b OR c)" must compose it differently.
type Builder struct {
	v           *Validator
	exec        Executor
	placeholder Placeholder
	paging      Paging

	selects    []string
	table      string
	fromCalled bool
	joins      []joinClause
	wheres     []string
	groups     []string
	havings    []string
	orders     []string
	limit      int
	offset     int
	hasLimit   bool
	hasOffset  bool
	params     []any

	err error
}

// Option configures a Builder.
type Option func(*Builder)

// WithExecutor binds the builder to an executor for Execute/Get/First/Count.
func WithExecutor(e Executor) Option {
	return func(b *Builder) { b.exec = e }
}

// WithPlaceholder selects the dialect's parameter marker. Defaults to Dollar.
func WithPlaceholder(p Placeholder) Option {
	return func(b *Builder) { b.placeholder = p }
}

// WithPaging selects the dialect's LIMIT/OFFSET syntax. Defaults to
// LimitOffset.
func WithPaging(p Paging) Option {
	return func(b *Builder) { b.paging = p }
}

// WithValidator sets the audit-logging validator.
func WithValidator(v *Validator) Option {
	return func(b *Builder) { b.v = v }
}

// New returns an empty Builder.
func New(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	if b.placeholder == nil {
		b.placeholder = Dollar
	}
	if b.v == nil {
		b.v = NewValidator(nil)
	}
	return b
}

// Err returns the sticky validation error, if any.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Select sets the select list. Accepted forms: "*", "col", "table.col",
// "table.*", "FUNC(col)", "FUNC(*)" with FUNC in COUNT/SUM/AVG/MIN/MAX, and
// any of those followed by "AS alias".
func (b *Builder) Select(columns ...string) *Builder {
	if b.err != nil {
		return b
	}
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		expr, err := b.selectExpr(c)
		if err != nil {
			return b.fail(err)
		}
		out = append(out, expr)
	}
	b.selects = out
	return b
}

func (b *Builder) selectExpr(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "*" {
		return s, nil
	}
	if m := aliasExpr.FindStringSubmatch(s); m != nil {
		left, err := b.columnOrAggregate(strings.TrimSpace(m[1]))
		if err != nil {
			return "", err
		}
		alias, err := b.v.Identifier(m[2])
		if err != nil {
			return "", err
		}
		return left + " AS " + alias, nil
	}
	if strings.HasSuffix(s, ".*") {
		table, err := b.v.Identifier(strings.TrimSuffix(s, ".*"))
		if err != nil {
			return "", err
		}
		return table + ".*", nil
	}
	return b.columnOrAggregate(s)
}

// columnOrAggregate accepts a column path or a whitelisted aggregate call.
func (b *Builder) columnOrAggregate(s string) (string, error) {
	if m := aggregateExpr.FindStringSubmatch(s); m != nil {
		fn := strings.ToUpper(m[1])
		if !aggregateFuncs[fn] {
			b.v.logger.Warn("rejected sql function", "sample", SanitizeForLog(m[1]))
			return "", errs.New(errs.CodeInvalidIdentifier, "function not allowed")
		}
		if m[2] == "*" {
			return fn + "(*)", nil
		}
		col, err := b.columnPath(m[2])
		if err != nil {
			return "", err
		}
		return fn + "(" + col + ")", nil
	}
	return b.columnPath(s)
}

// columnPath validates "col" or "table.col" component by component.
func (b *Builder) columnPath(s string) (string, error) {
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		b.v.logger.Warn("rejected sql identifier", "sample", SanitizeForLog(s))
		return "", errs.New(errs.CodeInvalidIdentifier, "invalid identifier")
	}
	for _, p := range parts {
		if _, err := b.v.Identifier(p); err != nil {
			return "", err
		}
	}
	return s, nil
}

// From sets the target table ("table" or "schema.table").
func (b *Builder) From(table string) *Builder {
	b.fromCalled = true
	if b.err != nil {
		return b
	}
	t, err := b.columnPath(strings.TrimSpace(table))
	if err != nil {
		return b.fail(err)
	}
	b.table = t
	return b
}

// Join adds a join. condition must be "table.col = table.col"; it is
// ignored for CROSS joins.
func (b *Builder) Join(table, condition string, typ JoinType) *Builder {
	if b.err != nil {
		return b
	}
	if typ == "" {
		typ = InnerJoin
	}
	typ = JoinType(strings.ToUpper(string(typ)))
	if !joinTypes[typ] {
		return b.fail(errs.New(errs.CodeInvalidOperator, "join type not allowed"))
	}
	t, err := b.columnPath(strings.TrimSpace(table))
	if err != nil {
		return b.fail(err)
	}
	jc := joinClause{typ: typ, table: t}
	if typ != CrossJoin {
		m := joinCondition.FindStringSubmatch(condition)
		if m == nil {
			b.v.logger.Warn("rejected join condition", "sample", SanitizeForLog(condition))
			return b.fail(errs.New(errs.CodeInvalidIdentifier, "join condition must be table.column = table.column"))
		}
		left, err := b.qualifiedColumn(m[1])
		if err != nil {
			return b.fail(err)
		}
		right, err := b.qualifiedColumn(m[2])
		if err != nil {
			return b.fail(err)
		}
		jc.on = left + " = " + right
	}
	b.joins = append(b.joins, jc)
	return b
}

func (b *Builder) qualifiedColumn(s string) (string, error) {
	if strings.Count(s, ".") != 1 {
		b.v.logger.Warn("rejected join column", "sample", SanitizeForLog(s))
		return "", errs.New(errs.CodeInvalidIdentifier, "join columns must be qualified")
	}
	return b.columnPath(s)
}

// LeftJoin is Join with LeftJoin.
func (b *Builder) LeftJoin(table, condition string) *Builder {
	return b.Join(table, condition, LeftJoin)
}

// Where appends a conjunctive predicate. See the operator whitelist;
// IN/NOT IN need a non-empty slice, LIKE/ILIKE need a string and
// IS NULL/IS NOT NULL ignore value.
func (b *Builder) Where(column, operator string, value any) *Builder {
	if b.err != nil {
		return b
	}
	cond, err := b.condition(column, operator, value, b.columnPath)
	if err != nil {
		return b.fail(err)
	}
	b.wheres = append(b.wheres, cond)
	return b
}

// AndWhere is an alias of Where.
func (b *Builder) AndWhere(column, operator string, value any) *Builder {
	return b.Where(column, operator, value)
}

// OrWhere splices "OR <condition>" onto the last WHERE fragment. With no
// prior WHERE it behaves like Where.
func (b *Builder) OrWhere(column, operator string, value any) *Builder {
	if b.err != nil {
		return b
	}
	cond, err := b.condition(column, operator, value, b.columnPath)
	if err != nil {
		return b.fail(err)
	}
	if len(b.wheres) == 0 {
		b.wheres = append(b.wheres, cond)
		return b
	}
	last := len(b.wheres) - 1
	b.wheres[last] = b.wheres[last] + " OR " + cond
	return b
}

// GroupBy sets the GROUP BY columns.
func (b *Builder) GroupBy(columns ...string) *Builder {
	if b.err != nil {
		return b
	}
	for _, c := range columns {
		col, err := b.columnPath(strings.TrimSpace(c))
		if err != nil {
			return b.fail(err)
		}
		b.groups = append(b.groups, col)
	}
	return b
}

// Having appends a HAVING predicate over a column or aggregate expression.
func (b *Builder) Having(expr, operator string, value any) *Builder {
	if b.err != nil {
		return b
	}
	cond, err := b.condition(expr, operator, value, b.columnOrAggregate)
	if err != nil {
		return b.fail(err)
	}
	b.havings = append(b.havings, cond)
	return b
}

// OrderBy appends an ORDER BY term. direction is ASC (default) or DESC.
func (b *Builder) OrderBy(column, direction string) *Builder {
	if b.err != nil {
		return b
	}
	col, err := b.columnOrAggregate(strings.TrimSpace(column))
	if err != nil {
		return b.fail(err)
	}
	dir := strings.ToUpper(strings.TrimSpace(direction))
	switch dir {
	case "":
		dir = "ASC"
	case "ASC", "DESC":
	default:
		return b.fail(errs.New(errs.CodeInvalidValue, "order direction must be ASC or DESC"))
	}
	b.orders = append(b.orders, col+" "+dir)
	return b
}

// Limit sets LIMIT; n must be within [MinLimit, MaxLimit].
func (b *Builder) Limit(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < MinLimit || n > MaxLimit {
		return b.fail(errs.New(errs.CodeInvalidValue, "limit must be between %d and %d", MinLimit, MaxLimit))
	}
	b.limit, b.hasLimit = n, true
	return b
}

// Offset sets OFFSET; n must not be negative.
func (b *Builder) Offset(n int) *Builder {
	if b.err != nil {
		return b
	}
	if n < 0 {
		return b.fail(errs.New(errs.CodeInvalidValue, "offset must not be negative"))
	}
	b.offset, b.hasOffset = n, true
	return b
}

func (b *Builder) condition(lhs, operator string, value any, check func(string) (string, error)) (string, error) {
	col, err := check(strings.TrimSpace(lhs))
	if err != nil {
		return "", err
	}
	op := strings.ToUpper(strings.Join(strings.Fields(operator), " "))
	if !operators[op] {
		b.v.logger.Warn("rejected sql operator", "sample", SanitizeForLog(operator))
		return "", errs.New(errs.CodeInvalidOperator, "operator not allowed")
	}

	switch op {
	case "IS NULL", "IS NOT NULL":
		return col + " " + op, nil
	case "IN", "NOT IN":
		rv := reflect.ValueOf(value)
		if value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return "", errs.New(errs.CodeInvalidValue, "%s requires an array value", op)
		}
		if rv.Len() == 0 {
			return "", errs.New(errs.CodeInvalidValue, "%s requires at least one value", op)
		}
		marks := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			marks[i] = b.bind(rv.Index(i).Interface())
		}
		return col + " " + op + " (" + strings.Join(marks, ", ") + ")", nil
	case "LIKE", "ILIKE":
		s, ok := value.(string)
		if !ok {
			return "", errs.New(errs.CodeInvalidValue, "%s requires a string value", op)
		}
		if err := b.v.CheckText(s); err != nil {
			return "", err
		}
		return col + " " + op + " " + b.bind(s), nil
	default:
		return col + " " + op + " " + b.bind(value), nil
	}
}

func (b *Builder) bind(v any) string {
	b.params = append(b.params, v)
	return b.placeholder(len(b.params))
}

// Build renders the accumulated definition. It fails with
// MISSING_FROM_CLAUSE when From was never called.
func (b *Builder) Build() (string, []any, error) {
	if !b.fromCalled {
		return "", nil, errs.New(errs.CodeMissingFromClause, "query has no FROM clause")
	}
	if b.err != nil {
		return "", nil, b.err
	}

	var sb strings.Builder
	params := make([]any, len(b.params), len(b.params)+2)
	copy(params, b.params)

	sb.WriteString("SELECT ")
	if len(b.selects) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(b.selects, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(string(j.typ))
		sb.WriteString(" JOIN ")
		sb.WriteString(j.table)
		if j.on != "" {
			sb.WriteString(" ON ")
			sb.WriteString(j.on)
		}
	}
	if len(b.wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.wheres, " AND "))
	}
	if len(b.groups) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groups, ", "))
	}
	if len(b.havings) > 0 {
		sb.WriteString(" HAVING ")
		sb.WriteString(strings.Join(b.havings, " AND "))
	}
	paged := b.hasLimit || b.hasOffset
	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orders, ", "))
	} else if paged && b.paging == OffsetFetch {
		sb.WriteString(" ORDER BY (SELECT NULL)")
	}
	if paged {
		params = b.writePaging(&sb, params)
	}
	return sb.String(), params, nil
}

// writePaging appends the paging clause and its parameters, which always
// come last in the parameter list.
func (b *Builder) writePaging(sb *strings.Builder, params []any) []any {
	if b.paging == OffsetFetch {
		params = append(params, b.offset)
		sb.WriteString(" OFFSET ")
		sb.WriteString(b.placeholder(len(params)))
		sb.WriteString(" ROWS")
		if b.hasLimit {
			params = append(params, b.limit)
			sb.WriteString(" FETCH NEXT ")
			sb.WriteString(b.placeholder(len(params)))
			sb.WriteString(" ROWS ONLY")
		}
		return params
	}
	if b.hasLimit {
		params = append(params, b.limit)
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.placeholder(len(params)))
	}
	if b.hasOffset {
		params = append(params, b.offset)
		sb.WriteString(" OFFSET ")
		sb.WriteString(b.placeholder(len(params)))
	}
	return params
}

// Execute builds and runs the query, returning all rows.
func (b *Builder) Execute(ctx context.Context) ([]Row, error) {
	if b.exec == nil {
		return nil, ErrNoExecutor
	}
	sql, params, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.exec.QueryRows(ctx, sql, params)
}

// Get is Execute.
func (b *Builder) Get(ctx context.Context) ([]Row, error) {
	return b.Execute(ctx)
}

// First runs the query with LIMIT 1 and returns the first row, or nil when
// there is none. The builder's own limit is left untouched.
func (b *Builder) First(ctx context.Context) (Row, error) {
	c := b.clone()
	c.limit, c.hasLimit = 1, true
	rows, err := c.Execute(ctx)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Count runs the query with the select list swapped for COUNT(*) and
// without ORDER BY, LIMIT or OFFSET. The swap happens on a copy, so the
// builder's select list is never observably changed. A grouped query is
// wrapped as a derived table, so Count returns the number of groups.
func (b *Builder) Count(ctx context.Context) (int64, error) {
	if b.exec == nil {
		return 0, ErrNoExecutor
	}
	sql, params, err := b.countSQL()
	if err != nil {
		return 0, err
	}
	rows, err := b.exec.QueryRows(ctx, sql, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["count"])
}

func (b *Builder) countSQL() (string, []any, error) {
	c := b.clone()
	c.orders = nil
	c.hasLimit, c.hasOffset = false, false
	if len(c.groups) == 0 {
		c.selects = []string{"COUNT(*) AS count"}
		return c.Build()
	}
	inner, params, err := c.Build()
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) AS count FROM (" + inner + ") grouped", params, nil
}

// Reset clears all accumulated state so the builder can be reused. The
// executor, dialect settings and validator are kept.
func (b *Builder) Reset() *Builder {
	*b = Builder{v: b.v, exec: b.exec, placeholder: b.placeholder, paging: b.paging}
	return b
}

func (b *Builder) clone() *Builder {
	c := *b
	c.selects = append([]string(nil), b.selects...)
	c.joins = append([]joinClause(nil), b.joins...)
	c.wheres = append([]string(nil), b.wheres...)
	c.groups = append([]string(nil), b.groups...)
	c.havings = append([]string(nil), b.havings...)
	c.orders = append([]string(nil), b.orders...)
	c.params = append([]any(nil), b.params...)
	return &c
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("query: unexpected count type %T", v)
	}
}
