package query

import (
	"strings"

	"github.com/talentsphere/securecore/internal/errs"
)

// OrderClause represents a single column ordering directive.
type OrderClause struct {
	Column    string // Validated column name.
	Direction string // "ASC" or "DESC".
}

// String returns the SQL fragment for this order clause, e.g. "created_at DESC".
func (o OrderClause) String() string {
	return o.Column + " " + o.Direction
}

// ParseOrderClause parses a query-string order like "created_at DESC, name"
// into validated clauses. Direction defaults to ASC.
func ParseOrderClause(order string) ([]OrderClause, error) {
	order = strings.TrimSpace(order)
	if order == "" {
		return nil, nil
	}

	parts := strings.Split(order, ",")
	clauses := make([]OrderClause, 0, len(parts))

	for _, part := range parts {
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			continue
		}
		if len(tokens) > 2 {
			return nil, errs.New(errs.CodeInvalidValue, "order clause must be 'column [ASC|DESC]'")
		}

		col, err := ValidateIdentifier(tokens[0])
		if err != nil {
			return nil, err
		}

		dir := "ASC"
		if len(tokens) == 2 {
			switch d := strings.ToUpper(tokens[1]); d {
			case "ASC", "DESC":
				dir = d
			default:
				return nil, errs.New(errs.CodeInvalidValue, "order direction must be ASC or DESC")
			}
		}

		clauses = append(clauses, OrderClause{Column: col, Direction: dir})
	}

	if len(clauses) == 0 {
		return nil, nil
	}
	return clauses, nil
}

// ParseFieldSelection parses a comma-separated field list like "id,name,email"
// into validated column names. Returns nil for an empty input string.
func ParseFieldSelection(fields string) ([]string, error) {
	fields = strings.TrimSpace(fields)
	if fields == "" {
		return nil, nil
	}

	var result []string
	for _, part := range strings.Split(fields, ",") {
		col := strings.TrimSpace(part)
		if col == "" {
			continue
		}
		if _, err := ValidateIdentifier(col); err != nil {
			return nil, err
		}
		result = append(result, col)
	}
	return result, nil
}
