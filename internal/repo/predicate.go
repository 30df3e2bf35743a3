package repo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/recordkit/recordkit/internal/models"
)

// predicateCompiler renders QueryOptions into parameterized SQL fragments
// for one table. Caller-supplied values are always bound parameters; column
// names are validated against the allow-list before they reach statement
// text, so filter input can never alter query structure.
type predicateCompiler struct {
	table    string
	idColumn string
	columns  string
	allowed  map[string]struct{}
}

func newPredicateCompiler(table, idColumn string, columns []string) *predicateCompiler {
	allowed := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		allowed[c] = struct{}{}
	}

	return &predicateCompiler{
		table:    table,
		idColumn: idColumn,
		columns:  strings.Join(columns, ", "),
		allowed:  allowed,
	}
}

func (pc *predicateCompiler) checkColumn(col string) error {
	if _, ok := pc.allowed[col]; !ok {
		return &models.ValidationError{Field: col, Message: "unknown column"}
	}

	return nil
}

// where renders the conjunction of filters starting at argument index
// argIdx. Columns are visited in sorted order so statement text is stable
// across calls with the same filters.
func (pc *predicateCompiler) where(filters Filters, argIdx int) (clause string, args []any, next int, err error) {
	if len(filters) == 0 {
		return "", nil, argIdx, nil
	}

	cols := make([]string, 0, len(filters))
	for col := range filters {
		cols = append(cols, col)
	}

	sort.Strings(cols)

	conditions := make([]string, 0, len(cols))

	for _, col := range cols {
		if err := pc.checkColumn(col); err != nil {
			return "", nil, 0, err
		}

		f := filters[col]

		cond, condArgs, n, err := renderFilter(col, f, argIdx)
		if err != nil {
			return "", nil, 0, err
		}

		conditions = append(conditions, cond)
		args = append(args, condArgs...)
		argIdx = n
	}

	return "WHERE " + strings.Join(conditions, " AND "), args, argIdx, nil
}

func renderFilter(col string, f Filter, argIdx int) (cond string, args []any, next int, err error) {
	switch f.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, "":
		op := scalarOps[f.Op]

		return col + " " + op + " $" + strconv.Itoa(argIdx), []any{f.Value}, argIdx + 1, nil

	case OpBetween:
		if len(f.Values) != 2 {
			return "", nil, 0, &models.ValidationError{Field: col, Message: "between filter requires exactly two values"}
		}

		cond = fmt.Sprintf("%s BETWEEN $%d AND $%d", col, argIdx, argIdx+1)

		return cond, f.Values, argIdx + 2, nil

	case OpIn:
		if len(f.Values) == 0 {
			return "", nil, 0, &models.ValidationError{Field: col, Message: "in filter requires at least one value"}
		}

		placeholders := make([]string, len(f.Values))
		for i := range f.Values {
			placeholders[i] = "$" + strconv.Itoa(argIdx+i)
		}

		cond = col + " IN (" + strings.Join(placeholders, ", ") + ")"

		return cond, f.Values, argIdx + len(f.Values), nil

	default:
		return "", nil, 0, &models.ValidationError{Field: col, Message: "unknown operator " + string(f.Op)}
	}
}

// scalarOps maps scalar operator tags to SQL. An absent tag means equality
// so that Filters built with bare values behave intuitively.
var scalarOps = map[Op]string{
	"":    "=",
	OpEq:  "=",
	OpNe:  "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// orderBy renders the ORDER BY clause. The identifier column is appended
// as a stable tiebreak unless already present, so pagination stays
// consistent across repeated calls when the caller's order is not total.
func (pc *predicateCompiler) orderBy(cols []string) (string, error) {
	terms := make([]string, 0, len(cols)+1)
	sawID := false

	for _, entry := range cols {
		col := entry
		dir := "ASC"

		if strings.HasPrefix(entry, "-") {
			col = entry[1:]
			dir = "DESC"
		}

		if err := pc.checkColumn(col); err != nil {
			return "", err
		}

		if col == pc.idColumn {
			sawID = true
		}

		terms = append(terms, col+" "+dir)
	}

	if !sawID {
		terms = append(terms, pc.idColumn+" ASC")
	}

	return "ORDER BY " + strings.Join(terms, ", "), nil
}

// selectStmt compiles the full page query. When opts.Limit > 0 the
// statement fetches one extra row so the caller can detect a next page
// without a second query.
func (pc *predicateCompiler) selectStmt(opts QueryOptions) (sql string, args []any, err error) {
	if opts.Limit < 0 {
		return "", nil, &models.ValidationError{Field: "limit", Message: "must be >= 0"}
	}

	if opts.Offset < 0 {
		return "", nil, &models.ValidationError{Field: "offset", Message: "must be >= 0"}
	}

	where, args, argIdx, err := pc.where(opts.Filters, 1)
	if err != nil {
		return "", nil, err
	}

	order, err := pc.orderBy(opts.OrderBy)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder

	b.WriteString("SELECT ")
	b.WriteString(pc.columns)
	b.WriteString(" FROM ")
	b.WriteString(pc.table)

	if where != "" {
		b.WriteString(" ")
		b.WriteString(where)
	}

	b.WriteString(" ")
	b.WriteString(order)

	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT $%d", argIdx)
		args = append(args, opts.Limit+1)
		argIdx++
	}

	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return b.String(), args, nil
}

// countStmt compiles the parallel count query: same filter predicate, no
// ordering or pagination, so the total is exact and page-independent.
func (pc *predicateCompiler) countStmt(filters Filters) (sql string, args []any, err error) {
	where, args, _, err := pc.where(filters, 1)
	if err != nil {
		return "", nil, err
	}

	sql = "SELECT COUNT(*) FROM " + pc.table
	if where != "" {
		sql += " " + where
	}

	return sql, args, nil
}
