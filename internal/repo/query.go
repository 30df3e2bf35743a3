package repo

// Op identifies a comparison operator for a filter. Operators are explicit
// tags rather than inferred from value shape so the compiler's behavior is
// enumerable.
type Op string

// Supported filter operators.
const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIn      Op = "in"
	OpBetween Op = "between"
)

// Filter is one tagged comparison against a column. Value carries the
// operand for scalar operators; Values carries the operands for OpIn and
// OpBetween (exactly two, inclusive bounds).
type Filter struct {
	Op     Op
	Value  any
	Values []any
}

// Eq matches rows where the column equals v.
func Eq(v any) Filter { return Filter{Op: OpEq, Value: v} }

// Ne matches rows where the column differs from v.
func Ne(v any) Filter { return Filter{Op: OpNe, Value: v} }

// Gt matches rows where the column is greater than v.
func Gt(v any) Filter { return Filter{Op: OpGt, Value: v} }

// Gte matches rows where the column is greater than or equal to v.
func Gte(v any) Filter { return Filter{Op: OpGte, Value: v} }

// Lt matches rows where the column is less than v.
func Lt(v any) Filter { return Filter{Op: OpLt, Value: v} }

// Lte matches rows where the column is less than or equal to v.
func Lte(v any) Filter { return Filter{Op: OpLte, Value: v} }

// Between matches rows where the column is within [lo, hi] inclusive.
func Between(lo, hi any) Filter { return Filter{Op: OpBetween, Values: []any{lo, hi}} }

// In matches rows where the column equals any of vs.
func In(vs ...any) Filter { return Filter{Op: OpIn, Values: vs} }

// Filters maps column names to comparisons, combined conjunctively.
type Filters map[string]Filter

// QueryOptions describes one list query: filters, ordering, pagination
// window, and whether to compute the total match count. The zero value
// selects everything in stable identifier order.
type QueryOptions struct {
	Filters Filters

	// OrderBy lists column names; a "-" prefix means descending. Columns
	// are validated against the repository's allow-list.
	OrderBy []string

	// Limit caps the page size; zero means no limit. Must be >= 0.
	Limit int

	// Offset skips rows before the page. Must be >= 0.
	Offset int

	// IncludeCount requests the total number of rows matching Filters,
	// ignoring the pagination window.
	IncludeCount bool
}

// QueryResult is one page of entities plus pagination metadata.
type QueryResult[E any] struct {
	Data []E

	// TotalCount is set iff IncludeCount was requested.
	TotalCount *int64

	HasNext bool
	HasPrev bool
}
