// Package repo implements the generic data-access core: a type-parameterized
// CRUD repository over PostgreSQL, the predicate compiler that turns
// declarative query options into parameterized SQL, the row/entity codec
// contract, and the shared transaction-scope discipline.
//
// Specialized repositories (internal/repos) are thin instantiations of
// Repository with an entity-specific Codec and validation hook; they never
// build SQL of their own for filtered reads.
package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/recordkit/recordkit/internal/metrics"
	"github.com/recordkit/recordkit/internal/models"
)

// slowQueryThreshold triggers a diagnostic warning for operations that
// exceed it. Logging only; control flow is unaffected.
const slowQueryThreshold = 500 * time.Millisecond

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// ValidateFunc is the entity-specific validation hook, invoked before any
// I/O on create and update. isUpdate lets validators relax create-only
// constraints. Never invoked for reads or deletes.
type ValidateFunc[E any] func(e E, isUpdate bool) error

// Options configures one Repository instance.
type Options[E any] struct {
	// Entity names the record type in errors and logs, e.g. "user".
	Entity string

	// Table is the backing table name. Never caller-supplied.
	Table string

	// IDColumn defaults to "id".
	IDColumn string

	// Columns is the full selectable column set, in select order. It
	// doubles as the allow-list for filter and order-by validation.
	Columns []string

	Codec    Codec[E]
	Validate ValidateFunc[E]
}

// Repository is the generic CRUD engine for one entity type. All reads and
// writes route through the context-carried transaction when one is open,
// so repositories composed into one unit of work share its atomicity.
type Repository[E any, ID comparable] struct {
	db       *DB
	entity   string
	table    string
	idColumn string
	columns  []string
	codec    Codec[E]
	validate ValidateFunc[E]
	compiler *predicateCompiler
	log      *logrus.Logger
}

// New creates a Repository.
func New[E any, ID comparable](db *DB, opts Options[E]) *Repository[E, ID] {
	idCol := opts.IDColumn
	if idCol == "" {
		idCol = "id"
	}

	return &Repository[E, ID]{
		db:       db,
		entity:   opts.Entity,
		table:    opts.Table,
		idColumn: idCol,
		columns:  opts.Columns,
		codec:    opts.Codec,
		validate: opts.Validate,
		compiler: newPredicateCompiler(opts.Table, idCol, opts.Columns),
		log:      db.log,
	}
}

// DB returns the shared database handle, for callers composing transaction
// scopes across repositories.
func (r *Repository[E, ID]) DB() *DB { return r.db }

// Entity returns the entity name used in errors and logs.
func (r *Repository[E, ID]) Entity() string { return r.entity }

// Create validates the entity, issues a single insert, and returns the
// persisted record including store-assigned identifier and timestamps.
// A uniqueness violation surfaces as *models.DuplicateError.
func (r *Repository[E, ID]) Create(ctx context.Context, e E) (E, error) {
	var zero E

	if r.validate != nil {
		if err := r.validate(e, false); err != nil {
			return zero, err
		}
	}

	row, err := r.codec.ToRow(e, true)
	if err != nil {
		return zero, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	defer r.observe("create", time.Now())

	cols, placeholders, args := insertParts(r.columns, row)
	if len(cols) == 0 {
		return zero, &models.MappingError{Column: r.idColumn, Reason: "entity produced an empty row"}
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		r.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), r.compiler.columns,
	)

	out, err := r.queryOne(ctx, "create", sql, args)
	if err != nil {
		return zero, err
	}

	r.log.WithFields(logrus.Fields{"entity": r.entity}).Debug("record created")

	return *out, nil
}

// GetByID returns the entity with the given identifier, or nil when no such
// record exists. Absence is not an error.
func (r *Repository[E, ID]) GetByID(ctx context.Context, id ID) (*E, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	defer r.observe("get", time.Now())

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", r.compiler.columns, r.table, r.idColumn)

	out, err := r.queryOne(ctx, "get", sql, []any{id})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return out, nil
}

// GetByIDOrErr is GetByID for call sites that treat absence as fatal; it
// converts absence into *models.NotFoundError.
func (r *Repository[E, ID]) GetByIDOrErr(ctx context.Context, id ID) (E, error) {
	var zero E

	e, err := r.GetByID(ctx, id)
	if err != nil {
		return zero, err
	}

	if e == nil {
		return zero, &models.NotFoundError{Entity: r.entity, ID: fmt.Sprint(id)}
	}

	return *e, nil
}

// Update writes the fields present on the entity over an existing row and
// returns the re-materialized record. The existence check and the write run
// in one transaction scope, so a failed write leaves no partial effect.
func (r *Repository[E, ID]) Update(ctx context.Context, e E) (E, error) {
	var zero E

	if r.validate != nil {
		if err := r.validate(e, true); err != nil {
			return zero, err
		}
	}

	row, err := r.codec.ToRow(e, false)
	if err != nil {
		return zero, err
	}

	idVal, ok := row[r.idColumn]
	if !ok || idVal == nil {
		return zero, &models.MappingError{Column: r.idColumn, Reason: "entity row missing identifier"}
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	defer r.observe("update", time.Now())

	var out *E

	err = r.db.Transact(ctx, func(ctx context.Context) error {
		exists, err := r.existsVal(ctx, idVal)
		if err != nil {
			return err
		}

		if !exists {
			return &models.NotFoundError{Entity: r.entity, ID: fmt.Sprint(idVal)}
		}

		sql, args := r.buildUpdate(row, idVal)

		out, err = r.queryOne(ctx, "update", sql, args)

		return err
	})
	if err != nil {
		return zero, err
	}

	r.log.WithFields(logrus.Fields{"entity": r.entity}).Debug("record updated")

	return *out, nil
}

// buildUpdate constructs the SET clause from the columns present on the
// row, skipping the identifier and server-managed timestamps. updated_at
// is refreshed server-side when the table carries it.
func (r *Repository[E, ID]) buildUpdate(row Row, idVal any) (sql string, args []any) {
	setClauses := make([]string, 0, len(row))
	argIdx := 1

	for _, col := range r.columns {
		if col == r.idColumn || col == "created_at" || col == "updated_at" {
			continue
		}

		v, ok := row[col]
		if !ok {
			continue
		}

		setClauses = append(setClauses, col+" = $"+strconv.Itoa(argIdx))
		args = append(args, v)
		argIdx++
	}

	if _, ok := r.compiler.allowed["updated_at"]; ok {
		setClauses = append(setClauses, "updated_at = NOW()")
	}

	sql = fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		r.table, strings.Join(setClauses, ", "), r.idColumn, argIdx, r.compiler.columns,
	)
	args = append(args, idVal)

	return sql, args
}

// Delete removes the record with the given identifier and reports whether a
// row was actually removed. Deleting something already gone is not an error.
func (r *Repository[E, ID]) Delete(ctx context.Context, id ID) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	defer r.observe("delete", time.Now())

	tag, err := r.db.Querier(ctx).Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = $1", r.table, r.idColumn), id)
	if err != nil {
		return false, r.classify("delete", err)
	}

	deleted := tag.RowsAffected() > 0
	if deleted {
		r.log.WithFields(logrus.Fields{"entity": r.entity}).Debug("record deleted")
	}

	return deleted, nil
}

// List executes the filtered, ordered, paginated query described by opts,
// plus the parallel count query when requested, and returns the composed
// page.
func (r *Repository[E, ID]) List(ctx context.Context, opts QueryOptions) (QueryResult[E], error) {
	var result QueryResult[E]

	sql, args, err := r.compiler.selectStmt(opts)
	if err != nil {
		return result, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()
	defer r.observe("list", time.Now())

	entities, err := r.queryMany(ctx, "list", sql, args)
	if err != nil {
		return result, err
	}

	if opts.Limit > 0 && len(entities) > opts.Limit {
		result.HasNext = true
		entities = entities[:opts.Limit]
	}

	result.Data = entities
	result.HasPrev = opts.Offset > 0

	if opts.IncludeCount {
		total, err := r.Count(ctx, opts.Filters)
		if err != nil {
			return QueryResult[E]{}, err
		}

		result.TotalCount = &total
	}

	return result, nil
}

// Exists reports whether a record with the given identifier exists.
func (r *Repository[E, ID]) Exists(ctx context.Context, id ID) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.existsVal(ctx, id)
}

func (r *Repository[E, ID]) existsVal(ctx context.Context, id any) (bool, error) {
	var exists bool

	sql := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1)", r.table, r.idColumn)
	if err := r.db.Querier(ctx).QueryRow(ctx, sql, id).Scan(&exists); err != nil {
		return false, r.classify("exists", err)
	}

	return exists, nil
}

// Count returns the number of rows matching the filters, ignoring any
// pagination window.
func (r *Repository[E, ID]) Count(ctx context.Context, filters Filters) (int64, error) {
	sql, args, err := r.compiler.countStmt(filters)
	if err != nil {
		return 0, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var total int64
	if err := r.db.Querier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, r.classify("count", err)
	}

	return total, nil
}

// FindBy returns all entities matching the filters in stable identifier
// order.
func (r *Repository[E, ID]) FindBy(ctx context.Context, filters Filters) ([]E, error) {
	result, err := r.List(ctx, QueryOptions{Filters: filters})
	if err != nil {
		return nil, err
	}

	return result.Data, nil
}

// FindOneBy returns the single entity matching the filters, nil when none
// does, and models.ErrMultipleRows when more than one does. Callers use it
// only where uniqueness is assumed.
func (r *Repository[E, ID]) FindOneBy(ctx context.Context, filters Filters) (*E, error) {
	result, err := r.List(ctx, QueryOptions{Filters: filters, Limit: 2})
	if err != nil {
		return nil, err
	}

	switch len(result.Data) {
	case 0:
		return nil, nil
	case 1:
		return &result.Data[0], nil
	default:
		return nil, fmt.Errorf("%s: %w", r.entity, models.ErrMultipleRows)
	}
}

// Transact runs fn inside the shared transaction scope (see DB.Transact).
func (r *Repository[E, ID]) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.Transact(ctx, fn)
}

// queryOne executes a statement expected to return exactly one row and
// materializes it through the codec. pgx.ErrNoRows passes through unwrapped
// so callers can translate absence per their contract.
func (r *Repository[E, ID]) queryOne(ctx context.Context, op, sql string, args []any) (*E, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, r.classify(op, err)
	}

	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}

		return nil, r.classify(op, err)
	}

	e, err := r.codec.ToEntity(Row(m))
	if err != nil {
		return nil, err
	}

	return &e, nil
}

// queryMany executes a statement and materializes every row.
func (r *Repository[E, ID]) queryMany(ctx context.Context, op, sql string, args []any) ([]E, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, r.classify(op, err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, r.classify(op, err)
	}

	entities := make([]E, 0, len(maps))

	for _, m := range maps {
		e, err := r.codec.ToEntity(Row(m))
		if err != nil {
			return nil, err
		}

		entities = append(entities, e)
	}

	return entities, nil
}

// classify maps driver errors to the shared taxonomy.
func (r *Repository[E, ID]) classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &models.DuplicateError{Entity: r.entity, Constraint: pgErr.ConstraintName}
	}

	return &models.StoreError{Op: r.entity + "." + op, Err: err}
}

// observe records the operation duration and warns on slow queries.
func (r *Repository[E, ID]) observe(op string, start time.Time) {
	elapsed := time.Since(start)
	metrics.RepoOpDuration.WithLabelValues(r.entity, op).Observe(elapsed.Seconds())

	if elapsed > slowQueryThreshold {
		r.log.WithFields(logrus.Fields{
			"entity":   r.entity,
			"op":       op,
			"duration": elapsed.String(),
		}).Warn("slow repository operation")
	}
}

// insertParts builds the column list, placeholders, and arguments for an
// insert from the columns present on the row, in allow-list order so
// statement text is deterministic.
func insertParts(columns []string, row Row) (cols, placeholders []string, args []any) {
	argIdx := 1

	for _, col := range columns {
		v, ok := row[col]
		if !ok {
			continue
		}

		cols = append(cols, col)
		placeholders = append(placeholders, "$"+strconv.Itoa(argIdx))
		args = append(args, v)
		argIdx++
	}

	return cols, placeholders, args
}
