package repo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/recordkit/recordkit/internal/models"
)

// Row is the store's native representation of one entity: a mapping of
// column name to scalar (or JSONB) value, as produced by pgx.RowToMap.
type Row map[string]any

// Codec converts between rows and typed entities. Implementations must be
// total and side-effect free: no I/O, no validation. A row missing a column
// the codec cannot default fails with *models.MappingError.
type Codec[E any] interface {
	// ToEntity materializes a typed entity from a row.
	ToEntity(row Row) (E, error)

	// ToRow converts an entity to a row. When forInsert is true the
	// identifier and server-managed timestamps are omitted so the store
	// assigns them.
	ToRow(e E, forInsert bool) (Row, error)
}

func missing(col string) error {
	return &models.MappingError{Column: col, Reason: "column missing from row"}
}

func badType(col string, v any, want string) error {
	return &models.MappingError{Column: col, Reason: fmt.Sprintf("cannot coerce %T to %s", v, want)}
}

// String returns a required text column.
func (r Row) String(col string) (string, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return "", missing(col)
	}

	s, ok := v.(string)
	if !ok {
		return "", badType(col, v, "string")
	}

	return s, nil
}

// StringOr returns a text column, falling back to def when the column is
// absent or NULL.
func (r Row) StringOr(col, def string) (string, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return def, nil
	}

	s, ok := v.(string)
	if !ok {
		return "", badType(col, v, "string")
	}

	return s, nil
}

// Bool returns a required boolean column.
func (r Row) Bool(col string) (bool, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return false, missing(col)
	}

	b, ok := v.(bool)
	if !ok {
		return false, badType(col, v, "bool")
	}

	return b, nil
}

// Int64 returns a required integer column, coercing the driver's width.
func (r Row) Int64(col string) (int64, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return 0, missing(col)
	}

	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, badType(col, v, "int64")
	}
}

// Time returns a required timestamp column.
func (r Row) Time(col string) (time.Time, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return time.Time{}, missing(col)
	}

	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, badType(col, v, "time.Time")
	}

	return t, nil
}

// OptTime returns a nullable timestamp column; absent or NULL yields nil.
func (r Row) OptTime(col string) (*time.Time, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return nil, nil
	}

	t, ok := v.(time.Time)
	if !ok {
		return nil, badType(col, v, "time.Time")
	}

	return &t, nil
}

// UUID returns a required uuid column. pgx surfaces uuid values as
// [16]byte; string and uuid.UUID are accepted for synthetic rows in tests.
func (r Row) UUID(col string) (uuid.UUID, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return uuid.Nil, missing(col)
	}

	return coerceUUID(col, v)
}

// OptUUID returns a nullable uuid column; absent or NULL yields nil.
func (r Row) OptUUID(col string) (*uuid.UUID, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return nil, nil
	}

	id, err := coerceUUID(col, v)
	if err != nil {
		return nil, err
	}

	return &id, nil
}

func coerceUUID(col string, v any) (uuid.UUID, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u, nil
	case [16]byte:
		return uuid.UUID(u), nil
	case string:
		id, err := uuid.Parse(u)
		if err != nil {
			return uuid.Nil, &models.MappingError{Column: col, Reason: "invalid uuid: " + err.Error()}
		}

		return id, nil
	default:
		return uuid.Nil, badType(col, v, "uuid")
	}
}

// Decimal returns a required numeric column as an exact decimal.
func (r Row) Decimal(col string) (decimal.Decimal, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return decimal.Zero, missing(col)
	}

	switch d := v.(type) {
	case decimal.Decimal:
		return d, nil
	case string:
		out, err := decimal.NewFromString(d)
		if err != nil {
			return decimal.Zero, &models.MappingError{Column: col, Reason: "invalid decimal: " + err.Error()}
		}

		return out, nil
	case float64:
		return decimal.NewFromFloat(d), nil
	case pgtype.Numeric:
		raw, err := d.Value()
		if err != nil {
			return decimal.Zero, &models.MappingError{Column: col, Reason: "invalid numeric: " + err.Error()}
		}

		s, ok := raw.(string)
		if !ok {
			return decimal.Zero, badType(col, raw, "decimal")
		}

		out, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, &models.MappingError{Column: col, Reason: "invalid decimal: " + err.Error()}
		}

		return out, nil
	default:
		return decimal.Zero, badType(col, v, "decimal")
	}
}

// JSONMap returns a nullable JSONB column as a map; absent or NULL yields
// nil. pgx decodes jsonb into map[string]any; []byte is accepted for rows
// built outside the driver.
func (r Row) JSONMap(col string) (map[string]any, error) {
	v, ok := r[col]
	if !ok || v == nil {
		return nil, nil
	}

	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case []byte:
		var out map[string]any
		if err := json.Unmarshal(m, &out); err != nil {
			return nil, &models.MappingError{Column: col, Reason: "invalid json: " + err.Error()}
		}

		return out, nil
	default:
		return nil, badType(col, v, "json object")
	}
}
