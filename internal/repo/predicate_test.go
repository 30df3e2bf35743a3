package repo

import (
	"errors"
	"strings"
	"testing"

	"github.com/recordkit/recordkit/internal/models"
)

func testCompiler() *predicateCompiler {
	return newPredicateCompiler("accounts", "id", []string{"id", "email", "status", "created_at", "updated_at"})
}

func TestWhereParameterizesValues(t *testing.T) {
	pc := testCompiler()

	// A statement-breaking value must end up as a bound parameter, never
	// in the statement text.
	hostile := "x'; DROP TABLE accounts; --"

	clause, args, next, err := pc.where(Filters{"email": Eq(hostile)}, 1)
	if err != nil {
		t.Fatalf("where: %v", err)
	}

	if clause != "WHERE email = $1" {
		t.Errorf("clause = %q, want %q", clause, "WHERE email = $1")
	}
	if next != 2 {
		t.Errorf("next arg = %d, want 2", next)
	}
	if len(args) != 1 || args[0] != hostile {
		t.Errorf("args = %v, want the literal hostile value", args)
	}
	if strings.Contains(clause, "DROP") {
		t.Error("filter value leaked into statement text")
	}
}

func TestWhereUnknownColumn(t *testing.T) {
	pc := testCompiler()

	_, _, _, err := pc.where(Filters{"password_hash": Eq("x")}, 1)

	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if verr.Field != "password_hash" {
		t.Errorf("Field = %q, want password_hash", verr.Field)
	}
}

func TestWhereOperators(t *testing.T) {
	pc := testCompiler()

	tests := []struct {
		name       string
		filters    Filters
		wantClause string
		wantArgs   int
	}{
		{"equality", Filters{"status": Eq("trial")}, "WHERE status = $1", 1},
		{"not equal", Filters{"status": Ne("canceled")}, "WHERE status <> $1", 1},
		{"greater than", Filters{"created_at": Gt("2024-01-01")}, "WHERE created_at > $1", 1},
		{"between", Filters{"created_at": Between("a", "b")}, "WHERE created_at BETWEEN $1 AND $2", 2},
		{"in set", Filters{"status": In("trial", "active")}, "WHERE status IN ($1, $2)", 2},
		{"bare value means equality", Filters{"status": {Value: "trial"}}, "WHERE status = $1", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args, _, err := pc.where(tt.filters, 1)
			if err != nil {
				t.Fatalf("where: %v", err)
			}
			if clause != tt.wantClause {
				t.Errorf("clause = %q, want %q", clause, tt.wantClause)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestWhereMultipleFiltersDeterministic(t *testing.T) {
	pc := testCompiler()
	filters := Filters{
		"status": Eq("active"),
		"email":  Eq("a@b.com"),
	}

	first, args, next, err := pc.where(filters, 1)
	if err != nil {
		t.Fatalf("where: %v", err)
	}

	// Sorted column order: email before status.
	want := "WHERE email = $1 AND status = $2"
	if first != want {
		t.Errorf("clause = %q, want %q", first, want)
	}
	if args[0] != "a@b.com" || args[1] != "active" {
		t.Errorf("args = %v not aligned with sorted columns", args)
	}
	if next != 3 {
		t.Errorf("next = %d, want 3", next)
	}

	for range 10 {
		again, _, _, _ := pc.where(filters, 1)
		if again != first {
			t.Fatalf("where not deterministic: %q vs %q", again, first)
		}
	}
}

func TestWhereInvalidShapes(t *testing.T) {
	pc := testCompiler()

	tests := []struct {
		name    string
		filters Filters
	}{
		{"empty in set", Filters{"status": In()}},
		{"between with one value", Filters{"created_at": {Op: OpBetween, Values: []any{"a"}}}},
		{"unknown operator", Filters{"status": {Op: "like", Value: "%x%"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := pc.where(tt.filters, 1)

			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestOrderBy(t *testing.T) {
	pc := testCompiler()

	tests := []struct {
		name    string
		cols    []string
		want    string
		wantErr bool
	}{
		{"default is stable id order", nil, "ORDER BY id ASC", false},
		{"descending prefix", []string{"-created_at"}, "ORDER BY created_at DESC, id ASC", false},
		{"id tiebreak appended once", []string{"email", "id"}, "ORDER BY email ASC, id ASC", false},
		{"unknown column rejected", []string{"secret"}, "", true},
		{"unknown descending column rejected", []string{"-secret"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pc.orderBy(tt.cols)
			if tt.wantErr {
				var verr *models.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("err = %v, want ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("orderBy: %v", err)
			}
			if got != tt.want {
				t.Errorf("orderBy = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectStmt(t *testing.T) {
	pc := testCompiler()

	sql, args, err := pc.selectStmt(QueryOptions{
		Filters: Filters{"status": Eq("trial")},
		OrderBy: []string{"-created_at"},
		Limit:   2,
		Offset:  4,
	})
	if err != nil {
		t.Fatalf("selectStmt: %v", err)
	}

	want := "SELECT id, email, status, created_at, updated_at FROM accounts " +
		"WHERE status = $1 ORDER BY created_at DESC, id ASC LIMIT $2 OFFSET $3"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}

	// Limit is fetched as limit+1 for next-page detection.
	if len(args) != 3 || args[0] != "trial" || args[1] != 3 || args[2] != 4 {
		t.Errorf("args = %v, want [trial 3 4]", args)
	}
}

func TestSelectStmtRejectsNegativeWindow(t *testing.T) {
	pc := testCompiler()

	if _, _, err := pc.selectStmt(QueryOptions{Limit: -1}); !errors.As(err, new(*models.ValidationError)) {
		t.Errorf("negative limit: err = %v, want ValidationError", err)
	}
	if _, _, err := pc.selectStmt(QueryOptions{Offset: -1}); !errors.As(err, new(*models.ValidationError)) {
		t.Errorf("negative offset: err = %v, want ValidationError", err)
	}
}

func TestCountStmtSharesPredicate(t *testing.T) {
	pc := testCompiler()
	filters := Filters{"status": Eq("trial")}

	sql, args, err := pc.countStmt(filters)
	if err != nil {
		t.Fatalf("countStmt: %v", err)
	}

	want := "SELECT COUNT(*) FROM accounts WHERE status = $1"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if strings.Contains(sql, "ORDER") || strings.Contains(sql, "LIMIT") {
		t.Error("count statement must carry no ordering or pagination")
	}
	if len(args) != 1 {
		t.Errorf("len(args) = %d, want 1", len(args))
	}
}
