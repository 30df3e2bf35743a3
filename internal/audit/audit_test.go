package audit_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recordkit/recordkit/internal/audit"
	"github.com/recordkit/recordkit/internal/db"
	"github.com/recordkit/recordkit/internal/db/migrations"
	"github.com/recordkit/recordkit/internal/dbpool"
	"github.com/recordkit/recordkit/internal/models"
	"github.com/recordkit/recordkit/internal/repo"
)

// testEnv holds shared test infrastructure (single pool across all tests).
type testEnv struct {
	pool *dbpool.Pool
	db   *repo.DB
	log  *logrus.Logger
}

var sharedEnv *testEnv

func getTestEnv(t *testing.T) *testEnv {
	t.Helper()

	if sharedEnv != nil {
		return sharedEnv
	}

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	pool, err := dbpool.NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("connecting to test DB: %v", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	sharedEnv = &testEnv{
		pool: pool,
		db:   repo.NewDB(pool, log),
		log:  log,
	}

	return sharedEnv
}

// recordingFeed captures broadcast entries for assertions.
type recordingFeed struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (f *recordingFeed) BroadcastEntry(e models.AuditEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *recordingFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.entries)
}

// newTestService creates a Service whose entries are cleaned up after the test.
// Cleanup keys on a unique resource_type marker per test.
func newTestService(t *testing.T, feed audit.Broadcaster) (*audit.Service, string) {
	t.Helper()

	env := getTestEnv(t)
	marker := "test_resource_" + strings.ReplaceAll(uuid.New().String()[:8], "-", "")

	t.Cleanup(func() {
		env.pool.Exec(context.Background(), "DELETE FROM audit_log WHERE resource_type = $1", marker) //nolint:errcheck // best-effort cleanup
	})

	return audit.NewService(env.db, env.log, feed), marker
}

func TestLogUserActionRoundTrip(t *testing.T) {
	feed := &recordingFeed{}
	svc, marker := newTestService(t, feed)
	ctx := context.Background()
	userID := uuid.New()

	entry, err := svc.LogUserAction(ctx, userID, models.AuditActionCreate, marker, "res-1", true, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("LogUserAction: %v", err)
	}

	if entry.ID == 0 {
		t.Error("expected store-assigned entry ID")
	}
	if entry.UserID == nil || *entry.UserID != userID {
		t.Errorf("expected user %s, got %v", userID, entry.UserID)
	}
	if entry.Level != models.AuditLevelLow {
		t.Errorf("expected low level, got %q", entry.Level)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
	if entry.Details["k"] != "v" {
		t.Errorf("details round-trip mismatch: %v", entry.Details)
	}

	if feed.count() != 1 {
		t.Errorf("expected 1 feed broadcast, got %d", feed.count())
	}

	trail, err := svc.UserTrail(ctx, userID, 10)
	if err != nil {
		t.Fatalf("UserTrail: %v", err)
	}
	if len(trail) != 1 || trail[0].ID != entry.ID {
		t.Errorf("expected entry %d in trail, got %+v", entry.ID, trail)
	}
}

func TestLogSecurityEventDefaults(t *testing.T) {
	svc, marker := newTestService(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	// The subject rejected the login; the entry itself still commits.
	entry, err := svc.LogEvent(ctx, models.AuditEntry{
		UserID:             &userID,
		Action:             models.AuditActionLogin,
		ResourceType:       marker,
		Level:              models.AuditLevelHigh,
		Success:            false,
		ComplianceCategory: models.ComplianceCategorySecurity,
	})
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	if entry.Success {
		t.Error("expected success=false to persist")
	}

	events, err := svc.SecurityEvents(ctx, time.Now().Add(-time.Minute), 50)
	if err != nil {
		t.Fatalf("SecurityEvents: %v", err)
	}

	found := false
	for _, e := range events {
		if e.ID == entry.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected security event in security view")
	}

	failed, err := svc.FailedActions(ctx, time.Now().Add(-time.Minute), 50)
	if err != nil {
		t.Fatalf("FailedActions: %v", err)
	}

	found = false
	for _, e := range failed {
		if e.ID == entry.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected failed event in failed view")
	}
}

func TestReloggingAppendsInsteadOfMutating(t *testing.T) {
	svc, marker := newTestService(t, nil)
	ctx := context.Background()

	entry, err := svc.LogSystemEvent(ctx, models.AuditActionUpdate, marker, nil)
	if err != nil {
		t.Fatalf("LogSystemEvent: %v", err)
	}

	// Re-logging an already persisted entry appends a fresh row; the write
	// path never mutates existing entries.
	again, err := svc.LogEvent(ctx, entry)
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if again.ID == entry.ID {
		t.Fatal("expected a new row, got the same ID")
	}

	trail, err := svc.Query(ctx, repo.QueryOptions{
		Filters: repo.Filters{"resource_type": repo.Eq(marker)},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(trail.Data) != 2 {
		t.Fatalf("expected 2 rows after re-log, got %d", len(trail.Data))
	}
}

func TestSummaryInvariants(t *testing.T) {
	svc, marker := newTestService(t, nil)
	ctx := context.Background()

	start := time.Now().Add(-time.Second)
	userA := uuid.New()
	userB := uuid.New()

	seed := []struct {
		user    *uuid.UUID
		action  string
		level   string
		success bool
	}{
		{&userA, models.AuditActionCreate, models.AuditLevelLow, true},
		{&userA, models.AuditActionUpdate, models.AuditLevelLow, true},
		{&userA, models.AuditActionDelete, models.AuditLevelCritical, false},
		{&userB, models.AuditActionCreate, models.AuditLevelLow, true},
		{nil, models.AuditActionExport, models.AuditLevelMedium, true},
	}

	for _, s := range seed {
		if _, err := svc.LogEvent(ctx, models.AuditEntry{
			UserID:       s.user,
			Action:       s.action,
			ResourceType: marker,
			Level:        s.level,
			Success:      s.success,
		}); err != nil {
			t.Fatalf("seeding entry: %v", err)
		}
	}

	end := time.Now().Add(time.Second)

	summary, err := svc.Summary(ctx, start, end)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	// Other tests may write into the same window; assert lower bounds and
	// internal consistency rather than exact totals.
	if summary.TotalEntries < 5 {
		t.Errorf("expected at least 5 entries, got %d", summary.TotalEntries)
	}
	if summary.UniqueUsers < 2 {
		t.Errorf("expected at least 2 unique users, got %d", summary.UniqueUsers)
	}
	if summary.SuccessRate < 0 || summary.SuccessRate > 1 {
		t.Errorf("success rate out of range: %f", summary.SuccessRate)
	}

	var actionTotal int64
	for _, n := range summary.ActionsBreakdown {
		actionTotal += n
	}
	if actionTotal != summary.TotalEntries {
		t.Errorf("actions breakdown sums to %d, total is %d", actionTotal, summary.TotalEntries)
	}

	var levelTotal int64
	for _, n := range summary.LevelBreakdown {
		levelTotal += n
	}
	if levelTotal != summary.TotalEntries {
		t.Errorf("level breakdown sums to %d, total is %d", levelTotal, summary.TotalEntries)
	}

	foundCritical := false
	for _, e := range summary.CriticalEvents {
		if e.ResourceType == marker {
			foundCritical = true
		}
	}
	if !foundCritical {
		t.Error("expected the critical entry in the summary")
	}
}

func TestExportFilteredCSV(t *testing.T) {
	svc, marker := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.LogSystemEvent(ctx, models.AuditActionRead, marker, nil); err != nil {
			t.Fatalf("seeding entry: %v", err)
		}
	}

	data, err := svc.Export(ctx, repo.QueryOptions{
		Filters: repo.Filters{"resource_type": repo.Eq(marker)},
	}, audit.ExportCSV)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,created_at") {
		t.Errorf("unexpected header: %q", lines[0])
	}
}

func TestQueryUnknownFilterRejected(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Query(ctx, repo.QueryOptions{
		Filters: repo.Filters{"secret": repo.Eq("x")},
	})

	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
