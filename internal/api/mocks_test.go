package api_test

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/recordkit/recordkit/internal/audit"
	"github.com/recordkit/recordkit/internal/models"
	"github.com/recordkit/recordkit/internal/repo"
)

// mockAuditService implements api.AuditService for testing.
type mockAuditService struct {
	queryFn    func(ctx context.Context, opts repo.QueryOptions) (repo.QueryResult[models.AuditEntry], error)
	trailFn    func(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditEntry, error)
	securityFn func(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error)
	failedFn   func(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error)
	summaryFn  func(ctx context.Context, start, end time.Time) (models.AuditSummary, error)
	exportFn   func(ctx context.Context, opts repo.QueryOptions, format audit.ExportFormat) ([]byte, error)
	purgeFn    func(ctx context.Context, retentionDays int) (int64, error)
}

func (m *mockAuditService) Query(ctx context.Context, opts repo.QueryOptions) (repo.QueryResult[models.AuditEntry], error) {
	return m.queryFn(ctx, opts)
}

func (m *mockAuditService) UserTrail(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditEntry, error) {
	return m.trailFn(ctx, userID, limit)
}

func (m *mockAuditService) SecurityEvents(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error) {
	return m.securityFn(ctx, since, limit)
}

func (m *mockAuditService) FailedActions(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error) {
	return m.failedFn(ctx, since, limit)
}

func (m *mockAuditService) Summary(ctx context.Context, start, end time.Time) (models.AuditSummary, error) {
	return m.summaryFn(ctx, start, end)
}

func (m *mockAuditService) Export(ctx context.Context, opts repo.QueryOptions, format audit.ExportFormat) ([]byte, error) {
	return m.exportFn(ctx, opts, format)
}

func (m *mockAuditService) Purge(ctx context.Context, retentionDays int) (int64, error) {
	return m.purgeFn(ctx, retentionDays)
}
