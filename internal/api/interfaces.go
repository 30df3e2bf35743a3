package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/recordkit/recordkit/internal/audit"
	"github.com/recordkit/recordkit/internal/models"
	"github.com/recordkit/recordkit/internal/repo"
)

// AuditService is the audit subsystem surface the handlers depend on.
type AuditService interface {
	Query(ctx context.Context, opts repo.QueryOptions) (repo.QueryResult[models.AuditEntry], error)
	UserTrail(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditEntry, error)
	SecurityEvents(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error)
	FailedActions(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error)
	Summary(ctx context.Context, start, end time.Time) (models.AuditSummary, error)
	Export(ctx context.Context, opts repo.QueryOptions, format audit.ExportFormat) ([]byte, error)
	Purge(ctx context.Context, retentionDays int) (int64, error)
}
