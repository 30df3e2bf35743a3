// Package audit implements the append-only audit subsystem: structured
// event write paths, filtered trail queries, on-demand summary aggregation,
// and bounded export. It is built on one instantiation of the generic
// repository engine; every filtered read compiles through the same
// predicate path as any other repository query.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recordkit/recordkit/internal/metrics"
	"github.com/recordkit/recordkit/internal/models"
	"github.com/recordkit/recordkit/internal/repo"
)

// defaultTrailLimit bounds trail queries when the caller passes no limit.
const defaultTrailLimit = 50

// maxCriticalEvents caps the critical-events slice in a summary.
const maxCriticalEvents = 100

// Broadcaster receives successfully written entries for the live feed.
// Delivery is best-effort and never affects the write's outcome.
type Broadcaster interface {
	BroadcastEntry(e models.AuditEntry)
}

// Service is the audit subsystem. A failed write always surfaces to the
// caller: audit completeness is a compliance property, not best-effort
// logging, and no retries happen here.
type Service struct {
	entries *repo.Repository[models.AuditEntry, int64]
	db      *repo.DB
	log     *logrus.Logger
	feed    Broadcaster
}

// NewService creates the audit Service. feed may be nil.
func NewService(db *repo.DB, log *logrus.Logger, feed Broadcaster) *Service {
	return &Service{
		entries: newEntryRepository(db),
		db:      db,
		log:     log,
		feed:    feed,
	}
}

// LogEvent writes a fully specified audit entry and returns the persisted
// record.
func (s *Service) LogEvent(ctx context.Context, e models.AuditEntry) (models.AuditEntry, error) {
	if e.Level == "" {
		e.Level = models.AuditLevelLow
	}

	persisted, err := s.entries.Create(ctx, e)
	if err != nil {
		return models.AuditEntry{}, err
	}

	metrics.AuditEntriesTotal.WithLabelValues(persisted.Action).Inc()

	if s.feed != nil {
		s.feed.BroadcastEntry(persisted)
	}

	s.log.WithFields(logrus.Fields{
		"action":        persisted.Action,
		"resource_type": persisted.ResourceType,
		"level":         persisted.Level,
		"success":       persisted.Success,
	}).Debug("audit entry written")

	return persisted, nil
}

// LogUserAction records an action attributed to a user.
func (s *Service) LogUserAction(
	ctx context.Context,
	userID uuid.UUID,
	action, resourceType, resourceID string,
	success bool,
	details map[string]any,
) (models.AuditEntry, error) {
	return s.LogEvent(ctx, models.AuditEntry{
		UserID:       &userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Level:        models.AuditLevelLow,
		Success:      success,
		Details:      details,
	})
}

// LogSystemEvent records an event with no attributable user.
func (s *Service) LogSystemEvent(
	ctx context.Context,
	action, resourceType string,
	details map[string]any,
) (models.AuditEntry, error) {
	return s.LogEvent(ctx, models.AuditEntry{
		Action:       action,
		ResourceType: resourceType,
		Level:        models.AuditLevelLow,
		Success:      true,
		Details:      details,
	})
}

// LogSecurityEvent records a security-relevant event at high severity under
// the security compliance category. success describes the logged action,
// not the logging operation: a failed login still commits as an entry.
func (s *Service) LogSecurityEvent(
	ctx context.Context,
	userID *uuid.UUID,
	action string,
	success bool,
	details map[string]any,
) (models.AuditEntry, error) {
	return s.LogEvent(ctx, models.AuditEntry{
		UserID:             userID,
		Action:             action,
		ResourceType:       "security",
		Level:              models.AuditLevelHigh,
		Success:            success,
		Details:            details,
		ComplianceCategory: models.ComplianceCategorySecurity,
	})
}

// UserTrail returns one user's entries, newest first.
func (s *Service) UserTrail(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditEntry, error) {
	return s.query(ctx, repo.Filters{"user_id": repo.Eq(userID)}, limit)
}

// SecurityEvents returns security-category entries at or after since,
// newest first.
func (s *Service) SecurityEvents(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error) {
	return s.query(ctx, repo.Filters{
		"compliance_category": repo.Eq(models.ComplianceCategorySecurity),
		"created_at":          repo.Gte(since),
	}, limit)
}

// FailedActions returns unsuccessful entries at or after since, newest
// first.
func (s *Service) FailedActions(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error) {
	return s.query(ctx, repo.Filters{
		"success":    repo.Eq(false),
		"created_at": repo.Gte(since),
	}, limit)
}

// Query returns one page of entries for arbitrary caller-built options.
func (s *Service) Query(ctx context.Context, opts repo.QueryOptions) (repo.QueryResult[models.AuditEntry], error) {
	return s.entries.List(ctx, opts)
}

func (s *Service) query(ctx context.Context, filters repo.Filters, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultTrailLimit
	}

	result, err := s.entries.List(ctx, repo.QueryOptions{
		Filters: filters,
		OrderBy: []string{"-created_at"},
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}

	return result.Data, nil
}

// Summary recomputes the aggregate view of the window [start, end]. All
// sub-aggregations run inside one read-only transaction so they observe a
// consistent snapshot even under concurrent writes.
func (s *Service) Summary(ctx context.Context, start, end time.Time) (models.AuditSummary, error) {
	summary := models.AuditSummary{Start: start, End: end}

	err := s.db.TransactRO(ctx, func(ctx context.Context) error {
		window := repo.Filters{"created_at": repo.Between(start, end)}

		total, err := s.entries.Count(ctx, window)
		if err != nil {
			return err
		}

		summary.TotalEntries = total

		succeeded, err := s.entries.Count(ctx, repo.Filters{
			"created_at": repo.Between(start, end),
			"success":    repo.Eq(true),
		})
		if err != nil {
			return err
		}

		if total > 0 {
			summary.SuccessRate = float64(succeeded) / float64(total)
		}

		if err := s.scanDistinct(ctx, start, end, &summary); err != nil {
			return err
		}

		if summary.ActionsBreakdown, err = s.breakdown(ctx, "action", start, end); err != nil {
			return err
		}

		if summary.LevelBreakdown, err = s.breakdown(ctx, "level", start, end); err != nil {
			return err
		}

		if summary.MostActiveUsers, err = s.mostActiveUsers(ctx, start, end); err != nil {
			return err
		}

		critical, err := s.entries.List(ctx, repo.QueryOptions{
			Filters: repo.Filters{
				"created_at": repo.Between(start, end),
				"level":      repo.Eq(models.AuditLevelCritical),
			},
			OrderBy: []string{"-created_at"},
			Limit:   maxCriticalEvents,
		})
		if err != nil {
			return err
		}

		summary.CriticalEvents = critical.Data

		return nil
	})
	if err != nil {
		return models.AuditSummary{}, fmt.Errorf("generating audit summary: %w", err)
	}

	return summary, nil
}

func (s *Service) scanDistinct(ctx context.Context, start, end time.Time, summary *models.AuditSummary) error {
	err := s.db.Querier(ctx).QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id), COUNT(DISTINCT session_id)
		 FROM audit_log WHERE created_at BETWEEN $1 AND $2`,
		start, end,
	).Scan(&summary.UniqueUsers, &summary.UniqueSessions)
	if err != nil {
		return fmt.Errorf("counting distinct subjects: %w", err)
	}

	return nil
}

// breakdown groups the window
// by one low-cardinality column. The column name is a compile-time
// constant at both call sites, never caller input.
func (s *Service) breakdown(ctx context.Context, column string, start, end time.Time) (map[string]int64, error) {
	rows, err := s.db.Querier(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s, COUNT(*) FROM audit_log
			WHERE created_at BETWEEN $1 AND $2 GROUP BY %s`, column, column),
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s breakdown: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]int64)

	for rows.Next() {
		var key string
		var count int64

		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scanning %s breakdown: %w", column, err)
		}

		out[key] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s breakdown: %w", column, err)
	}

	return out, nil
}

// mostActiveUsersLimit caps the most-active-users breakdown.
const mostActiveUsersLimit = 10

func (s *Service) mostActiveUsers(ctx context.Context, start, end time.Time) ([]models.UserActivity, error) {
	rows, err := s.db.Querier(ctx).Query(ctx,
		`SELECT user_id, COUNT(*) AS entries FROM audit_log
		 WHERE user_id IS NOT NULL AND created_at BETWEEN $1 AND $2
		 GROUP BY user_id ORDER BY entries DESC, user_id LIMIT $3`,
		start, end, mostActiveUsersLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying most active users: %w", err)
	}
	defer rows.Close()

	var out []models.UserActivity

	for rows.Next() {
		var a models.UserActivity

		if err := rows.Scan(&a.UserID, &a.Count); err != nil {
			return nil, fmt.Errorf("scanning user activity: %w", err)
		}

		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user activity: %w", err)
	}

	return out, nil
}

// purgeBatchSize limits rows deleted per transaction to avoid holding long
// locks on audit_log.
const purgeBatchSize = 5000

// Purge deletes entries older than retentionDays in batches and returns
// the number deleted. Retention policy is owned by the operator; no core
// path calls this.
func (s *Service) Purge(ctx context.Context, retentionDays int) (int64, error) {
	var total int64

	for {
		tag, err := s.db.Pool().Exec(ctx,
			`DELETE FROM audit_log WHERE ctid IN (
				SELECT ctid FROM audit_log
				WHERE created_at < NOW() - make_interval(days => $1)
				LIMIT $2
			)`,
			retentionDays, purgeBatchSize,
		)
		if err != nil {
			return total, fmt.Errorf("purging audit entries: %w", err)
		}

		deleted := tag.RowsAffected()
		total += deleted

		if deleted < purgeBatchSize {
			break
		}
	}

	s.log.WithFields(logrus.Fields{
		"retention_days": retentionDays,
		"deleted":        total,
	}).Info("audit.purge")

	return total, nil
}
