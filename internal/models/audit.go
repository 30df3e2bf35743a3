package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions. The column is free-form text so specialized repositories
// can log domain verbs, but core write paths stick to these.
const (
	AuditActionCreate = "create"
	AuditActionRead   = "read"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
	AuditActionLogin  = "login"
	AuditActionLogout = "logout"
	AuditActionExport = "export"
)

// Audit severity levels, ordered low to critical.
const (
	AuditLevelLow      = "low"
	AuditLevelMedium   = "medium"
	AuditLevelHigh     = "high"
	AuditLevelCritical = "critical"
)

// ComplianceCategorySecurity tags entries written through the security
// event path.
const ComplianceCategorySecurity = "security"

// AuditEntry is a single append-only audit log record. Entries are
// immutable once written; retention is an external policy applied through
// the purge path only.
type AuditEntry struct {
	ID                 int64          `json:"id"`
	UserID             *uuid.UUID     `json:"user_id,omitempty"`
	SessionID          *uuid.UUID     `json:"session_id,omitempty"`
	Action             string         `json:"action"`
	ResourceType       string         `json:"resource_type"`
	ResourceID         string         `json:"resource_id"`
	Level              string         `json:"level"`
	Success            bool           `json:"success"`
	IPAddress          string         `json:"ip_address,omitempty"`
	Details            map[string]any `json:"details,omitempty"`
	OldValues          map[string]any `json:"old_values,omitempty"`
	NewValues          map[string]any `json:"new_values,omitempty"`
	ComplianceCategory string         `json:"compliance_category,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// UserActivity is one row of the most-active-users breakdown.
type UserActivity struct {
	UserID uuid.UUID `json:"user_id"`
	Count  int64     `json:"count"`
}

// AuditSummary is a read-time aggregation over a time window. It is never
// persisted; every field is recomputed from the log on demand.
type AuditSummary struct {
	Start            time.Time        `json:"start"`
	End              time.Time        `json:"end"`
	TotalEntries     int64            `json:"total_entries"`
	UniqueUsers      int64            `json:"unique_users"`
	UniqueSessions   int64            `json:"unique_sessions"`
	SuccessRate      float64          `json:"success_rate"`
	ActionsBreakdown map[string]int64 `json:"actions_breakdown"`
	LevelBreakdown   map[string]int64 `json:"level_breakdown"`
	MostActiveUsers  []UserActivity   `json:"most_active_users"`
	CriticalEvents   []AuditEntry     `json:"critical_events"`
}
