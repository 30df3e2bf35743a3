package audit

import (
	"github.com/recordkit/recordkit/internal/models"
	"github.com/recordkit/recordkit/internal/repo"
)

const auditTable = "audit_log"

var auditColumns = []string{
	"id", "user_id", "session_id", "action", "resource_type", "resource_id",
	"level", "success", "ip_address", "details", "old_values", "new_values",
	"compliance_category", "created_at",
}

type entryCodec struct{}

func (entryCodec) ToEntity(row repo.Row) (models.AuditEntry, error) {
	var e models.AuditEntry
	var err error

	if e.ID, err = row.Int64("id"); err != nil {
		return e, err
	}
	if e.UserID, err = row.OptUUID("user_id"); err != nil {
		return e, err
	}
	if e.SessionID, err = row.OptUUID("session_id"); err != nil {
		return e, err
	}
	if e.Action, err = row.String("action"); err != nil {
		return e, err
	}
	if e.ResourceType, err = row.String("resource_type"); err != nil {
		return e, err
	}
	if e.ResourceID, err = row.StringOr("resource_id", ""); err != nil {
		return e, err
	}
	if e.Level, err = row.StringOr("level", models.AuditLevelLow); err != nil {
		return e, err
	}
	if e.Success, err = row.Bool("success"); err != nil {
		return e, err
	}
	if e.IPAddress, err = row.StringOr("ip_address", ""); err != nil {
		return e, err
	}
	if e.Details, err = row.JSONMap("details"); err != nil {
		return e, err
	}
	if e.OldValues, err = row.JSONMap("old_values"); err != nil {
		return e, err
	}
	if e.NewValues, err = row.JSONMap("new_values"); err != nil {
		return e, err
	}
	if e.ComplianceCategory, err = row.StringOr("compliance_category", ""); err != nil {
		return e, err
	}
	if e.CreatedAt, err = row.Time("created_at"); err != nil {
		return e, err
	}

	return e, nil
}

func (entryCodec) ToRow(e models.AuditEntry, forInsert bool) (repo.Row, error) {
	row := repo.Row{
		"action":        e.Action,
		"resource_type": e.ResourceType,
		"resource_id":   e.ResourceID,
		"success":       e.Success,
	}

	if e.UserID != nil {
		row["user_id"] = *e.UserID
	}

	if e.SessionID != nil {
		row["session_id"] = *e.SessionID
	}

	if e.Level != "" {
		row["level"] = e.Level
	}

	if e.IPAddress != "" {
		row["ip_address"] = e.IPAddress
	}

	if e.Details != nil {
		row["details"] = e.Details
	}

	if e.OldValues != nil {
		row["old_values"] = e.OldValues
	}

	if e.NewValues != nil {
		row["new_values"] = e.NewValues
	}

	if e.ComplianceCategory != "" {
		row["compliance_category"] = e.ComplianceCategory
	}

	if !forInsert {
		row["id"] = e.ID
	}

	return row, nil
}

// validateEntry enforces write-path invariants. Entries are immutable, so
// the update path is rejected outright.
func validateEntry(e models.AuditEntry, isUpdate bool) error {
	if isUpdate {
		return &models.ValidationError{Message: "audit entries are immutable"}
	}

	if e.Action == "" {
		return &models.ValidationError{Field: "action", Message: "required"}
	}

	if e.ResourceType == "" {
		return &models.ValidationError{Field: "resource_type", Message: "required"}
	}

	switch e.Level {
	case "", models.AuditLevelLow, models.AuditLevelMedium, models.AuditLevelHigh, models.AuditLevelCritical:
	default:
		return &models.ValidationError{Field: "level", Message: "unknown severity level"}
	}

	return nil
}

// newEntryRepository instantiates the generic engine for the audit log.
func newEntryRepository(db *repo.DB) *repo.Repository[models.AuditEntry, int64] {
	return repo.New[models.AuditEntry, int64](db, repo.Options[models.AuditEntry]{
		Entity:   "audit_entry",
		Table:    auditTable,
		Columns:  auditColumns,
		Codec:    entryCodec{},
		Validate: validateEntry,
	})
}
