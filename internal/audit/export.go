package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/recordkit/recordkit/internal/models"
	"github.com/recordkit/recordkit/internal/repo"
)

// ExportFormat selects the serialization of an export.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// maxExportRows is the hard ceiling on a single export. Callers asking for
// more are clamped, not rejected.
const maxExportRows = 10000

// ParseExportFormat maps a request parameter to an ExportFormat. An empty
// value defaults to JSON.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return ExportJSON, nil
	case "csv":
		return ExportCSV, nil
	default:
		return "", &models.ValidationError{Field: "format", Message: "must be json or csv"}
	}
}

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	if f == ExportCSV {
		return "text/csv"
	}

	return "application/json"
}

// Export serializes one filtered page of entries. Filters and ordering go
// through the same query path as any other read; only the limit clamp is
// export-specific.
func (s *Service) Export(ctx context.Context, opts repo.QueryOptions, format ExportFormat) ([]byte, error) {
	if opts.Limit <= 0 || opts.Limit > maxExportRows {
		opts.Limit = maxExportRows
	}

	if len(opts.OrderBy) == 0 {
		opts.OrderBy = []string{"-created_at"}
	}

	result, err := s.entries.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportCSV:
		return marshalCSV(result.Data)
	default:
		return marshalJSON(result.Data)
	}
}

func marshalJSON(entries []models.AuditEntry) ([]byte, error) {
	if entries == nil {
		entries = []models.AuditEntry{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling export: %w", err)
	}

	return data, nil
}

var csvHeader = []string{
	"id", "created_at", "user_id", "session_id", "action",
	"resource_type", "resource_id", "level", "success", "compliance_category",
}

func marshalCSV(entries []models.AuditEntry) ([]byte, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("writing export header: %w", err)
	}

	for _, e := range entries {
		if err := w.Write(csvRecord(e)); err != nil {
			return nil, fmt.Errorf("writing export row: %w", err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing export: %w", err)
	}

	return []byte(buf.String()), nil
}

func csvRecord(e models.AuditEntry) []string {
	var userID, sessionID string

	if e.UserID != nil {
		userID = e.UserID.String()
	}

	if e.SessionID != nil {
		sessionID = e.SessionID.String()
	}

	return []string{
		strconv.FormatInt(e.ID, 10),
		e.CreatedAt.UTC().Format(time.RFC3339),
		userID,
		sessionID,
		e.Action,
		e.ResourceType,
		e.ResourceID,
		e.Level,
		strconv.FormatBool(e.Success),
		e.ComplianceCategory,
	}
}
