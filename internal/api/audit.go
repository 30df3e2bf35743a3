package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recordkit/recordkit/internal/audit"
	"github.com/recordkit/recordkit/internal/models"
	"github.com/recordkit/recordkit/internal/repo"
)

// defaultSinceWindow is how far back the security and failed-action views
// look when the caller gives no lower bound.
const defaultSinceWindow = 24 * time.Hour

// AuditHandler serves audit trail endpoints.
type AuditHandler struct {
	svc AuditService
	log *logrus.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(svc AuditService, log *logrus.Logger) *AuditHandler {
	return &AuditHandler{svc: svc, log: log}
}

// queryOptions builds repository query options from the request's query
// parameters. Column validation happens downstream in the predicate
// compiler, so unknown filters fail as validation errors there.
func (h *AuditHandler) queryOptions(c *gin.Context) (repo.QueryOptions, bool) {
	filters := repo.Filters{}

	if v := c.Query("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "user_id must be a UUID")
			return repo.QueryOptions{}, false
		}
		filters["user_id"] = repo.Eq(id)
	}

	for _, key := range []string{"action", "resource_type", "resource_id", "level", "compliance_category"} {
		if v := c.Query(key); v != "" {
			filters[key] = repo.Eq(v)
		}
	}

	if v := c.Query("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "success must be a boolean")
			return repo.QueryOptions{}, false
		}
		filters["success"] = repo.Eq(b)
	}

	since, hasSince, err := parseTime(c.Query("since"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid since format, use RFC3339")
		return repo.QueryOptions{}, false
	}

	until, hasUntil, err := parseTime(c.Query("until"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid until format, use RFC3339")
		return repo.QueryOptions{}, false
	}

	switch {
	case hasSince && hasUntil:
		filters["created_at"] = repo.Between(since, until)
	case hasSince:
		filters["created_at"] = repo.Gte(since)
	case hasUntil:
		filters["created_at"] = repo.Lte(until)
	}

	return repo.QueryOptions{
		Filters:      filters,
		OrderBy:      []string{"-created_at"},
		Limit:        parseInt(c.Query("limit"), 50),
		Offset:       parseOffset(c.Query("offset")),
		IncludeCount: c.Query("include_count") == "true",
	}, true
}

// Query handles GET /api/v1/audit.
func (h *AuditHandler) Query(c *gin.Context) {
	opts, ok := h.queryOptions(c)
	if !ok {
		return
	}

	result, err := h.svc.Query(c.Request.Context(), opts)
	if err != nil {
		h.handleError(c, err, "failed to query audit trail")
		return
	}

	resp := gin.H{
		"data":     result.Data,
		"has_next": result.HasNext,
		"has_prev": result.HasPrev,
	}
	if result.TotalCount != nil {
		resp["total_count"] = *result.TotalCount
	}

	c.JSON(http.StatusOK, resp)
}

// UserTrail handles GET /api/v1/audit/users/:id.
func (h *AuditHandler) UserTrail(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "id must be a UUID")
		return
	}

	entries, err := h.svc.UserTrail(c.Request.Context(), userID, parseInt(c.Query("limit"), 50))
	if err != nil {
		h.handleError(c, err, "failed to load user trail")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// Security handles GET /api/v1/audit/security.
func (h *AuditHandler) Security(c *gin.Context) {
	h.sinceView(c, h.svc.SecurityEvents, "failed to load security events")
}

// Failed handles GET /api/v1/audit/failed.
func (h *AuditHandler) Failed(c *gin.Context) {
	h.sinceView(c, h.svc.FailedActions, "failed to load failed actions")
}

// sinceView serves the list endpoints that take a since bound and a limit.
func (h *AuditHandler) sinceView(
	c *gin.Context,
	load func(ctx context.Context, since time.Time, limit int) ([]models.AuditEntry, error),
	errMsg string,
) {
	since, ok, err := parseTime(c.Query("since"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid since format, use RFC3339")
		return
	}
	if !ok {
		since = time.Now().Add(-defaultSinceWindow)
	}

	entries, err := load(c.Request.Context(), since, parseInt(c.Query("limit"), 50))
	if err != nil {
		h.handleError(c, err, errMsg)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries, "since": since})
}

// Summary handles GET /api/v1/audit/summary.
func (h *AuditHandler) Summary(c *gin.Context) {
	end, ok, err := parseTime(c.Query("end"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid end format, use RFC3339")
		return
	}
	if !ok {
		end = time.Now()
	}

	start, ok, err := parseTime(c.Query("start"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid start format, use RFC3339")
		return
	}
	if !ok {
		start = end.Add(-defaultSinceWindow)
	}

	if !start.Before(end) {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "start must be before end")
		return
	}

	summary, err := h.svc.Summary(c.Request.Context(), start, end)
	if err != nil {
		h.handleError(c, err, "failed to generate audit summary")
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Export handles GET /api/v1/audit/export.
func (h *AuditHandler) Export(c *gin.Context) {
	format, err := audit.ParseExportFormat(c.Query("format"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	opts, ok := h.queryOptions(c)
	if !ok {
		return
	}

	data, err := h.svc.Export(c.Request.Context(), opts, format)
	if err != nil {
		h.handleError(c, err, "failed to export audit trail")
		return
	}

	filename := "audit_export_" + time.Now().UTC().Format("20060102T150405Z") + "." + string(format)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, format.ContentType(), data)
}

// Purge handles DELETE /api/v1/audit.
func (h *AuditHandler) Purge(c *gin.Context) {
	retentionDays := 90
	if rd := c.Query("retention_days"); rd != "" {
		v, err := strconv.Atoi(rd)
		if err != nil || v < 1 {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "retention_days must be a positive integer")
			return
		}
		retentionDays = v
	}

	deleted, err := h.svc.Purge(c.Request.Context(), retentionDays)
	if err != nil {
		h.handleError(c, err, "failed to purge audit entries")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted":        deleted,
		"retention_days": retentionDays,
	})
}

// handleError maps domain errors to HTTP responses.
func (h *AuditHandler) handleError(c *gin.Context, err error, msg string) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, ve.Error())
		return
	}

	if errors.Is(err, models.ErrNotFound) {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "not found")
		return
	}

	h.log.WithError(err).Error(msg)
	respondError(c, http.StatusInternalServerError, ErrCodeInternalError, msg)
}
