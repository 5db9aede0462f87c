package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"calllog-dashboard/internal/apperrors"
	"calllog-dashboard/internal/audit"
	"calllog-dashboard/internal/auth"
	"calllog-dashboard/internal/calls"
	"calllog-dashboard/internal/metrics"
	"calllog-dashboard/internal/rbac"
	"calllog-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
)

type listCallsResponse struct {
	Calls  []calls.Record `json:"calls"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListCalls handles GET /api/calls. Requires rbac.ResolveScope in the chain.
func (h Handlers) ListCalls(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	page, err := parsePage(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	f.AgentIDs = rbac.AgentFilter(c)

	started := time.Now()
	out, total, err := h.Store.ListCalls(c.Request.Context(), f, page)
	metrics.ObserveStoreOperation("list_calls", started, err)
	if err != nil {
		abortWithError(c, err)
		return
	}
	page = page.Normalize()
	c.JSON(http.StatusOK, listCallsResponse{Calls: out, Total: total, Limit: page.Limit, Offset: page.Offset})
}

// GetCall handles GET /api/calls/:id. Records outside the caller's scope are reported as not found.
func (h Handlers) GetCall(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	rec, err := h.scopedCall(c, id, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// UpdateCallFlag handles PATCH /api/calls/:id.
func (h Handlers) UpdateCallFlag(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	flagged, err := parseFlag(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	callID := c.Param("id")
	if _, err := h.scopedCall(c, id, callID); err != nil {
		abortWithError(c, err)
		return
	}

	started := time.Now()
	rec, err := h.Store.UpdateCallFlag(c.Request.Context(), callID, flagged)
	metrics.ObserveStoreOperation("update_call_flag", started, err)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.recordAudit(c, func(a *audit.Service) error {
		return a.LogFlagUpdated(c.Request.Context(), auditActor(id), rec.ID, rec.AgentID, rec.IsFlaggedForReview)
	})
	logger.FromGin(c).Info("call flag status updated", "call_id", rec.ID, "flagged", flagged, "username", id.Username)
	c.JSON(http.StatusOK, gin.H{"message": "Call flag status updated successfully", "call": rec})
}

func (h Handlers) scopedCall(c *gin.Context, id auth.Identity, callID string) (calls.Record, error) {
	started := time.Now()
	rec, err := h.Store.GetCall(c.Request.Context(), callID)
	metrics.ObserveStoreOperation("get_call", started, err)
	if err != nil {
		return calls.Record{}, err
	}
	if !id.Scope.Allows(rec.AgentID) {
		return calls.Record{}, apperrors.NotFound("Call not found")
	}
	return rec, nil
}

var errFlagNotBool = apperrors.Validation("is_flagged_for_review must be a boolean")

// parseFlag accepts only a JSON boolean; null, strings and numbers are rejected.
func parseFlag(c *gin.Context) (bool, error) {
	var body struct {
		IsFlaggedForReview json.RawMessage `json:"is_flagged_for_review"`
	}
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		return false, errFlagNotBool
	}
	switch string(bytes.TrimSpace(body.IsFlaggedForReview)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, errFlagNotBool
	}
}

func parseFilter(c *gin.Context) (calls.Filter, error) {
	f := calls.Filter{
		Search:         strings.TrimSpace(c.Query("search")),
		Caller:         strings.TrimSpace(c.Query("caller")),
		ConversationID: strings.TrimSpace(c.Query("conv_id")),
	}
	if raw := strings.TrimSpace(c.Query("from_date")); raw != "" {
		t, err := parseDate(raw, false)
		if err != nil {
			return calls.Filter{}, apperrors.Validation("Invalid from_date")
		}
		f.From = &t
	}
	if raw := strings.TrimSpace(c.Query("to_date")); raw != "" {
		t, err := parseDate(raw, true)
		if err != nil {
			return calls.Filter{}, apperrors.Validation("Invalid to_date")
		}
		f.To = &t
	}
	return f, nil
}

// parseDate accepts RFC 3339 or a bare date. A bare to_date covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}

func parsePage(c *gin.Context) (calls.Page, error) {
	var p calls.Page
	var err error
	if p.Limit, err = queryInt(c, "limit"); err != nil {
		return calls.Page{}, err
	}
	if p.Offset, err = queryInt(c, "offset"); err != nil {
		return calls.Page{}, err
	}
	return p, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Validation(key + " must be a non-negative integer")
	}
	return n, nil
}
