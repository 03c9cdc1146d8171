package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"callbridge/internal/audit"
	"callbridge/internal/auth"
	"callbridge/internal/escalation"
	"callbridge/internal/rbac"
	"callbridge/internal/voicenote"
	"callbridge/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups the operator API handlers for dependency injection.
// Keep these thin: parse input, call internal services, return JSON.
type Handlers struct {
	Escalations PendingLister
	VoiceNotes  NoteLister
	Audit       *audit.Service
}

type PendingLister interface {
	Pending() ([]escalation.Entry, error)
}

type NoteLister interface {
	List(ctx context.Context) ([]voicenote.Note, error)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ListPendingEscalations returns queued requests not yet drained.
// RBAC: operator.
func (h Handlers) ListPendingEscalations(c *gin.Context) {
	if h.Escalations == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "escalation queue not configured"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	entries, err := h.Escalations.Pending()
	if err != nil {
		logger.FromGin(c).Error("pending escalations read failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "queue read failed"})
		return
	}
	total := len(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	h.auditRead(c, fmt.Sprintf("listed %d pending escalations", len(entries)))
	c.JSON(http.StatusOK, gin.H{"items": nonNil(entries), "total": total})
}

// ListVoiceNotes returns stored voice notes, newest first.
// RBAC: operator.
func (h Handlers) ListVoiceNotes(c *gin.Context) {
	if h.VoiceNotes == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "voice notes not configured"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	notes, err := h.VoiceNotes.List(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("voice note index read failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "voice note read failed"})
		return
	}
	total := len(notes)
	if len(notes) > limit {
		notes = notes[:limit]
	}
	h.auditRead(c, fmt.Sprintf("listed %d voice notes", len(notes)))
	c.JSON(http.StatusOK, gin.H{"items": nonNil(notes), "total": total})
}

// auditRead is best-effort; a failed audit write never fails the read.
func (h Handlers) auditRead(c *gin.Context, msg string) {
	if h.Audit == nil {
		return
	}
	actor, _ := auth.Subject(c.Request.Context())
	if actor == "" {
		actor = "unknown"
	}
	if err := h.Audit.LogAdminRead(c.Request.Context(), actor, msg); err != nil {
		logger.FromGin(c).Warn("audit write failed", "error", err)
	}
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	return min(n, maxLimit), true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Convenience middleware bundles.

func RequireOperator(m *auth.Manager) []gin.HandlerFunc {
	return []gin.HandlerFunc{auth.RequireToken(m, auth.TokenTypeOperator), rbac.RequireAnyRole(rbac.RoleOperator)}
}
