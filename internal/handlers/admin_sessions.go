package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/sessiongate/internal/auth"
	"github.com/charlesng35/sessiongate/internal/models"
	"github.com/charlesng35/sessiongate/pkg/errors"
	"github.com/charlesng35/sessiongate/pkg/response"
)

// AdminSessionHandler exposes session oversight to trusted backend services.
type AdminSessionHandler struct {
	sessions *iauth.SessionManager
	devices  *iauth.DeviceDescriber
}

func NewAdminSessionHandler(sessions *iauth.SessionManager, devices *iauth.DeviceDescriber) *AdminSessionHandler {
	return &AdminSessionHandler{sessions: sessions, devices: devices}
}

// GET /api/admin/sessions/statistics
func (h *AdminSessionHandler) Statistics(c *gin.Context) {
	stats, err := h.sessions.GetSessionStatistics(requestContext(c))
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}

	var total int64
	for _, stat := range stats {
		total += stat.ActiveSessions
	}
	response.SuccessWithMeta(c, http.StatusOK, stats, &response.Meta{Total: total})
}

// GET /api/admin/sessions/suspicious?ip=
func (h *AdminSessionHandler) Suspicious(c *gin.Context) {
	ip := strings.TrimSpace(c.Query("ip"))
	if ip == "" {
		response.Error(c, errors.NewBadRequest("ip query parameter is required"))
		return
	}

	suspicious, err := h.sessions.DetectSuspiciousActivity(requestContext(c), ip)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"client_ip": ip, "suspicious": suspicious})
}

// GET /api/admin/users/:userID/sessions
func (h *AdminSessionHandler) UserSessions(c *gin.Context) {
	userID := c.Param("userID")
	ctx := requestContext(c)

	sessions, err := h.sessions.GetActiveSessions(ctx, userID)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}
	count, err := h.sessions.GetActiveSessionCount(ctx, userID)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}

	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, newSessionView(h.devices, session, ""))
	}
	response.SuccessWithMeta(c, http.StatusOK, views, &response.Meta{Total: count})
}

// POST /api/admin/sessions/:id/terminate
func (h *AdminSessionHandler) Terminate(c *gin.Context) {
	terminated, err := h.sessions.DeactivateSession(requestContext(c), c.Param("id"), models.ReasonAdminAction)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}
	if !terminated {
		response.Error(c, errors.ErrSessionNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"terminated": true})
}

// POST /api/admin/users/:userID/sessions/terminate
func (h *AdminSessionHandler) TerminateUser(c *gin.Context) {
	count, err := h.sessions.DeactivateAllUserSessions(requestContext(c), c.Param("userID"), models.ReasonAdminAction)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": count})
}

// POST /api/admin/sessions/cleanup
func (h *AdminSessionHandler) Cleanup(c *gin.Context) {
	count, err := h.sessions.CleanupExpiredSessions(requestContext(c))
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": count})
}
