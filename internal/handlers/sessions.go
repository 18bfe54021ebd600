package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/sessiongate/internal/auth"
	"github.com/charlesng35/sessiongate/internal/models"
	"github.com/charlesng35/sessiongate/pkg/errors"
	"github.com/charlesng35/sessiongate/pkg/logger"
	"github.com/charlesng35/sessiongate/pkg/response"
)

// SessionView is the client-facing rendering of a live session.
type SessionView struct {
	SessionID      string           `json:"session_id"`
	UserID         string           `json:"user_id"`
	LoginType      models.LoginType `json:"login_type"`
	SocialProvider *string          `json:"social_provider,omitempty"`
	ClientIP       string           `json:"client_ip,omitempty"`
	Device         iauth.DeviceInfo `json:"device"`
	CreatedAt      time.Time        `json:"created_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
	Current        bool             `json:"current"`
}

// SessionHandler serves the login flow and the caller-facing session routes.
type SessionHandler struct {
	sessions *iauth.SessionManager
	tokens   *iauth.JWTService
	devices  *iauth.DeviceDescriber
	locker   iauth.LoginLocker
	newID    func() string
	log      *zap.Logger
}

// SessionHandlerOption customises a SessionHandler.
type SessionHandlerOption func(*SessionHandler)

// WithLoginLocker serialises concurrent logins of the same user.
func WithLoginLocker(locker iauth.LoginLocker) SessionHandlerOption {
	return func(h *SessionHandler) {
		h.locker = locker
	}
}

// WithSessionIDGenerator overrides the session id source.
func WithSessionIDGenerator(fn func() string) SessionHandlerOption {
	return func(h *SessionHandler) {
		if fn != nil {
			h.newID = fn
		}
	}
}

func NewSessionHandler(sessions *iauth.SessionManager, tokens *iauth.JWTService, devices *iauth.DeviceDescriber, opts ...SessionHandlerOption) *SessionHandler {
	h := &SessionHandler{
		sessions: sessions,
		tokens:   tokens,
		devices:  devices,
		newID:    uuid.NewString,
		log:      logger.WithModule("sessions"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type createSessionRequest struct {
	UserID         string           `json:"user_id" validate:"required,notblank,max=64"`
	LoginType      models.LoginType `json:"login_type" validate:"required,oneof=PASSWORD SOCIAL"`
	SocialProvider string           `json:"social_provider" validate:"required_if=LoginType SOCIAL,max=32"`
	ClientIP       string           `json:"client_ip" validate:"omitempty,ip"`
	UserAgent      string           `json:"user_agent" validate:"max=512"`
}

type extendSessionRequest struct {
	Minutes int `json:"minutes" validate:"required,min=1,max=1440"`
}

// POST /api/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.LoginType != models.LoginTypeSocial {
		req.SocialProvider = ""
	}

	ctx := requestContext(c)
	userID := strings.TrimSpace(req.UserID)
	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = c.ClientIP()
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.Request.UserAgent()
	}

	if h.locker != nil {
		release, err := h.locker.Acquire(ctx, userID)
		if err != nil {
			h.log.Warn("login lock unavailable, continuing without it",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		} else {
			defer release(context.WithoutCancel(ctx))
		}
	}

	// Storage failures here are logged by the manager; creation below reports them.
	duplicate, _ := h.sessions.CheckAndHandleDuplicateLogin(ctx, userID)

	session, err := h.sessions.CreateSession(ctx, iauth.CreateSessionInput{
		SessionID:      h.newID(),
		UserID:         userID,
		ClientIP:       clientIP,
		UserAgent:      userAgent,
		LoginType:      req.LoginType,
		SocialProvider: req.SocialProvider,
	})
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}

	suspicious, _ := h.sessions.DetectSuspiciousActivity(ctx, session.ClientIP)

	token, err := h.tokens.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:    session.UserID,
		SessionID: session.SessionID,
		LoginType: session.LoginType,
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"session":            h.view(*session, session.SessionID),
		"access_token":       token,
		"token_type":         "Bearer",
		"expires_at":         session.ExpiresAt,
		"duplicate_detected": duplicate.Detected,
		"evicted_sessions":   duplicate.Evicted,
		"suspicious":         suspicious,
	})
}

// GET /api/sessions/me
func (h *SessionHandler) ListMine(c *gin.Context) {
	userID, sessionID, ok := callerIdentity(c)
	if !ok {
		return
	}

	sessions, err := h.sessions.GetActiveSessions(requestContext(c), userID)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}

	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, h.view(session, sessionID))
	}
	response.SuccessWithMeta(c, http.StatusOK, views, &response.Meta{Total: int64(len(views))})
}

// POST /api/sessions/heartbeat
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	userID, sessionID, ok := callerIdentity(c)
	if !ok {
		return
	}

	duplicate, err := h.sessions.CheckDuplicateLoginExcludingCurrent(requestContext(c), userID, sessionID)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"duplicate_detected": duplicate})
}

// POST /api/sessions/extend
func (h *SessionHandler) Extend(c *gin.Context) {
	_, sessionID, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req extendSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	extended, err := h.sessions.ExtendSession(ctx, sessionID, req.Minutes)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}
	if !extended {
		response.Error(c, errors.ErrSessionNotFound)
		return
	}

	session, err := h.sessions.GetActiveSession(ctx, sessionID)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}
	if session == nil {
		response.Error(c, errors.ErrSessionNotFound)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"extended": true, "expires_at": session.ExpiresAt})
}

// POST /api/sessions/logout
func (h *SessionHandler) Logout(c *gin.Context) {
	_, sessionID, ok := callerIdentity(c)
	if !ok {
		return
	}

	loggedOut, err := h.sessions.DeactivateSession(requestContext(c), sessionID, models.ReasonUserLogout)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"logged_out": loggedOut})
}

// POST /api/sessions/logout_all
func (h *SessionHandler) LogoutAll(c *gin.Context) {
	userID, _, ok := callerIdentity(c)
	if !ok {
		return
	}

	count, err := h.sessions.DeactivateAllUserSessions(requestContext(c), userID, models.ReasonUserLogout)
	if err != nil {
		response.Error(c, sessionError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": count})
}

func (h *SessionHandler) view(session models.LoginSession, currentSessionID string) SessionView {
	return newSessionView(h.devices, session, currentSessionID)
}

func newSessionView(devices *iauth.DeviceDescriber, session models.LoginSession, currentSessionID string) SessionView {
	return SessionView{
		SessionID:      session.SessionID,
		UserID:         session.UserID,
		LoginType:      session.LoginType,
		SocialProvider: session.SocialProvider,
		ClientIP:       session.ClientIP,
		Device:         devices.Describe(session.UserAgent),
		CreatedAt:      session.CreatedAt,
		LastActivityAt: session.LastActivityAt,
		ExpiresAt:      session.ExpiresAt,
		Current:        session.SessionID == currentSessionID,
	}
}
