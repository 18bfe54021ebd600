package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/sessiongate/internal/models"
	"github.com/charlesng35/sessiongate/pkg/logger"
	"github.com/charlesng35/sessiongate/pkg/metrics"
)

const (
	// DefaultSessionTimeout is the lifetime given to new sessions.
	DefaultSessionTimeout = 30 * time.Minute
	// DefaultMaxSessionsPerIP is the number of live sessions one address may
	// hold before it is reported as suspicious.
	DefaultMaxSessionsPerIP = 5
	// MaxExtensionMinutes bounds a single ExtendSession call to one day.
	MaxExtensionMinutes = 24 * 60
)

// SessionManagerConfig is the immutable configuration of a SessionManager.
type SessionManagerConfig struct {
	DefaultTimeout   time.Duration
	SingleSession    bool
	MaxSessionsPerIP int
	Clock            func() time.Time
	Logger           *zap.Logger
}

// DefaultSessionManagerConfig returns the production defaults: 30 minute
// sessions, one session per user and at most five sessions per address.
func DefaultSessionManagerConfig() SessionManagerConfig {
	return SessionManagerConfig{
		DefaultTimeout:   DefaultSessionTimeout,
		SingleSession:    true,
		MaxSessionsPerIP: DefaultMaxSessionsPerIP,
	}
}

// CreateSessionInput carries the data recorded for a new login.
type CreateSessionInput struct {
	SessionID      string
	UserID         string
	ClientIP       string
	UserAgent      string
	LoginType      models.LoginType
	SocialProvider string
}

// DuplicateLoginResult reports what CheckAndHandleDuplicateLogin found and did.
type DuplicateLoginResult struct {
	Detected bool  `json:"duplicate_detected"`
	Evicted  int64 `json:"evicted_sessions"`
}

// SessionManager owns the lifecycle of login sessions: creation, liveness,
// duplicate-login eviction, extension, expiry sweeps and per-address
// suspicion checks. The store is the single source of truth; the manager
// keeps no session state of its own.
//
// Storage failures never panic. Every operation returns its conservative
// value (nil, false, zero) together with an error wrapping ErrStoreUnavailable,
// so callers can log and carry on.
type SessionManager struct {
	store    SessionStore
	timeout  time.Duration
	single   bool
	maxPerIP int
	now      func() time.Time
	log      *zap.Logger
}

// NewSessionManager constructs a SessionManager. Zero durations and limits
// fall back to the defaults.
func NewSessionManager(store SessionStore, cfg SessionManagerConfig) (*SessionManager, error) {
	if store == nil {
		return nil, errors.New("session manager: store is required")
	}

	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}

	maxPerIP := cfg.MaxSessionsPerIP
	if maxPerIP <= 0 {
		maxPerIP = DefaultMaxSessionsPerIP
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	log := cfg.Logger
	if log == nil {
		log = logger.WithModule("sessions")
	}

	return &SessionManager{
		store:    store,
		timeout:  timeout,
		single:   cfg.SingleSession,
		maxPerIP: maxPerIP,
		now:      clock,
		log:      log,
	}, nil
}

// Timeout reports the lifetime assigned to new sessions.
func (m *SessionManager) Timeout() time.Duration {
	return m.timeout
}

func (m *SessionManager) clock() time.Time {
	return m.now().UTC()
}

// CreateSession records a new live session. It does not enforce the
// single-session policy; callers run CheckAndHandleDuplicateLogin first.
func (m *SessionManager) CreateSession(ctx context.Context, input CreateSessionInput) (*models.LoginSession, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	userID := strings.TrimSpace(input.UserID)
	provider := strings.TrimSpace(input.SocialProvider)

	switch {
	case sessionID == "":
		return nil, invalidSession("session id is required")
	case userID == "":
		return nil, invalidSession("user id is required")
	case !input.LoginType.Valid():
		return nil, invalidSession(fmt.Sprintf("unknown login type %q", input.LoginType))
	case input.LoginType == models.LoginTypeSocial && provider == "":
		return nil, invalidSession("social login requires a provider")
	case input.LoginType != models.LoginTypeSocial && provider != "":
		return nil, invalidSession("provider is only recorded for social login")
	}

	now := m.clock()
	session := &models.LoginSession{
		SessionID:      sessionID,
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(m.timeout),
		ClientIP:       strings.TrimSpace(input.ClientIP),
		UserAgent:      strings.TrimSpace(input.UserAgent),
		LoginType:      input.LoginType,
		IsActive:       true,
	}
	if provider != "" {
		session.SocialProvider = &provider
	}

	if err := m.store.Create(ctx, session); err != nil {
		if errors.Is(err, ErrDuplicateSessionID) {
			m.log.Warn("session id collision", zap.String("session_id", sessionID), zap.String("user_id", userID))
			return nil, err
		}
		return nil, m.fail("create_session", err, zap.String("session_id", sessionID), zap.String("user_id", userID))
	}

	metrics.ActiveSessions.Inc()
	m.log.Info("session created",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.String("login_type", string(input.LoginType)),
		zap.String("client_ip", session.ClientIP),
	)
	return session, nil
}

// GetActiveSession returns the live session with the given id, or nil when it
// is unknown, deactivated or expired. It does not touch the activity time.
func (m *SessionManager) GetActiveSession(ctx context.Context, sessionID string) (*models.LoginSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil
	}

	session, err := m.store.FindActiveBySessionID(ctx, sessionID, m.clock())
	if err != nil {
		return nil, m.fail("get_active_session", err, zap.String("session_id", sessionID))
	}
	return session, nil
}

// GetActiveSessions lists the user's live sessions, oldest first.
func (m *SessionManager) GetActiveSessions(ctx context.Context, userID string) ([]models.LoginSession, error) {
	if strings.TrimSpace(userID) == "" {
		return []models.LoginSession{}, nil
	}

	sessions, err := m.store.FindAllActiveByUser(ctx, userID, m.clock())
	if err != nil {
		return []models.LoginSession{}, m.fail("get_active_sessions", err, zap.String("user_id", userID))
	}
	if sessions == nil {
		sessions = []models.LoginSession{}
	}
	return sessions, nil
}

// GetActiveSessionCount counts the user's live sessions.
func (m *SessionManager) GetActiveSessionCount(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, nil
	}

	count, err := m.store.CountActiveByUser(ctx, userID, m.clock())
	if err != nil {
		return 0, m.fail("get_active_session_count", err, zap.String("user_id", userID))
	}
	return count, nil
}

// CheckAndHandleDuplicateLogin reports whether the user already holds live
// sessions. Under the single-session policy every one of them is deactivated
// with reason DUPLICATE_LOGIN before the caller creates the new session.
func (m *SessionManager) CheckAndHandleDuplicateLogin(ctx context.Context, userID string) (DuplicateLoginResult, error) {
	if strings.TrimSpace(userID) == "" {
		return DuplicateLoginResult{}, nil
	}

	now := m.clock()
	count, err := m.store.CountActiveByUser(ctx, userID, now)
	if err != nil {
		return DuplicateLoginResult{}, m.fail("check_duplicate_login", err, zap.String("user_id", userID))
	}
	if count == 0 {
		return DuplicateLoginResult{}, nil
	}

	result := DuplicateLoginResult{Detected: true}
	if !m.single {
		metrics.DuplicateLogins.WithLabelValues("false").Inc()
		m.log.Info("duplicate login allowed", zap.String("user_id", userID), zap.Int64("active_sessions", count))
		return result, nil
	}

	evicted, err := m.store.DeactivateAllByUser(ctx, userID, now, models.ReasonDuplicateLogin)
	if err != nil {
		return result, m.fail("evict_duplicate_sessions", err, zap.String("user_id", userID))
	}
	result.Evicted = evicted
	m.recordDeactivations(models.ReasonDuplicateLogin, evicted)

	metrics.DuplicateLogins.WithLabelValues(strconv.FormatBool(evicted > 0)).Inc()
	m.log.Info("duplicate login resolved",
		zap.String("user_id", userID),
		zap.Int64("active_sessions", count),
		zap.Int64("evicted", evicted),
	)
	return result, nil
}

// CheckDuplicateLoginExcludingCurrent reports whether the user holds a live
// session other than currentSessionID.
func (m *SessionManager) CheckDuplicateLoginExcludingCurrent(ctx context.Context, userID, currentSessionID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}

	sessions, err := m.store.FindAllActiveByUser(ctx, userID, m.clock())
	if err != nil {
		return false, m.fail("check_duplicate_login_excluding_current", err,
			zap.String("user_id", userID), zap.String("session_id", currentSessionID))
	}
	for _, session := range sessions {
		if session.SessionID != currentSessionID {
			return true, nil
		}
	}
	return false, nil
}

// DeactivateSession ends one live session. It returns false when no live
// session matched, leaving storage untouched.
func (m *SessionManager) DeactivateSession(ctx context.Context, sessionID string, reason models.DeactivationReason) (bool, error) {
	if !reason.Valid() {
		return false, invalidSession(fmt.Sprintf("unknown deactivation reason %q", reason))
	}
	if strings.TrimSpace(sessionID) == "" {
		return false, nil
	}

	affected, err := m.store.DeactivateBySessionID(ctx, sessionID, m.clock(), reason)
	if err != nil {
		return false, m.fail("deactivate_session", err, zap.String("session_id", sessionID))
	}
	if affected == 0 {
		return false, nil
	}

	m.recordDeactivations(reason, affected)
	m.log.Info("session deactivated", zap.String("session_id", sessionID), zap.String("reason", string(reason)))
	return true, nil
}

// DeactivateAllUserSessions ends every live session of the user and returns
// how many were deactivated.
func (m *SessionManager) DeactivateAllUserSessions(ctx context.Context, userID string, reason models.DeactivationReason) (int64, error) {
	if !reason.Valid() {
		return 0, invalidSession(fmt.Sprintf("unknown deactivation reason %q", reason))
	}
	if strings.TrimSpace(userID) == "" {
		return 0, nil
	}

	affected, err := m.store.DeactivateAllByUser(ctx, userID, m.clock(), reason)
	if err != nil {
		return 0, m.fail("deactivate_all_user_sessions", err, zap.String("user_id", userID))
	}

	m.recordDeactivations(reason, affected)
	if affected > 0 {
		m.log.Info("user sessions deactivated",
			zap.String("user_id", userID),
			zap.String("reason", string(reason)),
			zap.Int64("count", affected),
		)
	}
	return affected, nil
}

// UpdateLastActivity stamps the activity time of a live session. Inactive or
// unknown sessions report false.
func (m *SessionManager) UpdateLastActivity(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, nil
	}

	affected, err := m.store.TouchActivity(ctx, sessionID, m.clock())
	if err != nil {
		return false, m.fail("update_last_activity", err, zap.String("session_id", sessionID))
	}
	return affected > 0, nil
}

// ExtendSession moves the expiry of a live session to now plus the given
// number of minutes. The extension counts from now, not from the old expiry.
// Windows outside 1..MaxExtensionMinutes return ErrInvalidExtension.
func (m *SessionManager) ExtendSession(ctx context.Context, sessionID string, minutes int) (bool, error) {
	if minutes <= 0 || minutes > MaxExtensionMinutes {
		return false, ErrInvalidExtension
	}
	if strings.TrimSpace(sessionID) == "" {
		return false, nil
	}

	now := m.clock()
	expiresAt := now.Add(time.Duration(minutes) * time.Minute)

	affected, err := m.store.ExtendExpiry(ctx, sessionID, now, expiresAt)
	if err != nil {
		return false, m.fail("extend_session", err, zap.String("session_id", sessionID))
	}
	if affected == 0 {
		return false, nil
	}

	m.log.Debug("session extended", zap.String("session_id", sessionID), zap.Time("expires_at", expiresAt))
	return true, nil
}

// CleanupExpiredSessions deactivates sessions whose expiry has passed but are
// still flagged active. A second run with nothing new to sweep returns zero.
func (m *SessionManager) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	affected, err := m.store.DeactivateAllExpired(ctx, m.clock())
	if err != nil {
		return 0, m.fail("cleanup_expired_sessions", err)
	}

	m.recordDeactivations(models.ReasonExpired, affected)
	if affected > 0 {
		m.log.Info("expired sessions swept", zap.Int64("count", affected))
	}
	return affected, nil
}

// GetSessionStatistics aggregates live sessions by login type and provider.
func (m *SessionManager) GetSessionStatistics(ctx context.Context) ([]SessionStatistic, error) {
	stats, err := m.store.AggregateActiveStatistics(ctx, m.clock())
	if err != nil {
		return []SessionStatistic{}, m.fail("get_session_statistics", err)
	}
	if stats == nil {
		stats = []SessionStatistic{}
	}
	return stats, nil
}

// DetectSuspiciousActivity reports whether more live sessions than the
// configured limit originate from clientIP.
func (m *SessionManager) DetectSuspiciousActivity(ctx context.Context, clientIP string) (bool, error) {
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		return false, nil
	}

	sessions, err := m.store.FindActiveByClientIP(ctx, clientIP, m.clock())
	if err != nil {
		return false, m.fail("detect_suspicious_activity", err, zap.String("client_ip", clientIP))
	}
	if len(sessions) <= m.maxPerIP {
		return false, nil
	}

	users := make(map[string]struct{}, len(sessions))
	for _, session := range sessions {
		users[session.UserID] = struct{}{}
	}

	metrics.SuspiciousActivity.Inc()
	m.log.Warn("suspicious session activity",
		zap.String("client_ip", clientIP),
		zap.Int("active_sessions", len(sessions)),
		zap.Int("distinct_users", len(users)),
		zap.Int("limit", m.maxPerIP),
	)
	return true, nil
}

func (m *SessionManager) recordDeactivations(reason models.DeactivationReason, count int64) {
	if count <= 0 {
		return
	}
	metrics.ActiveSessions.Sub(float64(count))
	metrics.SessionDeactivations.WithLabelValues(string(reason)).Add(float64(count))
}

// fail logs and counts a storage failure and returns it annotated with the
// operation name.
func (m *SessionManager) fail(operation string, err error, fields ...zap.Field) error {
	metrics.SessionStoreErrors.WithLabelValues(operation).Inc()
	fields = append(fields, zap.String("operation", operation), zap.Error(err))
	m.log.Warn("session store operation failed", fields...)

	if !errors.Is(err, ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return fmt.Errorf("session manager: %s: %w", operation, err)
}
