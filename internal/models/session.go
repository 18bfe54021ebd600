package models

import (
	"time"
)

// LoginType identifies how the user authenticated before the session was issued.
type LoginType string

const (
	LoginTypePassword LoginType = "PASSWORD"
	LoginTypeSocial   LoginType = "SOCIAL"
)

// Valid reports whether the login type is one of the known values.
func (t LoginType) Valid() bool {
	return t == LoginTypePassword || t == LoginTypeSocial
}

// DeactivationReason records why a session left the active state.
type DeactivationReason string

const (
	ReasonDuplicateLogin DeactivationReason = "DUPLICATE_LOGIN"
	ReasonUserLogout     DeactivationReason = "USER_LOGOUT"
	ReasonExpired        DeactivationReason = "EXPIRED"
	ReasonAdminAction    DeactivationReason = "ADMIN_ACTION"
)

// Valid reports whether the reason is one of the known values.
func (r DeactivationReason) Valid() bool {
	switch r {
	case ReasonDuplicateLogin, ReasonUserLogout, ReasonExpired, ReasonAdminAction:
		return true
	}
	return false
}

// SessionState is the lifecycle label derived from a session row.
type SessionState string

const (
	SessionStateActive          SessionState = "ACTIVE"
	SessionStateExpired         SessionState = "EXPIRED"
	SessionStateLoggedOut       SessionState = "LOGGED_OUT"
	SessionStateEvicted         SessionState = "EVICTED"
	SessionStateAdminTerminated SessionState = "ADMIN_TERMINATED"
)

// LoginSession is a single authenticated session of a user. Rows are never
// reactivated: a new login always produces a new row.
type LoginSession struct {
	SessionID      string    `gorm:"primaryKey;size:64" json:"session_id"`
	UserID         string    `gorm:"size:64;not null;index:idx_login_sessions_user_active,priority:1" json:"user_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `gorm:"index" json:"expires_at"`

	ClientIP       string    `gorm:"size:64;index" json:"client_ip"`
	UserAgent      string    `json:"user_agent"`
	LoginType      LoginType `gorm:"size:16;not null" json:"login_type"`
	SocialProvider *string   `gorm:"size:32" json:"social_provider,omitempty"`

	IsActive           bool                `gorm:"not null;index:idx_login_sessions_user_active,priority:2" json:"is_active"`
	DeactivatedAt      *time.Time          `json:"deactivated_at,omitempty"`
	DeactivationReason *DeactivationReason `gorm:"size:32" json:"deactivation_reason,omitempty"`
}

// TableName pins the table name used by GORM.
func (LoginSession) TableName() string {
	return "login_sessions"
}

// IsLive reports whether the session is active as of now: the flag is set and
// the expiry has not been reached.
func (s *LoginSession) IsLive(now time.Time) bool {
	return s != nil && s.IsActive && now.Before(s.ExpiresAt)
}

// State derives the lifecycle state of the row as of now. A row whose flag is
// still set but whose expiry has passed is EXPIRED even before a sweep runs.
func (s *LoginSession) State(now time.Time) SessionState {
	if s.IsActive {
		if now.Before(s.ExpiresAt) {
			return SessionStateActive
		}
		return SessionStateExpired
	}
	if s.DeactivationReason == nil {
		return SessionStateExpired
	}
	switch *s.DeactivationReason {
	case ReasonUserLogout:
		return SessionStateLoggedOut
	case ReasonDuplicateLogin:
		return SessionStateEvicted
	case ReasonAdminAction:
		return SessionStateAdminTerminated
	default:
		return SessionStateExpired
	}
}
