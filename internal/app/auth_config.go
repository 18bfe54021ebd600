package app

import (
	"time"

	"github.com/charlesng35/sessiongate/internal/auth"
)

const (
	defaultLoginRequests = 30
	defaultLoginWindow   = time.Minute
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionManagerConfig converts AuthConfig into SessionManager parameters.
func (c AuthConfig) SessionManagerConfig() auth.SessionManagerConfig {
	cfg := auth.DefaultSessionManagerConfig()
	if c.Session.Timeout > 0 {
		cfg.DefaultTimeout = c.Session.Timeout
	}
	if c.Session.MaxSessionsPerIP > 0 {
		cfg.MaxSessionsPerIP = c.Session.MaxSessionsPerIP
	}
	cfg.SingleSession = c.Session.SingleSession
	return cfg
}

// LoginRateLimit returns the fixed-window budget for session creation.
func (c AuthConfig) LoginRateLimit() (int, time.Duration) {
	limit := c.RateLimit.LoginRequests
	if limit <= 0 {
		limit = defaultLoginRequests
	}
	window := c.RateLimit.Window
	if window <= 0 {
		window = defaultLoginWindow
	}
	return limit, window
}
