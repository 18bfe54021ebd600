package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sessiongate/internal/api"
	"github.com/charlesng35/sessiongate/internal/app"
	iauth "github.com/charlesng35/sessiongate/internal/auth"
	"github.com/charlesng35/sessiongate/internal/handlers"
	"github.com/charlesng35/sessiongate/internal/handlers/testutil"
	"github.com/charlesng35/sessiongate/internal/models"
)

func allowConcurrentSessions(cfg *app.Config) {
	cfg.Auth.Session.SingleSession = false
}

func TestSessionHandler_LoginIssuesTokenForLiveSession(t *testing.T) {
	env := testutil.NewEnv(t)

	login := env.Login("user-1", "203.0.113.5")
	require.Equal(t, "Bearer", login.TokenType)
	require.False(t, login.DuplicateDetected)
	require.Zero(t, login.EvictedSessions)
	require.False(t, login.Suspicious)
	require.NotEmpty(t, login.Session.SessionID)
	require.Equal(t, models.LoginTypePassword, login.Session.LoginType)
	require.Equal(t, "203.0.113.5", login.Session.ClientIP)
	require.Equal(t, "Chrome", login.Session.Device.Browser)
	require.Equal(t, "Windows", login.Session.Device.OS)
	require.True(t, login.ExpiresAt.Equal(env.Clock.Now().Add(30*time.Minute)))

	claims, err := env.JWT.ValidateAccessToken(login.AccessToken)
	require.NoError(t, err)
	require.Equal(t, login.Session.SessionID, claims.SessionID)
	require.Equal(t, "user-1", claims.UserID)

	w := env.Request(http.MethodGet, "/api/sessions/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	require.EqualValues(t, 1, resp.Meta.Total)

	var views []handlers.SessionView
	testutil.DecodeInto(t, resp.Data, &views)
	require.Len(t, views, 1)
	require.True(t, views[0].Current)
	require.Equal(t, login.Session.SessionID, views[0].SessionID)
}

func TestSessionHandler_LoginFallsBackToRequestMetadata(t *testing.T) {
	env := testutil.NewEnv(t)

	login := env.LoginWith(testutil.LoginRequest{UserID: "user-1", LoginType: models.LoginTypePassword})
	require.Equal(t, "192.0.2.10", login.Session.ClientIP)
	require.Equal(t, "unknown", login.Session.Device.Browser)
}

func TestSessionHandler_LoginEvictsPreviousSession(t *testing.T) {
	env := testutil.NewEnv(t)

	first := env.Login("user-1", "203.0.113.5")
	env.Clock.Advance(time.Minute)
	second := env.Login("user-1", "198.51.100.9")

	require.True(t, second.DuplicateDetected)
	require.EqualValues(t, 1, second.EvictedSessions)

	w := env.Request(http.MethodGet, "/api/sessions/me", nil, first.AccessToken)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "SESSION_EXPIRED", testutil.DecodeResponse(t, w).Error.Code)

	var row models.LoginSession
	require.NoError(t, env.DB.Take(&row, "session_id = ?", first.Session.SessionID).Error)
	require.False(t, row.IsActive)
	require.Equal(t, models.ReasonDuplicateLogin, *row.DeactivationReason)

	w = env.Request(http.MethodGet, "/api/sessions/me", nil, second.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSessionHandler_LoginValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	cases := []struct {
		name    string
		payload any
	}{
		{"missing user", testutil.LoginRequest{LoginType: models.LoginTypePassword}},
		{"blank user", testutil.LoginRequest{UserID: "   ", LoginType: models.LoginTypePassword}},
		{"unknown login type", testutil.LoginRequest{UserID: "user-1", LoginType: "SAML"}},
		{"social without provider", testutil.LoginRequest{UserID: "user-1", LoginType: models.LoginTypeSocial}},
		{"bad client ip", testutil.LoginRequest{UserID: "user-1", LoginType: models.LoginTypePassword, ClientIP: "not-an-ip"}},
		{"not json", "plain string"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.ServiceRequest(http.MethodPost, "/api/sessions", tc.payload)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			require.Equal(t, "BAD_REQUEST", testutil.DecodeResponse(t, w).Error.Code)
		})
	}

	var count int64
	require.NoError(t, env.DB.Model(&models.LoginSession{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSessionHandler_SocialLoginRecordsProvider(t *testing.T) {
	env := testutil.NewEnv(t)

	login := env.LoginWith(testutil.LoginRequest{
		UserID:         "user-1",
		LoginType:      models.LoginTypeSocial,
		SocialProvider: "kakao",
		ClientIP:       "203.0.113.5",
	})
	require.Equal(t, models.LoginTypeSocial, login.Session.LoginType)
	require.NotNil(t, login.Session.SocialProvider)
	require.Equal(t, "kakao", *login.Session.SocialProvider)
}

func TestSessionHandler_LoginRequiresServiceToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/sessions", testutil.LoginRequest{
		UserID:    "user-1",
		LoginType: models.LoginTypePassword,
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionHandler_LoginFlagsSuspiciousAddress(t *testing.T) {
	env := testutil.NewEnv(t)

	for i, user := range []string{"u1", "u2", "u3", "u4", "u5"} {
		login := env.Login(user, "203.0.113.77")
		require.False(t, login.Suspicious, "login %d stays within the limit", i+1)
	}

	sixth := env.Login("u6", "203.0.113.77")
	require.True(t, sixth.Suspicious)
}

func TestSessionHandler_LoginRateLimited(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(func(cfg *app.Config) {
		cfg.Auth.RateLimit.LoginRequests = 2
	}))

	env.Login("user-1", "203.0.113.5")
	env.Login("user-2", "203.0.113.6")

	w := env.ServiceRequest(http.MethodPost, "/api/sessions", testutil.LoginRequest{
		UserID:    "user-3",
		LoginType: models.LoginTypePassword,
	})
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	env.Clock.Advance(2 * time.Minute)
	env.Login("user-3", "203.0.113.7")
}

func TestSessionHandler_HeartbeatReportsOtherSessions(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(allowConcurrentSessions))

	first := env.Login("user-1", "203.0.113.5")

	w := env.Request(http.MethodPost, "/api/sessions/heartbeat", nil, first.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	var beat struct {
		DuplicateDetected bool `json:"duplicate_detected"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &beat)
	require.False(t, beat.DuplicateDetected)

	second := env.Login("user-1", "198.51.100.9")
	require.True(t, second.DuplicateDetected)
	require.Zero(t, second.EvictedSessions)

	w = env.Request(http.MethodPost, "/api/sessions/heartbeat", nil, first.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &beat)
	require.True(t, beat.DuplicateDetected)
}

func TestSessionHandler_RequestsKeepSessionAlive(t *testing.T) {
	env := testutil.NewEnv(t)
	login := env.Login("user-1", "203.0.113.5")

	env.Clock.Advance(20 * time.Minute)
	w := env.Request(http.MethodPost, "/api/sessions/heartbeat", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)

	session, err := env.Sessions.GetActiveSession(context.Background(), login.Session.SessionID)
	require.NoError(t, err)
	require.True(t, session.LastActivityAt.Equal(env.Clock.Now()))

	// Activity alone never moves the expiry.
	env.Clock.Advance(11 * time.Minute)
	w = env.Request(http.MethodGet, "/api/sessions/me", nil, login.AccessToken)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionHandler_ExtendCountsFromNow(t *testing.T) {
	env := testutil.NewEnv(t)
	login := env.Login("user-1", "203.0.113.5")

	env.Clock.Advance(10 * time.Minute)

	w := env.Request(http.MethodPost, "/api/sessions/extend", map[string]any{"minutes": 60}, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var extended struct {
		Extended  bool      `json:"extended"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &extended)
	require.True(t, extended.Extended)
	require.True(t, extended.ExpiresAt.Equal(env.Clock.Now().Add(60*time.Minute)))

	for _, minutes := range []int{0, -5, 1441} {
		w = env.Request(http.MethodPost, "/api/sessions/extend", map[string]any{"minutes": minutes}, login.AccessToken)
		require.Equal(t, http.StatusBadRequest, w.Code, "minutes=%d", minutes)
	}

	env.Clock.Advance(59 * time.Minute)
	w = env.Request(http.MethodGet, "/api/sessions/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSessionHandler_Logout(t *testing.T) {
	env := testutil.NewEnv(t)
	login := env.Login("user-1", "203.0.113.5")

	w := env.Request(http.MethodPost, "/api/sessions/logout", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		LoggedOut bool `json:"logged_out"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &out)
	require.True(t, out.LoggedOut)

	var row models.LoginSession
	require.NoError(t, env.DB.Take(&row, "session_id = ?", login.Session.SessionID).Error)
	require.Equal(t, models.ReasonUserLogout, *row.DeactivationReason)

	w = env.Request(http.MethodPost, "/api/sessions/logout", nil, login.AccessToken)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionHandler_LogoutAll(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(allowConcurrentSessions))
	first := env.Login("user-1", "203.0.113.5")
	env.Login("user-1", "203.0.113.6")
	other := env.Login("user-2", "203.0.113.7")

	w := env.Request(http.MethodPost, "/api/sessions/logout_all", nil, first.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Deactivated int64 `json:"deactivated"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &out)
	require.EqualValues(t, 2, out.Deactivated)

	count, err := env.Sessions.GetActiveSessionCount(context.Background(), "user-1")
	require.NoError(t, err)
	require.Zero(t, count)

	w = env.Request(http.MethodGet, "/api/sessions/me", nil, other.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSessionHandler_LoginLock(t *testing.T) {
	t.Run("held around eviction and creation", func(t *testing.T) {
		locker := &recordingLocker{}
		env := testutil.NewEnv(t, testutil.WithRouterOptions(api.WithLoginLocker(locker)))

		env.Login("user-1", "203.0.113.5")
		require.EqualValues(t, 1, locker.acquired.Load())
		require.EqualValues(t, 1, locker.released.Load())
	})

	t.Run("unavailable lock does not block login", func(t *testing.T) {
		locker := &recordingLocker{err: iauth.ErrLoginLockTimeout}
		env := testutil.NewEnv(t, testutil.WithRouterOptions(api.WithLoginLocker(locker)))

		env.Login("user-1", "203.0.113.5")
		require.EqualValues(t, 1, locker.acquired.Load())
		require.Zero(t, locker.released.Load())
	})
}

type recordingLocker struct {
	err      error
	acquired atomic.Int64
	released atomic.Int64
}

func (l *recordingLocker) Acquire(_ context.Context, userID string) (iauth.ReleaseFunc, error) {
	l.acquired.Add(1)
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if l.err != nil {
		return nil, l.err
	}
	return func(context.Context) { l.released.Add(1) }, nil
}
