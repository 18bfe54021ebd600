package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/sessiongate/internal/auth"
	"github.com/charlesng35/sessiongate/internal/handlers"
	"github.com/charlesng35/sessiongate/internal/handlers/testutil"
	"github.com/charlesng35/sessiongate/internal/models"
)

func TestAdminSessions_RequireServiceToken(t *testing.T) {
	env := testutil.NewEnv(t)
	login := env.Login("user-1", "203.0.113.5")

	for _, path := range []string{
		"/api/admin/sessions/statistics",
		"/api/admin/users/user-1/sessions",
	} {
		w := env.Request(http.MethodGet, path, nil, login.AccessToken)
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestAdminSessions_Statistics(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Login("user-1", "203.0.113.5")
	env.Login("user-2", "203.0.113.5")
	env.LoginWith(testutil.LoginRequest{
		UserID:         "user-3",
		LoginType:      models.LoginTypeSocial,
		SocialProvider: "google",
		ClientIP:       "203.0.113.6",
	})

	w := env.ServiceRequest(http.MethodGet, "/api/admin/sessions/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	require.EqualValues(t, 3, resp.Meta.Total)

	var stats []iauth.SessionStatistic
	testutil.DecodeInto(t, resp.Data, &stats)
	require.Len(t, stats, 2)
	require.Equal(t, models.LoginTypePassword, stats[0].LoginType)
	require.EqualValues(t, 2, stats[0].ActiveSessions)
	require.EqualValues(t, 2, stats[0].DistinctUsers)
	require.Equal(t, models.LoginTypeSocial, stats[1].LoginType)
	require.Equal(t, "google", *stats[1].SocialProvider)
	require.EqualValues(t, 1, stats[1].ActiveSessions)
}

func TestAdminSessions_Suspicious(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.ServiceRequest(http.MethodGet, "/api/admin/sessions/suspicious", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	for _, user := range []string{"a", "b", "c", "d", "e", "f"} {
		env.Login(user, "203.0.113.99")
	}

	var out struct {
		ClientIP   string `json:"client_ip"`
		Suspicious bool   `json:"suspicious"`
	}

	w = env.ServiceRequest(http.MethodGet, "/api/admin/sessions/suspicious?ip=203.0.113.99", nil)
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &out)
	require.Equal(t, "203.0.113.99", out.ClientIP)
	require.True(t, out.Suspicious)

	w = env.ServiceRequest(http.MethodGet, "/api/admin/sessions/suspicious?ip=203.0.113.1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &out)
	require.False(t, out.Suspicious)
}

func TestAdminSessions_UserSessions(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(allowConcurrentSessions))
	env.Login("user-1", "203.0.113.5")
	env.Login("user-1", "203.0.113.6")

	w := env.ServiceRequest(http.MethodGet, "/api/admin/users/user-1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.EqualValues(t, 2, resp.Meta.Total)
	var views []handlers.SessionView
	testutil.DecodeInto(t, resp.Data, &views)
	require.Len(t, views, 2)
	for _, view := range views {
		require.False(t, view.Current)
		require.Equal(t, "user-1", view.UserID)
	}

	w = env.ServiceRequest(http.MethodGet, "/api/admin/users/nobody/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 0, testutil.DecodeResponse(t, w).Meta.Total)
}

func TestAdminSessions_TerminateSession(t *testing.T) {
	env := testutil.NewEnv(t)
	login := env.Login("user-1", "203.0.113.5")
	path := "/api/admin/sessions/" + login.Session.SessionID + "/terminate"

	w := env.ServiceRequest(http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var row models.LoginSession
	require.NoError(t, env.DB.Take(&row, "session_id = ?", login.Session.SessionID).Error)
	require.Equal(t, models.ReasonAdminAction, *row.DeactivationReason)

	// The terminal state is written once.
	w = env.ServiceRequest(http.MethodPost, path, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "SESSION_NOT_FOUND", testutil.DecodeResponse(t, w).Error.Code)

	require.NoError(t, env.DB.Take(&row, "session_id = ?", login.Session.SessionID).Error)
	require.Equal(t, models.ReasonAdminAction, *row.DeactivationReason)

	w = env.Request(http.MethodGet, "/api/sessions/me", nil, login.AccessToken)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminSessions_TerminateUser(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(allowConcurrentSessions))
	env.Login("user-1", "203.0.113.5")
	env.Login("user-1", "203.0.113.6")
	other := env.Login("user-2", "203.0.113.7")

	w := env.ServiceRequest(http.MethodPost, "/api/admin/users/user-1/sessions/terminate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Deactivated int64 `json:"deactivated"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &out)
	require.EqualValues(t, 2, out.Deactivated)

	w = env.Request(http.MethodGet, "/api/sessions/me", nil, other.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminSessions_Cleanup(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Login("user-1", "203.0.113.5")
	env.Login("user-2", "203.0.113.6")

	env.Clock.Advance(31 * time.Minute)
	env.Login("user-3", "203.0.113.7")

	var out struct {
		Deactivated int64 `json:"deactivated"`
	}

	w := env.ServiceRequest(http.MethodPost, "/api/admin/sessions/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &out)
	require.EqualValues(t, 2, out.Deactivated)

	w = env.ServiceRequest(http.MethodPost, "/api/admin/sessions/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &out)
	require.Zero(t, out.Deactivated)

	var swept models.LoginSession
	require.NoError(t, env.DB.Take(&swept, "user_id = ?", "user-1").Error)
	require.Equal(t, models.ReasonExpired, *swept.DeactivationReason)
}
