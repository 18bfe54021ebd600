package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoginSessionIsLive(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	session := &LoginSession{IsActive: true, ExpiresAt: now.Add(time.Minute)}
	require.True(t, session.IsLive(now))

	session.ExpiresAt = now
	require.False(t, session.IsLive(now), "expiry instant is not live")

	session.ExpiresAt = now.Add(time.Minute)
	session.IsActive = false
	require.False(t, session.IsLive(now))

	var missing *LoginSession
	require.False(t, missing.IsLive(now))
}

func TestLoginSessionState(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	reason := func(r DeactivationReason) *DeactivationReason { return &r }

	cases := []struct {
		name    string
		session LoginSession
		want    SessionState
	}{
		{"active", LoginSession{IsActive: true, ExpiresAt: now.Add(time.Hour)}, SessionStateActive},
		{"expired before sweep", LoginSession{IsActive: true, ExpiresAt: now.Add(-time.Second)}, SessionStateExpired},
		{"swept", LoginSession{DeactivationReason: reason(ReasonExpired)}, SessionStateExpired},
		{"logged out", LoginSession{DeactivationReason: reason(ReasonUserLogout)}, SessionStateLoggedOut},
		{"evicted", LoginSession{DeactivationReason: reason(ReasonDuplicateLogin)}, SessionStateEvicted},
		{"admin", LoginSession{DeactivationReason: reason(ReasonAdminAction)}, SessionStateAdminTerminated},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.session.State(now))
		})
	}
}

func TestEnumValidation(t *testing.T) {
	require.True(t, LoginTypePassword.Valid())
	require.True(t, LoginTypeSocial.Valid())
	require.False(t, LoginType("SAML").Valid())

	require.True(t, ReasonAdminAction.Valid())
	require.False(t, DeactivationReason("").Valid())
}
