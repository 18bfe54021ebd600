package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/sessiongate/internal/database/testutil"
	"github.com/charlesng35/sessiongate/internal/models"
)

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func setupSessionManager(t *testing.T, mutate ...func(*SessionManagerConfig)) (*gorm.DB, *SessionManager, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}

	store, err := NewGormSessionStore(db)
	require.NoError(t, err)

	cfg := DefaultSessionManagerConfig()
	cfg.Clock = clock.Now
	cfg.Logger = zap.NewNop()
	for _, fn := range mutate {
		fn(&cfg)
	}

	manager, err := NewSessionManager(store, cfg)
	require.NoError(t, err)

	return db, manager, clock
}

func createPasswordSession(t *testing.T, manager *SessionManager, sessionID, userID, clientIP string) *models.LoginSession {
	t.Helper()

	session, err := manager.CreateSession(context.Background(), CreateSessionInput{
		SessionID: sessionID,
		UserID:    userID,
		ClientIP:  clientIP,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		LoginType: models.LoginTypePassword,
	})
	require.NoError(t, err)
	require.NotNil(t, session)
	return session
}

func loadSessionRow(t *testing.T, db *gorm.DB, sessionID string) models.LoginSession {
	t.Helper()

	var row models.LoginSession
	require.NoError(t, db.Take(&row, "session_id = ?", sessionID).Error)
	return row
}
