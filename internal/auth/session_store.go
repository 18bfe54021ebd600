package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/sessiongate/internal/models"
)

// SessionStatistic aggregates live sessions for one login type and provider.
type SessionStatistic struct {
	LoginType      models.LoginType `json:"login_type"`
	SocialProvider *string          `json:"social_provider,omitempty"`
	ActiveSessions int64            `json:"active_sessions"`
	DistinctUsers  int64            `json:"distinct_users"`
}

// SessionStore persists login sessions. Every method taking now treats a row
// as live only when is_active is set and expires_at is after now. Mutating
// methods return the number of rows they changed; zero means nothing matched.
type SessionStore interface {
	Create(ctx context.Context, session *models.LoginSession) error
	FindActiveBySessionID(ctx context.Context, sessionID string, now time.Time) (*models.LoginSession, error)
	FindAllActiveByUser(ctx context.Context, userID string, now time.Time) ([]models.LoginSession, error)
	CountActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error)
	TouchActivity(ctx context.Context, sessionID string, now time.Time) (int64, error)
	ExtendExpiry(ctx context.Context, sessionID string, now, expiresAt time.Time) (int64, error)
	DeactivateBySessionID(ctx context.Context, sessionID string, now time.Time, reason models.DeactivationReason) (int64, error)
	DeactivateAllByUser(ctx context.Context, userID string, now time.Time, reason models.DeactivationReason) (int64, error)
	DeactivateAllExpired(ctx context.Context, now time.Time) (int64, error)
	FindActiveByClientIP(ctx context.Context, clientIP string, now time.Time) ([]models.LoginSession, error)
	AggregateActiveStatistics(ctx context.Context, now time.Time) ([]SessionStatistic, error)
}

// GormSessionStore implements SessionStore with single-statement conditional
// queries, so per-session mutations are atomic in the database.
type GormSessionStore struct {
	db *gorm.DB
}

// NewGormSessionStore constructs a SessionStore backed by the supplied database.
func NewGormSessionStore(db *gorm.DB) (*GormSessionStore, error) {
	if db == nil {
		return nil, errors.New("session store: db is required")
	}
	return &GormSessionStore{db: db}, nil
}

const liveCondition = "is_active = ? AND expires_at > ?"

func (s *GormSessionStore) live(ctx context.Context, now time.Time) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.LoginSession{}).
		Where(liveCondition, true, now)
}

// Create inserts a new session row. Rows are never upserted.
func (s *GormSessionStore) Create(ctx context.Context, session *models.LoginSession) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateSessionID
		}
		return storeFailure("create", err)
	}
	return nil
}

func (s *GormSessionStore) FindActiveBySessionID(ctx context.Context, sessionID string, now time.Time) (*models.LoginSession, error) {
	var session models.LoginSession
	err := s.live(ctx, now).Where("session_id = ?", sessionID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeFailure("find by session id", err)
	}
	return &session, nil
}

func (s *GormSessionStore) FindAllActiveByUser(ctx context.Context, userID string, now time.Time) ([]models.LoginSession, error) {
	var sessions []models.LoginSession
	err := s.live(ctx, now).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, storeFailure("find by user", err)
	}
	return sessions, nil
}

func (s *GormSessionStore) CountActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	var count int64
	if err := s.live(ctx, now).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, storeFailure("count by user", err)
	}
	return count, nil
}

func (s *GormSessionStore) TouchActivity(ctx context.Context, sessionID string, now time.Time) (int64, error) {
	result := s.live(ctx, now).
		Where("session_id = ?", sessionID).
		Update("last_activity_at", now)
	if result.Error != nil {
		return 0, storeFailure("touch activity", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormSessionStore) ExtendExpiry(ctx context.Context, sessionID string, now, expiresAt time.Time) (int64, error) {
	result := s.live(ctx, now).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"expires_at":       expiresAt,
			"last_activity_at": now,
		})
	if result.Error != nil {
		return 0, storeFailure("extend expiry", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormSessionStore) DeactivateBySessionID(ctx context.Context, sessionID string, now time.Time, reason models.DeactivationReason) (int64, error) {
	result := s.live(ctx, now).
		Where("session_id = ?", sessionID).
		Updates(deactivation(now, reason))
	if result.Error != nil {
		return 0, storeFailure("deactivate session", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormSessionStore) DeactivateAllByUser(ctx context.Context, userID string, now time.Time, reason models.DeactivationReason) (int64, error) {
	result := s.live(ctx, now).
		Where("user_id = ?", userID).
		Updates(deactivation(now, reason))
	if result.Error != nil {
		return 0, storeFailure("deactivate user sessions", result.Error)
	}
	return result.RowsAffected, nil
}

// DeactivateAllExpired moves rows still flagged active but past expiry to the
// inactive state with reason EXPIRED.
func (s *GormSessionStore) DeactivateAllExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.LoginSession{}).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Updates(deactivation(now, models.ReasonExpired))
	if result.Error != nil {
		return 0, storeFailure("deactivate expired", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormSessionStore) FindActiveByClientIP(ctx context.Context, clientIP string, now time.Time) ([]models.LoginSession, error) {
	var sessions []models.LoginSession
	err := s.live(ctx, now).
		Where("client_ip = ?", clientIP).
		Order("created_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, storeFailure("find by client ip", err)
	}
	return sessions, nil
}

func (s *GormSessionStore) AggregateActiveStatistics(ctx context.Context, now time.Time) ([]SessionStatistic, error) {
	var stats []SessionStatistic
	err := s.live(ctx, now).
		Select("login_type, social_provider, COUNT(*) AS active_sessions, COUNT(DISTINCT user_id) AS distinct_users").
		Group("login_type, social_provider").
		Order("login_type, social_provider").
		Scan(&stats).Error
	if err != nil {
		return nil, storeFailure("aggregate statistics", err)
	}
	return stats, nil
}

// deactivation flips the flag and records when and why in one UPDATE.
func deactivation(now time.Time, reason models.DeactivationReason) map[string]any {
	return map[string]any{
		"is_active":           false,
		"deactivated_at":      now,
		"deactivation_reason": reason,
	}
}
