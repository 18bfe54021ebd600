package database

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/sessiongate/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
	if err := Ping(db); err != nil {
		t.Fatalf("expected ping to succeed: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestAutoMigrateCreatesSessionTables(t *testing.T) {
	db := openTestDB(t)

	if err := AutoMigrateAndSeed(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	migrator := db.Migrator()
	for _, model := range []interface{}{&models.LoginSession{}, &models.CacheEntry{}} {
		if !migrator.HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
	for _, column := range []string{"session_id", "user_id", "client_ip", "is_active", "deactivation_reason"} {
		if !migrator.HasColumn(&models.LoginSession{}, column) {
			t.Fatalf("expected login_sessions.%s column", column)
		}
	}
}

func TestLoginSessionRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	now := time.Date(2024, 4, 2, 8, 30, 0, 0, time.UTC)
	provider := "kakao"
	row := models.LoginSession{
		SessionID:      "sess-1",
		UserID:         "user-1",
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(30 * time.Minute),
		LoginType:      models.LoginTypeSocial,
		SocialProvider: &provider,
		IsActive:       true,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var stored models.LoginSession
	if err := db.Take(&stored, "session_id = ?", "sess-1").Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !stored.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at %v to be preserved, got %v", now, stored.CreatedAt)
	}
	if stored.SocialProvider == nil || *stored.SocialProvider != provider {
		t.Fatalf("expected social provider %q, got %v", provider, stored.SocialProvider)
	}
	if stored.DeactivatedAt != nil || stored.DeactivationReason != nil {
		t.Fatalf("expected fresh row to have no deactivation data")
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared&_foreign_keys=1"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
