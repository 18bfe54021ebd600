package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrSessionNotFound indicates that no live session matches the identifier.
	// Read paths report absence as a nil session instead of returning it.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrDuplicateSessionID is returned when a session id is already stored.
	ErrDuplicateSessionID = errors.New("session: duplicate session id")
	// ErrStoreUnavailable wraps failures of the underlying session store.
	ErrStoreUnavailable = errors.New("session: store unavailable")
	// ErrInvalidSession marks caller input that cannot describe a session.
	ErrInvalidSession = errors.New("session: invalid session")
	// ErrInvalidExtension is returned for extension windows outside
	// 1..MaxExtensionMinutes.
	ErrInvalidExtension = errors.New("session: extension must be between 1 and 1440 minutes")
)

func storeFailure(op string, err error) error {
	return fmt.Errorf("session store: %s: %w: %w", op, ErrStoreUnavailable, err)
}

func invalidSession(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidSession, reason)
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry")
}
