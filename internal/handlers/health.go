package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/sessiongate/pkg/errors"
	"github.com/charlesng35/sessiongate/pkg/response"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is implemented by optional dependencies checked alongside the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports readiness: the session database must answer a ping, and so
// must every extra dependency supplied (the Redis cache when enabled).
func Health(db *gorm.DB, deps map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(requestContext(c), healthCheckTimeout)
		defer cancel()

		checks := gin.H{"database": "ok"}
		healthy := true

		if err := pingDatabase(ctx, db); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}

		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				healthy = false
				continue
			}
			checks[name] = "ok"
		}

		if !healthy {
			response.Error(c, errors.New("UNHEALTHY", "Service dependencies are unavailable", http.StatusServiceUnavailable).WithDetails(checks))
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "checks": checks})
	}
}

func pingDatabase(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database is not configured")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
