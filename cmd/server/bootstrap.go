package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sessiongate/internal/api"
	"github.com/charlesng35/sessiongate/internal/app"
	"github.com/charlesng35/sessiongate/internal/app/maintenance"
	iauth "github.com/charlesng35/sessiongate/internal/auth"
	"github.com/charlesng35/sessiongate/internal/cache"
	"github.com/charlesng35/sessiongate/internal/database"
	"github.com/charlesng35/sessiongate/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Redis    *cache.RedisStore
	Cache    cache.Store
	Sessions *iauth.SessionManager
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, cache, session manager,
// maintenance jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Cache = dbStore

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
			stack.Redis = nil
		} else {
			stack.Cache = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	store, err := iauth.NewGormSessionStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise session store: %w", err)
	}

	stack.Sessions, err = iauth.NewSessionManager(store, cfg.Auth.SessionManagerConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session manager: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.Sessions, dbStore,
		maintenance.WithSessionSchedule(cfg.Maintenance.SessionCleanupSchedule),
		maintenance.WithCacheSchedule(cfg.Maintenance.CacheCleanupSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	routerOpts := []api.RouterOption{}
	if stack.Redis != nil {
		routerOpts = append(routerOpts, api.WithHealthCheck("redis", stack.Redis))
	}
	if cfg.Auth.Session.SerializeLogins {
		locker, err := iauth.NewStoreLoginLocker(stack.Cache, cfg.Auth.Session.LoginLockTTL)
		if err != nil {
			return nil, fmt.Errorf("initialise login lock: %w", err)
		}
		routerOpts = append(routerOpts, api.WithLoginLocker(locker))
		log.Info("login serialisation enabled", zap.Duration("lock_ttl", cfg.Auth.Session.LoginLockTTL))
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.Sessions, stack.Cache, routerOpts...)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs, runs a final sweep and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
		s.Cleaner = nil
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
		s.Redis = nil
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
		s.DB = nil
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Ping(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, err
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
