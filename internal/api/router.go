package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/sessiongate/internal/app"
	iauth "github.com/charlesng35/sessiongate/internal/auth"
	"github.com/charlesng35/sessiongate/internal/handlers"
	"github.com/charlesng35/sessiongate/internal/middleware"
)

// RouterOption customises NewRouter.
type RouterOption func(*routerOptions)

type routerOptions struct {
	locker       iauth.LoginLocker
	healthChecks map[string]handlers.Pinger
	devices      *iauth.DeviceDescriber
}

// WithLoginLocker serialises concurrent logins of the same user.
func WithLoginLocker(locker iauth.LoginLocker) RouterOption {
	return func(o *routerOptions) {
		o.locker = locker
	}
}

// WithHealthCheck adds a dependency to the /health readiness report.
func WithHealthCheck(name string, dep handlers.Pinger) RouterOption {
	return func(o *routerOptions) {
		if name != "" && dep != nil {
			o.healthChecks[name] = dep
		}
	}
}

// WithDeviceDescriber shares a preloaded user-agent parser.
func WithDeviceDescriber(devices *iauth.DeviceDescriber) RouterOption {
	return func(o *routerOptions) {
		if devices != nil {
			o.devices = devices
		}
	}
}

// NewRouter builds the Gin engine, wires middleware and registers the session routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, sessions *iauth.SessionManager, rateStore middleware.RateCounter, opts ...RouterOption) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	options := routerOptions{healthChecks: make(map[string]handlers.Pinger)}
	for _, opt := range opts {
		opt(&options)
	}
	if options.devices == nil {
		options.devices = iauth.NewDeviceDescriber()
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.NoRoute(middleware.NotFoundHandler)

	registerHealthRoutes(r, db, options.healthChecks)
	registerMetricsRoutes(r, cfg.Monitoring.Prometheus)

	api := r.Group("/api")

	sessionHandler := handlers.NewSessionHandler(sessions, jwt, options.devices, handlers.WithLoginLocker(options.locker))
	adminHandler := handlers.NewAdminSessionHandler(sessions, options.devices)

	// Trusted backend callers
	service := api.Group("")
	service.Use(middleware.ServiceToken(cfg.Server.ServiceToken))
	limit, window := cfg.Auth.LoginRateLimit()
	registerLoginRoutes(service, sessionHandler, middleware.RateLimit(rateStore, limit, window))
	registerAdminRoutes(service.Group("/admin"), adminHandler)

	// Session holders
	client := api.Group("/sessions")
	client.Use(middleware.Auth(jwt, sessions))
	registerSessionRoutes(client, sessionHandler)

	return r, nil
}
