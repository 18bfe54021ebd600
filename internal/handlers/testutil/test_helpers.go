package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/sessiongate/internal/api"
	"github.com/charlesng35/sessiongate/internal/app"
	iauth "github.com/charlesng35/sessiongate/internal/auth"
	"github.com/charlesng35/sessiongate/internal/cache"
	sharedtestutil "github.com/charlesng35/sessiongate/internal/database/testutil"
	"github.com/charlesng35/sessiongate/internal/handlers"
	"github.com/charlesng35/sessiongate/internal/middleware"
	"github.com/charlesng35/sessiongate/internal/models"
	"github.com/charlesng35/sessiongate/pkg/response"
)

// ServiceToken is the shared secret accepted by the test router.
const ServiceToken = "test-service-token"

// UserAgent is a desktop Chrome user agent sent with test logins.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// RemoteAddr is the peer address of every test request.
const RemoteAddr = "192.0.2.10:50000"

// Clock is a manually advanced time source shared by the session manager and cache.
type Clock struct {
	current time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	return c.current
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Sessions *iauth.SessionManager
	Clock    *Clock
	Config   *app.Config
}

// EnvOption customises NewEnv.
type EnvOption func(*envSettings)

type envSettings struct {
	cfg        *app.Config
	routerOpts []api.RouterOption
}

// WithConfig mutates the configuration before the router is built.
func WithConfig(fn func(*app.Config)) EnvOption {
	return func(s *envSettings) {
		fn(s.cfg)
	}
}

// WithRouterOptions forwards extra options to api.NewRouter.
func WithRouterOptions(opts ...api.RouterOption) EnvOption {
	return func(s *envSettings) {
		s.routerOpts = append(s.routerOpts, opts...)
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	clock := &Clock{current: time.Date(2024, 4, 8, 10, 0, 0, 0, time.UTC)}

	settings := envSettings{
		cfg: &app.Config{
			Server: app.ServerConfig{ServiceToken: ServiceToken},
			Auth: app.AuthConfig{
				JWT: app.JWTSettings{
					Secret: "test-suite-super-secret-key-32-bytes!!",
					Issuer: "test-suite",
					TTL:    time.Hour,
				},
				Session: app.SessionSettings{
					Timeout:          30 * time.Minute,
					SingleSession:    true,
					MaxSessionsPerIP: 5,
				},
				RateLimit: app.RateLimitSettings{
					LoginRequests: 100,
					Window:        time.Minute,
				},
			},
			Monitoring: app.MonitoringConfig{
				Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			},
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}
	cfg := settings.cfg

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	store, err := iauth.NewGormSessionStore(db)
	require.NoError(t, err)

	managerCfg := cfg.Auth.SessionManagerConfig()
	managerCfg.Clock = clock.Now
	managerCfg.Logger = zap.NewNop()
	sessions, err := iauth.NewSessionManager(store, managerCfg)
	require.NoError(t, err)

	rateStore := cache.NewDatabaseStore(db, cache.WithDatabaseClock(clock.Now))

	router, err := api.NewRouter(db, jwtSvc, cfg, sessions, rateStore, settings.routerOpts...)
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Sessions: sessions,
		Clock:    clock,
		Config:   cfg,
	}
}

// LoginResult bundles the JSON response from POST /api/sessions.
type LoginResult struct {
	Session           handlers.SessionView `json:"session"`
	AccessToken       string               `json:"access_token"`
	TokenType         string               `json:"token_type"`
	ExpiresAt         time.Time            `json:"expires_at"`
	DuplicateDetected bool                 `json:"duplicate_detected"`
	EvictedSessions   int64                `json:"evicted_sessions"`
	Suspicious        bool                 `json:"suspicious"`
}

// LoginRequest mirrors the session creation payload.
type LoginRequest struct {
	UserID         string           `json:"user_id"`
	LoginType      models.LoginType `json:"login_type"`
	SocialProvider string           `json:"social_provider,omitempty"`
	ClientIP       string           `json:"client_ip,omitempty"`
	UserAgent      string           `json:"user_agent,omitempty"`
}

// Login creates a password session for userID from clientIP and returns the issued token.
func (e *Env) Login(userID, clientIP string) LoginResult {
	e.T.Helper()
	return e.LoginWith(LoginRequest{
		UserID:    userID,
		LoginType: models.LoginTypePassword,
		ClientIP:  clientIP,
		UserAgent: UserAgent,
	})
}

// LoginWith posts an arbitrary session creation payload and expects success.
func (e *Env) LoginWith(payload LoginRequest) LoginResult {
	e.T.Helper()

	w := e.ServiceRequest(http.MethodPost, "/api/sessions", payload)
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Equal(e.T, payload.UserID, result.Session.UserID)
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router with an optional bearer token.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return e.do(method, path, body, headers)
}

// ServiceRequest executes an HTTP request carrying the service token.
func (e *Env) ServiceRequest(method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.do(method, path, body, map[string]string{middleware.ServiceTokenHeader: ServiceToken})
}

func (e *Env) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = RemoteAddr
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
