package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sessiongate/internal/api"
	"github.com/charlesng35/sessiongate/internal/handlers/testutil"
)

func TestHealth_ReportsDependencies(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithRouterOptions(api.WithHealthCheck("cache", pingerFunc(func(context.Context) error {
		return nil
	}))))

	for _, path := range []string{"/health", "/api/health"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, w.Code, path)

		var out struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &out)
		require.Equal(t, "ok", out.Status)
		require.Equal(t, map[string]string{"database": "ok", "cache": "ok"}, out.Checks)
	}
}

func TestHealth_UnavailableDependency(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithRouterOptions(api.WithHealthCheck("cache", pingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	}))))

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "UNHEALTHY", resp.Error.Code)
	details := resp.Error.Details.(map[string]any)
	require.Equal(t, "connection refused", details["cache"])
	require.Equal(t, "ok", details["database"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Login("user-1", "203.0.113.5")

	w := env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "sessiongate_active_sessions"))
}

func TestUnknownRoute(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/unknown", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "NOT_FOUND", testutil.DecodeResponse(t, w).Error.Code)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}
