package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/sessiongate/internal/app"
	"github.com/charlesng35/sessiongate/internal/handlers"
)

const defaultMetricsEndpoint = "/metrics"

func registerHealthRoutes(r *gin.Engine, db *gorm.DB, checks map[string]handlers.Pinger) {
	health := handlers.Health(db, checks)
	r.GET("/health", health)
	r.GET("/api/health", health)
}

func registerMetricsRoutes(r *gin.Engine, cfg app.PrometheusConfig) {
	if !cfg.Enabled {
		return
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultMetricsEndpoint
	}
	r.GET(endpoint, gin.WrapH(promhttp.Handler()))
}
