// Package api exposes the rating service and the persona directory over HTTP.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/config"
	"github.com/kapu/persona-globe-go/internal/constants"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handler, cfg config.ServerConfig, logger *zap.Logger) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(Recovery(logger), RequestLogger(logger), CORS(cfg.CORSOrigins), BodyLimit(constants.APIConfig.MaxRequestBytes))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", h.Health)
		v1.POST("/rank", h.Rank)
		v1.POST("/research/analyze-idea", h.Rank)

		v1.GET("/personas", h.ListPersonas)
		v1.GET("/personas/:id", h.GetPersona)
		v1.GET("/personas/location/:name", h.PersonasByLocation)
		v1.GET("/locations", h.Locations)

		v1.POST("/analyze", h.Analyze)
		v1.GET("/analysis/:id", h.GetAnalysis)
		v1.GET("/analyses", h.ListAnalyses)

		v1.GET("/ws", h.hub.ServeWS)
	}

	return r
}
