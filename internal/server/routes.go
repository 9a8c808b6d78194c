package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xpanvictor/voxcap/internal/config"
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"github.com/xpanvictor/voxcap/internal/handlers"
	"github.com/xpanvictor/voxcap/internal/handlers/websocket"
	"github.com/xpanvictor/voxcap/internal/metrics"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/io/registry"
	"github.com/xpanvictor/voxcap/pkg/io/stt"
)

// Dependencies is everything the HTTP surface needs. Summaries is nil when
// background jobs are disabled.
type Dependencies struct {
	Configs     *config.Settings
	Logger      *Logger.Logger
	Registry    registry.Registry
	Transcripts transcript.TranscriptService
	Transcriber stt.Transcriber
	Summaries   websocket.SummaryScheduler
	Auth        *handlers.TokenValidator
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Checks      map[string]handlers.HealthCheck
}

// InitializeRoutes mounts every route on r. The returned handler owns the
// live capture sessions and must be closed on shutdown.
func InitializeRoutes(r *gin.Engine, dep Dependencies) *websocket.WebSocketHandler {
	if dep.Auth == nil {
		dep.Auth = handlers.NewTokenValidator("")
	}
	r.Use(handlers.RequestLoggerMiddleware(dep.Logger))
	r.Use(handlers.ErrorHandlerMiddleware(dep.Logger))
	r.Use(handlers.CORSMiddleware())

	sessionHandler := handlers.NewSessionHandler(dep.Registry, dep.Checks)
	transcriptHandler := handlers.NewTranscriptHandler(dep.Transcripts, dep.Logger)

	r.GET("/", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"message": "Server healthy"}) })
	r.GET("/health", sessionHandler.Health)
	if dep.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(dep.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.Use(handlers.AuthMiddleware(dep.Auth, dep.Logger))
	{
		v1.GET("/sessions", sessionHandler.ListSessions)

		session := v1.Group("/sessions/:id")
		session.GET("/lines", transcriptHandler.GetLines)
		session.POST("/cleanup", transcriptHandler.Cleanup)
		session.POST("/summary", transcriptHandler.Summarize)
		session.GET("/summary", transcriptHandler.GetSummary)
	}

	ws := websocket.NewWebSocketHandler(dep.Logger.Named("capture"), websocket.Dependencies{
		Config:      dep.Configs,
		Transcriber: dep.Transcriber,
		Transcripts: dep.Transcripts,
		Summaries:   dep.Summaries,
		Registry:    dep.Registry,
		Auth:        dep.Auth,
		Metrics:     dep.Metrics,
	})
	ws.RegisterRoutes(r)
	return ws
}
