package app

import (
	"context"
	"fmt"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/go-redis/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/xpanvictor/voxcap/internal/config"
	"github.com/xpanvictor/voxcap/internal/domains/scheduler"
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"github.com/xpanvictor/voxcap/internal/handlers"
	"github.com/xpanvictor/voxcap/internal/metrics"
	transcriptRepo "github.com/xpanvictor/voxcap/internal/repository/transcript"
	"github.com/xpanvictor/voxcap/internal/server"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/assistant"
	"github.com/xpanvictor/voxcap/pkg/io/registry"
	memoryregistry "github.com/xpanvictor/voxcap/pkg/io/registry/memoryRegistry"
	"github.com/xpanvictor/voxcap/pkg/io/stt/whisper"
	"gorm.io/gorm"
)

const healthTimeout = 2 * time.Second

// App represents the application with all its dependencies
type App struct {
	Config          *config.Settings
	Logger          *Logger.Logger
	DB              *gorm.DB
	RC              *redis.Client
	Registry        registry.Registry
	Assistant       assistant.Assistant
	MetricsRegistry *prometheus.Registry
	Metrics         *metrics.Metrics
	Transcriber     *whisper.WhisperClient
	Auth            *handlers.TokenValidator
	// repos
	TranscriptRepo transcript.Repository
	LiveCache      transcript.LiveCache
	// services
	Transcripts transcript.TranscriptService
	Scheduler   scheduler.SchedulerService
	ServerDeps  server.Dependencies
}

// NewApp creates a new application instance with all dependencies properly wired
func NewApp(ctx context.Context, cfg *config.Settings, logger *Logger.Logger, db *gorm.DB, rc *redis.Client) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		RC:     rc,
	}

	if err := app.setupDependencies(ctx); err != nil {
		return nil, err
	}

	return app, nil
}

// setupDependencies initializes all application dependencies
func (a *App) setupDependencies(ctx context.Context) error {
	// 1. metrics and the capture slots
	a.MetricsRegistry = prometheus.NewRegistry()
	a.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.MetricsRegistry)
	a.Registry = memoryregistry.New(a.Config.Capture.MaxSessions)

	// 2. LLM editor
	llm, err := NewLLMFactory(a.Config.Assistant, a.Logger).CreateAssistant(ctx)
	if err != nil {
		return err
	}
	a.Assistant = llm

	// 3. repositories and services
	a.TranscriptRepo = transcriptRepo.NewGormTranscriptRepo(a.DB)
	a.LiveCache = transcriptRepo.NewRedisLiveCache(a.RC, a.Config.Redis.LiveTTL)
	a.Transcripts = transcript.NewTranscriptService(
		a.TranscriptRepo,
		a.LiveCache,
		evbus.New(),
		a.Assistant,
		a.Metrics,
		a.Logger.Named("transcript"),
	)
	a.Transcriber = whisper.NewWhisperClient(a.Config.Transcriber.BaseURL, a.Config.Transcriber.Timeout, a.Logger.Named("whisper"))
	a.Auth = handlers.NewTokenValidator(a.Config.Auth.JWTSecret)
	if !a.Auth.Enabled() {
		a.Logger.Warn("JWT secret not configured, API and capture endpoints are unauthenticated")
	}

	// 4. background summaries
	deps := server.Dependencies{
		Configs:     a.Config,
		Logger:      a.Logger,
		Registry:    a.Registry,
		Transcripts: a.Transcripts,
		Transcriber: a.Transcriber,
		Auth:        a.Auth,
		Metrics:     a.Metrics,
		Gatherer:    a.MetricsRegistry,
		Checks:      a.healthChecks(),
	}
	if a.Config.Jobs.Enabled {
		svc := scheduler.NewAsynqSchedulerService(scheduler.AsynqSchedulerConfig{
			RedisAddr:     a.Config.Redis.Addr,
			RedisPassword: a.Config.Redis.Password,
			RedisDB:       a.Config.Redis.DB,
			Concurrency:   a.Config.Jobs.Concurrency,
		}, a.Logger.Named("jobs"), a.Transcripts)
		a.Scheduler = svc
		deps.Summaries = svc
		deps.Checks["jobs"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
			defer cancel()
			return svc.Health(ctx)
		}
	}

	a.ServerDeps = deps
	return nil
}

func (a *App) healthChecks() map[string]handlers.HealthCheck {
	return map[string]handlers.HealthCheck{
		"database": func() error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
			defer cancel()
			return sqlDB.PingContext(ctx)
		},
		"redis": func() error {
			return a.RC.Ping().Err()
		},
		"transcriber": func() error {
			ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
			defer cancel()
			if err := a.Transcriber.Probe(ctx); err != nil {
				return fmt.Errorf("transcriber: %w", err)
			}
			return nil
		},
	}
}

// Start launches background workers
func (a *App) Start(ctx context.Context) error {
	if a.Scheduler == nil {
		return nil
	}
	return a.Scheduler.Start(ctx)
}

// Stop releases background workers and connections
func (a *App) Stop(ctx context.Context) {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(ctx); err != nil {
			a.Logger.Errorf("scheduler stop: %v", err)
		}
	}
	if err := a.RC.Close(); err != nil {
		a.Logger.Errorf("redis close: %v", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// GetServerDependencies returns the server dependencies
func (a *App) GetServerDependencies() server.Dependencies {
	return a.ServerDeps
}
