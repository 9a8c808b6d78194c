package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxcap/internal/app"
	"github.com/xpanvictor/voxcap/internal/config"
	"github.com/xpanvictor/voxcap/internal/database"
	"github.com/xpanvictor/voxcap/internal/domains/sys_manager"
	"github.com/xpanvictor/voxcap/internal/handlers"
	"github.com/xpanvictor/voxcap/internal/server"
	"github.com/xpanvictor/voxcap/pkg/Logger"
)

// This is the main entry point for the capture server.
// Loads in all system components
// Exposes the capture websocket and the transcript API
func main() {
	tokenFor := flag.String("token", "", "print a signed access token for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the token printed by -token")
	flag.Parse()

	// fetch cfg
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *tokenFor != "" {
		token, err := handlers.NewTokenValidator(cfg.Auth.JWTSecret).Issue(*tokenFor, *tokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	// load global logger
	logger := Logger.New(cfg.Debug)
	defer func() { _ = logger.Sync() }()
	logger.Info("Logger initialized")

	// fetch database connection
	db, err := database.InitDB(*cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	// handle migrations
	if err := database.MigrateDB(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	rc, err := database.NewRedis(cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, logger, db, rc)
	if err != nil {
		logger.Fatalf("Failed to wire application: %v", err)
	}
	if err := application.Start(ctx); err != nil {
		logger.Fatalf("Failed to start background jobs: %v", err)
	}

	// compose router
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	capture := server.InitializeRoutes(router, application.GetServerDependencies())

	sysManager := sys_manager.NewSystemManager(logger.Named("system"))
	sysManager.RegisterTask(sys_manager.NewFuncTask("CaptureSessionSweep", cfg.Capture.SweepInterval, capture.SweepStale))
	if err := sysManager.Start(); err != nil {
		logger.Fatalf("Failed to start system tasks: %v", err)
	}

	// listen with graceful exit
	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router.Handler(),
	}
	go func() {
		logger.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server exiting: %v", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown err %v", err)
	}
	_ = sysManager.Stop()
	_ = capture.Close()
	application.Stop(shutdownCtx)
	logger.Info("Shutdown system")
}
