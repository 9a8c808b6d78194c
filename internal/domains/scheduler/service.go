package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"github.com/xpanvictor/voxcap/pkg/Logger"
)

// AsynqSchedulerService implements SchedulerService using asynq
type AsynqSchedulerService struct {
	client     *asynq.Client
	server     *asynq.Server
	inspector  *asynq.Inspector
	mux        *asynq.ServeMux
	logger     *Logger.Logger
	summarizer Summarizer
}

// AsynqSchedulerConfig holds configuration for the scheduler
type AsynqSchedulerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
}

// NewAsynqSchedulerService creates a new scheduler service
func NewAsynqSchedulerService(config AsynqSchedulerConfig, logger *Logger.Logger, summarizer Summarizer) *AsynqSchedulerService {
	redisOpt := asynq.RedisClientOpt{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 2
	}

	service := &AsynqSchedulerService{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		server: asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: config.Concurrency,
			Queues:      config.Queues,
			Logger:      NewAsynqLogger(logger),
		}),
		mux:        asynq.NewServeMux(),
		logger:     logger,
		summarizer: summarizer,
	}

	// Register job handlers
	service.mux.HandleFunc(string(JobTypeSummarize), service.HandleSummarize)

	return service
}

func summaryTaskID(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", JobTypeSummarize, sessionID)
}

// ScheduleSummary implements SchedulerService
func (s *AsynqSchedulerService) ScheduleSummary(ctx context.Context, sessionID uuid.UUID, delay time.Duration) error {
	payload := &JobPayload{
		JobType:   JobTypeSummarize,
		SessionID: sessionID,
		ExecuteAt: time.Now().Add(delay),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	task := asynq.NewTask(string(JobTypeSummarize), payloadBytes)
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.TaskID(summaryTaskID(sessionID)),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		s.logger.Debugf("summary of session %s already scheduled", sessionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Infof("Scheduled summary of session %s at %s (queue: %s, id: %s)",
		sessionID, payload.ExecuteAt.Format(time.RFC3339), info.Queue, info.ID)
	return nil
}

// HandleSummarize runs a summary job.
func (s *AsynqSchedulerService) HandleSummarize(ctx context.Context, t *asynq.Task) error {
	var payload JobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal summary payload: %v: %w", err, asynq.SkipRetry)
	}

	summary, err := s.summarizer.Summarize(ctx, payload.SessionID, nil)
	switch {
	case errors.Is(err, transcript.ErrSessionNotFound):
		s.logger.Warnf("nothing to summarize for session %s", payload.SessionID)
		return fmt.Errorf("session %s: %v: %w", payload.SessionID, err, asynq.SkipRetry)
	case err != nil:
		// busy sessions and provider failures are retried by asynq
		s.logger.Errorf("summary of session %s failed: %v", payload.SessionID, err)
		return err
	}

	s.logger.Infof("summary of session %s stored (%d chars)", payload.SessionID, len(summary.Text()))
	return nil
}

// Start starts the scheduler server
func (s *AsynqSchedulerService) Start(ctx context.Context) error {
	s.logger.Info("Starting asynq scheduler server...")
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}
	s.logger.Info("Asynq scheduler server started successfully")
	return nil
}

// Stop stops the scheduler server
func (s *AsynqSchedulerService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping asynq scheduler server...")

	s.server.Shutdown()
	s.inspector.Close()
	if err := s.client.Close(); err != nil {
		return err
	}

	s.logger.Info("Asynq scheduler server stopped")
	return nil
}

// Health checks redis is reachable through the queue inspector
func (s *AsynqSchedulerService) Health(ctx context.Context) error {
	if _, err := s.inspector.Queues(); err != nil {
		return fmt.Errorf("scheduler unhealthy: %w", err)
	}
	return nil
}
