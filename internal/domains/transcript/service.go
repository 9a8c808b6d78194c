package transcript

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/internal/constants/prompts"
	"github.com/xpanvictor/voxcap/internal/metrics"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/assistant"
	"github.com/xpanvictor/voxcap/pkg/io/stt"
)

// Common errors
var (
	ErrBusy            = errors.New("an editor run is already in progress for this session")
	ErrSessionNotFound = errors.New("no transcript for session")
	ErrSummaryNotFound = errors.New("summary not found")
)

// Topic is the event bus topic carrying Line updates of one session.
func Topic(sessionID uuid.UUID) string {
	return "transcript:" + sessionID.String()
}

// TranscriptService turns engine events into transcript lines and runs the
// LLM editor over them.
type TranscriptService interface {
	Apply(ctx context.Context, sessionID uuid.UUID, ev stt.Event) error
	Lines(ctx context.Context, sessionID uuid.UUID) ([]Line, error)
	Cleanup(ctx context.Context, sessionID uuid.UUID) ([]Line, error)
	Summarize(ctx context.Context, sessionID uuid.UUID, fn assistant.StreamFunc) (*Summary, error)
	Summary(ctx context.Context, sessionID uuid.UUID) (*Summary, error)

	// Subscribe delivers every Line change of the session to fn until the
	// returned function is called. fn runs on the publisher's goroutine.
	Subscribe(sessionID uuid.UUID, fn func(Line)) (func(), error)
}

type transcriptService struct {
	repository Repository
	cache      LiveCache
	bus        evbus.Bus
	llm        assistant.Assistant
	metrics    *metrics.Metrics
	logger     *Logger.Logger

	mu      sync.Mutex
	running map[uuid.UUID]bool
}

func NewTranscriptService(
	repo Repository,
	cache LiveCache,
	bus evbus.Bus,
	llm assistant.Assistant,
	m *metrics.Metrics,
	logger *Logger.Logger,
) TranscriptService {
	if bus == nil {
		bus = evbus.New()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &transcriptService{
		repository: repo,
		cache:      cache,
		bus:        bus,
		llm:        llm,
		metrics:    m,
		logger:     logger,
		running:    make(map[uuid.UUID]bool),
	}
}

// Apply implements TranscriptService
func (s *transcriptService) Apply(ctx context.Context, sessionID uuid.UUID, ev stt.Event) error {
	s.metrics.TranscriptionEvents.WithLabelValues(string(ev.Status)).Inc()

	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	line := Line{
		SessionID:    sessionID,
		GenerationID: ev.GenerationID,
		TPS:          ev.TPS,
		UpdatedAt:    at,
	}

	switch ev.Status {
	case stt.StatusStart:
		if err := s.cache.Put(ctx, line); err != nil {
			return fmt.Errorf("failed to cache line: %w", err)
		}
	case stt.StatusUpdate:
		line.Text = strings.TrimSpace(ev.Output)
		if err := s.cache.Put(ctx, line); err != nil {
			return fmt.Errorf("failed to cache line: %w", err)
		}
	case stt.StatusComplete:
		line.Text = strings.TrimSpace(ev.Output)
		line.Final = true
		if err := s.finalize(ctx, &line); err != nil {
			return err
		}
	case stt.StatusError:
		s.logger.Warnf("transcription of generation %d in session %s failed: %s", ev.GenerationID, sessionID, ev.Err)
		line.Final = true
		if err := s.finalize(ctx, &line); err != nil {
			return err
		}
	default:
		return nil
	}

	s.bus.Publish(Topic(sessionID), line)
	return nil
}

func (s *transcriptService) finalize(ctx context.Context, line *Line) error {
	if line.Text != "" {
		if err := s.repository.SaveLine(ctx, line); err != nil {
			s.logger.Errorf("error saving line %d of session %s: %v", line.GenerationID, line.SessionID, err)
			return fmt.Errorf("failed to save line: %w", err)
		}
	}
	if err := s.cache.Drop(ctx, line.SessionID, line.GenerationID); err != nil {
		s.logger.Warnf("failed to drop live line %d of session %s: %v", line.GenerationID, line.SessionID, err)
	}
	return nil
}

// Lines implements TranscriptService
func (s *transcriptService) Lines(ctx context.Context, sessionID uuid.UUID) ([]Line, error) {
	persisted, err := s.repository.ListLines(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}
	live, err := s.cache.All(ctx, sessionID)
	if err != nil {
		// the live tail is best effort
		s.logger.Warnf("failed to read live lines of session %s: %v", sessionID, err)
	}

	byGen := make(map[int]Line, len(persisted)+len(live))
	for _, l := range persisted {
		byGen[l.GenerationID] = l
	}
	for _, l := range live {
		if existing, ok := byGen[l.GenerationID]; ok && existing.Final {
			continue
		}
		byGen[l.GenerationID] = l
	}

	lines := make([]Line, 0, len(byGen))
	for _, l := range byGen {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].GenerationID < lines[j].GenerationID })
	return lines, nil
}

// finalLines returns the non-blank finished lines the editor works on.
func (s *transcriptService) finalLines(ctx context.Context, sessionID uuid.UUID) ([]Line, error) {
	all, err := s.Lines(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	lines := make([]Line, 0, len(all))
	for _, l := range all {
		if l.Final && strings.TrimSpace(l.Text) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, ErrSessionNotFound
	}
	return lines, nil
}

func (s *transcriptService) acquire(sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[sessionID] {
		return ErrBusy
	}
	s.running[sessionID] = true
	return nil
}

func (s *transcriptService) release(sessionID uuid.UUID) {
	s.mu.Lock()
	delete(s.running, sessionID)
	s.mu.Unlock()
}

// transcriptMessages opens an editor conversation with the whole transcript.
func transcriptMessages(persona prompts.SYS_PROMPT, lines []Line) []assistant.AssistantMessage {
	msgs := []assistant.AssistantMessage{
		persona.GetCurrentPrompt().ToMessage(assistant.SYSTEM),
		assistant.User(prompts.TranscriptBegin),
	}
	for _, l := range lines {
		msgs = append(msgs, assistant.User(l.Text))
	}
	return append(msgs, assistant.User(prompts.TranscriptEnd))
}

// cleanReply strips the wrapping quotes and bold markers models like to add.
func cleanReply(reply string) string {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, `"`)
	reply = strings.TrimSuffix(reply, `"`)
	return strings.ReplaceAll(reply, "**", "")
}

// Cleanup implements TranscriptService
func (s *transcriptService) Cleanup(ctx context.Context, sessionID uuid.UUID) ([]Line, error) {
	if err := s.acquire(sessionID); err != nil {
		return nil, err
	}
	defer s.release(sessionID)

	lines, err := s.finalLines(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	msgs := transcriptMessages(prompts.CLEANUP_PROMPT, lines)
	for i := range lines {
		msgs = append(msgs, assistant.User(prompts.CorrectLine+lines[i].Text))
		reply, err := s.llm.Complete(ctx, msgs)
		if err != nil {
			s.metrics.EditorRuns.WithLabelValues("cleanup", "error").Inc()
			return lines, fmt.Errorf("failed to correct line %d: %w", lines[i].GenerationID, err)
		}
		msgs = append(msgs, assistant.Reply(reply))

		lines[i].Corrected = cleanReply(reply)
		lines[i].UpdatedAt = time.Now()
		if err := s.repository.SaveLine(ctx, &lines[i]); err != nil {
			s.metrics.EditorRuns.WithLabelValues("cleanup", "error").Inc()
			return lines, fmt.Errorf("failed to save corrected line: %w", err)
		}
		s.bus.Publish(Topic(sessionID), lines[i])
	}

	s.metrics.EditorRuns.WithLabelValues("cleanup", "ok").Inc()
	s.logger.Infof("cleaned up %d lines of session %s", len(lines), sessionID)
	return lines, nil
}

// Summarize implements TranscriptService
func (s *transcriptService) Summarize(ctx context.Context, sessionID uuid.UUID, fn assistant.StreamFunc) (*Summary, error) {
	if err := s.acquire(sessionID); err != nil {
		return nil, err
	}
	defer s.release(sessionID)

	lines, err := s.finalLines(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range lines {
		lines[i].Text = lines[i].Display()
	}
	if fn == nil {
		fn = func(string) error { return nil }
	}

	msgs := transcriptMessages(prompts.SUMMARY_PROMPT, lines)
	msgs = append(msgs, assistant.User(prompts.SummarizeAsk))
	output, err := s.llm.Stream(ctx, msgs, fn)
	if err != nil {
		s.metrics.EditorRuns.WithLabelValues("summary", "error").Inc()
		return nil, fmt.Errorf("failed to summarize: %w", err)
	}

	msgs = append(msgs,
		assistant.Reply(output),
		prompts.ACTION_ITEMS_PROMPT.GetCurrentPrompt().ToMessage(assistant.USER),
	)
	tasks, err := s.llm.Stream(ctx, msgs, func(reply string) error {
		return fn(output + "\n" + reply)
	})
	if err != nil {
		s.metrics.EditorRuns.WithLabelValues("summary", "error").Inc()
		return nil, fmt.Errorf("failed to list action items: %w", err)
	}

	summary := &Summary{
		SessionID:   sessionID,
		Summary:     strings.TrimSpace(output),
		ActionItems: strings.TrimSpace(tasks),
		CreatedAt:   time.Now(),
	}
	if err := s.repository.SaveSummary(ctx, summary); err != nil {
		s.metrics.EditorRuns.WithLabelValues("summary", "error").Inc()
		return nil, fmt.Errorf("failed to save summary: %w", err)
	}

	s.metrics.EditorRuns.WithLabelValues("summary", "ok").Inc()
	s.logger.Infof("summarized session %s", sessionID)
	return summary, nil
}

// Summary implements TranscriptService
func (s *transcriptService) Summary(ctx context.Context, sessionID uuid.UUID) (*Summary, error) {
	summary, err := s.repository.GetSummary(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSummaryNotFound) {
			return nil, ErrSummaryNotFound
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return summary, nil
}

// Subscribe implements TranscriptService
func (s *transcriptService) Subscribe(sessionID uuid.UUID, fn func(Line)) (func(), error) {
	topic := Topic(sessionID)
	if err := s.bus.Subscribe(topic, fn); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return func() {
		_ = s.bus.Unsubscribe(topic, fn)
	}, nil
}
