package transcript

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/assistant"
	"github.com/xpanvictor/voxcap/pkg/io/stt"
)

type memRepo struct {
	mu        sync.Mutex
	lines     map[uuid.UUID]map[int]Line
	summaries map[uuid.UUID]Summary
}

func newMemRepo() *memRepo {
	return &memRepo{lines: map[uuid.UUID]map[int]Line{}, summaries: map[uuid.UUID]Summary{}}
}

func (r *memRepo) SaveLine(_ context.Context, l *Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lines[l.SessionID] == nil {
		r.lines[l.SessionID] = map[int]Line{}
	}
	r.lines[l.SessionID][l.GenerationID] = *l
	return nil
}

func (r *memRepo) ListLines(_ context.Context, id uuid.UUID) ([]Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Line
	for _, l := range r.lines[id] {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GenerationID < out[j].GenerationID })
	return out, nil
}

func (r *memRepo) SaveSummary(_ context.Context, s *Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[s.SessionID] = *s
	return nil
}

func (r *memRepo) GetSummary(_ context.Context, id uuid.UUID) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.summaries[id]
	if !ok {
		return nil, ErrSummaryNotFound
	}
	return &s, nil
}

type memCache struct {
	mu    sync.Mutex
	lines map[uuid.UUID]map[int]Line
}

func newMemCache() *memCache { return &memCache{lines: map[uuid.UUID]map[int]Line{}} }

func (c *memCache) Put(_ context.Context, l Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lines[l.SessionID] == nil {
		c.lines[l.SessionID] = map[int]Line{}
	}
	c.lines[l.SessionID][l.GenerationID] = l
	return nil
}

func (c *memCache) All(_ context.Context, id uuid.UUID) ([]Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Line
	for _, l := range c.lines[id] {
		out = append(out, l)
	}
	return out, nil
}

func (c *memCache) Drop(_ context.Context, id uuid.UUID, gen int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lines[id], gen)
	return nil
}

// scriptedLLM answers from a queue and records every conversation it saw.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	seen    [][]assistant.AssistantMessage
	block   chan struct{}
	err     error
}

func (l *scriptedLLM) next(msgs []assistant.AssistantMessage) (string, error) {
	if l.block != nil {
		<-l.block
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, append([]assistant.AssistantMessage(nil), msgs...))
	if l.err != nil {
		return "", l.err
	}
	if len(l.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := l.replies[0]
	l.replies = l.replies[1:]
	return r, nil
}

func (l *scriptedLLM) Complete(_ context.Context, msgs []assistant.AssistantMessage) (string, error) {
	return l.next(msgs)
}

func (l *scriptedLLM) Stream(_ context.Context, msgs []assistant.AssistantMessage, fn assistant.StreamFunc) (string, error) {
	r, err := l.next(msgs)
	if err != nil {
		return "", err
	}
	words := strings.SplitAfter(r, " ")
	acc := ""
	for _, w := range words {
		acc += w
		if err := fn(acc); err != nil {
			return acc, err
		}
	}
	return r, nil
}

func newTestService(llm assistant.Assistant) (*transcriptService, *memRepo, *memCache) {
	repo, cache := newMemRepo(), newMemCache()
	svc := NewTranscriptService(repo, cache, evbus.New(), llm, nil, Logger.NewNop())
	return svc.(*transcriptService), repo, cache
}

func seed(t *testing.T, svc TranscriptService, id uuid.UUID, texts ...string) {
	t.Helper()
	for gen, text := range texts {
		for _, ev := range []stt.Event{
			{Status: stt.StatusStart, GenerationID: gen},
			{Status: stt.StatusComplete, GenerationID: gen, Output: text},
		} {
			if err := svc.Apply(context.Background(), id, ev); err != nil {
				t.Fatalf("Apply: %v", err)
			}
		}
	}
}

func TestApplyLifecycle(t *testing.T) {
	svc, repo, cache := newTestService(&scriptedLLM{})
	id := uuid.New()
	ctx := context.Background()

	var published []Line
	unsubscribe, err := svc.Subscribe(id, func(l Line) { published = append(published, l) })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	events := []stt.Event{
		{Status: stt.StatusLoading},
		{Status: stt.StatusStart, GenerationID: 0},
		{Status: stt.StatusUpdate, GenerationID: 0, Output: " hello", TPS: 3},
		{Status: stt.StatusUpdate, GenerationID: 0, Output: " hello world"},
	}
	for _, ev := range events {
		if err := svc.Apply(ctx, id, ev); err != nil {
			t.Fatalf("Apply(%s): %v", ev.Status, err)
		}
	}

	lines, _ := svc.Lines(ctx, id)
	if len(lines) != 1 || lines[0].Text != "hello world" || lines[0].Final {
		t.Fatalf("live lines = %+v", lines)
	}
	if len(published) != 3 {
		t.Errorf("expected 3 published changes, got %d", len(published))
	}

	if err := svc.Apply(ctx, id, stt.Event{Status: stt.StatusComplete, GenerationID: 0, Output: "hello world."}); err != nil {
		t.Fatalf("Apply(complete): %v", err)
	}
	live, _ := cache.All(ctx, id)
	if len(live) != 0 {
		t.Errorf("completed line should leave the live cache, got %+v", live)
	}
	stored, _ := repo.ListLines(ctx, id)
	if len(stored) != 1 || !stored[0].Final || stored[0].Text != "hello world." {
		t.Errorf("stored = %+v", stored)
	}
}

func TestApplyErrorFinalizesEmpty(t *testing.T) {
	svc, repo, _ := newTestService(&scriptedLLM{})
	id := uuid.New()
	ctx := context.Background()

	_ = svc.Apply(ctx, id, stt.Event{Status: stt.StatusStart, GenerationID: 4})
	_ = svc.Apply(ctx, id, stt.Event{Status: stt.StatusError, GenerationID: 4, Err: "boom"})

	lines, _ := svc.Lines(ctx, id)
	if len(lines) != 0 {
		t.Errorf("failed generation should not leave a line, got %+v", lines)
	}
	stored, _ := repo.ListLines(ctx, id)
	if len(stored) != 0 {
		t.Errorf("empty line persisted: %+v", stored)
	}
}

func TestLinesOrderedWithLiveTail(t *testing.T) {
	svc, _, _ := newTestService(&scriptedLLM{})
	id := uuid.New()
	ctx := context.Background()

	seed(t, svc, id, "first", "second")
	_ = svc.Apply(ctx, id, stt.Event{Status: stt.StatusUpdate, GenerationID: 2, Output: "third so far"})

	lines, err := svc.Lines(ctx, id)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	got := make([]string, len(lines))
	for i, l := range lines {
		got[i] = l.Text
	}
	if strings.Join(got, "|") != "first|second|third so far" {
		t.Errorf("lines = %v", got)
	}
}

func TestCleanup(t *testing.T) {
	llm := &scriptedLLM{replies: []string{`"Hello there."`, "**General** Kenobi."}}
	svc, repo, _ := newTestService(llm)
	id := uuid.New()
	seed(t, svc, id, "hello there", "general kenobi")

	lines, err := svc.Cleanup(context.Background(), id)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if lines[0].Corrected != "Hello there." || lines[1].Corrected != "General Kenobi." {
		t.Errorf("corrected = %q, %q", lines[0].Corrected, lines[1].Corrected)
	}

	first := llm.seen[0]
	if first[0].MsgRole != assistant.SYSTEM || first[1].Content != "BEGIN TRANSCRIPT" || first[4].Content != "END TRANSCRIPT" {
		t.Errorf("unexpected conversation prefix %+v", first[:5])
	}
	if last := first[len(first)-1].Content; last != "Correct this line: hello there" {
		t.Errorf("first prompt = %q", last)
	}
	if last := llm.seen[1][len(llm.seen[1])-1].Content; last != "Correct this line: general kenobi" {
		t.Errorf("second prompt = %q", last)
	}

	stored, _ := repo.ListLines(context.Background(), id)
	if stored[1].Corrected != "General Kenobi." || stored[1].Text != "general kenobi" {
		t.Errorf("stored = %+v", stored[1])
	}
}

func TestCleanupWithoutLines(t *testing.T) {
	svc, _, _ := newTestService(&scriptedLLM{})
	if _, err := svc.Cleanup(context.Background(), uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"We planned the release.", "* ship the beta"}}
	svc, _, _ := newTestService(llm)
	id := uuid.New()
	seed(t, svc, id, "let's plan the release", "someone ship the beta")

	var last string
	summary, err := svc.Summarize(context.Background(), id, func(reply string) error {
		last = reply
		return nil
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Summary != "We planned the release." || summary.ActionItems != "* ship the beta" {
		t.Errorf("summary = %+v", summary)
	}
	if last != "We planned the release.\n* ship the beta" {
		t.Errorf("last streamed = %q", last)
	}

	followUp := llm.seen[1]
	if followUp[len(followUp)-2].MsgRole != assistant.ASSISTANT {
		t.Errorf("follow-up should carry the summary reply")
	}
	if !strings.HasPrefix(followUp[len(followUp)-1].Content, "If there are any action items") {
		t.Errorf("follow-up prompt = %q", followUp[len(followUp)-1].Content)
	}

	stored, err := svc.Summary(context.Background(), id)
	if err != nil || stored.Text() != last {
		t.Errorf("Summary() = %+v, %v", stored, err)
	}
}

func TestSummaryNotFound(t *testing.T) {
	svc, _, _ := newTestService(&scriptedLLM{})
	if _, err := svc.Summary(context.Background(), uuid.New()); !errors.Is(err, ErrSummaryNotFound) {
		t.Errorf("expected ErrSummaryNotFound, got %v", err)
	}
}

func TestEditorRunsAreExclusive(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"a", "b"}, block: make(chan struct{})}
	svc, _, _ := newTestService(llm)
	id := uuid.New()
	seed(t, svc, id, "one")

	done := make(chan error, 1)
	go func() {
		_, err := svc.Cleanup(context.Background(), id)
		done <- err
	}()

	// wait until the first run holds the session
	deadline := time.Now().Add(time.Second)
	for {
		svc.mu.Lock()
		busy := svc.running[id]
		svc.mu.Unlock()
		if busy || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := svc.Summarize(context.Background(), id, nil); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	close(llm.block)
	if err := <-done; err != nil {
		t.Errorf("Cleanup: %v", err)
	}
}

func TestCleanupLLMFailure(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("model offline")}
	svc, _, _ := newTestService(llm)
	id := uuid.New()
	seed(t, svc, id, "one")

	if _, err := svc.Cleanup(context.Background(), id); err == nil {
		t.Error("expected error")
	}
	// the session is released after a failure
	llm.err = nil
	llm.replies = []string{"One."}
	if _, err := svc.Cleanup(context.Background(), id); err != nil {
		t.Errorf("second Cleanup: %v", err)
	}
}
