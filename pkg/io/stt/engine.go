package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xpanvictor/voxcap/pkg/Logger"
)

var ErrEngineClosed = errors.New("engine closed")

// Engine runs one transcription at a time against a Transcriber and reports
// progress as Events. Requests that arrive while it is busy are dropped: the
// caller redispatches a longer buffer on its next flush anyway.
type Engine struct {
	backend Transcriber
	logger  *Logger.Logger

	events chan Event
	loaded atomic.Bool
	busy   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewEngine(backend Transcriber, logger *Logger.Logger, buffer int) *Engine {
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		backend: backend,
		logger:  logger,
		events:  make(chan Event, buffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events is closed by Close.
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) Loaded() bool {
	return e.loaded.Load()
}

// Load probes the backend and marks the engine ready. Loading twice is a no-op.
func (e *Engine) Load(ctx context.Context) error {
	if !e.acquire() {
		return ErrEngineClosed
	}
	defer e.wg.Done()
	if e.loaded.Load() {
		return nil
	}

	e.emit(Event{Status: StatusLoading})
	if err := e.backend.Probe(ctx); err != nil {
		e.emit(Event{Status: StatusError, Err: err.Error()})
		return fmt.Errorf("transcriber not reachable: %w", err)
	}

	e.loaded.Store(true)
	e.emit(Event{Status: StatusReady})
	return nil
}

// Dispatch implements Dispatcher.
func (e *Engine) Dispatch(req Request) bool {
	if !e.loaded.Load() {
		return false
	}
	if !e.busy.CompareAndSwap(false, true) {
		return false
	}
	if !e.acquire() {
		e.busy.Store(false)
		return false
	}

	go func() {
		defer e.wg.Done()
		defer e.busy.Store(false)
		e.run(req)
	}()
	return true
}

func (e *Engine) run(req Request) {
	e.emit(Event{Status: StatusStart, GenerationID: req.GenerationID})

	started := time.Now()
	res, err := e.backend.Transcribe(e.ctx, req)
	if err != nil {
		if e.ctx.Err() == nil {
			e.logger.Errorf("transcription of generation %d failed: %v", req.GenerationID, err)
		}
		e.emit(Event{Status: StatusError, GenerationID: req.GenerationID, Err: err.Error()})
		return
	}

	// one update per segment, cumulative like a token streamer
	var (
		text     strings.Builder
		segments int
	)
	for _, seg := range res.Segments {
		piece := strings.TrimSpace(seg.Text)
		if piece == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteByte(' ')
		}
		text.WriteString(piece)

		ev := Event{Status: StatusUpdate, GenerationID: req.GenerationID, Output: text.String()}
		if segments++; segments > 1 {
			if elapsed := time.Since(started).Seconds(); elapsed > 0 {
				ev.TPS = float64(segments) / elapsed
			}
		}
		ev.NumTokens = segments
		e.emit(ev)
	}

	final := strings.TrimSpace(res.Text)
	if final == "" {
		final = text.String()
	}
	e.emit(Event{Status: StatusComplete, GenerationID: req.GenerationID, Output: final})
}

func (e *Engine) emit(ev Event) {
	ev.Time = time.Now()
	select {
	case e.events <- ev:
	default:
		e.logger.Warnf("transcription event channel full, dropping %s for generation %d", ev.Status, ev.GenerationID)
	}
}

// acquire registers work that may emit events. It fails once Close has begun.
func (e *Engine) acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

// Close cancels any in-flight transcription and closes the event channel.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	close(e.events)
	return nil
}
