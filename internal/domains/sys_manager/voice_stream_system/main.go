package voicestreamsystem

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/internal/domains/sys_manager/runtime"
	"github.com/xpanvictor/voxcap/internal/metrics"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/io/stt"
	"github.com/xpanvictor/voxcap/pkg/io/stt/decode"
	"github.com/xpanvictor/voxcap/pkg/io/stt/vad"
)

// Dependencies are the collaborators of a capture session
type Dependencies struct {
	Analyzer   vad.Analyzer
	Dispatcher stt.Dispatcher
	Recorder   Recorder
	Observer   Observer
	Decoders   DecoderFactory
	Metrics    *metrics.Metrics
}

// VSS is the capture session controller: it drives the recorder, analyzes
// every flush and decides what reaches the transcription engine.
type VSS struct {
	sessionID uuid.UUID
	config    VSSConfig
	logger    *Logger.Logger

	analyzer   vad.Analyzer
	dispatcher stt.Dispatcher
	recorder   Recorder
	observer   Observer
	decoders   DecoderFactory
	decoder    decode.Decoder
	metrics    *metrics.Metrics

	runtime *runtime.CaptureRuntime
	session session
	ticker  *time.Ticker

	status     atomic.Value // runtime.Status
	generation atomic.Int64

	inCh chan VSSEvent
	done chan struct{}
}

// NewVSS creates a capture session. Run must be started before any command.
func NewVSS(sessionID uuid.UUID, vssConfig VSSConfig, deps Dependencies, logger *Logger.Logger) *VSS {
	def := DefaultVSSConfig()
	if vssConfig.SampleRate <= 0 {
		vssConfig.SampleRate = def.SampleRate
	}
	if vssConfig.FlushInterval <= 0 {
		vssConfig.FlushInterval = def.FlushInterval
	}
	if vssConfig.IdleCeiling <= 0 {
		vssConfig.IdleCeiling = def.IdleCeiling
	}
	if vssConfig.LoadTimeout <= 0 {
		vssConfig.LoadTimeout = def.LoadTimeout
	}
	if vssConfig.RestartTimeout <= 0 {
		vssConfig.RestartTimeout = def.RestartTimeout
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Decoders == nil {
		deps.Decoders = decode.ForMimeType
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}

	v := &VSS{
		sessionID:  sessionID,
		config:     vssConfig,
		logger:     logger,
		analyzer:   deps.Analyzer,
		dispatcher: deps.Dispatcher,
		recorder:   deps.Recorder,
		observer:   deps.Observer,
		decoders:   deps.Decoders,
		metrics:    deps.Metrics,
		inCh:       make(chan VSSEvent, 256),
		done:       make(chan struct{}),
	}
	v.status.Store(runtime.IDLE)
	v.generation.Store(-1)
	v.runtime = runtime.NewCaptureRuntime(sessionID.String(), func(from, to runtime.Status) {
		v.status.Store(to)
		v.observer.OnStatus(from, to)
	})
	return v
}

func (v *VSS) SessionID() uuid.UUID {
	return v.sessionID
}

// Status is safe to call from any goroutine.
func (v *VSS) Status() runtime.Status {
	return v.status.Load().(runtime.Status)
}

// Generation returns the current utterance id, -1 before the first recording.
func (v *VSS) Generation() int {
	return int(v.generation.Load())
}

// Run starts the VSS processing loop
func (v *VSS) Run(ctx context.Context) {
	defer close(v.done)
	defer v.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case event := <-v.inCh:
			v.handleEvent(ctx, event)

		case <-v.tick():
			v.handleTick(ctx)
		}
	}
}

// Done is closed when Run has returned.
func (v *VSS) Done() <-chan struct{} {
	return v.done
}

// Load acquires the engine and the microphone. A failure leaves the session idle.
func (v *VSS) Load(ctx context.Context) error { return v.submit(ctx, EventLoad) }

// Record starts a new utterance.
func (v *VSS) Record(ctx context.Context) error { return v.submit(ctx, EventRecord) }

func (v *VSS) Pause(ctx context.Context) error { return v.submit(ctx, EventPause) }

// Close releases the microphone and returns to idle.
func (v *VSS) Close(ctx context.Context) error { return v.submit(ctx, EventClose) }

// PushChunk delivers a recorder "data available" notification.
func (v *VSS) PushChunk(chunk []byte) {
	v.push(VSSEvent{Type: EventChunk, Chunk: chunk})
}

// NotifyStopped delivers the recorder "stopped" notification.
func (v *VSS) NotifyStopped() {
	v.push(VSSEvent{Type: EventStopped})
}

func (v *VSS) push(event VSSEvent) {
	event.SessionID = v.sessionID
	event.Timestamp = time.Now()
	select {
	case v.inCh <- event:
	case <-v.done:
	}
}

func (v *VSS) submit(ctx context.Context, typ EventType) error {
	reply := make(chan error, 1)
	event := VSSEvent{Type: typ, SessionID: v.sessionID, Timestamp: time.Now(), ctx: ctx, reply: reply}

	select {
	case v.inCh <- event:
	case <-ctx.Done():
		return ctx.Err()
	case <-v.done:
		return ErrVSSStopped
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-v.done:
		return ErrVSSStopped
	}
}

// handleEvent processes incoming events
func (v *VSS) handleEvent(ctx context.Context, event VSSEvent) {
	var err error
	switch event.Type {
	case EventChunk:
		v.handleChunk(ctx, event.Chunk)
		return

	case EventStopped:
		v.handleStopped(ctx)
		return

	case EventLoad:
		err = v.handleLoad(event.ctx)

	case EventRecord:
		err = v.handleRecord(event.ctx)

	case EventPause:
		err = v.handlePause(event.ctx)

	case EventClose:
		err = v.handleClose(event.ctx)

	default:
		err = fmt.Errorf("unknown event type %s", event.Type)
		v.logger.Warnf("Unknown event type %s for session %s", event.Type, v.sessionID)
	}

	if event.reply != nil {
		event.reply <- err
	}
}

func (v *VSS) handleLoad(ctx context.Context) error {
	if err := v.runtime.Fire(ctx, runtime.LOAD); err != nil {
		return err
	}

	loadCtx, cancel := context.WithTimeout(ctx, v.config.LoadTimeout)
	defer cancel()

	if err := v.dispatcher.Load(loadCtx); err != nil {
		v.failLoad(ctx)
		return fmt.Errorf("transcription engine failed to load: %w", err)
	}

	mimeType, err := v.recorder.Open(loadCtx, v.config.constraints())
	if err != nil {
		v.failLoad(ctx)
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	dec, err := v.decoders(mimeType, v.config.SampleRate)
	if err != nil {
		_ = v.recorder.Close()
		v.failLoad(ctx)
		return fmt.Errorf("%w: recorder format: %v", ErrCaptureUnavailable, err)
	}
	v.decoder = dec

	v.logger.Infof("Session %s ready, recorder produces %s", v.sessionID, mimeType)
	return v.runtime.Fire(ctx, runtime.READY)
}

func (v *VSS) failLoad(ctx context.Context) {
	if err := v.runtime.Fire(ctx, runtime.FAIL); err != nil {
		v.logger.Errorf("Session %s could not leave loading: %v", v.sessionID, err)
	}
}

func (v *VSS) handleRecord(ctx context.Context) error {
	if !v.runtime.Can(runtime.RECORD) {
		return fmt.Errorf("%w: record from %s", runtime.ErrInvalidTransition, v.Status())
	}

	if err := v.recorder.Start(ctx); err != nil {
		return fmt.Errorf("failed to start recorder: %w", err)
	}
	gen := v.session.startUtterance()
	v.session.restarting = false
	v.generation.Store(int64(gen))

	if err := v.runtime.Fire(ctx, runtime.RECORD); err != nil {
		return err
	}
	v.armTicker()

	v.logger.Debugf("Session %s recording utterance %d", v.sessionID, gen)
	return nil
}

func (v *VSS) handlePause(ctx context.Context) error {
	if err := v.runtime.Fire(ctx, runtime.PAUSE); err != nil {
		return err
	}
	v.disarmTicker()
	v.session.clear()
	if v.session.restarting {
		// the boundary stop is already in flight
		v.session.restarting = false
		return nil
	}

	if err := v.recorder.Stop(ctx); err != nil {
		v.logger.Warnf("Session %s: recorder stop failed: %v", v.sessionID, err)
		return nil
	}
	v.session.pendingStops++
	return nil
}

func (v *VSS) handleClose(ctx context.Context) error {
	if v.Status() == runtime.IDLE {
		return nil
	}
	v.disarmTicker()
	v.session.clear()
	v.session.restarting = false
	v.session.pendingStops = 0

	if err := v.recorder.Close(); err != nil {
		v.logger.Warnf("Session %s: recorder close failed: %v", v.sessionID, err)
	}
	return v.runtime.Fire(ctx, runtime.CLOSE)
}

// handleStopped matches the notification against the oldest unconfirmed stop.
// Stops issued by a pause carry no work; the one issued by a boundary restarts
// the recorder once nothing older is outstanding.
func (v *VSS) handleStopped(ctx context.Context) {
	if v.session.pendingStops == 0 {
		v.logger.Debugf("Session %s: ignoring unexpected stopped notification", v.sessionID)
		return
	}
	v.session.pendingStops--
	if !v.session.restarting || v.session.pendingStops > 0 {
		return
	}
	v.resumeAfterRestart(ctx)
}

// resumeAfterRestart starts the recorder for the new utterance. If the
// recorder refuses, the session falls back to paused.
func (v *VSS) resumeAfterRestart(ctx context.Context) {
	v.session.restarting = false
	if v.Status() != runtime.RECORDING {
		return
	}
	if err := v.recorder.Start(ctx); err != nil {
		v.logger.Errorf("Session %s: recorder restart failed, pausing: %v", v.sessionID, err)
		v.disarmTicker()
		if err := v.runtime.Fire(ctx, runtime.PAUSE); err != nil {
			v.logger.Errorf("Session %s could not pause: %v", v.sessionID, err)
		}
	}
}

func (v *VSS) handleChunk(ctx context.Context, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if v.Status() != runtime.RECORDING {
		v.logger.Debugf("Session %s: dropping %d byte chunk while %s", v.sessionID, len(chunk), v.Status())
		return
	}
	if v.session.restarting {
		// tail of the utterance that just ended
		v.logger.Debugf("Session %s: dropping %d byte chunk during restart", v.sessionID, len(chunk))
		return
	}

	v.session.append(chunk)
	v.flush(ctx)
}

// flush decodes everything recorded in this utterance and acts on the verdict
func (v *VSS) flush(ctx context.Context) {
	started := time.Now()

	samples, err := v.decoder.Decode(ctx, v.session.stream())
	if err != nil {
		v.metrics.DecodeFailures.Inc()
		v.logger.Warnf("Session %s: discarding flush of %d chunks: %v", v.sessionID, len(v.session.chunks), err)
		return
	}

	res := v.analyzer.Analyze(samples)
	v.metrics.RecordFlush(time.Since(started).Seconds(), res.HasSpeech)
	v.observer.OnFlush(samples, res)

	if !res.HasSpeech {
		return
	}

	req := stt.Request{
		Audio:        samples,
		SampleRate:   v.config.SampleRate,
		Language:     v.config.Language,
		GenerationID: v.session.generation,
	}
	accepted := v.dispatcher.Dispatch(req)
	v.metrics.RecordDispatch(accepted)
	if accepted {
		v.observer.OnDispatch(req, res)
	} else {
		v.logger.Debugf("Session %s: engine busy, generation %d not dispatched", v.sessionID, req.GenerationID)
	}

	if res.Idle() > v.config.IdleCeiling {
		v.restartUtterance(ctx)
	}
}

// restartUtterance ends the current generation without a visible status change
func (v *VSS) restartUtterance(ctx context.Context) {
	if err := v.runtime.Fire(ctx, runtime.RESTART); err != nil {
		v.logger.Errorf("Session %s: restart rejected: %v", v.sessionID, err)
		return
	}

	prev := v.session.generation
	next := v.session.startUtterance()
	v.session.restarting = true
	v.session.restartedAt = time.Now()
	v.generation.Store(int64(next))
	v.metrics.Boundaries.Inc()
	v.observer.OnBoundary(prev, next)
	v.logger.Debugf("Session %s: utterance %d ended after silence, starting %d", v.sessionID, prev, next)

	if err := v.recorder.Stop(ctx); err != nil {
		v.session.restarting = false
		v.logger.Errorf("Session %s: recorder stop failed during restart: %v", v.sessionID, err)
		return
	}
	v.session.pendingStops++
}

func (v *VSS) handleTick(ctx context.Context) {
	if v.Status() != runtime.RECORDING {
		return
	}
	if v.session.restarting {
		if time.Since(v.session.restartedAt) >= v.config.RestartTimeout {
			v.logger.Warnf("Session %s: recorder did not report stopped within %s, restarting anyway", v.sessionID, v.config.RestartTimeout)
			v.session.pendingStops = 0
			v.resumeAfterRestart(ctx)
		}
		return
	}
	if err := v.recorder.RequestData(ctx); err != nil {
		v.logger.Warnf("Session %s: flush request failed: %v", v.sessionID, err)
	}
}

func (v *VSS) tick() <-chan time.Time {
	if v.ticker == nil {
		return nil
	}
	return v.ticker.C
}

func (v *VSS) armTicker() {
	v.disarmTicker()
	v.ticker = time.NewTicker(v.config.FlushInterval)
}

func (v *VSS) disarmTicker() {
	if v.ticker != nil {
		v.ticker.Stop()
		v.ticker = nil
	}
}

func (v *VSS) shutdown() {
	v.disarmTicker()
	if v.Status() != runtime.IDLE {
		_ = v.recorder.Close()
		_ = v.runtime.Fire(context.Background(), runtime.CLOSE)
	}
}
