package voicestreamsystem

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/internal/domains/sys_manager/runtime"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/io/stt"
	"github.com/xpanvictor/voxcap/pkg/io/stt/decode"
	"github.com/xpanvictor/voxcap/pkg/io/stt/vad"
)

const rate = 16000

type fakeRecorder struct {
	mu          sync.Mutex
	mimeType    string
	openErr     error
	startErr    error
	constraints Constraints
	calls       chan string
	requests    int
}

func newFakeRecorder(mimeType string) *fakeRecorder {
	return &fakeRecorder{mimeType: mimeType, calls: make(chan string, 1024)}
}

func (r *fakeRecorder) Open(ctx context.Context, c Constraints) (string, error) {
	r.constraints = c
	r.calls <- "open"
	return r.mimeType, r.openErr
}
func (r *fakeRecorder) Stop(ctx context.Context) error { r.calls <- "stop"; return nil }
func (r *fakeRecorder) Close() error                   { r.calls <- "close"; return nil }

func (r *fakeRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	err := r.startErr
	r.mu.Unlock()
	r.calls <- "start"
	return err
}

func (r *fakeRecorder) failStart(err error) {
	r.mu.Lock()
	r.startErr = err
	r.mu.Unlock()
}
func (r *fakeRecorder) RequestData(ctx context.Context) error {
	r.mu.Lock()
	r.requests++
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) requestCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

type fakeDispatcher struct {
	loadErr error
	busy    bool
}

func (d *fakeDispatcher) Load(ctx context.Context) error { return d.loadErr }
func (d *fakeDispatcher) Dispatch(req stt.Request) bool  { return !d.busy }

type recordingObserver struct {
	mu         sync.Mutex
	statuses   []runtime.Status
	flushes    chan vad.Result
	dispatches chan stt.Request
	boundaries chan [2]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		flushes:    make(chan vad.Result, 64),
		dispatches: make(chan stt.Request, 64),
		boundaries: make(chan [2]int, 64),
	}
}

func (o *recordingObserver) OnStatus(from, to runtime.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, to)
}
func (o *recordingObserver) OnFlush(samples []float32, res vad.Result)  { o.flushes <- res }
func (o *recordingObserver) OnDispatch(req stt.Request, res vad.Result) { o.dispatches <- req }
func (o *recordingObserver) OnBoundary(prev, next int)                  { o.boundaries <- [2]int{prev, next} }

func (o *recordingObserver) statusLog() []runtime.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]runtime.Status(nil), o.statuses...)
}

func pcm(seconds float64, amplitude float32) []byte {
	n := int(seconds * rate)
	out := make([]byte, 2*n)
	v := int16(amplitude * 32767)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

type harness struct {
	vss      *VSS
	recorder *fakeRecorder
	disp     *fakeDispatcher
	obs      *recordingObserver
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, cfg VSSConfig, mimeType string) *harness {
	t.Helper()
	h := &harness{
		recorder: newFakeRecorder(mimeType),
		disp:     &fakeDispatcher{},
		obs:      newRecordingObserver(),
	}
	analyzer := vad.NewEnergyAnalyzer(vad.Config{EnergyThreshold: 0.01, FrameSize: 2048, MinDuration: 0.1, SampleRate: rate})
	h.vss = NewVSS(uuid.New(), cfg, Dependencies{
		Analyzer:   analyzer,
		Dispatcher: h.disp,
		Recorder:   h.recorder,
		Observer:   h.obs,
	}, Logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.vss.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.vss.Done()
	})
	return h
}

func testConfig() VSSConfig {
	cfg := DefaultVSSConfig()
	cfg.FlushInterval = time.Hour // flushes are driven by the test
	return cfg
}

func (h *harness) expectCall(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-h.recorder.calls:
		if got != want {
			t.Fatalf("expected recorder %s, got %s", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for recorder %s", want)
	}
}

func (h *harness) flush(t *testing.T, chunk []byte) vad.Result {
	t.Helper()
	h.vss.PushChunk(chunk)
	select {
	case res := <-h.obs.flushes:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
	}
	return vad.Result{}
}

func (h *harness) noCall(t *testing.T) {
	t.Helper()
	select {
	case got := <-h.recorder.calls:
		t.Fatalf("unexpected recorder %s", got)
	default:
	}
}

func (h *harness) waitStatus(t *testing.T, want runtime.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.vss.Status() != want {
		if time.Now().After(deadline) {
			t.Fatalf("status = %s, want %s", h.vss.Status(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// endUtterance records speech followed by enough silence to cross the idle ceiling.
func (h *harness) endUtterance(t *testing.T) {
	t.Helper()
	h.flush(t, pcm(0.2, 0.5))
	h.dispatched(t)
	h.flush(t, pcm(3.5, 0))
	h.dispatched(t)
	select {
	case <-h.obs.boundaries:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an utterance boundary")
	}
	h.expectCall(t, "stop")
}

func (h *harness) noDispatch(t *testing.T) {
	t.Helper()
	select {
	case req := <-h.obs.dispatches:
		t.Fatalf("unexpected dispatch of generation %d", req.GenerationID)
	default:
	}
}

func (h *harness) dispatched(t *testing.T) stt.Request {
	t.Helper()
	select {
	case req := <-h.obs.dispatches:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
	return stt.Request{}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := h.vss.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.expectCall(t, "open")
	if err := h.vss.Record(ctx); err != nil {
		t.Fatalf("Record: %v", err)
	}
	h.expectCall(t, "start")
}

func TestSessionScenario(t *testing.T) {
	h := newHarness(t, testConfig(), "audio/pcm;rate=16000")
	h.start(t)

	if h.vss.Generation() != 0 {
		t.Fatalf("first utterance should be generation 0, got %d", h.vss.Generation())
	}
	want := Constraints{SampleRate: rate, ChannelCount: 1, EchoCancellation: true, NoiseSuppression: true}
	if h.recorder.constraints != want {
		t.Errorf("constraints = %+v, want %+v", h.recorder.constraints, want)
	}

	// 0.05s of speech is below minDuration
	if res := h.flush(t, pcm(0.05, 0.5)); res.HasSpeech {
		t.Errorf("0.05s should not be speech")
	}
	h.noDispatch(t)

	// 0.15s total
	if res := h.flush(t, pcm(0.1, 0.5)); !res.HasSpeech {
		t.Fatalf("0.15s should be speech, details %+v", res.Details)
	}
	req := h.dispatched(t)
	if req.GenerationID != 0 || req.Language != "en" || req.SampleRate != rate {
		t.Errorf("unexpected request %+v", req)
	}
	if len(req.Audio) != 2400 {
		t.Errorf("dispatch should carry the whole utterance, got %d samples", len(req.Audio))
	}

	// 3.5s of trailing silence ends the utterance
	res := h.flush(t, pcm(3.5, 0))
	if !res.HasSpeech || res.Details.IdleDuration <= 3 {
		t.Fatalf("expected speech with long idle, details %+v", res.Details)
	}
	if req := h.dispatched(t); req.GenerationID != 0 {
		t.Errorf("final dispatch belongs to generation 0, got %d", req.GenerationID)
	}
	select {
	case b := <-h.obs.boundaries:
		if b != [2]int{0, 1} {
			t.Errorf("boundary = %v, want [0 1]", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an utterance boundary")
	}
	h.expectCall(t, "stop")

	if h.vss.Generation() != 1 {
		t.Errorf("expected generation 1, got %d", h.vss.Generation())
	}
	if h.vss.Status() != runtime.RECORDING {
		t.Errorf("status should stay recording, got %s", h.vss.Status())
	}

	// the old recording's tail is discarded, then the recorder is restarted
	h.vss.PushChunk(pcm(0.2, 0.5))
	h.vss.NotifyStopped()
	h.expectCall(t, "start")

	// the new utterance only sees its own audio
	if res := h.flush(t, pcm(0.15, 0.5)); !res.HasSpeech || res.Details.TotalFrames != 1 {
		t.Errorf("new utterance should start from an empty buffer, details %+v", res.Details)
	}
	if req := h.dispatched(t); req.GenerationID != 1 {
		t.Errorf("expected generation 1, got %d", req.GenerationID)
	}

	wantStatuses := []runtime.Status{runtime.LOADING, runtime.PAUSED, runtime.RECORDING}
	got := h.obs.statusLog()
	if len(got) != len(wantStatuses) {
		t.Fatalf("status log = %v, want %v", got, wantStatuses)
	}
	for i := range wantStatuses {
		if got[i] != wantStatuses[i] {
			t.Errorf("status %d = %s, want %s", i, got[i], wantStatuses[i])
		}
	}
}

func TestEmptyChunkIsIgnored(t *testing.T) {
	h := newHarness(t, testConfig(), "audio/pcm")
	h.start(t)

	h.vss.PushChunk(nil)
	h.vss.PushChunk([]byte{})
	res := h.flush(t, pcm(0.2, 0.5))
	if res.Details.TotalFrames != 1 {
		t.Errorf("empty chunks must not contribute, got %d frames", res.Details.TotalFrames)
	}
}

func TestDecodeFailureIsRetriedOnNextFlush(t *testing.T) {
	h := newHarness(t, testConfig(), "audio/wav")
	h.start(t)

	samples := make([]float32, 4800)
	for i := range samples {
		samples[i] = 0.5
	}
	wav := decode.EncodeWAV(samples, rate)

	// header cut in half: decode fails, nothing dispatched, status unchanged
	h.vss.PushChunk(wav[:20])
	h.vss.PushChunk(wav[20:])
	res := <-h.obs.flushes
	if !res.HasSpeech {
		t.Fatalf("expected speech once the container is complete, details %+v", res.Details)
	}
	if req := h.dispatched(t); len(req.Audio) != 4800 {
		t.Errorf("expected 4800 samples, got %d", len(req.Audio))
	}
	if h.vss.Status() != runtime.RECORDING {
		t.Errorf("decode failure must not change status, got %s", h.vss.Status())
	}
}

func TestBusyEngineDropsDispatch(t *testing.T) {
	h := newHarness(t, testConfig(), "audio/pcm")
	h.disp.busy = true
	h.start(t)

	if res := h.flush(t, pcm(0.2, 0.5)); !res.HasSpeech {
		t.Fatal("expected speech")
	}
	h.noDispatch(t)
}

func TestLoadFailures(t *testing.T) {
	t.Run("microphone denied", func(t *testing.T) {
		h := newHarness(t, testConfig(), "audio/pcm")
		h.recorder.openErr = errors.New("NotAllowedError")

		err := h.vss.Load(context.Background())
		if !errors.Is(err, ErrCaptureUnavailable) {
			t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
		}
		if h.vss.Status() != runtime.IDLE {
			t.Errorf("expected idle after failed load, got %s", h.vss.Status())
		}
	})

	t.Run("engine unavailable", func(t *testing.T) {
		h := newHarness(t, testConfig(), "audio/pcm")
		h.disp.loadErr = errors.New("connection refused")

		if err := h.vss.Load(context.Background()); err == nil {
			t.Fatal("expected load error")
		}
		if h.vss.Status() != runtime.IDLE {
			t.Errorf("expected idle after failed load, got %s", h.vss.Status())
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		h := newHarness(t, testConfig(), "audio/webm;codecs=opus")

		if err := h.vss.Load(context.Background()); !errors.Is(err, ErrCaptureUnavailable) {
			t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
		}
		h.expectCall(t, "open")
		h.expectCall(t, "close")
	})
}

func TestRecordRequiresLoad(t *testing.T) {
	h := newHarness(t, testConfig(), "audio/pcm")
	if err := h.vss.Record(context.Background()); !errors.Is(err, runtime.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestFlushTickerOnlyWhileRecording(t *testing.T) {
	cfg := DefaultVSSConfig()
	cfg.FlushInterval = 5 * time.Millisecond
	h := newHarness(t, cfg, "audio/pcm")
	h.start(t)

	deadline := time.Now().Add(2 * time.Second)
	for h.recorder.requestCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("ticker never requested data")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := h.vss.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	h.expectCall(t, "stop")
	paused := h.recorder.requestCount()
	time.Sleep(50 * time.Millisecond)
	if got := h.recorder.requestCount(); got != paused {
		t.Errorf("ticker kept firing while paused: %d -> %d", paused, got)
	}

	// chunks after pause are ignored
	h.vss.PushChunk(pcm(0.2, 0.5))
	if err := h.vss.Record(context.Background()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	h.expectCall(t, "start")
	if h.vss.Generation() != 1 {
		t.Errorf("resuming starts a new utterance, got generation %d", h.vss.Generation())
	}
	select {
	case <-h.obs.flushes:
		t.Error("chunk delivered while paused must not be analyzed")
	default:
	}
}

func TestCloseReturnsToIdle(t *testing.T) {
	h := newHarness(t, testConfig(), "audio/pcm")
	h.start(t)

	if err := h.vss.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	h.expectCall(t, "close")
	if h.vss.Status() != runtime.IDLE {
		t.Errorf("expected idle, got %s", h.vss.Status())
	}

	h.cancel()
	<-h.vss.Done()
	if err := h.vss.Record(context.Background()); !errors.Is(err, ErrVSSStopped) {
		t.Errorf("expected ErrVSSStopped after Run returned, got %v", err)
	}
}

func TestLateStoppedFromPauseKeepsNewUtterance(t *testing.T) {
	h := newHarness(t, testConfig(), "audio/pcm")
	h.start(t)
	ctx := context.Background()

	if err := h.vss.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	h.expectCall(t, "stop")
	if err := h.vss.Record(ctx); err != nil {
		t.Fatalf("Record: %v", err)
	}
	h.expectCall(t, "start")

	h.flush(t, pcm(0.13, 0.5))
	// the recorder confirms the pause only now
	h.vss.NotifyStopped()
	res := h.flush(t, pcm(0.13, 0.5))
	if res.Details.TotalFrames != 2 {
		t.Errorf("audio recorded before the late notification was lost, details %+v", res.Details)
	}
	h.noCall(t)
	if h.vss.Status() != runtime.RECORDING {
		t.Errorf("expected recording, got %s", h.vss.Status())
	}
}

func TestUnexpectedStoppedIsIgnored(t *testing.T) {
	h := newHarness(t, testConfig(), "audio/pcm")
	h.start(t)

	h.flush(t, pcm(0.13, 0.5))
	h.vss.NotifyStopped()
	if res := h.flush(t, pcm(0.13, 0.5)); res.Details.TotalFrames != 2 {
		t.Errorf("stray notification cleared the utterance, details %+v", res.Details)
	}
	h.noCall(t)
}

func TestPauseDuringRestartWaitsForBoundaryStop(t *testing.T) {
	h := newHarness(t, testConfig(), "audio/pcm")
	h.start(t)
	h.endUtterance(t)
	ctx := context.Background()

	if err := h.vss.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	h.noCall(t)
	if err := h.vss.Record(ctx); err != nil {
		t.Fatalf("Record: %v", err)
	}
	h.expectCall(t, "start")

	h.flush(t, pcm(0.13, 0.5))
	h.vss.NotifyStopped()
	if res := h.flush(t, pcm(0.13, 0.5)); res.Details.TotalFrames != 2 {
		t.Errorf("boundary notification cleared the resumed utterance, details %+v", res.Details)
	}
	h.noCall(t)
}

func TestRestartDeadlineResumesRecorder(t *testing.T) {
	cfg := DefaultVSSConfig()
	cfg.FlushInterval = 5 * time.Millisecond
	cfg.RestartTimeout = 20 * time.Millisecond
	h := newHarness(t, cfg, "audio/pcm")
	h.start(t)
	h.endUtterance(t)

	// no stopped notification ever arrives
	h.expectCall(t, "start")
	if h.vss.Generation() != 1 {
		t.Errorf("expected generation 1, got %d", h.vss.Generation())
	}

	// a notification that turns up after the deadline changes nothing
	h.vss.NotifyStopped()
	if res := h.flush(t, pcm(0.15, 0.5)); !res.HasSpeech || res.Details.TotalFrames != 1 {
		t.Errorf("expected the new utterance to be analyzed, details %+v", res.Details)
	}
	if req := h.dispatched(t); req.GenerationID != 1 {
		t.Errorf("expected generation 1, got %d", req.GenerationID)
	}
	h.noCall(t)
}

func TestFailedRestartFallsBackToPaused(t *testing.T) {
	h := newHarness(t, testConfig(), "audio/pcm")
	h.start(t)
	h.endUtterance(t)

	h.recorder.failStart(errors.New("InvalidStateError"))
	h.vss.NotifyStopped()
	h.expectCall(t, "start")
	h.waitStatus(t, runtime.PAUSED)

	h.recorder.failStart(nil)
	if err := h.vss.Record(context.Background()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	h.expectCall(t, "start")
	if h.vss.Generation() != 2 {
		t.Errorf("expected generation 2, got %d", h.vss.Generation())
	}
}

func TestRecordFailureKeepsGeneration(t *testing.T) {
	h := newHarness(t, testConfig(), "audio/pcm")
	ctx := context.Background()
	if err := h.vss.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.expectCall(t, "open")

	h.recorder.failStart(errors.New("InvalidStateError"))
	if err := h.vss.Record(ctx); err == nil {
		t.Fatal("expected record error")
	}
	h.expectCall(t, "start")
	if h.vss.Generation() != -1 {
		t.Errorf("failed start must not use a generation, got %d", h.vss.Generation())
	}
	if h.vss.Status() != runtime.PAUSED {
		t.Errorf("expected paused, got %s", h.vss.Status())
	}

	h.recorder.failStart(nil)
	if err := h.vss.Record(ctx); err != nil {
		t.Fatalf("Record: %v", err)
	}
	h.expectCall(t, "start")
	if h.vss.Generation() != 0 {
		t.Errorf("expected generation 0, got %d", h.vss.Generation())
	}
}
