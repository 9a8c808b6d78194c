package voicestreamsystem

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/internal/domains/sys_manager/runtime"
	"github.com/xpanvictor/voxcap/pkg/io/stt"
	"github.com/xpanvictor/voxcap/pkg/io/stt/decode"
	"github.com/xpanvictor/voxcap/pkg/io/stt/vad"
)

var (
	ErrCaptureUnavailable = errors.New("microphone capture unavailable")
	ErrVSSStopped         = errors.New("capture session stopped")
)

// Event types for VSS communication
type EventType string

const (
	// Commands from the owner of the session
	EventLoad   EventType = "LOAD"
	EventRecord EventType = "RECORD"
	EventPause  EventType = "PAUSE"
	EventClose  EventType = "CLOSE"

	// Notifications from the recorder
	EventChunk   EventType = "DATA_AVAILABLE"
	EventStopped EventType = "STOPPED"
)

// VSSEvent is one item on the session's input channel
type VSSEvent struct {
	Type      EventType `json:"type"`
	SessionID uuid.UUID `json:"sessionId"`
	Chunk     []byte    `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	ctx   context.Context
	reply chan error
}

// Constraints is what the recorder is asked to capture with
type Constraints struct {
	SampleRate       int  `json:"sampleRate"`
	ChannelCount     int  `json:"channelCount"`
	EchoCancellation bool `json:"echoCancellation"`
	NoiseSuppression bool `json:"noiseSuppression"`
}

// Recorder is the microphone capture primitive. Chunks and the stopped
// notification come back through VSS.PushChunk and VSS.NotifyStopped.
type Recorder interface {
	// Open acquires the microphone and returns the MIME type chunks will use.
	Open(ctx context.Context, c Constraints) (string, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	RequestData(ctx context.Context) error
	Close() error
}

// Observer receives session notifications. Calls happen on the session
// goroutine and must not block.
type Observer interface {
	OnStatus(from, to runtime.Status)
	OnFlush(samples []float32, res vad.Result)
	OnDispatch(req stt.Request, res vad.Result)
	OnBoundary(prev, next int)
}

type NopObserver struct{}

func (NopObserver) OnStatus(from, to runtime.Status)           {}
func (NopObserver) OnFlush(samples []float32, res vad.Result)  {}
func (NopObserver) OnDispatch(req stt.Request, res vad.Result) {}
func (NopObserver) OnBoundary(prev, next int)                  {}

// DecoderFactory builds the decoder once the recorder announced its format.
type DecoderFactory func(mimeType string, sampleRate int) (decode.Decoder, error)

// VSSConfig contains configuration for the VSS
type VSSConfig struct {
	SampleRate    int           `json:"sampleRate"`    // capture and decode rate
	Language      string        `json:"language"`      // forwarded with every dispatch
	FlushInterval time.Duration `json:"flushInterval"` // recorder flush period while recording
	IdleCeiling   time.Duration `json:"idleCeiling"`   // trailing silence that ends an utterance
	LoadTimeout   time.Duration `json:"loadTimeout"`
	// how long a boundary waits for the recorder's stopped notification
	RestartTimeout time.Duration `json:"restartTimeout"`
}

// DefaultVSSConfig returns default configuration
func DefaultVSSConfig() VSSConfig {
	return VSSConfig{
		SampleRate:     16000,
		Language:       "en",
		FlushInterval:  150 * time.Millisecond,
		IdleCeiling:    3 * time.Second,
		LoadTimeout:    30 * time.Second,
		RestartTimeout: 2 * time.Second,
	}
}

func (c VSSConfig) constraints() Constraints {
	return Constraints{
		SampleRate:       c.SampleRate,
		ChannelCount:     1,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// session is the mutable state of one recording; only the Run goroutine touches it
type session struct {
	chunks         [][]byte
	size           int
	generation     int
	nextGeneration int
	// a boundary stop is in flight; the recorder restarts once it reports stopped
	restarting  bool
	restartedAt time.Time
	// stop commands the recorder has not yet confirmed
	pendingStops int
}

func (s *session) startUtterance() int {
	s.generation = s.nextGeneration
	s.nextGeneration++
	s.clear()
	return s.generation
}

func (s *session) append(chunk []byte) {
	s.chunks = append(s.chunks, chunk)
	s.size += len(chunk)
}

func (s *session) stream() []byte {
	out := make([]byte, 0, s.size)
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	return out
}

func (s *session) clear() {
	s.chunks = nil
	s.size = 0
}
