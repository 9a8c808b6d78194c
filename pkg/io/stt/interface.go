package stt

import (
	"context"
	"time"
)

// Request is one dispatch of an utterance's audio so far.
type Request struct {
	Audio        []float32 `json:"-"`
	SampleRate   int       `json:"sampleRate"`
	Language     string    `json:"language"`
	GenerationID int       `json:"generationId"`
}

type EventStatus string

const (
	StatusLoading  EventStatus = "loading"
	StatusReady    EventStatus = "ready"
	StatusStart    EventStatus = "start"
	StatusUpdate   EventStatus = "update"
	StatusComplete EventStatus = "complete"
	StatusError    EventStatus = "error"
)

// Event is emitted by an Engine. Update and Complete carry the text produced
// so far for GenerationID. The whisper backend returns whole segments, so
// NumTokens counts segments and TPS is segments per second.
type Event struct {
	Status       EventStatus `json:"status"`
	GenerationID int         `json:"generationId"`
	Output       string      `json:"output,omitempty"`
	TPS          float64     `json:"tps,omitempty"`
	NumTokens    int         `json:"numTokens,omitempty"`
	Err          string      `json:"error,omitempty"`
	Time         time.Time   `json:"time"`
}

type Segment struct {
	ID    int     `json:"id"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Transcription struct {
	Text        string    `json:"text"`
	Language    string    `json:"language"`
	Segments    []Segment `json:"segments,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Transcriber is a speech-to-text backend.
type Transcriber interface {
	// Probe checks the backend is reachable.
	Probe(ctx context.Context) error
	Transcribe(ctx context.Context, req Request) (*Transcription, error)
}

// Dispatcher is the boundary the capture controller hands audio to.
type Dispatcher interface {
	Load(ctx context.Context) error
	// Dispatch submits a request without blocking. It reports false when the
	// request was dropped.
	Dispatch(req Request) bool
}
