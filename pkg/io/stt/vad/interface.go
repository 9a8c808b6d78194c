package vad

import "time"

// Config holds the energy detector parameters. It is fixed for the life of an analyzer.
type Config struct {
	EnergyThreshold float64 `json:"energyThreshold" mapstructure:"energy_threshold"` // mean |amplitude| a frame must exceed
	FrameSize       int     `json:"frameSize" mapstructure:"frame_size"`               // samples per analysis frame
	MinDuration     float64 `json:"minDuration" mapstructure:"min_duration"`           // seconds of contiguous speech required
	SampleRate      int     `json:"sampleRate" mapstructure:"sample_rate"`             // Hz
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		EnergyThreshold: 0.01,
		FrameSize:       2048,
		MinDuration:     0.1,
		SampleRate:      44100,
	}
}

// Details carries the diagnostics of one analysis.
type Details struct {
	TotalFrames              int     `json:"totalFrames"`
	ConsecutiveSpeechSamples int     `json:"consecutiveSpeechSamples"`
	Threshold                float64 `json:"threshold"`
	MinDuration              float64 `json:"minDuration"`
	AverageEnergy            float64 `json:"averageEnergy"`
	IdleDuration             float64 `json:"idleDuration"` // seconds
}

// Result is the verdict of Analyze.
type Result struct {
	HasSpeech bool    `json:"hasSpeech"`
	Details   Details `json:"details"`
}

// Idle returns the trailing idle duration as a time.Duration.
func (r Result) Idle() time.Duration {
	return time.Duration(r.Details.IdleDuration * float64(time.Second))
}

// Analyzer decides whether a block of mono samples recently contained speech.
// Implementations must be safe for concurrent use on independent inputs.
type Analyzer interface {
	Analyze(samples []float32) Result
}
