package vad

import (
	"math"
	"time"
)

// idleResetFactor is how many minDuration-worth of silence wipe a partial speech run.
const idleResetFactor = 4

// EnergyAnalyzer is a mean-absolute-amplitude detector that scans frames from
// the most recent backwards. It holds no mutable state.
type EnergyAnalyzer struct {
	cfg           Config
	neededSamples int
}

// NewEnergyAnalyzer builds an analyzer; zero or negative fields fall back to DefaultConfig.
func NewEnergyAnalyzer(cfg Config) *EnergyAnalyzer {
	def := DefaultConfig()
	if cfg.EnergyThreshold <= 0 {
		cfg.EnergyThreshold = def.EnergyThreshold
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = def.FrameSize
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = def.MinDuration
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	return &EnergyAnalyzer{
		cfg:           cfg,
		neededSamples: int(math.Floor(float64(cfg.SampleRate) * cfg.MinDuration)),
	}
}

func (a *EnergyAnalyzer) Config() Config {
	return a.cfg
}

// Analyze implements Analyzer.
func (a *EnergyAnalyzer) Analyze(samples []float32) Result {
	frameSize := a.cfg.FrameSize
	frames := len(samples) / frameSize

	details := Details{
		TotalFrames: frames,
		Threshold:   a.cfg.EnergyThreshold,
		MinDuration: a.cfg.MinDuration,
	}
	if frames == 0 {
		details.AverageEnergy = math.NaN()
		return Result{Details: details}
	}

	energies := make([]float64, frames)
	var total float64
	for i := 0; i < frames; i++ {
		energies[i] = frameEnergy(samples[i*frameSize : (i+1)*frameSize])
		total += energies[i]
	}
	details.AverageEnergy = total / float64(frames)

	var (
		speech, idle int
		runStart     int
		hasSpeech    bool
	)
	idleTrail := frames * frameSize

	for i := frames - 1; i >= 0; i-- {
		if energies[i] > a.cfg.EnergyThreshold {
			idle = 0
			if speech == 0 {
				runStart = frameSize * (frames - 1 - i)
			}
			speech += frameSize
			if speech >= a.neededSamples {
				hasSpeech = true
				idleTrail = runStart
				break
			}
			continue
		}

		idle += frameSize
		if idle > idleResetFactor*a.neededSamples {
			speech = 0
		}
	}

	details.ConsecutiveSpeechSamples = speech
	details.IdleDuration = float64(idleTrail) / float64(a.cfg.SampleRate)
	return Result{HasSpeech: hasSpeech, Details: details}
}

func frameEnergy(frame []float32) float64 {
	var sum float64
	for _, s := range frame {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(frame))
}

// Detector wraps an Analyzer for callers that only want a verdict.
type Detector struct {
	analyzer Analyzer
}

func NewDetector(cfg Config) *Detector {
	return &Detector{analyzer: NewEnergyAnalyzer(cfg)}
}

func (d *Detector) IsSpeech(samples []float32) bool {
	return d.analyzer.Analyze(samples).HasSpeech
}

// TrailingSilence reports how long the buffer has been quiet at its end.
func (d *Detector) TrailingSilence(samples []float32) time.Duration {
	return d.analyzer.Analyze(samples).Idle()
}
