// Package decode turns accumulated recorder chunks into mono float samples.
package decode

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned for truncated or corrupt containers. Callers
	// usually retry once more data has been appended.
	ErrMalformed   = errors.New("malformed audio container")
	ErrUnsupported = errors.New("unsupported audio format")
)

// Decoder decodes a complete byte stream (all chunks so far, concatenated).
type Decoder interface {
	Decode(ctx context.Context, data []byte) ([]float32, error)
}

// ForMimeType picks a decoder for what the recorder announced. Output is
// always mono at targetRate.
func ForMimeType(mimeType string, targetRate int) (Decoder, error) {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, mimeType)
	}

	switch strings.ToLower(mediaType) {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return &WAVDecoder{TargetRate: targetRate}, nil
	case "audio/mpeg", "audio/mp3":
		return &MP3Decoder{TargetRate: targetRate}, nil
	case "audio/pcm", "audio/l16":
		rate := targetRate
		if r, ok := params["rate"]; ok {
			rate, err = strconv.Atoi(r)
			if err != nil || rate <= 0 {
				return nil, fmt.Errorf("%w: bad rate %q", ErrUnsupported, r)
			}
		}
		return &PCMDecoder{SourceRate: rate, TargetRate: targetRate}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, mediaType)
	}
}

// Resample converts between rates with linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}

	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out
}

// downmix averages interleaved channels into one.
func downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func int16ToFloat(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
		out[i] = float32(v) / 32768
	}
	return out
}
