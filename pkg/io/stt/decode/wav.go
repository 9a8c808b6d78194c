package decode

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	wavHeaderSize = 44

	formatPCM   = 1
	formatFloat = 3
)

// WAVDecoder reads RIFF/WAVE streams. A streaming recorder cannot know the
// final length when it writes the header, so the data chunk always runs to
// the end of the buffer.
type WAVDecoder struct {
	TargetRate int
}

type wavFormat struct {
	audioFormat   uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

func (d *WAVDecoder) Decode(ctx context.Context, data []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) < wavHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a wav header", ErrMalformed, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE marker", ErrMalformed)
	}

	var (
		format *wavFormat
		offset = 12
	)
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrMalformed)
			}
			format = &wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(data[body:]),
				channels:      int(binary.LittleEndian.Uint16(data[body+2:])),
				sampleRate:    int(binary.LittleEndian.Uint32(data[body+4:])),
				bitsPerSample: int(binary.LittleEndian.Uint16(data[body+14:])),
			}
		case "data":
			if format == nil {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrMalformed)
			}
			return d.samples(format, data[body:])
		}

		// chunks are word aligned
		offset = body + size + size%2
	}
	return nil, fmt.Errorf("%w: no data chunk", ErrMalformed)
}

func (d *WAVDecoder) samples(f *wavFormat, payload []byte) ([]float32, error) {
	if f.channels <= 0 || f.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrMalformed, f.channels, f.sampleRate)
	}

	var interleaved []float32
	switch {
	case f.audioFormat == formatPCM && f.bitsPerSample == 16:
		block := 2 * f.channels
		interleaved = int16ToFloat(payload[:len(payload)-len(payload)%block])
	case f.audioFormat == formatFloat && f.bitsPerSample == 32:
		block := 4 * f.channels
		payload = payload[:len(payload)-len(payload)%block]
		interleaved = make([]float32, len(payload)/4)
		for i := range interleaved {
			interleaved[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
		}
	default:
		return nil, fmt.Errorf("%w: wav format %d with %d bits", ErrUnsupported, f.audioFormat, f.bitsPerSample)
	}

	return Resample(downmix(interleaved, f.channels), f.sampleRate, d.TargetRate), nil
}

// EncodeWAV writes mono samples as a 16-bit PCM wav file.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	dataSize := len(samples) * 2
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	out := make([]byte, wavHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(wavHeaderSize+dataSize-8))
	copy(out[8:12], "WAVE")

	// fmt sub-chunk
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], formatPCM)
	binary.LittleEndian.PutUint16(out[22:24], numChannels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)

	// data sub-chunk
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		binary.LittleEndian.PutUint16(out[wavHeaderSize+2*i:], uint16(int16(v*32767)))
	}
	return out
}
