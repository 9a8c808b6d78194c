package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes MPEG-1/2 layer III streams. Chunks from a recorder are
// whole frames, so the concatenation is a valid stream.
type MP3Decoder struct {
	TargetRate int
}

func (d *MP3Decoder) Decode(ctx context.Context, data []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		// a cut-off final frame still leaves the earlier ones usable
		if !errors.Is(err, io.ErrUnexpectedEOF) || len(pcm) == 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	// go-mp3 always yields 16-bit little-endian stereo
	pcm = pcm[:len(pcm)-len(pcm)%4]
	mono := downmix(int16ToFloat(pcm), 2)
	return Resample(mono, dec.SampleRate(), d.TargetRate), nil
}
