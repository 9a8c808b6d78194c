package decode

import (
	"context"
	"fmt"
)

// PCMDecoder reads headerless little-endian 16-bit mono audio.
type PCMDecoder struct {
	SourceRate int
	TargetRate int
}

func (d *PCMDecoder) Decode(ctx context.Context, data []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd pcm byte count %d", ErrMalformed, len(data))
	}
	return Resample(int16ToFloat(data), d.SourceRate, d.TargetRate), nil
}
