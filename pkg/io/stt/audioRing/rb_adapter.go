package audioring

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/smallnest/ringbuffer"
)

const bytesPerSample = 4

type rb_impl struct {
	mu      sync.Mutex
	samples int
	rb      *ringbuffer.RingBuffer
}

// Capacity implements SampleRing.
func (r *rb_impl) Capacity() int {
	return r.samples
}

// Len implements SampleRing.
func (r *rb_impl) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rb.Length() / bytesPerSample
}

// Push implements SampleRing.
func (r *rb_impl) Push(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	if len(samples) > r.samples {
		samples = samples[len(samples)-r.samples:]
	}
	data := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*bytesPerSample:], math.Float32bits(s))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if over := len(data) - r.rb.Free(); over > 0 {
		// drop the oldest whole samples
		if _, err := r.rb.Read(make([]byte, over)); err != nil {
			r.rb.Reset()
		}
	}
	_, err := r.rb.Write(data)
	return err
}

// Snapshot implements SampleRing.
func (r *rb_impl) Snapshot() []float32 {
	r.mu.Lock()
	raw := r.rb.Bytes(nil)
	r.mu.Unlock()

	out := make([]float32, len(raw)/bytesPerSample)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*bytesPerSample:]))
	}
	return out
}

// TimeDomain implements SampleRing.
func (r *rb_impl) TimeDomain() []uint8 {
	samples := r.Snapshot()
	out := make([]uint8, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s)*128 + 128)
		out[i] = uint8(math.Max(0, math.Min(255, v)))
	}
	return out
}

// Reset implements SampleRing.
func (r *rb_impl) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rb.Reset()
}

// New returns a ring that holds the last n samples.
func New(n int) SampleRing {
	return &rb_impl{
		samples: n,
		rb:      ringbuffer.New(n * bytesPerSample).SetBlocking(false), // Non-blocking for graceful overflow handling
	}
}
