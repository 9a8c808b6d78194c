package audioring

// SampleRing keeps the most recent samples of a stream, discarding the oldest on overflow.
type SampleRing interface {
	Push(samples []float32) error
	Snapshot() []float32
	// TimeDomain quantizes the window to bytes centred on 128, as an analyser node would.
	TimeDomain() []uint8
	Len() int
	Capacity() int
	Reset()
}
