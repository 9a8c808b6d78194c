package runtime

// Status is the externally visible capture session status.
type Status string

const (
	IDLE      Status = "idle"      // nothing loaded, no stream
	LOADING   Status = "loading"   // engine and microphone being acquired
	PAUSED    Status = "paused"    // stream open, recorder stopped
	RECORDING Status = "recording" // recorder running, flush ticker armed
)

type RuntimeEvents string

const (
	LOAD   RuntimeEvents = "load"
	READY  RuntimeEvents = "ready"
	FAIL   RuntimeEvents = "fail"
	RECORD RuntimeEvents = "record"
	PAUSE  RuntimeEvents = "pause"
	// RESTART cycles the recorder at an utterance boundary. It never changes
	// the status so observers see no flicker.
	RESTART RuntimeEvents = "restart"
	CLOSE   RuntimeEvents = "close"
)
