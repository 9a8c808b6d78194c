package websocket

import (
	"context"
	"errors"
	"fmt"

	vss "github.com/xpanvictor/voxcap/internal/domains/sys_manager/voice_stream_system"
)

// wsRecorder drives the browser's MediaRecorder over the session socket.
// Chunks and the stopped notification are routed to the VSS by the handler.
type wsRecorder struct {
	session *Session
	opened  chan RecorderEvent
}

var _ vss.Recorder = (*wsRecorder)(nil)

func newWSRecorder(session *Session) *wsRecorder {
	return &wsRecorder{
		session: session,
		opened:  make(chan RecorderEvent, 1),
	}
}

// Open asks the browser for the microphone and waits for its answer.
func (r *wsRecorder) Open(ctx context.Context, c vss.Constraints) (string, error) {
	// forget answers to an earlier, abandoned open
	select {
	case <-r.opened:
	default:
	}

	if err := r.command(RecorderCommand{Command: RecorderOpen, Constraints: &c}); err != nil {
		return "", err
	}

	select {
	case ev := <-r.opened:
		if ev.Event == RecorderFailed {
			return "", fmt.Errorf("browser refused capture: %s", ev.Message)
		}
		if ev.MimeType == "" {
			return "", errors.New("recorder did not report a mime type")
		}
		return ev.MimeType, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-r.session.Closed():
		return "", ErrSessionClosed
	}
}

func (r *wsRecorder) Start(ctx context.Context) error {
	return r.command(RecorderCommand{Command: RecorderStart})
}

func (r *wsRecorder) Stop(ctx context.Context) error {
	return r.command(RecorderCommand{Command: RecorderStop})
}

func (r *wsRecorder) RequestData(ctx context.Context) error {
	return r.command(RecorderCommand{Command: RecorderRequestData})
}

func (r *wsRecorder) Close() error {
	if err := r.command(RecorderCommand{Command: RecorderClose}); err != nil && !errors.Is(err, ErrSessionClosed) {
		return err
	}
	return nil
}

// Deliver hands an opened/failed answer to a pending Open.
func (r *wsRecorder) Deliver(ev RecorderEvent) {
	select {
	case r.opened <- ev:
	default:
	}
}

func (r *wsRecorder) command(cmd RecorderCommand) error {
	return r.session.Send(MessageTypeRecorder, cmd)
}
