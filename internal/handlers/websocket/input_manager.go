package websocket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xpanvictor/voxcap/internal/domains/sys_manager/runtime"
	vss "github.com/xpanvictor/voxcap/internal/domains/sys_manager/voice_stream_system"
	"github.com/xpanvictor/voxcap/pkg/Logger"
)

var ErrControlQueueFull = errors.New("too many pending control actions")

const controlTimeout = 10 * time.Second

// Controller is the part of the capture controller driven by client actions.
type Controller interface {
	Load(ctx context.Context) error
	Record(ctx context.Context) error
	Pause(ctx context.Context) error
	Close(ctx context.Context) error
}

var _ Controller = (*vss.VSS)(nil)

// InputStreamManager applies client control actions one at a time, off the
// read loop. Load blocks until the browser answers over the same socket.
type InputStreamManager struct {
	logger      *Logger.Logger
	session     *Session
	controller  Controller
	actions     chan ControlAction
	loadTimeout time.Duration
}

func NewInputStreamManager(logger *Logger.Logger, session *Session, controller Controller, loadTimeout time.Duration) *InputStreamManager {
	if loadTimeout <= 0 {
		loadTimeout = controlTimeout
	}
	return &InputStreamManager{
		logger:      logger,
		session:     session,
		controller:  controller,
		actions:     make(chan ControlAction, 8),
		loadTimeout: loadTimeout,
	}
}

// Enqueue queues an action without blocking.
func (m *InputStreamManager) Enqueue(action ControlAction) error {
	switch action {
	case ActionLoad, ActionRecord, ActionPause, ActionClose:
	default:
		return fmt.Errorf("unknown control action %q", action)
	}
	select {
	case m.actions <- action:
		return nil
	default:
		return ErrControlQueueFull
	}
}

// Run processes queued actions until ctx is cancelled.
func (m *InputStreamManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case action := <-m.actions:
			if err := m.apply(ctx, action); err != nil {
				m.logger.Warnf("control %s for session %s failed: %v", action, m.session.SessionID, err)
				_ = m.session.SendError(errorCode(err), err.Error())
			}
		}
	}
}

func (m *InputStreamManager) apply(ctx context.Context, action ControlAction) error {
	timeout := controlTimeout
	if action == ActionLoad {
		// the controller also bounds load; leave room for its own timeout to fire first
		timeout = m.loadTimeout + controlTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch action {
	case ActionLoad:
		return m.controller.Load(ctx)
	case ActionRecord:
		return m.controller.Record(ctx)
	case ActionPause:
		return m.controller.Pause(ctx)
	case ActionClose:
		return m.controller.Close(ctx)
	}
	return fmt.Errorf("unknown control action %q", action)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, vss.ErrCaptureUnavailable):
		return "CAPTURE_UNAVAILABLE"
	case errors.Is(err, runtime.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, vss.ErrVSSStopped):
		return "SESSION_STOPPED"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	default:
		return "CONTROL_ERROR"
	}
}
