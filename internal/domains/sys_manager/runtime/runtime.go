package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// StatusListener is told about every visible status change.
type StatusListener func(from, to Status)

// CaptureRuntime is the status machine of one capture session.
// States:
//
//	idle -> loading -> paused <-> recording (-> recording on restart) -> idle
type CaptureRuntime struct {
	SessionID    string
	StateMachine *fsm.FSM
}

func NewCaptureRuntime(sessionID string, listener StatusListener) *CaptureRuntime {
	events := fsm.Events{
		{Name: string(LOAD), Src: []string{string(IDLE)}, Dst: string(LOADING)},
		{Name: string(READY), Src: []string{string(LOADING)}, Dst: string(PAUSED)},
		{Name: string(FAIL), Src: []string{string(LOADING)}, Dst: string(IDLE)},
		{Name: string(RECORD), Src: []string{string(PAUSED)}, Dst: string(RECORDING)},
		{Name: string(PAUSE), Src: []string{string(RECORDING)}, Dst: string(PAUSED)},
		{Name: string(RESTART), Src: []string{string(RECORDING)}, Dst: string(RECORDING)},
		{Name: string(CLOSE), Src: []string{string(LOADING), string(PAUSED), string(RECORDING)}, Dst: string(IDLE)},
	}

	callbacks := fsm.Callbacks{}
	if listener != nil {
		// enter_state only runs when the state actually changes
		callbacks["enter_state"] = func(_ context.Context, e *fsm.Event) {
			listener(Status(e.Src), Status(e.Dst))
		}
	}

	return &CaptureRuntime{
		SessionID:    sessionID,
		StateMachine: fsm.NewFSM(string(IDLE), events, callbacks),
	}
}

func (r *CaptureRuntime) Status() Status {
	return Status(r.StateMachine.Current())
}

func (r *CaptureRuntime) Can(ev RuntimeEvents) bool {
	return r.StateMachine.Can(string(ev))
}

// Fire applies ev. A self transition (restart) is a success.
func (r *CaptureRuntime) Fire(ctx context.Context, ev RuntimeEvents) error {
	err := r.StateMachine.Event(ctx, string(ev))
	if err == nil {
		return nil
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) && noTransition.Err == nil {
		return nil
	}

	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, invalid.State)
	}
	return fmt.Errorf("status transition %s failed: %w", ev, err)
}
