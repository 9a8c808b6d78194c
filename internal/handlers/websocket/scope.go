package websocket

import (
	"github.com/xpanvictor/voxcap/internal/domains/sys_manager/runtime"
	vss "github.com/xpanvictor/voxcap/internal/domains/sys_manager/voice_stream_system"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/io/stt"
	audioRing "github.com/xpanvictor/voxcap/pkg/io/stt/audioRing"
	"github.com/xpanvictor/voxcap/pkg/io/stt/vad"
)

// scopeObserver forwards status changes and a live view of the input level.
// It runs on the VSS goroutine, so it only ever queues messages.
type scopeObserver struct {
	session    *Session
	ring       audioRing.SampleRing
	detector   *vad.Detector
	generation func() int
	logger     *Logger.Logger
}

var _ vss.Observer = (*scopeObserver)(nil)

func newScopeObserver(session *Session, samples int, detector *vad.Detector, logger *Logger.Logger) *scopeObserver {
	return &scopeObserver{
		session:    session,
		ring:       audioRing.New(samples),
		detector:   detector,
		generation: func() int { return -1 },
		logger:     logger,
	}
}

func (o *scopeObserver) OnStatus(from, to runtime.Status) {
	if to != runtime.RECORDING {
		o.ring.Reset()
	}
	if err := o.session.Send(MessageTypeStatus, StatusMessage{Status: string(to), Generation: o.generation()}); err != nil {
		o.logger.Warnf("status %s for session %s not delivered: %v", to, o.session.SessionID, err)
	}
}

func (o *scopeObserver) OnFlush(samples []float32, res vad.Result) {
	if n := o.ring.Capacity(); len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	if err := o.ring.Push(samples); err != nil {
		o.logger.Debugf("scope ring push failed: %v", err)
		return
	}

	domain := o.ring.TimeDomain()
	view := make([]int, len(domain))
	for i, v := range domain {
		view[i] = int(v)
	}
	// scope frames are droppable
	_ = o.session.Send(MessageTypeScope, ScopeMessage{
		Samples: view,
		Speech:  o.detector.IsSpeech(o.ring.Snapshot()),
		IdleMs:  res.Idle().Milliseconds(),
	})
}

func (o *scopeObserver) OnDispatch(req stt.Request, res vad.Result) {
	o.logger.Debugf("session %s dispatched generation %d (%d samples, avg energy %.4f)",
		o.session.SessionID, req.GenerationID, len(req.Audio), res.Details.AverageEnergy)
}

func (o *scopeObserver) OnBoundary(prev, next int) {
	o.ring.Reset()
	o.logger.Debugf("session %s utterance boundary %d -> %d", o.session.SessionID, prev, next)
}
