package websocket

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/io/stt"
)

const applyTimeout = 5 * time.Second

// EngineBridge feeds a session's transcription events into the transcript store.
// Clients learn about new text through the transcript topic, not from here.
type EngineBridge struct {
	logger      *Logger.Logger
	transcripts transcript.TranscriptService
}

func NewEngineBridge(logger *Logger.Logger, transcripts transcript.TranscriptService) *EngineBridge {
	return &EngineBridge{
		logger:      logger,
		transcripts: transcripts,
	}
}

// Run consumes events until the engine closes its channel.
func (b *EngineBridge) Run(sessionID uuid.UUID, events <-chan stt.Event) {
	for ev := range events {
		switch ev.Status {
		case stt.StatusLoading, stt.StatusReady:
			b.logger.Debugf("engine for session %s is %s", sessionID, ev.Status)
			continue
		case stt.StatusError:
			b.logger.Warnf("transcription of generation %d failed: %s", ev.GenerationID, ev.Err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
		if err := b.transcripts.Apply(ctx, sessionID, ev); err != nil {
			b.logger.Errorf("failed to apply %s event for session %s: %v", ev.Status, sessionID, err)
		}
		cancel()
	}
	b.logger.Debugf("engine events closed for session %s", sessionID)
}
