package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/voxcap/internal/config"
	vss "github.com/xpanvictor/voxcap/internal/domains/sys_manager/voice_stream_system"
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"github.com/xpanvictor/voxcap/internal/handlers"
	"github.com/xpanvictor/voxcap/internal/metrics"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/io/registry"
	"github.com/xpanvictor/voxcap/pkg/io/stt"
	"github.com/xpanvictor/voxcap/pkg/io/stt/vad"
)

const (
	teardownTimeout = 5 * time.Second
	sendBuffer      = 64
)

// SummaryScheduler queues a summary once a session ends.
type SummaryScheduler interface {
	ScheduleSummary(ctx context.Context, sessionID uuid.UUID, delay time.Duration) error
}

// Dependencies of the capture endpoint. Summaries and Decoders are optional.
type Dependencies struct {
	Config      *config.Settings
	Transcriber stt.Transcriber
	Transcripts transcript.TranscriptService
	Summaries   SummaryScheduler
	Registry    registry.Registry
	Auth        *handlers.TokenValidator
	Metrics     *metrics.Metrics
	Decoders    vss.DecoderFactory
}

// WebSocketHandler handles WebSocket connections and routes
type WebSocketHandler struct {
	logger            *Logger.Logger
	deps              Dependencies
	bridge            *EngineBridge
	connectionManager *ConnectionManager
	upgrader          websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(logger *Logger.Logger, deps Dependencies) *WebSocketHandler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}
	if deps.Auth == nil {
		deps.Auth = handlers.NewTokenValidator("")
	}
	return &WebSocketHandler{
		logger:            logger,
		deps:              deps,
		bridge:            NewEngineBridge(logger.Named("bridge"), deps.Transcripts),
		connectionManager: NewConnectionManager(logger, deps.Registry, deps.Metrics, deps.Config.Capture.SessionTimeout),
		upgrader: websocket.Upgrader{
			// browsers connect from whatever origin serves the capture page
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router gin.IRouter) {
	ws := router.Group("/ws")
	{
		ws.GET("/capture", h.HandleCapture)
		ws.GET("/stats", h.HandleStats)
	}
}

// SweepStale closes capture sessions that stopped sending traffic
func (h *WebSocketHandler) SweepStale(ctx context.Context) error {
	h.connectionManager.SweepExpired(time.Now())
	return nil
}

// Close shuts down every open capture session
func (h *WebSocketHandler) Close() error {
	return h.connectionManager.Close()
}

// HandleCapture upgrades a browser connection into one capture session.
func (h *WebSocketHandler) HandleCapture(c *gin.Context) {
	owner := ""
	if h.deps.Auth.Enabled() {
		claims, err := h.deps.Auth.Validate(handlers.TokenFromRequest(c))
		if err != nil {
			h.logger.Warnf("capture token rejected: %v", err)
			c.JSON(http.StatusUnauthorized, handlers.ErrorResponse{Error: "Invalid token"})
			return
		}
		owner = claims.Subject
	}

	sessionID, err := h.connectionManager.Reserve(owner, c.ClientIP())
	if err != nil {
		if errors.Is(err, registry.ErrFull) {
			c.JSON(http.StatusServiceUnavailable, handlers.ErrorResponse{
				Error:   "Capture unavailable",
				Details: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, handlers.ErrorResponse{Error: err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		h.connectionManager.Release(sessionID)
		return
	}

	session := NewSession(owner, sessionID, conn, sendBuffer, h.logger)
	h.connectionManager.RegisterConnection(session)
	defer h.connectionManager.UnregisterConnection(sessionID)

	go session.WritePump()
	h.serve(session)
}

// serve wires one capture controller to the socket and blocks until the client leaves.
func (h *WebSocketHandler) serve(session *Session) {
	cfg := h.deps.Config
	logger := h.logger.With("session", session.SessionID.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	analyzerCfg := vad.Config{
		EnergyThreshold: cfg.Analyzer.EnergyThreshold,
		FrameSize:       cfg.Analyzer.FrameSize,
		MinDuration:     cfg.Analyzer.MinDuration,
		SampleRate:      cfg.AnalyzerSampleRate(),
	}
	engine := stt.NewEngine(h.deps.Transcriber, logger.Named("engine"), cfg.Transcriber.Events)
	recorder := newWSRecorder(session)
	observer := newScopeObserver(session, cfg.Capture.ScopeSamples, vad.NewDetector(analyzerCfg), logger)

	voice := vss.NewVSS(session.SessionID, vss.VSSConfig{
		SampleRate:     cfg.Capture.SampleRate,
		Language:       cfg.Capture.Language,
		FlushInterval:  cfg.Capture.FlushInterval,
		IdleCeiling:    cfg.Capture.IdleCeiling,
		LoadTimeout:    cfg.Capture.LoadTimeout,
		RestartTimeout: cfg.Capture.RestartTimeout,
	}, vss.Dependencies{
		Analyzer:   vad.NewEnergyAnalyzer(analyzerCfg),
		Dispatcher: engine,
		Recorder:   recorder,
		Observer:   observer,
		Decoders:   h.deps.Decoders,
		Metrics:    h.deps.Metrics,
	}, logger.Named("vss"))
	observer.generation = voice.Generation
	session.VoiceSystem = voice

	go voice.Run(ctx)

	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		h.bridge.Run(session.SessionID, engine.Events())
	}()

	unsubscribe, err := h.deps.Transcripts.Subscribe(session.SessionID, func(line transcript.Line) {
		if err := session.Send(MessageTypeTranscript, line); err != nil {
			logger.Warnf("transcript line %d not delivered: %v", line.GenerationID, err)
		}
	})
	if err != nil {
		logger.Errorf("transcript subscription failed: %v", err)
		unsubscribe = func() {}
	}

	controls := NewInputStreamManager(logger, session, voice, cfg.Capture.LoadTimeout)
	go controls.Run(ctx)

	_ = session.Send(MessageTypeStatus, StatusMessage{Status: string(voice.Status()), Generation: voice.Generation()})

	h.readLoop(session, voice, recorder, controls)

	// unblocks a pending recorder open before the controller is closed
	session.Close()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), teardownTimeout)
	if err := voice.Close(closeCtx); err != nil && !errors.Is(err, vss.ErrVSSStopped) {
		logger.Warnf("capture close: %v", err)
	}
	closeCancel()

	cancel()
	<-voice.Done()
	_ = engine.Close()
	<-bridgeDone
	unsubscribe()

	h.scheduleSummary(session.SessionID)
	logger.Infof("capture session ended after %s", time.Since(session.ConnectedAt).Round(time.Second))
}

func (h *WebSocketHandler) readLoop(session *Session, voice *vss.VSS, recorder *wsRecorder, controls *InputStreamManager) {
	conn := session.Conn
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnf("capture socket %s closed unexpectedly: %v", session.SessionID, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.connectionManager.Touch(session)

		switch messageType {
		case websocket.BinaryMessage:
			voice.PushChunk(data)
		case websocket.TextMessage:
			h.handleTextMessage(session, voice, recorder, controls, data)
		}
	}
}

func (h *WebSocketHandler) handleTextMessage(session *Session, voice *vss.VSS, recorder *wsRecorder, controls *InputStreamManager, data []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = session.SendError("INVALID_MESSAGE", "Invalid message format")
		return
	}

	switch msg.Type {
	case MessageTypeControl:
		var ctrl ControlMessage
		if err := json.Unmarshal(msg.Data, &ctrl); err != nil {
			_ = session.SendError("INVALID_MESSAGE", "Invalid control message")
			return
		}
		if err := controls.Enqueue(ctrl.Action); err != nil {
			_ = session.SendError("CONTROL_REJECTED", err.Error())
		}

	case MessageTypeRecorder:
		var ev RecorderEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			_ = session.SendError("INVALID_MESSAGE", "Invalid recorder event")
			return
		}
		switch ev.Event {
		case RecorderOpened, RecorderFailed:
			recorder.Deliver(ev)
		case RecorderStopped:
			voice.NotifyStopped()
		default:
			_ = session.SendError("INVALID_MESSAGE", "Unknown recorder event")
		}

	default:
		_ = session.SendError("UNKNOWN_MESSAGE_TYPE", "Unknown message type: "+string(msg.Type))
	}
}

func (h *WebSocketHandler) scheduleSummary(sessionID uuid.UUID) {
	if h.deps.Summaries == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	lines, err := h.deps.Transcripts.Lines(ctx, sessionID)
	if err != nil {
		return
	}
	for _, l := range lines {
		if l.Final {
			if err := h.deps.Summaries.ScheduleSummary(ctx, sessionID, h.deps.Config.Jobs.SummaryDelay); err != nil {
				h.logger.Errorf("failed to schedule summary for %s: %v", sessionID, err)
			}
			return
		}
	}
}

// HandleStats returns WebSocket connection statistics
func (h *WebSocketHandler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.connectionManager.GetStats())
}
