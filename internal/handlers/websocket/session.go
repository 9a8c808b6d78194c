package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	vss "github.com/xpanvictor/voxcap/internal/domains/sys_manager/voice_stream_system"
	"github.com/xpanvictor/voxcap/pkg/Logger"
)

var (
	ErrSessionClosed  = errors.New("session not active")
	ErrSendBufferFull = errors.New("session send buffer full")
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Session represents one capture websocket connection
type Session struct {
	Owner     string
	SessionID uuid.UUID
	Conn      *websocket.Conn

	VoiceSystem *vss.VSS

	// State
	ConnectedAt time.Time
	lastActive  time.Time
	mutex       sync.RWMutex

	send      chan WSMessage
	closed    chan struct{}
	closeOnce sync.Once
	logger    *Logger.Logger
}

// NewSession creates a new WebSocket session. WritePump must run for
// messages to reach the client.
func NewSession(owner string, sessionID uuid.UUID, conn *websocket.Conn, buffer int, logger *Logger.Logger) *Session {
	if buffer <= 0 {
		buffer = 64
	}
	return &Session{
		Owner:       owner,
		SessionID:   sessionID,
		Conn:        conn,
		ConnectedAt: time.Now(),
		lastActive:  time.Now(),
		send:        make(chan WSMessage, buffer),
		closed:      make(chan struct{}),
		logger:      logger,
	}
}

// Send queues a message for the client without blocking
func (s *Session) Send(msgType MessageType, data interface{}) error {
	msg := WSMessage{
		Type:      msgType,
		Data:      data,
		SessionID: s.SessionID.String(),
		Timestamp: time.Now(),
	}

	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- msg:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	default:
		return ErrSendBufferFull
	}
}

// SendError sends an error message to the client
func (s *Session) SendError(code, message string) error {
	return s.Send(MessageTypeError, ErrorMessage{
		Code:    code,
		Message: message,
	})
}

// WritePump owns every write to the connection until the session closes.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			_ = s.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case msg := <-s.send:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteJSON(msg); err != nil {
				s.logger.Debugf("write to session %s failed: %v", s.SessionID, err)
				s.Close()
				return
			}

		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

// UpdateLastActive updates the last activity timestamp
func (s *Session) UpdateLastActive() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastActive = time.Now()
}

// LastActive returns the last activity timestamp
func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

// IsExpired checks if the session has expired based on inactivity
func (s *Session) IsExpired(timeout time.Duration) bool {
	return time.Since(s.LastActive()) > timeout
}

// Closed is closed once the session shuts down
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// IsAlive checks if the session is active
func (s *Session) IsAlive() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

// Close stops the writer and unblocks the reader. Safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		// give the writer a moment to send the close frame
		time.AfterFunc(writeWait, func() { _ = s.Conn.Close() })
		_ = s.Conn.SetReadDeadline(time.Now())
	})
}
