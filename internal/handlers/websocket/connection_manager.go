package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/internal/metrics"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/io/registry"
)

// ConnectionManager manages WebSocket connections and sessions. Slots are
// reserved in the registry before the upgrade so a full server can still
// answer with a plain HTTP error.
type ConnectionManager struct {
	logger         *Logger.Logger
	registry       registry.Registry
	metrics        *metrics.Metrics
	sessions       map[uuid.UUID]*Session
	mutex          sync.RWMutex
	sessionTimeout time.Duration
}

// NewConnectionManager creates a new connection manager. SweepExpired closes
// sessions idle for longer than sessionTimeout.
func NewConnectionManager(logger *Logger.Logger, reg registry.Registry, m *metrics.Metrics, sessionTimeout time.Duration) *ConnectionManager {
	if m == nil {
		m = metrics.NewNop()
	}
	if sessionTimeout <= 0 {
		sessionTimeout = 30 * time.Minute
	}
	return &ConnectionManager{
		logger:         logger,
		registry:       reg,
		metrics:        m,
		sessions:       make(map[uuid.UUID]*Session),
		sessionTimeout: sessionTimeout,
	}
}

// Reserve claims a registry slot for a connection about to be upgraded.
func (cm *ConnectionManager) Reserve(owner, remote string) (uuid.UUID, error) {
	now := time.Now()
	id := uuid.New()
	err := cm.registry.Acquire(registry.Session{
		ID:       id,
		Owner:    owner,
		Remote:   remote,
		OpenedAt: now,
		LastSeen: now,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Release frees a slot that never became a session.
func (cm *ConnectionManager) Release(id uuid.UUID) {
	cm.registry.Release(id)
}

// RegisterConnection registers a new session
func (cm *ConnectionManager) RegisterConnection(session *Session) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.sessions[session.SessionID] = session
	cm.metrics.ActiveSessions.Inc()
	cm.logger.Infof("Registered capture session %s (owner %q)", session.SessionID, session.Owner)
}

// UnregisterConnection closes and removes a session and frees its slot
func (cm *ConnectionManager) UnregisterConnection(sessionID uuid.UUID) {
	cm.mutex.Lock()
	session, exists := cm.sessions[sessionID]
	delete(cm.sessions, sessionID)
	cm.mutex.Unlock()

	if exists {
		session.Close()
		cm.metrics.ActiveSessions.Dec()
		cm.logger.Infof("Unregistered capture session %s", sessionID)
	}
	cm.registry.Release(sessionID)
}

// Touch records activity on a session
func (cm *ConnectionManager) Touch(session *Session) {
	session.UpdateLastActive()
	if err := cm.registry.Touch(session.SessionID, session.LastActive()); err != nil {
		cm.logger.Debugf("touch %s: %v", session.SessionID, err)
	}
}

// GetSession retrieves a session by ID
func (cm *ConnectionManager) GetSession(sessionID uuid.UUID) (*Session, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	session, exists := cm.sessions[sessionID]
	return session, exists
}

// GetSessionCount returns the number of active sessions
func (cm *ConnectionManager) GetSessionCount() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return len(cm.sessions)
}

// SweepExpired closes sessions the registry has not seen recently and
// returns how many it found. Their handlers unregister them once the read
// loop notices.
func (cm *ConnectionManager) SweepExpired(now time.Time) int {
	stale := cm.registry.Stale(now.Add(-cm.sessionTimeout))
	for _, s := range stale {
		session, ok := cm.GetSession(s.ID)
		if !ok {
			// reserved but never upgraded
			cm.registry.Release(s.ID)
			continue
		}
		cm.logger.Infof("Closing idle capture session %s (last seen %s)", s.ID, s.LastSeen.Format(time.RFC3339))
		session.Close()
	}

	if len(stale) > 0 {
		cm.logger.Infof("Cleaned up %d expired sessions", len(stale))
	}
	return len(stale)
}

// Close shuts down the connection manager and every open session
func (cm *ConnectionManager) Close() error {
	cm.mutex.RLock()
	sessions := make([]*Session, 0, len(cm.sessions))
	for _, session := range cm.sessions {
		sessions = append(sessions, session)
	}
	cm.mutex.RUnlock()

	for _, session := range sessions {
		session.Close()
	}

	cm.logger.Infof("Connection manager closed")
	return nil
}

// GetStats returns connection manager statistics
func (cm *ConnectionManager) GetStats() map[string]interface{} {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	sessions := make([]map[string]interface{}, 0, len(cm.sessions))
	for id, session := range cm.sessions {
		status := ""
		if session.VoiceSystem != nil {
			status = string(session.VoiceSystem.Status())
		}
		sessions = append(sessions, map[string]interface{}{
			"sessionId":   id.String(),
			"owner":       session.Owner,
			"status":      status,
			"connectedAt": session.ConnectedAt,
			"lastActive":  session.LastActive(),
		})
	}

	return map[string]interface{}{
		"activeSessions":       len(cm.sessions),
		"reservedSlots":        cm.registry.Len(),
		"sessionTimeoutMinute": cm.sessionTimeout.Minutes(),
		"sessions":             sessions,
	}
}
