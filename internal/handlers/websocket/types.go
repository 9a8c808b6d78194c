package websocket

import (
	"encoding/json"
	"time"

	vss "github.com/xpanvictor/voxcap/internal/domains/sys_manager/voice_stream_system"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// client -> server
	MessageTypeControl  MessageType = "control"
	MessageTypeRecorder MessageType = "recorder"

	// server -> client; MessageTypeRecorder carries recorder commands
	MessageTypeStatus     MessageType = "status"
	MessageTypeTranscript MessageType = "transcript"
	MessageTypeScope      MessageType = "scope"
	MessageTypeError      MessageType = "error"
)

// WSMessage represents the structure of outgoing WebSocket messages
type WSMessage struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// InboundMessage is a client text frame; Data is decoded once Type is known
type InboundMessage struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ControlAction is a user command for the capture session
type ControlAction string

const (
	ActionLoad   ControlAction = "load"
	ActionRecord ControlAction = "record"
	ActionPause  ControlAction = "pause"
	ActionClose  ControlAction = "close"
)

// ControlMessage contains a control command
type ControlMessage struct {
	Action ControlAction `json:"action"`
}

// RecorderEventName is a notification from the browser recorder
type RecorderEventName string

const (
	RecorderOpened  RecorderEventName = "opened"
	RecorderFailed  RecorderEventName = "failed"
	RecorderStopped RecorderEventName = "stopped"
)

// RecorderEvent reports the state of the browser recorder
type RecorderEvent struct {
	Event    RecorderEventName `json:"event"`
	MimeType string            `json:"mimeType,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// RecorderCommandName is what the server asks of the browser recorder
type RecorderCommandName string

const (
	RecorderOpen        RecorderCommandName = "open"
	RecorderStart       RecorderCommandName = "start"
	RecorderStop        RecorderCommandName = "stop"
	RecorderRequestData RecorderCommandName = "requestData"
	RecorderClose       RecorderCommandName = "close"
)

// RecorderCommand drives the browser recorder
type RecorderCommand struct {
	Command     RecorderCommandName `json:"command"`
	Constraints *vss.Constraints    `json:"constraints,omitempty"`
}

// StatusMessage contains the capture status
type StatusMessage struct {
	Status     string `json:"status"`
	Generation int    `json:"generation"`
}

// ScopeMessage is the time-domain view of the latest audio
type ScopeMessage struct {
	Samples []int `json:"samples"`
	Speech  bool  `json:"speech"`
	IdleMs  int64 `json:"idleMs"`
}

// ErrorMessage contains error information
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
