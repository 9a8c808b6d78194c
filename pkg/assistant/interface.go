package assistant

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	USER      Role = "user"
	ASSISTANT Role = "assistant"
	SYSTEM    Role = "system"
)

var ErrEmptyConversation = errors.New("no messages to send")

type AssistantMessage struct {
	Content   string
	CreatedAt time.Time
	MsgRole   Role
}

// StreamFunc receives the reply accumulated so far after every delta.
type StreamFunc func(reply string) error

// Assistant is a chat-completion backend.
type Assistant interface {
	Complete(ctx context.Context, msgs []AssistantMessage) (string, error)
	Stream(ctx context.Context, msgs []AssistantMessage, fn StreamFunc) (string, error)
}
