package assistant

import "time"

func NewMessage(role Role, content string) AssistantMessage {
	return AssistantMessage{
		Content:   content,
		CreatedAt: time.Now(),
		MsgRole:   role,
	}
}

func System(content string) AssistantMessage { return NewMessage(SYSTEM, content) }

func User(content string) AssistantMessage { return NewMessage(USER, content) }

func Reply(content string) AssistantMessage { return NewMessage(ASSISTANT, content) }

// SplitSystem separates the leading system prompt, for providers that take it out of band.
func SplitSystem(msgs []AssistantMessage) (string, []AssistantMessage) {
	var system string
	rest := make([]AssistantMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.MsgRole == SYSTEM {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
