package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/presbrey/ollamafarm"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/assistant"
)

var ErrNoServer = errors.New("no ollama server online")

// OllamaProvider spreads requests over the registered Ollama servers.
type OllamaProvider struct {
	ollamafarm *ollamafarm.Farm
	client     *api.Client // fixed client, bypasses the farm
	model      string
}

var _ assistant.Assistant = (*OllamaProvider)(nil)

func New(urls []string, model string, logger *Logger.Logger) *OllamaProvider {
	farm := ollamafarm.New()

	// register servers
	for _, u := range urls {
		if err := farm.RegisterURL(u, nil); err != nil {
			logger.Warnf("failed to register ollama server %s: %v", u, err)
		}
	}

	return &OllamaProvider{
		ollamafarm: farm,
		model:      model,
	}
}

// NewWithClient talks to a single server.
func NewWithClient(client *api.Client, model string) *OllamaProvider {
	return &OllamaProvider{client: client, model: model}
}

func (o *OllamaProvider) pick() (*api.Client, error) {
	if o.client != nil {
		return o.client, nil
	}
	// pick first available client
	ollama := o.ollamafarm.First(&ollamafarm.Where{Offline: false})
	if ollama == nil {
		return nil, fmt.Errorf("%w for model %s", ErrNoServer, o.model)
	}
	return ollama.Client(), nil
}

// Complete implements assistant.Assistant.
func (o *OllamaProvider) Complete(ctx context.Context, msgs []assistant.AssistantMessage) (string, error) {
	return o.chat(ctx, msgs, false, nil)
}

// Stream implements assistant.Assistant.
func (o *OllamaProvider) Stream(ctx context.Context, msgs []assistant.AssistantMessage, fn assistant.StreamFunc) (string, error) {
	return o.chat(ctx, msgs, true, fn)
}

func (o *OllamaProvider) chat(ctx context.Context, msgs []assistant.AssistantMessage, stream bool, fn assistant.StreamFunc) (string, error) {
	if len(msgs) == 0 {
		return "", assistant.ErrEmptyConversation
	}
	client, err := o.pick()
	if err != nil {
		return "", err
	}

	req := api.ChatRequest{
		Model:    o.model,
		Messages: convertMsgs(msgs),
		Stream:   &stream,
	}

	var reply strings.Builder
	err = client.Chat(ctx, &req, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		reply.WriteString(resp.Message.Content)
		if fn != nil {
			return fn(reply.String())
		}
		return nil
	})
	if err != nil {
		return reply.String(), fmt.Errorf("ollama chat failed: %w", err)
	}
	return reply.String(), nil
}

func convertMsgs(msgs []assistant.AssistantMessage) []api.Message {
	converted := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		converted = append(converted, api.Message{
			Role:    string(msg.MsgRole),
			Content: msg.Content,
		})
	}
	return converted
}
