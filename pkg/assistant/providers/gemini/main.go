package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/xpanvictor/voxcap/pkg/assistant"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiProvider adapts the Gemini chat API to assistant.Assistant.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

var _ assistant.Assistant = (*GeminiProvider)(nil)

// New creates a new GeminiProvider instance.
func New(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is not configured")
	}
	if model == "" {
		model = "gemini-1.5-flash-latest"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// Complete implements assistant.Assistant.
func (gp *GeminiProvider) Complete(ctx context.Context, msgs []assistant.AssistantMessage) (string, error) {
	cs, last, err := gp.session(msgs)
	if err != nil {
		return "", err
	}
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	return responseText(resp), nil
}

// Stream implements assistant.Assistant.
func (gp *GeminiProvider) Stream(ctx context.Context, msgs []assistant.AssistantMessage, fn assistant.StreamFunc) (string, error) {
	cs, last, err := gp.session(msgs)
	if err != nil {
		return "", err
	}

	var reply strings.Builder
	iter := cs.SendMessageStream(ctx, genai.Text(last))
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return reply.String(), fmt.Errorf("failed to receive from Gemini stream: %w", err)
		}
		reply.WriteString(responseText(resp))
		if fn != nil {
			if err := fn(reply.String()); err != nil {
				return reply.String(), err
			}
		}
	}
	return reply.String(), nil
}

// session loads everything but the final user turn into chat history.
func (gp *GeminiProvider) session(msgs []assistant.AssistantMessage) (*genai.ChatSession, string, error) {
	system, rest := assistant.SplitSystem(msgs)
	if len(rest) == 0 {
		return nil, "", assistant.ErrEmptyConversation
	}

	model := gp.client.GenerativeModel(gp.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	for _, m := range rest[:len(rest)-1] {
		role := "user"
		if m.MsgRole == assistant.ASSISTANT {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return cs, rest[len(rest)-1].Content, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return sb.String()
}

func (gp *GeminiProvider) Close() error {
	return gp.client.Close()
}
