package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIAssistant struct {
	client openai.Client
	model  string
}

// Complete implements Assistant.
func (o openAIAssistant) Complete(ctx context.Context, msgs []AssistantMessage) (string, error) {
	if len(msgs) == 0 {
		return "", ErrEmptyConversation
	}
	chatCompletion, err := o.client.Chat.Completions.New(ctx, o.params(msgs))
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(chatCompletion.Choices) == 0 {
		return "", fmt.Errorf("completion %s returned no choices", chatCompletion.ID)
	}
	return chatCompletion.Choices[0].Message.Content, nil
}

// Stream implements Assistant.
func (o openAIAssistant) Stream(ctx context.Context, msgs []AssistantMessage, fn StreamFunc) (string, error) {
	if len(msgs) == 0 {
		return "", ErrEmptyConversation
	}
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(msgs))
	defer stream.Close()

	var reply strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		reply.WriteString(chunk.Choices[0].Delta.Content)
		if fn != nil {
			if err := fn(reply.String()); err != nil {
				return reply.String(), err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return reply.String(), fmt.Errorf("completion stream failed: %w", err)
	}
	return reply.String(), nil
}

func (o openAIAssistant) params(msgs []AssistantMessage) openai.ChatCompletionNewParams {
	convertedMsgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		convertedMsgs = append(convertedMsgs, convertToOpenaiMsg(msg))
	}
	return openai.ChatCompletionNewParams{
		Messages: convertedMsgs,
		Model:    openai.ChatModel(o.model),
	}
}

func convertToOpenaiMsg(msg AssistantMessage) openai.ChatCompletionMessageParamUnion {
	switch msg.MsgRole {
	case ASSISTANT:
		return openai.AssistantMessage(msg.Content)
	case USER:
		return openai.UserMessage(msg.Content)
	case SYSTEM:
		return openai.SystemMessage(msg.Content)
	}
	return openai.UserMessage(msg.Content)
}

// NewOpenAIAssistant builds an OpenAI (or compatible, when baseURL is set) assistant.
func NewOpenAIAssistant(apiKey, baseURL, model string, opts ...option.RequestOption) Assistant {
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	options = append(options, opts...)

	return openAIAssistant{
		client: openai.NewClient(options...),
		model:  model,
	}
}
