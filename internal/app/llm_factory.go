package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/xpanvictor/voxcap/internal/config"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/assistant"
	"github.com/xpanvictor/voxcap/pkg/assistant/providers/gemini"
	"github.com/xpanvictor/voxcap/pkg/assistant/providers/ollama"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// LLMFactory builds the transcript editor's assistant for the configured provider
type LLMFactory struct {
	config config.AssistantConfig
	logger *Logger.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg config.AssistantConfig, logger *Logger.Logger) *LLMFactory {
	return &LLMFactory{
		config: cfg,
		logger: logger,
	}
}

// CreateAssistant returns the assistant for config.Provider
func (f *LLMFactory) CreateAssistant(ctx context.Context) (assistant.Assistant, error) {
	switch strings.ToLower(f.config.Provider) {
	case ProviderOpenAI:
		if f.config.OpenAIAPIKey == "" && f.config.OpenAIURL == "" {
			return nil, fmt.Errorf("openai provider needs an API key or a compatible base URL")
		}
		f.logger.Infof("OpenAI assistant created, model %q", f.config.Model)
		return assistant.NewOpenAIAssistant(f.config.OpenAIAPIKey, f.config.OpenAIURL, f.config.Model), nil

	case ProviderOllama:
		if len(f.config.OllamaURLs) == 0 {
			return nil, fmt.Errorf("ollama provider needs at least one server URL")
		}
		f.logger.Infof("Ollama assistant created for %v, model %q", f.config.OllamaURLs, f.config.Model)
		return ollama.New(f.config.OllamaURLs, f.config.Model, f.logger.Named("ollama")), nil

	case ProviderGemini:
		provider, err := gemini.New(ctx, f.config.GeminiAPIKey, f.config.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini assistant: %w", err)
		}
		f.logger.Infof("Gemini assistant created, model %q", f.config.Model)
		return provider, nil

	default:
		return nil, fmt.Errorf("unknown assistant provider %q", f.config.Provider)
	}
}
