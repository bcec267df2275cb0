package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Factory creates LLM providers based on configuration
type Factory struct {
	config Config
	logger *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{config: config, logger: logger}
}

// CreateProvider creates the configured LLM provider
func (f *Factory) CreateProvider(ctx context.Context) (Provider, error) {
	switch f.config.Provider {
	case "", "gemini", "google":
		if f.config.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini API key not configured")
		}
		if f.config.GeminiModel == "" {
			f.config.GeminiModel = "gemini-2.5-flash" // Default model
		}
		f.logger.Info("using Google Gemini provider", zap.String("model", f.config.GeminiModel))
		return NewGeminiProvider(ctx, f.config.GeminiAPIKey, f.config.GeminiModel)

	case "openai":
		if f.config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openAI API key not configured")
		}
		if f.config.OpenAIModel == "" {
			f.config.OpenAIModel = "gpt-4o-mini" // Default model
		}
		f.logger.Info("using OpenAI provider", zap.String("model", f.config.OpenAIModel))
		return NewOpenAIProvider(f.config.OpenAIAPIKey, f.config.OpenAIModel), nil

	case "anthropic", "claude":
		if f.config.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		if f.config.AnthropicModel == "" {
			f.config.AnthropicModel = "claude-3-5-sonnet-20241022" // Default model
		}
		f.logger.Info("using Anthropic provider", zap.String("model", f.config.AnthropicModel))
		return NewAnthropicProvider(f.config.AnthropicAPIKey, f.config.AnthropicModel), nil

	case "ollama":
		if f.config.OllamaURL == "" {
			return nil, fmt.Errorf("ollama URL not configured")
		}
		if f.config.OllamaModel == "" {
			f.config.OllamaModel = "llama3" // Default model
		}
		f.logger.Info("using Ollama provider",
			zap.String("model", f.config.OllamaModel), zap.String("url", f.config.OllamaURL))
		return NewOllamaProvider(f.config.OllamaURL, f.config.OllamaModel), nil

	case "bedrock", "aws":
		if f.config.BedrockRegion == "" {
			f.config.BedrockRegion = "us-east-1" // Default region
		}
		if f.config.BedrockModel == "" {
			f.config.BedrockModel = "anthropic.claude-3-5-sonnet-20241022-v2:0" // Default model
		}
		f.logger.Info("using AWS Bedrock provider",
			zap.String("model", f.config.BedrockModel), zap.String("region", f.config.BedrockRegion))
		return NewBedrockProvider(ctx, f.config.BedrockRegion, f.config.BedrockModel)

	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: gemini, openai, anthropic, ollama, bedrock)", f.config.Provider)
	}
}
