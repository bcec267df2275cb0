package llm

import "context"

// Provider defines the interface for LLM providers (Gemini, OpenAI, Claude, Ollama, Bedrock)
type Provider interface {
	// Generate sends prompt to the model and returns the generated text.
	// HTTP-level failures are reported as *StatusError.
	Generate(ctx context.Context, prompt string) (string, error)

	// Name returns the provider name (for logging)
	Name() string

	// Model returns the model identifier sent to the provider
	Model() string
}

// Config holds common configuration for LLM providers
type Config struct {
	Provider string // "gemini", "openai", "anthropic", "ollama", "bedrock"

	// Gemini-specific
	GeminiAPIKey string
	GeminiModel  string // e.g., "gemini-2.5-flash"

	// OpenAI-specific
	OpenAIAPIKey string
	OpenAIModel  string // e.g., "gpt-4o-mini"

	// Anthropic-specific
	AnthropicAPIKey string
	AnthropicModel  string // e.g., "claude-3-5-sonnet-20241022"

	// Ollama-specific
	OllamaURL   string
	OllamaModel string

	// AWS Bedrock-specific
	BedrockRegion string // e.g., "us-east-1", "us-west-2"
	BedrockModel  string // e.g., "anthropic.claude-3-5-sonnet-20241022-v2:0"
}
