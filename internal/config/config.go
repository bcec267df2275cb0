package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configPathEnv = "LINKBRIEF_CONFIG"

// Config holds all application configuration
type Config struct {
	// Telegram
	TelegramBotToken string `yaml:"telegramBotToken"`
	TelegramAPIURL   string `yaml:"telegramApiUrl"` // self-hosted Bot API server
	SourceChannelID  int64  `yaml:"sourceChannelId"`
	DestChannelID    int64  `yaml:"destChannelId"`
	AuthorizedUserID int64  `yaml:"authorizedUserId"` // 0 disables the allow-list

	// Transport: "polling" or "webhook"
	Transport     string `yaml:"transport"`
	Port          string `yaml:"port"`
	WebhookURL    string `yaml:"webhookUrl"`
	WebhookSecret string `yaml:"webhookSecret"`

	// LLM
	LLMProvider           string        `yaml:"llmProvider"` // "gemini", "openai", "anthropic", "ollama", "bedrock"
	LLMModel              string        `yaml:"llmModel"`
	GeminiAPIKey          string        `yaml:"geminiApiKey"`
	OpenAIAPIKey          string        `yaml:"openaiApiKey"`
	AnthropicAPIKey       string        `yaml:"anthropicApiKey"`
	OllamaURL             string        `yaml:"ollamaUrl"`
	BedrockRegion         string        `yaml:"bedrockRegion"`
	SummaryPromptTemplate string        `yaml:"summaryPromptTemplate"`
	LLMTimeout            time.Duration `yaml:"llmTimeout"`

	// Scraper
	ScrapeTimeout  time.Duration `yaml:"scrapeTimeout"`
	ScraperBrowser bool          `yaml:"scraperBrowser"`
	BrowserBin     string        `yaml:"browserBin"`

	// Telemetry Configuration
	LangfusePublicKey    string `yaml:"langfusePublicKey"`
	LangfuseSecretKey    string `yaml:"langfuseSecretKey"`
	LangfuseHost         string `yaml:"langfuseHost"`
	TelemetryDatabaseURL string `yaml:"telemetryDatabaseUrl"`

	MaxConcurrentRequests int    `yaml:"maxConcurrentRequests"`
	LogLevel              string `yaml:"logLevel"`
	LogFormat             string `yaml:"logFormat"` // "json" or "console"
}

func defaultConfig() Config {
	return Config{
		TelegramAPIURL:        "https://api.telegram.org",
		Transport:             "polling",
		Port:                  "8080",
		LLMProvider:           "gemini",
		OllamaURL:             "http://localhost:11434",
		BedrockRegion:         "us-east-1",
		LLMTimeout:            120 * time.Second,
		ScrapeTimeout:         20 * time.Second,
		LangfuseHost:          "https://cloud.langfuse.com",
		MaxConcurrentRequests: 4,
		LogLevel:              "info",
		LogFormat:             "json",
	}
}

// LoadConfig loads configuration from the optional YAML file named by
// LINKBRIEF_CONFIG, then applies environment variables on top.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.TelegramAPIURL = getEnv("TELEGRAM_API_URL", c.TelegramAPIURL)
	c.Transport = strings.ToLower(getEnv("TRANSPORT", c.Transport))
	c.Port = getEnv("PORT", c.Port)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.WebhookSecret = getEnv("WEBHOOK_SECRET", c.WebhookSecret)

	c.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLMProvider))
	c.LLMModel = getEnv("LLM_MODEL", c.LLMModel)
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.OllamaURL = getEnv("OLLAMA_URL", c.OllamaURL)
	c.BedrockRegion = getEnv("BEDROCK_REGION", c.BedrockRegion)
	c.SummaryPromptTemplate = getEnv("SUMMARY_PROMPT_TEMPLATE", c.SummaryPromptTemplate)

	c.BrowserBin = getEnv("SCRAPER_BROWSER_BIN", c.BrowserBin)

	c.LangfusePublicKey = getEnv("LANGFUSE_PUBLIC_KEY", c.LangfusePublicKey)
	c.LangfuseSecretKey = getEnv("LANGFUSE_SECRET_KEY", c.LangfuseSecretKey)
	c.LangfuseHost = getEnv("LANGFUSE_HOST", c.LangfuseHost)
	c.TelemetryDatabaseURL = getEnv("TELEMETRY_DATABASE_URL", c.TelemetryDatabaseURL)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	var errs []error
	var err error
	if c.ScraperBrowser, err = getEnvBool("SCRAPER_BROWSER", c.ScraperBrowser); err != nil {
		errs = append(errs, err)
	}
	if c.MaxConcurrentRequests, err = getEnvInt("MAX_CONCURRENT_REQUESTS", c.MaxConcurrentRequests); err != nil {
		errs = append(errs, err)
	}
	if c.SourceChannelID, err = getEnvInt64("SOURCE_CHANNEL_ID", c.SourceChannelID); err != nil {
		errs = append(errs, err)
	}
	if c.DestChannelID, err = getEnvInt64("DEST_CHANNEL_ID", c.DestChannelID); err != nil {
		errs = append(errs, err)
	}
	if c.AuthorizedUserID, err = getEnvInt64("AUTHORIZED_USER_ID", c.AuthorizedUserID); err != nil {
		errs = append(errs, err)
	}
	if c.LLMTimeout, err = getEnvDuration("LLM_TIMEOUT", c.LLMTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.ScrapeTimeout, err = getEnvDuration("SCRAPE_TIMEOUT", c.ScrapeTimeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks the settings the bot cannot run without
func (c *Config) Validate() error {
	var errs []error
	if c.TelegramBotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.SourceChannelID == 0 {
		errs = append(errs, errors.New("SOURCE_CHANNEL_ID is required"))
	}
	if c.DestChannelID == 0 {
		errs = append(errs, errors.New("DEST_CHANNEL_ID is required"))
	}
	if err := c.ValidateLLM(); err != nil {
		errs = append(errs, err)
	}

	switch c.Transport {
	case "polling":
	case "webhook":
		if c.WebhookURL == "" {
			errs = append(errs, errors.New("WEBHOOK_URL is required for the webhook transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TRANSPORT %q (supported: polling, webhook)", c.Transport))
	}

	if (c.LangfusePublicKey == "") != (c.LangfuseSecretKey == "") {
		errs = append(errs, errors.New("LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY must be set together"))
	}
	if c.MaxConcurrentRequests <= 0 {
		errs = append(errs, errors.New("MAX_CONCURRENT_REQUESTS must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateLLM checks that the selected provider has its credentials
func (c *Config) ValidateLLM() error {
	switch c.LLMProvider {
	case "gemini", "google":
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for the openai provider")
		}
	case "anthropic", "claude":
		if c.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case "ollama":
		if c.OllamaURL == "" {
			return errors.New("OLLAMA_URL is required for the ollama provider")
		}
	case "bedrock", "aws":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	return nil
}

// TelemetryEnabled reports whether any telemetry backend is configured
func (c *Config) TelemetryEnabled() bool {
	return c.LangfusePublicKey != "" || c.TelemetryDatabaseURL != ""
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an int environment variable with a default value
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return i, nil
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	return b, nil
}

// getEnvInt64 parses chat and user ids, which must not silently fall back
func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return i, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return d, nil
}
