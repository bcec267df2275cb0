package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valentinpelus/linkbrief/internal/config"
	"github.com/valentinpelus/linkbrief/internal/handler"
	"github.com/valentinpelus/linkbrief/internal/processor"
	"github.com/valentinpelus/linkbrief/internal/server"
	"github.com/valentinpelus/linkbrief/pkg/feedback"
	"github.com/valentinpelus/linkbrief/pkg/ledger"
	"github.com/valentinpelus/linkbrief/pkg/llm"
	"github.com/valentinpelus/linkbrief/pkg/scraper"
	"github.com/valentinpelus/linkbrief/pkg/telegram"
	"github.com/valentinpelus/linkbrief/pkg/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const drainTimeout = 30 * time.Second

// App holds all application dependencies
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Telegram    *telegram.Client
	Summarizer  *llm.Summarizer
	Tracer      *telemetry.Tracer
	Ledger      *ledger.Ledger
	NoteSlots   *feedback.NoteSlots
	Pipeline    *processor.Pipeline
	Correlator  *feedback.Correlator
	Dispatcher  *handler.Dispatcher
	BotUsername string

	closers []func() error
}

// New initializes a new application with all dependencies
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	a.Telegram = telegram.NewClient(cfg.TelegramBotToken, logger.Named("telegram"))
	if cfg.TelegramAPIURL != "" {
		a.Telegram.WithBaseURL(cfg.TelegramAPIURL)
	}
	me, err := a.Telegram.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("telegram token check failed: %w", err)
	}
	a.BotUsername = me.Username

	recorder, closers := NewRecorder(ctx, cfg, logger)
	a.closers = append(a.closers, closers...)
	a.Tracer = telemetry.NewTracer(recorder, logger.Named("telemetry"))

	a.Summarizer, err = NewSummarizer(ctx, cfg, a.Tracer, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Ledger = ledger.New()
	a.NoteSlots = feedback.NewNoteSlots()
	a.Pipeline = processor.NewPipeline(a.Ledger, a.Telegram, NewExtractor(cfg, logger), a.Summarizer,
		cfg.DestChannelID, logger.Named("pipeline"))
	a.Correlator = feedback.NewCorrelator(a.Ledger, a.NoteSlots, a.Tracer, a.Telegram,
		cfg.DestChannelID, logger.Named("feedback"))
	a.Dispatcher = handler.NewDispatcher(handler.Options{
		SourceChatID:     cfg.SourceChannelID,
		DestChatID:       cfg.DestChannelID,
		AuthorizedUserID: cfg.AuthorizedUserID,
		BotUsername:      a.BotUsername,
		MaxConcurrent:    int64(cfg.MaxConcurrentRequests),
	}, a.Pipeline, a.Correlator, a.Telegram, logger.Named("dispatcher"))

	return a, nil
}

// NewRecorder builds the telemetry backends named by cfg. It returns a nil
// recorder when none is configured.
func NewRecorder(ctx context.Context, cfg *config.Config, logger *zap.Logger) (telemetry.Recorder, []func() error) {
	var recorders []telemetry.Recorder
	var closers []func() error

	if cfg.LangfusePublicKey != "" && cfg.LangfuseSecretKey != "" {
		recorders = append(recorders, telemetry.NewLangfuseClient(cfg.LangfuseHost, cfg.LangfusePublicKey, cfg.LangfuseSecretKey))
	}
	if cfg.TelemetryDatabaseURL != "" {
		pg, err := telemetry.NewPostgresRecorder(ctx, cfg.TelemetryDatabaseURL)
		if err != nil {
			// the bot works without telemetry; feedback is just not correlated
			logger.Warn("telemetry database unavailable, continuing without it", zap.Error(err))
		} else {
			recorders = append(recorders, pg)
			closers = append(closers, pg.Close)
		}
	}

	return telemetry.Combine(recorders...), closers
}

// NewSummarizer builds the configured LLM provider and wraps it
func NewSummarizer(ctx context.Context, cfg *config.Config, tracer *telemetry.Tracer, logger *zap.Logger) (*llm.Summarizer, error) {
	llmConfig := llm.Config{
		Provider:        cfg.LLMProvider,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OllamaURL:       cfg.OllamaURL,
		BedrockRegion:   cfg.BedrockRegion,
	}
	switch cfg.LLMProvider {
	case "gemini", "google":
		llmConfig.GeminiModel = cfg.LLMModel
	case "openai":
		llmConfig.OpenAIModel = cfg.LLMModel
	case "anthropic", "claude":
		llmConfig.AnthropicModel = cfg.LLMModel
	case "ollama":
		llmConfig.OllamaModel = cfg.LLMModel
	case "bedrock", "aws":
		llmConfig.BedrockModel = cfg.LLMModel
	}

	provider, err := llm.NewFactory(llmConfig, logger.Named("llm")).CreateProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	return llm.NewSummarizer(provider, tracer, cfg.SummaryPromptTemplate, logger.Named("summarizer")).
		WithTimeout(cfg.LLMTimeout), nil
}

// NewExtractor builds the content extractor, with browser rendering when enabled
func NewExtractor(cfg *config.Config, logger *zap.Logger) *scraper.Extractor {
	var browser scraper.Fetcher
	if cfg.ScraperBrowser {
		browser = scraper.NewBrowserFetcher(cfg.BrowserBin)
	}
	return scraper.NewExtractor(scraper.NewHTTPFetcher(nil), browser, cfg.ScrapeTimeout, logger.Named("scraper"))
}

// Run receives updates over the configured transport until ctx is cancelled,
// then waits for in-flight work.
func (a *App) Run(ctx context.Context) error {
	var err error
	switch a.Config.Transport {
	case "webhook":
		err = a.runWebhook(ctx)
	default:
		err = a.runPolling(ctx)
	}
	a.drain()
	return err
}

func (a *App) runPolling(ctx context.Context) error {
	// getUpdates is refused while a webhook is registered
	if err := a.Telegram.DeleteWebhook(ctx); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return handler.NewPoller(a.Telegram, a.Dispatcher, a.Logger.Named("poller")).Run(ctx)
}

func (a *App) runWebhook(ctx context.Context) error {
	webhookURL := strings.TrimRight(a.Config.WebhookURL, "/")
	if !strings.HasSuffix(webhookURL, server.WebhookPath) {
		webhookURL += server.WebhookPath
	}
	if err := a.Telegram.SetWebhook(ctx, webhookURL, a.Config.WebhookSecret); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}
	a.Logger.Info("webhook registered", zap.String("url", webhookURL))

	srv := server.New(a.Config.Port, a.Config.WebhookSecret, a.Dispatcher, a.Stats, a.Logger.Named("server"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) drain() {
	done := make(chan struct{})
	go func() {
		a.Dispatcher.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		a.Logger.Warn("shutdown with requests still in flight")
	}
}

// Stats reports ledger and note counters for the health endpoint
func (a *App) Stats() map[string]int {
	stats := map[string]int{
		"entries":    a.Ledger.Len(),
		"note_slots": a.NoteSlots.Len(),
	}
	for state, n := range a.Ledger.Stats() {
		stats[state.String()] = n
	}
	return stats
}

// Close releases telemetry connections
func (a *App) Close() error {
	var errs []error
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// LogStartupInfo logs application startup information
func (a *App) LogStartupInfo() {
	cfg := a.Config
	a.Logger.Info("starting linkbrief",
		zap.String("bot", a.BotUsername),
		zap.String("transport", cfg.Transport),
		zap.Int64("source_channel", cfg.SourceChannelID),
		zap.Int64("dest_channel", cfg.DestChannelID),
		zap.Int("max_concurrent", cfg.MaxConcurrentRequests))

	if a.Tracer.Enabled() {
		a.Logger.Info("telemetry enabled, ratings and notes will be correlated")
	} else {
		a.Logger.Warn("telemetry disabled, rating controls will not be shown")
	}

	if cfg.AuthorizedUserID != 0 {
		a.Logger.Info("feedback restricted to one user", zap.Int64("user_id", cfg.AuthorizedUserID))
	}
	if cfg.Transport == "webhook" && cfg.WebhookSecret == "" {
		a.Logger.Warn("webhook secret not set, anyone can post updates")
	}
}
