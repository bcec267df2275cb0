package llm

import (
	"context"
	"time"

	"github.com/valentinpelus/linkbrief/pkg/telemetry"
	"go.uber.org/zap"
)

const defaultGenerateTimeout = 120 * time.Second

// Result is the outcome of one summarization. Exactly one of Summary and
// Err is set. TraceID is non-empty only when the generation was recorded.
type Result struct {
	Summary string
	Err     *GenerationError
	TraceID string
}

// Summarizer turns article text into a brief and reports the generation to
// telemetry when a tracer is configured.
type Summarizer struct {
	provider Provider
	tracer   *telemetry.Tracer
	template string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSummarizer creates a summarizer; tracer may be nil
func NewSummarizer(provider Provider, tracer *telemetry.Tracer, template string, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if template == "" {
		template = GetSummaryPromptTemplate()
	}
	return &Summarizer{
		provider: provider,
		tracer:   tracer,
		template: template,
		timeout:  defaultGenerateTimeout,
		logger:   logger,
	}
}

// WithTimeout overrides the per-generation deadline
func (s *Summarizer) WithTimeout(d time.Duration) *Summarizer {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Prompt returns the prompt that Summarize would send for text
func (s *Summarizer) Prompt(text string) string {
	return BuildSummaryPrompt(s.template, text)
}

// Summarize generates a brief for the article at url
func (s *Summarizer) Summarize(ctx context.Context, url, text string) Result {
	prompt := s.Prompt(text)

	traceID := s.tracer.Begin(ctx, "summarize", url, map[string]string{
		"url":      url,
		"provider": s.provider.Name(),
		"model":    s.provider.Model(),
	})

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	start := time.Now().UTC()
	summary, err := s.provider.Generate(genCtx, prompt)
	end := time.Now().UTC()
	cancel()

	gen := telemetry.Generation{
		Name:      "summary",
		Model:     s.provider.Model(),
		Input:     prompt,
		Output:    summary,
		StartTime: start,
		EndTime:   end,
	}

	if err != nil {
		gerr := Classify(err)
		gen.Output = ""
		gen.Error = gerr.Error()
		s.tracer.Generation(ctx, traceID, gen)
		s.logger.Warn("summarization failed",
			zap.String("url", url),
			zap.String("kind", gerr.Kind.String()),
			zap.Int("status", gerr.StatusCode),
			zap.Error(err))
		return Result{Err: gerr}
	}

	if !s.tracer.Generation(ctx, traceID, gen) {
		traceID = ""
	}

	s.logger.Info("summarization complete",
		zap.String("url", url),
		zap.Int("chars", len(summary)),
		zap.Duration("duration", end.Sub(start)),
		zap.Bool("traced", traceID != ""))
	return Result{Summary: summary, TraceID: traceID}
}
