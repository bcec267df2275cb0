// Package processor turns a posted link into a summary message and keeps
// the request ledger in step with what the destination channel shows.
package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/valentinpelus/linkbrief/pkg/ledger"
	"github.com/valentinpelus/linkbrief/pkg/llm"
	"github.com/valentinpelus/linkbrief/pkg/render"
	"github.com/valentinpelus/linkbrief/pkg/telegram"
	"github.com/valentinpelus/linkbrief/pkg/types"
	"go.uber.org/zap"
)

var (
	// ErrEntryNotFound is returned by Retry for messages the ledger does not track
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrRetryInProgress is returned by Retry while a run for the message is pending
	ErrRetryInProgress = errors.New("retry already in progress")
)

// maxRetryAfter caps how long a rate-limited result edit waits before its
// single second attempt
const maxRetryAfter = 30 * time.Second

// ChannelService posts and edits messages in the destination channel
type ChannelService interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *types.InlineKeyboardMarkup) (*types.Message, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *types.InlineKeyboardMarkup) error
}

// ContentExtractor downloads a page and extracts its readable text
type ContentExtractor interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	Extract(raw []byte, recall bool) (string, bool)
}

// Summarizer condenses article text. Implementations never fail outright;
// failures are carried in the result.
type Summarizer interface {
	Summarize(ctx context.Context, url, text string) llm.Result
}

// Pipeline runs the placeholder, extract, summarize, edit sequence
type Pipeline struct {
	ledger     *ledger.Ledger
	channel    ChannelService
	extractor  ContentExtractor
	summarizer Summarizer
	chatID     int64
	wait       func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
}

// NewPipeline creates a pipeline publishing to the destination chatID
func NewPipeline(l *ledger.Ledger, channel ChannelService, extractor ContentExtractor, summarizer Summarizer, chatID int64, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		ledger:     l,
		channel:    channel,
		extractor:  extractor,
		summarizer: summarizer,
		chatID:     chatID,
		wait:       sleep,
		logger:     logger,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// outcome is what a run renders and stores
type outcome struct {
	state    ledger.State
	traceID  string
	body     string
	controls *types.InlineKeyboardMarkup
}

// Process posts a placeholder for url, tracks it in the ledger and edits it
// in place with the result. It returns the id of the destination message.
// An error means the placeholder could not be posted and nothing is tracked.
func (p *Pipeline) Process(ctx context.Context, url string) (ledger.MessageID, error) {
	id, err := p.Begin(ctx, url)
	if err != nil {
		return 0, err
	}
	p.Run(ctx, id, url)
	return id, nil
}

// Begin posts the placeholder for url and tracks it as Pending. It does no
// slow I/O, so callers can acknowledge a link before waiting for a run slot.
func (p *Pipeline) Begin(ctx context.Context, url string) (ledger.MessageID, error) {
	msg, err := p.channel.SendMessage(ctx, p.chatID, render.Placeholder(url), nil)
	if err != nil {
		p.logger.Error("failed to post placeholder", zap.String("url", url), zap.Error(err))
		return 0, fmt.Errorf("post placeholder: %w", err)
	}

	id := ledger.MessageID(msg.MessageID)
	p.ledger.Put(id, ledger.Entry{URL: url, State: ledger.Pending})
	p.logger.Info("processing link", zap.String("url", url), zap.Int("message_id", int(id)))
	return id, nil
}

// Retry re-runs the pipeline for an existing message, reusing its ledger
// entry and its message.
func (p *Pipeline) Retry(ctx context.Context, id ledger.MessageID) error {
	url, err := p.Rearm(id)
	if err != nil {
		return err
	}
	p.Resume(ctx, id, url)
	return nil
}

// Rearm resets the entry of id to Pending and returns its URL. It fails
// without side effects for unknown ids and for runs still in flight.
func (p *Pipeline) Rearm(id ledger.MessageID) (string, error) {
	busy := false
	entry, ok := p.ledger.Update(id, func(e ledger.Entry) (ledger.Entry, bool) {
		if e.State == ledger.Pending {
			busy = true
			return e, false
		}
		return e.Rearm(), true
	})
	switch {
	case busy:
		return "", ErrRetryInProgress
	case !ok:
		return "", ErrEntryNotFound
	}
	return entry.URL, nil
}

// Resume shows the retry placeholder on a rearmed message and runs the
// pipeline for url again.
func (p *Pipeline) Resume(ctx context.Context, id ledger.MessageID, url string) {
	p.ShowRetrying(ctx, id, url)
	p.Run(ctx, id, url)
}

// ShowRetrying replaces the body of a rearmed message with the retry
// placeholder and removes its controls.
func (p *Pipeline) ShowRetrying(ctx context.Context, id ledger.MessageID, url string) {
	p.logger.Info("retrying link", zap.String("url", url), zap.Int("message_id", int(id)))
	if err := p.channel.EditMessageText(ctx, p.chatID, int(id), render.Retrying(url), nil); err != nil {
		p.logger.Warn("failed to show retry placeholder", zap.Int("message_id", int(id)), zap.Error(err))
	}
}

// Run executes one attempt for a tracked message and renders its outcome.
// A panic anywhere in the attempt is rendered as a generic failure.
func (p *Pipeline) Run(ctx context.Context, id ledger.MessageID, url string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic",
				zap.String("url", url),
				zap.Int("message_id", int(id)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			p.finish(ctx, id, url, outcome{
				state:    ledger.Failed,
				body:     render.Unexpected(url),
				controls: render.RetryControls(),
			})
		}
	}()

	p.finish(ctx, id, url, p.attempt(ctx, url))
}

func (p *Pipeline) attempt(ctx context.Context, url string) outcome {
	text, err := p.extract(ctx, url)
	if err != nil {
		p.logger.Warn("extraction failed", zap.String("url", url), zap.Error(err))
		return outcome{
			state:    ledger.Failed,
			body:     render.ScrapeFailed(url),
			controls: render.RetryControls(),
		}
	}

	result := p.summarizer.Summarize(ctx, url, text)
	if result.Err != nil {
		return outcome{
			state:    ledger.Failed,
			body:     render.GenerationFailed(url, result.Err.Message()),
			controls: render.RetryControls(),
		}
	}

	out := outcome{
		state:   ledger.Succeeded,
		traceID: result.TraceID,
		body:    render.Summary(result.Summary, url),
	}
	if out.traceID != "" {
		out.controls = render.RatingControls()
	}
	return out
}

func (p *Pipeline) extract(ctx context.Context, url string) (string, error) {
	raw, err := p.extractor.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if text, ok := p.extractor.Extract(raw, false); ok {
		return text, nil
	}
	if text, ok := p.extractor.Extract(raw, true); ok {
		p.logger.Debug("standard extraction empty, used recall mode", zap.String("url", url))
		return text, nil
	}
	return "", fmt.Errorf("no readable text in %d bytes", len(raw))
}

// finish stores the outcome, then renders it. The ledger is written first so
// that a rating press on the new controls always finds the trace. When the
// result cannot be shown, the entry is downgraded to Failed and the message
// gets a Retry control, so it never stays on the placeholder.
func (p *Pipeline) finish(ctx context.Context, id ledger.MessageID, url string, out outcome) {
	p.store(id, out.state, out.traceID)

	err := p.show(ctx, id, out)
	if err == nil {
		p.logger.Info("pipeline finished",
			zap.Int("message_id", int(id)),
			zap.String("state", out.state.String()),
			zap.Bool("traced", out.traceID != ""))
		return
	}

	p.logger.Warn("failed to render result",
		zap.Int("message_id", int(id)),
		zap.String("state", out.state.String()),
		zap.Error(err))

	p.store(id, ledger.Failed, "")
	fallback := outcome{state: ledger.Failed, body: render.Unexpected(url), controls: render.RetryControls()}
	if err := p.show(ctx, id, fallback); err != nil {
		p.logger.Error("message left without result",
			zap.Int("message_id", int(id)),
			zap.Error(err))
	}
}

func (p *Pipeline) store(id ledger.MessageID, state ledger.State, traceID string) {
	_, stored := p.ledger.Update(id, func(e ledger.Entry) (ledger.Entry, bool) {
		e.State = state
		e.TraceID = traceID
		e.Rated = false
		return e, true
	})
	if !stored {
		p.logger.Warn("ledger entry vanished before completion", zap.Int("message_id", int(id)))
	}
}

// show edits the message with out, retrying once when Telegram asks the
// bot to slow down
func (p *Pipeline) show(ctx context.Context, id ledger.MessageID, out outcome) error {
	err := p.channel.EditMessageText(ctx, p.chatID, int(id), out.body, out.controls)

	var apiErr *telegram.APIError
	if err == nil || !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 {
		return err
	}

	delay := min(time.Duration(apiErr.RetryAfter)*time.Second, maxRetryAfter)
	p.logger.Info("result edit rate limited, retrying",
		zap.Int("message_id", int(id)),
		zap.Duration("retry_after", delay))
	if werr := p.wait(ctx, delay); werr != nil {
		return err
	}
	return p.channel.EditMessageText(ctx, p.chatID, int(id), out.body, out.controls)
}
