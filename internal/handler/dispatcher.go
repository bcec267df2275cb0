package handler

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/valentinpelus/linkbrief/internal/processor"
	"github.com/valentinpelus/linkbrief/pkg/feedback"
	"github.com/valentinpelus/linkbrief/pkg/ledger"
	"github.com/valentinpelus/linkbrief/pkg/links"
	"github.com/valentinpelus/linkbrief/pkg/render"
	"github.com/valentinpelus/linkbrief/pkg/telegram"
	"github.com/valentinpelus/linkbrief/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Pipeline is the content pipeline as seen by the dispatcher. Begin, Rearm
// and ShowRetrying are quick; Run does the slow extract and summarize work.
type Pipeline interface {
	Begin(ctx context.Context, url string) (ledger.MessageID, error)
	Run(ctx context.Context, id ledger.MessageID, url string)
	Rearm(id ledger.MessageID) (string, error)
	ShowRetrying(ctx context.Context, id ledger.MessageID, url string)
}

// Feedback is the feedback correlator as seen by the dispatcher
type Feedback interface {
	Rate(ctx context.Context, messageID ledger.MessageID, thumb types.Thumb) (feedback.RateOutcome, error)
	StartNote(userID int64, messageID ledger.MessageID)
	CompleteNote(ctx context.Context, userID int64, text string) (bool, error)
}

// Messenger answers button presses and talks to users in private chats
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *types.InlineKeyboardMarkup) (*types.Message, error)
	AnswerCallbackQuery(ctx context.Context, queryID string, answer telegram.CallbackAnswer) error
}

// Options configures routing
type Options struct {
	SourceChatID     int64
	DestChatID       int64
	AuthorizedUserID int64 // 0 accepts every user
	BotUsername      string
	MaxConcurrent    int64
}

const welcomeText = "👋 I summarize links posted in the channel. Use the 📝 Add note button under a summary to send me feedback."

// Dispatcher routes inbound updates to the pipeline and the correlator.
// Every update runs on its own goroutine; pipeline runs share a bounded
// number of slots. Placeholders are shown before a slot is taken.
type Dispatcher struct {
	opts      Options
	pipeline  Pipeline
	feedback  Feedback
	messenger Messenger
	slots     *semaphore.Weighted
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(opts Options, pipeline Pipeline, fb Feedback, messenger Messenger, logger *zap.Logger) *Dispatcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		opts:      opts,
		pipeline:  pipeline,
		feedback:  fb,
		messenger: messenger,
		slots:     semaphore.NewWeighted(opts.MaxConcurrent),
		logger:    logger,
	}
}

// Dispatch handles update asynchronously
func (d *Dispatcher) Dispatch(ctx context.Context, update types.Update) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Handle(ctx, update)
	}()
}

// Wait blocks until every dispatched update has been handled
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Handle routes a single update and returns when it has been handled
func (d *Dispatcher) Handle(ctx context.Context, update types.Update) {
	switch {
	case update.ChannelPost != nil:
		d.handleChannelPost(ctx, update.ChannelPost)
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		d.handlePrivateMessage(ctx, update.Message)
	default:
		d.logger.Debug("ignoring update", zap.Int("update_id", update.UpdateID))
	}
}

func (d *Dispatcher) authorized(userID int64) bool {
	return d.opts.AuthorizedUserID == 0 || userID == d.opts.AuthorizedUserID
}

func (d *Dispatcher) handleChannelPost(ctx context.Context, msg *types.Message) {
	if msg.Chat.ID != d.opts.SourceChatID {
		return
	}
	url, ok := links.FromMessage(msg)
	if !ok {
		d.logger.Debug("channel post without link", zap.Int("message_id", msg.MessageID))
		return
	}

	id, err := d.pipeline.Begin(ctx, url)
	if err != nil {
		d.logger.Error("link not processed", zap.String("url", url), zap.Error(err))
		return
	}
	d.run(ctx, id, url)
}

// run executes the slow half of a pipeline run once a slot is free
func (d *Dispatcher) run(ctx context.Context, id ledger.MessageID, url string) {
	if err := d.slots.Acquire(ctx, 1); err != nil {
		d.logger.Warn("run abandoned, shutting down",
			zap.String("url", url), zap.Int("message_id", int(id)))
		return
	}
	defer d.slots.Release(1)
	d.pipeline.Run(ctx, id, url)
}

func (d *Dispatcher) handleCallback(ctx context.Context, q *types.CallbackQuery) {
	log := d.logger.With(zap.Int64("user_id", q.From.ID), zap.String("data", q.Data))

	if !d.authorized(q.From.ID) {
		log.Info("rejected callback from unauthorized user")
		d.answer(ctx, q.ID, telegram.CallbackAnswer{Text: "You are not allowed to do this.", ShowAlert: true})
		return
	}
	if q.Message == nil || q.Message.Chat.ID != d.opts.DestChatID {
		d.answer(ctx, q.ID, telegram.CallbackAnswer{})
		return
	}
	id := ledger.MessageID(q.Message.MessageID)

	switch data := q.Data; {
	case data == render.CallbackRetry:
		d.handleRetry(ctx, q.ID, id)

	case strings.HasPrefix(data, render.RatePrefix):
		thumb, ok := types.ParseThumb(strings.TrimPrefix(data, render.RatePrefix))
		if !ok {
			d.answer(ctx, q.ID, telegram.CallbackAnswer{})
			return
		}
		outcome, err := d.feedback.Rate(ctx, id, thumb)
		if err != nil {
			log.Warn("rating controls not updated", zap.Error(err))
		}
		answer := telegram.CallbackAnswer{}
		switch outcome {
		case feedback.RateRecorded:
			answer.Text = "Thanks for rating!"
		case feedback.RateDuplicate:
			answer.Text = "Already rated."
		}
		d.answer(ctx, q.ID, answer)

	case data == render.CallbackRated:
		d.answer(ctx, q.ID, telegram.CallbackAnswer{Text: "Already rated."})

	case data == render.CallbackNote:
		d.feedback.StartNote(q.From.ID, id)
		if d.opts.BotUsername == "" {
			d.answer(ctx, q.ID, telegram.CallbackAnswer{Text: "Open a private chat with me to send your note.", ShowAlert: true})
			return
		}
		d.answer(ctx, q.ID, telegram.CallbackAnswer{URL: feedback.DeepLink(d.opts.BotUsername, id)})

	default:
		log.Debug("unknown callback payload")
		d.answer(ctx, q.ID, telegram.CallbackAnswer{})
	}
}

func (d *Dispatcher) handleRetry(ctx context.Context, queryID string, id ledger.MessageID) {
	url, err := d.pipeline.Rearm(id)
	switch {
	case errors.Is(err, processor.ErrEntryNotFound):
		d.answer(ctx, queryID, telegram.CallbackAnswer{Text: render.LinkNotFound, ShowAlert: true})
		return
	case errors.Is(err, processor.ErrRetryInProgress):
		d.answer(ctx, queryID, telegram.CallbackAnswer{Text: "Already retrying…"})
		return
	case err != nil:
		d.logger.Error("retry rejected", zap.Int("message_id", int(id)), zap.Error(err))
		d.answer(ctx, queryID, telegram.CallbackAnswer{})
		return
	}
	d.answer(ctx, queryID, telegram.CallbackAnswer{Text: "Retrying…"})
	d.pipeline.ShowRetrying(ctx, id, url)
	d.run(ctx, id, url)
}

func (d *Dispatcher) handlePrivateMessage(ctx context.Context, msg *types.Message) {
	if !msg.Chat.IsPrivate() || msg.From == nil {
		return
	}
	userID := msg.From.ID
	if !d.authorized(userID) {
		d.logger.Info("ignored private message from unauthorized user", zap.Int64("user_id", userID))
		return
	}

	text := strings.TrimSpace(msg.Text)
	if command, payload, isCommand := parseCommand(text); isCommand {
		if command == "start" {
			d.handleStart(ctx, msg.Chat.ID, userID, payload)
		}
		return
	}

	handled, err := d.feedback.CompleteNote(ctx, userID, text)
	if err != nil {
		d.logger.Warn("note acknowledgement not sent", zap.Int64("user_id", userID), zap.Error(err))
	}
	if !handled {
		d.logger.Debug("private message without pending note", zap.Int64("user_id", userID))
	}
}

func (d *Dispatcher) handleStart(ctx context.Context, chatID, userID int64, payload string) {
	reply := welcomeText
	if id, ok := feedback.ParseStartPayload(payload); ok {
		d.feedback.StartNote(userID, id)
		reply = render.NotePrompt
	}
	if _, err := d.messenger.SendMessage(ctx, chatID, reply, nil); err != nil {
		d.logger.Warn("start reply not sent", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (d *Dispatcher) answer(ctx context.Context, queryID string, answer telegram.CallbackAnswer) {
	if err := d.messenger.AnswerCallbackQuery(ctx, queryID, answer); err != nil {
		d.logger.Warn("callback not answered", zap.String("query_id", queryID), zap.Error(err))
	}
}

// parseCommand splits "/start@bot payload" into ("start", "payload")
func parseCommand(text string) (command, payload string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	command, _, _ = strings.Cut(head, "@")
	return strings.ToLower(command), strings.TrimSpace(rest), true
}
