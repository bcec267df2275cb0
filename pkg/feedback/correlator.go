// Package feedback binds reader ratings and notes to the telemetry trace of
// the generation they react to.
package feedback

import (
	"context"

	"github.com/valentinpelus/linkbrief/pkg/ledger"
	"github.com/valentinpelus/linkbrief/pkg/render"
	"github.com/valentinpelus/linkbrief/pkg/telemetry"
	"github.com/valentinpelus/linkbrief/pkg/types"
	"go.uber.org/zap"
)

// Channel is the subset of the channel service the correlator talks to
type Channel interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *types.InlineKeyboardMarkup) (*types.Message, error)
	EditMessageReplyMarkup(ctx context.Context, chatID int64, messageID int, markup *types.InlineKeyboardMarkup) error
}

// RateOutcome is what happened to a rating press
type RateOutcome int

const (
	// RateSkipped means nothing could be correlated; controls are unchanged
	RateSkipped RateOutcome = iota
	// RateRecorded means the score was forwarded and the controls swapped
	RateRecorded
	// RateDuplicate means the message was already rated
	RateDuplicate
)

func (o RateOutcome) String() string {
	switch o {
	case RateRecorded:
		return "recorded"
	case RateDuplicate:
		return "duplicate"
	default:
		return "skipped"
	}
}

// Correlator resolves feedback through the ledger to a trace id
type Correlator struct {
	ledger  *ledger.Ledger
	slots   *NoteSlots
	tracer  *telemetry.Tracer
	channel Channel
	chatID  int64
	logger  *zap.Logger
}

// NewCorrelator creates a correlator for messages in the destination chatID
func NewCorrelator(l *ledger.Ledger, slots *NoteSlots, tracer *telemetry.Tracer, channel Channel, chatID int64, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{
		ledger:  l,
		slots:   slots,
		tracer:  tracer,
		channel: channel,
		chatID:  chatID,
		logger:  logger,
	}
}

// Rate forwards thumb for messageID at most once. The returned error only
// reports a failed control swap; the score is already recorded then.
func (c *Correlator) Rate(ctx context.Context, messageID ledger.MessageID, thumb types.Thumb) (RateOutcome, error) {
	log := c.logger.With(zap.Int("message_id", int(messageID)), zap.String("thumb", string(thumb)))

	outcome := RateSkipped
	entry, marked := c.ledger.Update(messageID, func(e ledger.Entry) (ledger.Entry, bool) {
		switch {
		case !e.HasTrace():
			return e, false
		case e.Rated:
			outcome = RateDuplicate
			return e, false
		}
		e.Rated = true
		return e, true
	})
	if !marked {
		if outcome == RateSkipped {
			log.Info("rating not correlated: no trace for message")
		} else {
			log.Debug("duplicate rating ignored")
		}
		return outcome, nil
	}

	ok := c.tracer.Score(ctx, entry.TraceID, telemetry.Score{
		Name:    telemetry.ScoreUserRating,
		Value:   thumb.Value(),
		Comment: string(thumb),
	})
	if !ok {
		// unmark so the reader can press again
		c.ledger.Update(messageID, func(e ledger.Entry) (ledger.Entry, bool) {
			if e.TraceID != entry.TraceID {
				return e, false
			}
			e.Rated = false
			return e, true
		})
		log.Warn("rating not forwarded", zap.String("trace_id", entry.TraceID))
		return RateSkipped, nil
	}

	log.Info("rating recorded", zap.String("trace_id", entry.TraceID))
	if err := c.channel.EditMessageReplyMarkup(ctx, c.chatID, int(messageID), render.RatedControls(thumb)); err != nil {
		return RateRecorded, err
	}
	return RateRecorded, nil
}

// StartNote opens the pending note slot of userID for messageID. A second
// call overwrites the first.
func (c *Correlator) StartNote(userID int64, messageID ledger.MessageID) {
	c.slots.Open(userID, messageID)
	c.logger.Debug("note slot opened", zap.Int64("user_id", userID), zap.Int("message_id", int(messageID)))
}

// CompleteNote consumes the slot of userID with text. It reports false for a
// stray message with no open slot. The sender is acknowledged whether or not
// the note could be correlated.
func (c *Correlator) CompleteNote(ctx context.Context, userID int64, text string) (bool, error) {
	messageID, ok := c.slots.Take(userID)
	if !ok {
		return false, nil
	}
	log := c.logger.With(zap.Int64("user_id", userID), zap.Int("message_id", int(messageID)))

	entry, found := c.ledger.Get(messageID)
	switch {
	case !found || !entry.HasTrace():
		log.Info("note not correlated: no trace for message")
	case !c.tracer.Score(ctx, entry.TraceID, telemetry.Score{Name: telemetry.ScoreUserComment, Text: text}):
		log.Warn("note not forwarded", zap.String("trace_id", entry.TraceID))
	default:
		log.Info("note recorded", zap.String("trace_id", entry.TraceID))
	}

	// private chat id equals the user id
	if _, err := c.channel.SendMessage(ctx, userID, render.NoteThanks, nil); err != nil {
		return true, err
	}
	return true, nil
}
