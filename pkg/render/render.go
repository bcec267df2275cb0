// Package render builds the message bodies and inline keyboards that the
// bot posts to the destination channel.
package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/valentinpelus/linkbrief/pkg/telegram"
	"github.com/valentinpelus/linkbrief/pkg/types"
)

// RatePrefix starts every rating payload; the rest is the thumb
const RatePrefix = "rate:"

// Callback payloads carried by inline buttons
const (
	CallbackRetry    = "retry"
	CallbackRateUp   = RatePrefix + string(types.ThumbUp)
	CallbackRateDown = RatePrefix + string(types.ThumbDown)
	CallbackNote     = "note"
	CallbackRated    = "rated"
)

// RatePayload returns the callback payload for thumb
func RatePayload(thumb types.Thumb) string {
	return RatePrefix + string(thumb)
}

// RetryControls is the keyboard attached to every failure body
func RetryControls() *types.InlineKeyboardMarkup {
	return keyboard([]types.InlineKeyboardButton{
		{Text: "🔄 Retry", CallbackData: CallbackRetry},
	})
}

// RatingControls lets readers rate a summary
func RatingControls() *types.InlineKeyboardMarkup {
	return keyboard([]types.InlineKeyboardButton{
		{Text: types.ThumbUp.Emoji(), CallbackData: RatePayload(types.ThumbUp)},
		{Text: types.ThumbDown.Emoji(), CallbackData: RatePayload(types.ThumbDown)},
	})
}

// RatedControls replaces the rating buttons once a rating was recorded
func RatedControls(thumb types.Thumb) *types.InlineKeyboardMarkup {
	return keyboard(
		[]types.InlineKeyboardButton{{Text: thumb.Emoji() + " Rated", CallbackData: CallbackRated}},
		[]types.InlineKeyboardButton{{Text: "📝 Add note", CallbackData: CallbackNote}},
	)
}

func keyboard(rows ...[]types.InlineKeyboardButton) *types.InlineKeyboardMarkup {
	return &types.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// Placeholder is posted before any slow work starts
func Placeholder(url string) string {
	return fmt.Sprintf("⏳ Summarizing…\n%s", html.EscapeString(url))
}

// Retrying replaces a failure body while the pipeline runs again
func Retrying(url string) string {
	return fmt.Sprintf("🔄 Retrying…\n%s", html.EscapeString(url))
}

// Summary renders generated text followed by a link back to the article.
// The summary is already Telegram HTML. A summary too long for one message
// is cut as plain text, so that no tag is left open and the link survives.
func Summary(summary, url string) string {
	link := fmt.Sprintf("\n\n🔗 <a href=\"%s\">Read the article</a>", html.EscapeString(url))
	if telegram.TextLength(summary)+telegram.TextLength(link) <= telegram.MaxMessageLength {
		return summary + link
	}

	const ellipsis = "…"
	budget := telegram.MaxMessageLength - telegram.TextLength(link) - telegram.TextLength(ellipsis)
	return cutEscaped(telegram.StripHTML(summary), budget) + ellipsis + link
}

// cutEscaped HTML-escapes plain and keeps as many whole runes as fit in
// limit UTF-16 code units, never splitting an entity
func cutEscaped(plain string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range plain {
		escaped := html.EscapeString(string(r))
		n += telegram.TextLength(escaped)
		if n > limit {
			break
		}
		b.WriteString(escaped)
	}
	return b.String()
}

// ScrapeFailed is shown when no readable text could be extracted
func ScrapeFailed(url string) string {
	return fmt.Sprintf("❌ Could not extract the article content.\n%s", html.EscapeString(url))
}

// GenerationFailed names the classified generation failure
func GenerationFailed(url, reason string) string {
	return fmt.Sprintf("⚠️ %s\n%s", html.EscapeString(reason), html.EscapeString(url))
}

// Unexpected is the generic body for failures nothing else handled
func Unexpected(url string) string {
	return fmt.Sprintf("⚠️ Something went wrong while summarizing this link.\n%s", html.EscapeString(url))
}

// NotePrompt asks the reader for their note in the private chat
const NotePrompt = "📝 Send me your note about this summary as your next message."

// NoteThanks acknowledges a received note
const NoteThanks = "🙏 Thanks, your note was recorded."

// LinkNotFound answers a retry for a message the bot no longer tracks
const LinkNotFound = "Original link not found, please re-post it."
