package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/valentinpelus/linkbrief/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultBaseURL     = "https://api.telegram.org"
	defaultCallTimeout = 15 * time.Second

	// MaxMessageLength is the Bot API limit for message text, in UTF-16 code units
	MaxMessageLength = 4096
)

// ErrNotModified is matched (via errors.Is) by edits that left the message unchanged
var ErrNotModified = errors.New("message is not modified")

// APIError is a Bot API call rejected by Telegram
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// Is lets errors.Is(err, ErrNotModified) see through the API error
func (e *APIError) Is(target error) bool {
	return target == ErrNotModified && strings.Contains(e.Description, "message is not modified")
}

func (e *APIError) entityParseFailure() bool {
	return e.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Description), "can't parse entities")
}

// Client wraps the Telegram Bot API
type Client struct {
	token   string
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a new Bot API client
func NewClient(token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		timeout: defaultCallTimeout,
		client:  &http.Client{},
		logger:  logger,
	}
}

// WithBaseURL points the client at another Bot API server
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type envelope struct {
	types.APIResponse
	Result json.RawMessage `json:"result,omitempty"`
}

// call posts params to method and decodes the result into out (when non-nil)
// Reference: https://core.telegram.org/bots/api#making-requests
func (c *Client) call(ctx context.Context, method string, params any, out any, timeout time.Duration) error {
	jsonData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// the token is part of the URL; keep it out of logs
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("failed to call telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to parse telegram response (status %d): %w", resp.StatusCode, err)
	}

	if !env.OK {
		apiErr := &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return apiErr
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

type sendMessageRequest struct {
	ChatID                int64                       `json:"chat_id"`
	MessageID             int                         `json:"message_id,omitempty"`
	Text                  string                      `json:"text"`
	ParseMode             string                      `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                        `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *types.InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendMessage posts HTML text to chatID and returns the created message.
// Text Telegram cannot parse as HTML is resent as plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *types.InlineKeyboardMarkup) (*types.Message, error) {
	req := sendMessageRequest{
		ChatID:                chatID,
		Text:                  truncateMessage(text),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
		ReplyMarkup:           markup,
	}

	var msg types.Message
	err := c.call(ctx, "sendMessage", req, &msg, c.timeout)
	if isEntityParseFailure(err) {
		c.logger.Warn("telegram rejected HTML, resending as plain text", zap.Int64("chat_id", chatID), zap.Error(err))
		req.Text = truncateMessage(StripHTML(text))
		req.ParseMode = ""
		err = c.call(ctx, "sendMessage", req, &msg, c.timeout)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("message sent", zap.Int64("chat_id", chatID), zap.Int("message_id", msg.MessageID))
	return &msg, nil
}

// EditMessageText replaces the text and keyboard of a message. A nil markup
// removes the keyboard.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *types.InlineKeyboardMarkup) error {
	req := sendMessageRequest{
		ChatID:                chatID,
		MessageID:             messageID,
		Text:                  truncateMessage(text),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
		ReplyMarkup:           markup,
	}

	err := c.call(ctx, "editMessageText", req, nil, c.timeout)
	if isEntityParseFailure(err) {
		c.logger.Warn("telegram rejected HTML, editing as plain text",
			zap.Int64("chat_id", chatID), zap.Int("message_id", messageID), zap.Error(err))
		req.Text = truncateMessage(StripHTML(text))
		req.ParseMode = ""
		err = c.call(ctx, "editMessageText", req, nil, c.timeout)
	}
	if errors.Is(err, ErrNotModified) {
		return nil
	}
	return err
}

type editMarkupRequest struct {
	ChatID      int64                       `json:"chat_id"`
	MessageID   int                         `json:"message_id"`
	ReplyMarkup *types.InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageReplyMarkup swaps only the inline keyboard of a message
func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID int64, messageID int, markup *types.InlineKeyboardMarkup) error {
	err := c.call(ctx, "editMessageReplyMarkup", editMarkupRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: markup,
	}, nil, c.timeout)
	if errors.Is(err, ErrNotModified) {
		return nil
	}
	return err
}

// CallbackAnswer is the reply to a button press. URL opens a t.me deep link
// on the pressing client.
type CallbackAnswer struct {
	Text      string
	URL       string
	ShowAlert bool
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	URL             string `json:"url,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// AnswerCallbackQuery acknowledges a button press
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID string, answer CallbackAnswer) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{
		CallbackQueryID: queryID,
		Text:            answer.Text,
		URL:             answer.URL,
		ShowAlert:       answer.ShowAlert,
	}, nil, c.timeout)
}

type getUpdatesRequest struct {
	Offset         int      `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// AllowedUpdates lists the update kinds the bot subscribes to
var AllowedUpdates = []string{"message", "channel_post", "callback_query"}

// GetUpdates long-polls for updates with an id of at least offset
func (c *Client) GetUpdates(ctx context.Context, offset int, pollTimeout time.Duration) ([]types.Update, error) {
	var updates []types.Update
	err := c.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(pollTimeout.Seconds()),
		AllowedUpdates: AllowedUpdates,
	}, &updates, pollTimeout+c.timeout)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// GetMe returns the bot's own account
func (c *Client) GetMe(ctx context.Context) (*types.User, error) {
	var me types.User
	if err := c.call(ctx, "getMe", struct{}{}, &me, c.timeout); err != nil {
		return nil, err
	}
	return &me, nil
}

type setWebhookRequest struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// SetWebhook registers webhookURL for update delivery. Telegram echoes secret in
// the X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	return c.call(ctx, "setWebhook", setWebhookRequest{
		URL:            webhookURL,
		SecretToken:    secret,
		AllowedUpdates: AllowedUpdates,
	}, nil, c.timeout)
}

// DeleteWebhook switches the bot back to getUpdates delivery
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", struct{}{}, nil, c.timeout)
}

func isEntityParseFailure(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.entityParseFailure()
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes tags and unescapes entities
func StripHTML(text string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(text, ""))
}

// TextLength measures text the way the Bot API limits do, in UTF-16 code units
func TextLength(text string) int {
	n := 0
	for _, r := range text {
		n += utf16Len(r)
	}
	return n
}

// CutText returns the longest prefix of text that fits in limit UTF-16 code units
func CutText(text string, limit int) string {
	n := 0
	for i, r := range text {
		n += utf16Len(r)
		if n > limit {
			return text[:i]
		}
	}
	return text
}

func utf16Len(r rune) int {
	if l := utf16.RuneLen(r); l > 0 {
		return l
	}
	return 1 // invalid runes are sent as U+FFFD
}

func truncateMessage(text string) string {
	if TextLength(text) <= MaxMessageLength {
		return text
	}
	const suffix = "\n... (truncated)"
	return CutText(text, MaxMessageLength-TextLength(suffix)) + suffix
}
