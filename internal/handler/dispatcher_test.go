package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valentinpelus/linkbrief/internal/processor"
	"github.com/valentinpelus/linkbrief/pkg/feedback"
	"github.com/valentinpelus/linkbrief/pkg/ledger"
	"github.com/valentinpelus/linkbrief/pkg/render"
	"github.com/valentinpelus/linkbrief/pkg/telegram"
	"github.com/valentinpelus/linkbrief/pkg/types"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose init starts a stats worker
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const (
	sourceChat = int64(-100)
	destChat   = int64(-200)
)

type fakePipeline struct {
	mu        sync.Mutex
	processed []string
	ran       []ledger.MessageID
	retrying  []ledger.MessageID
	rearmErr  error
	running   int32
	peak      int32
	hold      time.Duration
	// release, when set, blocks every Run until it is closed
	release chan struct{}
}

func (p *fakePipeline) Begin(_ context.Context, url string) (ledger.MessageID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, url)
	return ledger.MessageID(len(p.processed)), nil
}

func (p *fakePipeline) Run(_ context.Context, id ledger.MessageID, _ string) {
	n := atomic.AddInt32(&p.running, 1)
	for {
		peak := atomic.LoadInt32(&p.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&p.peak, peak, n) {
			break
		}
	}
	if p.release != nil {
		<-p.release
	}
	time.Sleep(p.hold)
	atomic.AddInt32(&p.running, -1)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ran = append(p.ran, id)
}

func (p *fakePipeline) Rearm(ledger.MessageID) (string, error) {
	if p.rearmErr != nil {
		return "", p.rearmErr
	}
	return "https://example.com/retry", nil
}

func (p *fakePipeline) ShowRetrying(_ context.Context, id ledger.MessageID, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrying = append(p.retrying, id)
}

func (p *fakePipeline) counts() (begun, retrying, ran int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processed), len(p.retrying), len(p.ran)
}

type rateCall struct {
	ID    ledger.MessageID
	Thumb types.Thumb
}

type noteStart struct {
	UserID int64
	ID     ledger.MessageID
}

type fakeFeedback struct {
	mu        sync.Mutex
	rates     []rateCall
	outcome   feedback.RateOutcome
	starts    []noteStart
	completed []string
	handled   bool
}

func (f *fakeFeedback) Rate(_ context.Context, id ledger.MessageID, thumb types.Thumb) (feedback.RateOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rates = append(f.rates, rateCall{id, thumb})
	return f.outcome, nil
}

func (f *fakeFeedback) StartNote(userID int64, id ledger.MessageID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, noteStart{userID, id})
}

func (f *fakeFeedback) CompleteNote(_ context.Context, _ int64, text string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, text)
	return f.handled, nil
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []string
	answers []telegram.CallbackAnswer
}

func (m *fakeMessenger) SendMessage(_ context.Context, _ int64, text string, _ *types.InlineKeyboardMarkup) (*types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return &types.Message{}, nil
}

func (m *fakeMessenger) AnswerCallbackQuery(_ context.Context, _ string, answer telegram.CallbackAnswer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, answer)
	return nil
}

type fixture struct {
	pipeline   *fakePipeline
	feedback   *fakeFeedback
	messenger  *fakeMessenger
	dispatcher *Dispatcher
}

func newFixture(opts Options) *fixture {
	if opts.SourceChatID == 0 {
		opts.SourceChatID = sourceChat
	}
	if opts.DestChatID == 0 {
		opts.DestChatID = destChat
	}
	if opts.BotUsername == "" {
		opts.BotUsername = "brief_bot"
	}
	f := &fixture{
		pipeline:  &fakePipeline{},
		feedback:  &fakeFeedback{},
		messenger: &fakeMessenger{},
	}
	f.dispatcher = NewDispatcher(opts, f.pipeline, f.feedback, f.messenger, nil)
	return f
}

func channelPost(chatID int64, text string) types.Update {
	return types.Update{ChannelPost: &types.Message{MessageID: 1, Chat: types.Chat{ID: chatID, Type: "channel"}, Text: text}}
}

func callback(userID int64, messageID int, data string) types.Update {
	return types.Update{CallbackQuery: &types.CallbackQuery{
		ID:      "q",
		From:    types.User{ID: userID},
		Message: &types.Message{MessageID: messageID, Chat: types.Chat{ID: destChat, Type: "channel"}},
		Data:    data,
	}}
}

func private(userID int64, text string) types.Update {
	return types.Update{Message: &types.Message{
		From: &types.User{ID: userID},
		Chat: types.Chat{ID: userID, Type: "private"},
		Text: text,
	}}
}

func TestChannelPostRouting(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	f.dispatcher.Handle(ctx, channelPost(sourceChat, "read this https://example.com/a please"))
	f.dispatcher.Handle(ctx, channelPost(sourceChat, "no link here"))
	f.dispatcher.Handle(ctx, channelPost(-999, "https://example.com/other"))

	assert.Equal(t, []string{"https://example.com/a"}, f.pipeline.processed)
}

func TestChannelPostCaption(t *testing.T) {
	f := newFixture(Options{})
	update := types.Update{ChannelPost: &types.Message{Chat: types.Chat{ID: sourceChat}, Caption: "pic https://example.com/c"}}

	f.dispatcher.Handle(context.Background(), update)
	assert.Equal(t, []string{"https://example.com/c"}, f.pipeline.processed)
}

func TestDispatchBoundsConcurrency(t *testing.T) {
	f := newFixture(Options{MaxConcurrent: 2})
	f.pipeline.hold = 20 * time.Millisecond

	for i := 0; i < 6; i++ {
		f.dispatcher.Dispatch(context.Background(), channelPost(sourceChat, "https://example.com/x"))
	}
	f.dispatcher.Wait()

	assert.Len(t, f.pipeline.processed, 6)
	assert.Len(t, f.pipeline.ran, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&f.pipeline.peak), int32(2))
}

func TestPlaceholdersShownWhileSlotsBusy(t *testing.T) {
	f := newFixture(Options{MaxConcurrent: 1})
	f.pipeline.release = make(chan struct{})

	for i := 0; i < 3; i++ {
		f.dispatcher.Dispatch(context.Background(), channelPost(sourceChat, "https://example.com/x"))
	}
	f.dispatcher.Dispatch(context.Background(), callback(1, 9, render.CallbackRetry))

	require.Eventually(t, func() bool {
		begun, retrying, _ := f.pipeline.counts()
		return begun == 3 && retrying == 1 && atomic.LoadInt32(&f.pipeline.running) == 1
	}, time.Second, 5*time.Millisecond)

	_, _, ran := f.pipeline.counts()
	assert.Zero(t, ran)

	close(f.pipeline.release)
	f.dispatcher.Wait()

	_, _, ran = f.pipeline.counts()
	assert.Equal(t, 4, ran)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.pipeline.peak))
}

func TestRetryCallback(t *testing.T) {
	f := newFixture(Options{})
	f.dispatcher.Handle(context.Background(), callback(1, 9, render.CallbackRetry))

	assert.Equal(t, []ledger.MessageID{9}, f.pipeline.retrying)
	assert.Equal(t, []ledger.MessageID{9}, f.pipeline.ran)
	require.Len(t, f.messenger.answers, 1)
	assert.Equal(t, "Retrying…", f.messenger.answers[0].Text)
}

func TestRetryCallbackUnknownMessage(t *testing.T) {
	f := newFixture(Options{})
	f.pipeline.rearmErr = processor.ErrEntryNotFound

	f.dispatcher.Handle(context.Background(), callback(1, 9, render.CallbackRetry))

	assert.Empty(t, f.pipeline.retrying)
	assert.Empty(t, f.pipeline.ran)
	require.Len(t, f.messenger.answers, 1)
	assert.Equal(t, render.LinkNotFound, f.messenger.answers[0].Text)
	assert.True(t, f.messenger.answers[0].ShowAlert)
}

func TestRateCallback(t *testing.T) {
	f := newFixture(Options{})
	f.feedback.outcome = feedback.RateRecorded

	f.dispatcher.Handle(context.Background(), callback(1, 9, render.CallbackRateDown))

	require.Len(t, f.feedback.rates, 1)
	assert.Equal(t, rateCall{9, types.ThumbDown}, f.feedback.rates[0])
	require.Len(t, f.messenger.answers, 1)
	assert.Equal(t, "Thanks for rating!", f.messenger.answers[0].Text)
}

func TestRateSkippedIsSilentAck(t *testing.T) {
	f := newFixture(Options{})
	f.feedback.outcome = feedback.RateSkipped

	f.dispatcher.Handle(context.Background(), callback(1, 9, render.CallbackRateUp))

	require.Len(t, f.messenger.answers, 1)
	assert.Equal(t, telegram.CallbackAnswer{}, f.messenger.answers[0])
}

func TestNoteButtonAndDeepLinkConverge(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	f.dispatcher.Handle(ctx, callback(42, 9, render.CallbackNote))
	f.dispatcher.Handle(ctx, private(42, "/start note_9"))

	require.Len(t, f.feedback.starts, 2)
	assert.Equal(t, f.feedback.starts[0], f.feedback.starts[1])
	assert.Equal(t, noteStart{42, 9}, f.feedback.starts[0])

	require.Len(t, f.messenger.answers, 1)
	assert.Equal(t, "https://t.me/brief_bot?start=note_9", f.messenger.answers[0].URL)
	assert.Equal(t, []string{render.NotePrompt}, f.messenger.sent)
}

func TestPrivateMessages(t *testing.T) {
	f := newFixture(Options{})
	ctx := context.Background()

	f.dispatcher.Handle(ctx, private(42, "/start"))
	f.dispatcher.Handle(ctx, private(42, "this summary missed the point"))
	f.dispatcher.Handle(ctx, private(42, "/help"))

	assert.Equal(t, []string{welcomeText}, f.messenger.sent)
	assert.Equal(t, []string{"this summary missed the point"}, f.feedback.completed)
	assert.Empty(t, f.feedback.starts)
}

func TestAuthorizedUserFilter(t *testing.T) {
	f := newFixture(Options{AuthorizedUserID: 7})
	ctx := context.Background()

	f.dispatcher.Handle(ctx, callback(8, 9, render.CallbackRateUp))
	f.dispatcher.Handle(ctx, private(8, "note"))
	f.dispatcher.Handle(ctx, channelPost(sourceChat, "https://example.com/a"))

	assert.Empty(t, f.feedback.rates)
	assert.Empty(t, f.feedback.completed)
	assert.Len(t, f.pipeline.processed, 1)
	require.Len(t, f.messenger.answers, 1)
	assert.True(t, f.messenger.answers[0].ShowAlert)

	f.dispatcher.Handle(ctx, callback(7, 9, render.CallbackRateUp))
	assert.Len(t, f.feedback.rates, 1)
}

func TestCallbackFromOtherChatIsIgnored(t *testing.T) {
	f := newFixture(Options{})
	update := callback(1, 9, render.CallbackRetry)
	update.CallbackQuery.Message.Chat.ID = -12345

	f.dispatcher.Handle(context.Background(), update)
	assert.Empty(t, f.pipeline.retrying)
	assert.Empty(t, f.pipeline.ran)
	assert.Len(t, f.messenger.answers, 1)
}

func TestParseCommand(t *testing.T) {
	cmd, payload, ok := parseCommand("/start@brief_bot note_12")
	assert.True(t, ok)
	assert.Equal(t, "start", cmd)
	assert.Equal(t, "note_12", payload)

	_, _, ok = parseCommand("hello")
	assert.False(t, ok)
}

func TestWebhookHandler(t *testing.T) {
	f := newFixture(Options{})
	h := NewWebhookHandler(f.dispatcher, nil)

	body, err := json.Marshal(channelPost(sourceChat, "https://example.com/w"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", bytes.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	f.dispatcher.Wait()
	assert.Equal(t, []string{"https://example.com/w"}, f.pipeline.processed)

	rec = httptest.NewRecorder()
	h.HandleWebhook(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleWebhook(rec, httptest.NewRequest(http.MethodGet, "/telegram/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleHealth(func() map[string]int { return map[string]int{"pending": 2} })(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","stats":{"pending":2}}`, rec.Body.String())
}

type scriptedSource struct {
	mu      sync.Mutex
	batches [][]types.Update
	offsets []int
	cancel  context.CancelFunc
}

func (s *scriptedSource) GetUpdates(ctx context.Context, offset int, _ time.Duration) ([]types.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets = append(s.offsets, offset)
	if len(s.batches) == 0 {
		s.cancel()
		return nil, ctx.Err()
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func TestPollerAdvancesOffset(t *testing.T) {
	f := newFixture(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &scriptedSource{
		batches: [][]types.Update{
			{withID(channelPost(sourceChat, "https://example.com/1"), 10), withID(channelPost(sourceChat, "https://example.com/2"), 11)},
			{withID(channelPost(sourceChat, "https://example.com/3"), 12)},
		},
		cancel: cancel,
	}

	require.NoError(t, NewPoller(source, f.dispatcher, nil).Run(ctx))
	f.dispatcher.Wait()

	assert.Equal(t, []int{0, 12, 13}, source.offsets)
	assert.ElementsMatch(t, []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"}, f.pipeline.processed)
}

func withID(u types.Update, id int) types.Update {
	u.UpdateID = id
	return u
}
