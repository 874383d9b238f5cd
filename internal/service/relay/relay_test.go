package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/messenger-relay/backend/internal/analysis/intent"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/apperr"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/chat"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/messenger"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/persona"
	"github.com/zhouzirui/messenger-relay/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/messenger-relay/backend/internal/service/chat"
	"github.com/zhouzirui/messenger-relay/backend/internal/service/events"
)

type fakeCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []ai.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req ai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type delivered struct {
	recipient    string
	text         string
	quickReplies []messenger.QuickReply
}

type fakeDelivery struct {
	mu   sync.Mutex
	sent []delivered
	err  error
}

func (f *fakeDelivery) Deliver(_ context.Context, recipient, text string, quickReplies []messenger.QuickReply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, delivered{recipient: recipient, text: text, quickReplies: quickReplies})
	return nil
}

func (f *fakeDelivery) messages() []delivered {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivered(nil), f.sent...)
}

type fakeIntent struct{ decision intent.Decision }

func (f fakeIntent) Detect(context.Context, string) intent.Decision { return f.decision }

type fakeLiveData struct {
	data string
	err  error
}

func (f fakeLiveData) Lookup(context.Context, intent.Decision) (string, error) { return f.data, f.err }

type fakeTyping struct {
	mu      sync.Mutex
	started int
	stopped int
}

func (f *fakeTyping) Start(context.Context, string) func() {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.stopped++
			f.mu.Unlock()
		})
	}
}

type harness struct {
	relay     *Relay
	sessions  *chatservice.Service
	completer *fakeCompleter
	delivery  *fakeDelivery
	typing    *fakeTyping
	now       time.Time
}

func newHarness(t *testing.T, mutate func(*Config, *Dependencies)) *harness {
	t.Helper()
	h := &harness{
		sessions:  chatservice.NewService(chatservice.Config{MaxTurns: 10, IdleTimeout: time.Hour}),
		completer: &fakeCompleter{reply: "Hi there!"},
		delivery:  &fakeDelivery{},
		typing:    &fakeTyping{},
		now:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := Config{
		RateLimitEnabled:    true,
		TypingEnabled:       true,
		QuickRepliesEnabled: true,
		ApologyText:         "Sorry!",
		PersonaID:           "friendly",
	}
	deps := Dependencies{
		Sessions:  h.sessions,
		Limiter:   chatservice.NewRateLimiter(2 * time.Second),
		Completer: h.completer,
		Delivery:  h.delivery,
		Typing:    h.typing,
		Personas:  persona.NewMemoryStore(persona.Seed()),
		Events:    events.NewHub(8),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	h.relay = New(cfg, deps)
	h.relay.now = func() time.Time { return h.now }
	return h
}

func textEvent(userID, text string) messenger.Event {
	return messenger.Event{UserID: userID, Kind: messenger.KindText, Text: text}
}

func TestProcessRepliesAndStoresTurns(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.relay.Process(context.Background(), textEvent("u1", "Hello")); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	history := h.sessions.History(context.Background(), "u1")
	if len(history) != 2 || history[0].Role != chat.RoleUser || history[1].Text != "Hi there!" {
		t.Fatalf("unexpected history %+v", history)
	}
	sent := h.delivery.messages()
	if len(sent) != 1 || sent[0].text != "Hi there!" {
		t.Fatalf("unexpected deliveries %+v", sent)
	}
	if len(sent[0].quickReplies) != 3 {
		t.Fatalf("expected persona quick replies, got %+v", sent[0].quickReplies)
	}
	if h.typing.started != 1 || h.typing.stopped != 1 {
		t.Fatalf("typing should start and stop once, got %d/%d", h.typing.started, h.typing.stopped)
	}
}

func TestProcessPassesPriorHistory(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.sessions.Append(ctx, "u1", chat.RoleUser, "earlier question")
	h.sessions.Append(ctx, "u1", chat.RoleAssistant, "earlier answer")

	if err := h.relay.Process(ctx, textEvent("u1", "follow up")); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	req := h.completer.requests[0]
	if len(req.History) != 2 || req.Message != "follow up" {
		t.Fatalf("history must exclude the new message, got %+v", req)
	}
}

func TestProcessRateLimitDropsBurst(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.relay.Process(ctx, textEvent("u1", "Hello")); err != nil {
		t.Fatalf("first Process err: %v", err)
	}
	h.now = h.now.Add(500 * time.Millisecond)
	if err := h.relay.Process(ctx, textEvent("u1", "Hello")); err != nil {
		t.Fatalf("second Process err: %v", err)
	}

	if h.completer.calls() != 1 {
		t.Fatalf("expected one completion, got %d", h.completer.calls())
	}
	if got := len(h.sessions.History(ctx, "u1")); got != 2 {
		t.Fatalf("dropped message must not touch history, got %d turns", got)
	}

	h.now = h.now.Add(2 * time.Second)
	if err := h.relay.Process(ctx, textEvent("u1", "Hello again")); err != nil {
		t.Fatalf("third Process err: %v", err)
	}
	if h.completer.calls() != 2 {
		t.Fatalf("message after the window should pass, got %d calls", h.completer.calls())
	}
}

func TestProcessUpstreamFailureSendsApologyOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.completer.err = &apperr.UpstreamError{Provider: "gemini", StatusCode: 500, Body: "internal"}

	err := h.relay.Process(context.Background(), textEvent("u1", "Hello"))

	var upstream *apperr.UpstreamError
	if !errors.As(err, &upstream) || upstream.StatusCode != 500 {
		t.Fatalf("expected UpstreamError 500, got %v", err)
	}
	sent := h.delivery.messages()
	if len(sent) != 1 || sent[0].text != "Sorry!" {
		t.Fatalf("expected exactly one apology, got %+v", sent)
	}
	history := h.sessions.History(context.Background(), "u1")
	if len(history) != 1 || history[0].Role != chat.RoleUser {
		t.Fatalf("failed completion must not store an assistant turn, got %+v", history)
	}
}

func TestProcessApologyFailureIsDeliveryError(t *testing.T) {
	h := newHarness(t, nil)
	h.completer.err = &apperr.UpstreamError{Provider: "gemini", StatusCode: 503}
	h.delivery.err = &apperr.UpstreamError{Provider: "messenger", StatusCode: 400}

	err := h.relay.Process(context.Background(), textEvent("u1", "Hello"))

	var deliveryErr *apperr.DeliveryError
	if !errors.As(err, &deliveryErr) || deliveryErr.Recipient != "u1" {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
}

func TestProcessWithoutCompleterApologizes(t *testing.T) {
	h := newHarness(t, func(_ *Config, deps *Dependencies) { deps.Completer = nil })

	err := h.relay.Process(context.Background(), textEvent("u1", "Hello"))

	var upstream *apperr.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if sent := h.delivery.messages(); len(sent) != 1 || sent[0].text != "Sorry!" {
		t.Fatalf("expected apology, got %+v", sent)
	}
}

func TestProcessResetCommand(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.sessions.Append(ctx, "u1", chat.RoleUser, "remember me")

	if err := h.relay.Process(ctx, textEvent("u1", "  RESET ")); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	if got := h.sessions.History(ctx, "u1"); len(got) != 0 {
		t.Fatalf("expected cleared history, got %+v", got)
	}
	if h.completer.calls() != 0 {
		t.Fatal("commands must not call the completion provider")
	}
	if sent := h.delivery.messages(); len(sent) != 1 || sent[0].text != resetReply {
		t.Fatalf("expected reset confirmation, got %+v", sent)
	}
}

func TestProcessHelpQuickReply(t *testing.T) {
	h := newHarness(t, nil)

	ev := messenger.Event{UserID: "u1", Kind: messenger.KindQuickReply, Text: "Help", Payload: "Help"}
	if err := h.relay.Process(context.Background(), ev); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	if sent := h.delivery.messages(); len(sent) != 1 || sent[0].text != helpReply {
		t.Fatalf("expected help text, got %+v", sent)
	}
}

func TestProcessGetStartedPostback(t *testing.T) {
	h := newHarness(t, nil)

	ev := messenger.Event{UserID: "u1", Kind: messenger.KindPostback, Text: "Get Started", Payload: PayloadGetStarted}
	if err := h.relay.Process(context.Background(), ev); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	sent := h.delivery.messages()
	if len(sent) != 1 || sent[0].text != persona.Seed()[0].Greeting {
		t.Fatalf("expected greeting, got %+v", sent)
	}
}

func TestProcessInjectsLiveData(t *testing.T) {
	h := newHarness(t, func(_ *Config, deps *Dependencies) {
		deps.Intent = fakeIntent{decision: intent.Decision{Intent: intent.Weather, City: "Paris"}}
		deps.LiveData = fakeLiveData{data: "Current weather in Paris: Clear sky"}
	})

	if err := h.relay.Process(context.Background(), textEvent("u1", "weather in Paris?")); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	if got := h.completer.requests[0].LiveData; got != "Current weather in Paris: Clear sky" {
		t.Fatalf("expected live data in request, got %q", got)
	}
}

func TestProcessIgnoresLiveDataFailure(t *testing.T) {
	h := newHarness(t, func(_ *Config, deps *Dependencies) {
		deps.Intent = fakeIntent{decision: intent.Decision{Intent: intent.Football, Team: "Arsenal"}}
		deps.LiveData = fakeLiveData{err: &apperr.UpstreamError{Provider: "thesportsdb", StatusCode: 502}}
	})

	if err := h.relay.Process(context.Background(), textEvent("u1", "how did Arsenal do")); err != nil {
		t.Fatalf("live data failures must not fail the reply: %v", err)
	}
	if h.completer.requests[0].LiveData != "" {
		t.Fatal("expected no live data after a failed lookup")
	}
}

func TestDispatchAndWait(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Dependencies) { cfg.RateLimitEnabled = false })

	for _, user := range []string{"u1", "u2", "u3"} {
		h.relay.Dispatch(textEvent(user, "Hello"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.relay.Wait(ctx); err != nil {
		t.Fatalf("Wait err: %v", err)
	}
	if h.completer.calls() != 3 || len(h.delivery.messages()) != 3 {
		t.Fatalf("expected 3 replies, got %d calls and %d deliveries", h.completer.calls(), len(h.delivery.messages()))
	}
}
