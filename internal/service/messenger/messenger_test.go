package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/messenger-relay/backend/internal/config"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/apperr"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/messenger"
)

type sentMessage struct {
	recipient    string
	text         string
	action       messenger.SenderAction
	quickReplies []messenger.QuickReply
}

type recordingSender struct {
	mu        sync.Mutex
	sent      []sentMessage
	actionErr error
	textErr   error
}

func (s *recordingSender) SendText(_ context.Context, recipient, text string, quickReplies []messenger.QuickReply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.textErr != nil {
		return s.textErr
	}
	s.sent = append(s.sent, sentMessage{recipient: recipient, text: text, quickReplies: quickReplies})
	return nil
}

func (s *recordingSender) SendAction(_ context.Context, recipient string, action messenger.SenderAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{recipient: recipient, action: action})
	return s.actionErr
}

func (s *recordingSender) texts() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentMessage
	for _, m := range s.sent {
		if m.action == "" {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSender) actions(action messenger.SenderAction) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, m := range s.sent {
		if m.action == action {
			count++
		}
	}
	return count
}

func TestClientSendText(t *testing.T) {
	var captured messenger.SendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("access_token") != "page-token" {
			t.Errorf("missing access token")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"recipient_id":"u1","message_id":"m1"}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "page-token")
	err := client.SendText(context.Background(), "u1", "hello", []messenger.QuickReply{messenger.TextReply("Help")})
	if err != nil {
		t.Fatalf("SendText err: %v", err)
	}
	if captured.Recipient.ID != "u1" || captured.Message == nil || captured.Message.Text != "hello" {
		t.Fatalf("unexpected request %+v", captured)
	}
	if len(captured.Message.QuickReplies) != 1 || captured.Message.QuickReplies[0].Payload != "Help" {
		t.Fatalf("unexpected quick replies %+v", captured.Message.QuickReplies)
	}
}

func TestClientSendActionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token."}}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "bad")
	err := client.SendAction(context.Background(), "u1", messenger.ActionTypingOn)

	var upstream *apperr.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Provider != Provider || upstream.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected upstream error %+v", upstream)
	}
	if !strings.Contains(upstream.Body, "Invalid OAuth") {
		t.Fatalf("expected body in error, got %q", upstream.Body)
	}
}

func TestClientWithoutToken(t *testing.T) {
	client := NewClient(nil, "http://127.0.0.1:0", "")
	var upstream *apperr.UpstreamError
	if err := client.SendText(context.Background(), "u1", "hi", nil); !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func TestSplitLongReply(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog near the river bank. "
	var sb strings.Builder
	for sb.Len() < 5000 {
		sb.WriteString(sentence)
		if sb.Len()%7 == 0 {
			sb.WriteString("\n\n")
		}
	}
	text := sb.String()[:5000]

	chunks := Split(text, 2000)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	var joined strings.Builder
	for i, chunk := range chunks {
		if n := len([]rune(chunk)); n > 2000 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		joined.WriteString(chunk)
	}
	if stripSpace(joined.String()) != stripSpace(text) {
		t.Fatal("chunks do not reproduce the original text")
	}
}

func TestSplitKeepsSentencesWhole(t *testing.T) {
	text := "First sentence here. Second sentence here! Third one?"

	chunks := Split(text, 25)

	want := []string{"First sentence here.", "Second sentence here!", "Third one?"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %v, got %v", want, chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplitPrefersParagraphs(t *testing.T) {
	text := "Para one is short.\n\nPara two is also short."

	chunks := Split(text, 30)

	if len(chunks) != 2 || chunks[0] != "Para one is short." || chunks[1] != "Para two is also short." {
		t.Fatalf("unexpected chunks %q", chunks)
	}
}

func TestSplitHardCutsLongWords(t *testing.T) {
	text := strings.Repeat("é", 25) + " tail"

	chunks := Split(text, 10)

	for i, chunk := range chunks {
		if len([]rune(chunk)) > 10 {
			t.Fatalf("chunk %d too long: %q", i, chunk)
		}
	}
	if stripSpace(strings.Join(chunks, "")) != stripSpace(text) {
		t.Fatalf("chunks do not reproduce text: %q", chunks)
	}
	if chunks[len(chunks)-1] != "tail" && !strings.HasSuffix(chunks[len(chunks)-1], " tail") {
		t.Fatalf("expected tail to stay a separate word, got %q", chunks)
	}
}

func TestSplitShortAndEmpty(t *testing.T) {
	if chunks := Split("  hi  ", 2000); len(chunks) != 1 || chunks[0] != "hi" {
		t.Fatalf("unexpected chunks %q", chunks)
	}
	if chunks := Split("   ", 2000); chunks != nil {
		t.Fatalf("expected no chunks, got %q", chunks)
	}
}

func TestDeliverQuickRepliesOnLastChunk(t *testing.T) {
	sender := &recordingSender{}
	delivery := NewDelivery(sender, config.MessengerConfig{MaxMessageLength: 25, TypingEnabled: true})

	replies := []messenger.QuickReply{{Title: "A very long quick reply title", Payload: "LONG"}, {Title: "Help"}}
	err := delivery.Deliver(context.Background(), "u1", "First sentence here. Second sentence here!", replies)
	if err != nil {
		t.Fatalf("Deliver err: %v", err)
	}

	texts := sender.texts()
	if len(texts) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(texts))
	}
	if len(texts[0].quickReplies) != 0 {
		t.Fatal("quick replies must only be attached to the last chunk")
	}
	last := texts[1].quickReplies
	if len(last) != 2 {
		t.Fatalf("expected 2 quick replies, got %+v", last)
	}
	if last[0].Title != "A very long quick re" || last[0].Payload != "LONG" {
		t.Fatalf("title should be truncated to 20 runes, got %+v", last[0])
	}
	if last[1].Payload != "Help" || last[1].ContentType != messenger.QuickReplyTypeText {
		t.Fatalf("unexpected default quick reply %+v", last[1])
	}
	if sender.actions(messenger.ActionTypingOn) != 1 {
		t.Fatalf("expected one typing_on between chunks, got %d", sender.actions(messenger.ActionTypingOn))
	}
}

func TestDeliverIgnoresTypingErrors(t *testing.T) {
	sender := &recordingSender{actionErr: errors.New("typing broken")}
	delivery := NewDelivery(sender, config.MessengerConfig{MaxMessageLength: 25, TypingEnabled: true})

	if err := delivery.Deliver(context.Background(), "u1", "First sentence here. Second sentence here!", nil); err != nil {
		t.Fatalf("typing errors must not fail delivery: %v", err)
	}
	if len(sender.texts()) != 2 {
		t.Fatalf("expected both chunks to be sent, got %d", len(sender.texts()))
	}
}

func TestDeliverReturnsSendError(t *testing.T) {
	sendErr := &apperr.UpstreamError{Provider: Provider, StatusCode: 500}
	sender := &recordingSender{textErr: sendErr}
	delivery := NewDelivery(sender, config.MessengerConfig{})

	if err := delivery.Deliver(context.Background(), "u1", "hello", nil); !errors.Is(err, sendErr) {
		t.Fatalf("expected send error, got %v", err)
	}
}

func TestNormalizeQuickRepliesCapsCount(t *testing.T) {
	var replies []messenger.QuickReply
	for i := 0; i < 20; i++ {
		replies = append(replies, messenger.TextReply("Option"))
	}
	if got := NormalizeQuickReplies(replies); len(got) != messenger.MaxQuickReplies {
		t.Fatalf("expected %d quick replies, got %d", messenger.MaxQuickReplies, len(got))
	}
}

func TestTypingStartAndStop(t *testing.T) {
	sender := &recordingSender{}
	typing := NewTyping(sender, 10*time.Millisecond)

	stop := typing.Start(context.Background(), "u1")
	if !typing.Active("u1") {
		t.Fatal("expected active indicator")
	}

	deadline := time.Now().Add(time.Second)
	for sender.actions(messenger.ActionTypingOn) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("typing_on was not repeated")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stop()
	stop()
	if typing.Active("u1") {
		t.Fatal("indicator should be removed after stop")
	}
	if got := sender.actions(messenger.ActionTypingOff); got != 1 {
		t.Fatalf("expected one typing_off, got %d", got)
	}
}

func TestTypingErrorsAreSwallowed(t *testing.T) {
	sender := &recordingSender{actionErr: errors.New("graph down")}
	typing := NewTyping(sender, time.Hour)

	stop := typing.Start(context.Background(), "u1")
	stop()

	if got := sender.actions(messenger.ActionTypingOff); got != 1 {
		t.Fatalf("expected typing_off attempt, got %d", got)
	}
}

func TestTypingRestartKeepsNewIndicator(t *testing.T) {
	sender := &recordingSender{}
	typing := NewTyping(sender, time.Hour)

	stopFirst := typing.Start(context.Background(), "u1")
	stopSecond := typing.Start(context.Background(), "u1")

	stopFirst()
	if !typing.Active("u1") {
		t.Fatal("stopping the replaced indicator must not remove the new one")
	}
	stopSecond()
	if typing.Active("u1") {
		t.Fatal("expected indicator to be removed")
	}
}

func TestTypingStopAll(t *testing.T) {
	sender := &recordingSender{}
	typing := NewTyping(sender, time.Hour)

	typing.Start(context.Background(), "u1")
	typing.Start(context.Background(), "u2")
	typing.StopAll()

	if typing.Active("u1") || typing.Active("u2") {
		t.Fatal("expected all indicators stopped")
	}
}
