package chat_test

import (
	"context"
	"testing"
	"time"

	model "github.com/zhouzirui/messenger-relay/backend/internal/model/chat"
	chat "github.com/zhouzirui/messenger-relay/backend/internal/service/chat"
)

func TestRateLimiterDropsWithinInterval(t *testing.T) {
	limiter := chat.NewRateLimiter(2 * time.Second)
	start := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	if !limiter.Allow("u1", start) {
		t.Fatal("first message should pass")
	}
	if limiter.Allow("u1", start.Add(1500*time.Millisecond)) {
		t.Fatal("second message within interval should be dropped")
	}
	// The dropped message must not extend the window.
	if !limiter.Allow("u1", start.Add(2*time.Second)) {
		t.Fatal("message after interval should pass")
	}
	if !limiter.Allow("u2", start.Add(2*time.Second)) {
		t.Fatal("other users are independent")
	}
}

func TestRateLimiterPrune(t *testing.T) {
	limiter := chat.NewRateLimiter(time.Second)
	start := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	limiter.Allow("old", start)
	limiter.Allow("new", start.Add(900*time.Millisecond))

	if removed := limiter.Prune(start.Add(time.Second)); removed != 1 {
		t.Fatalf("expected 1 pruned record, got %d", removed)
	}
	if limiter.Len() != 1 {
		t.Fatalf("expected 1 remaining record, got %d", limiter.Len())
	}
}

func TestJanitorSweepsOnInterval(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	svc := chat.NewService(chat.Config{IdleTimeout: time.Minute}, chat.WithClock(func() time.Time { return past }))
	svc.Append(context.Background(), "u1", model.RoleUser, "hello")

	janitor := chat.NewJanitor(svc, chat.NewRateLimiter(time.Second), 10*time.Millisecond)
	janitor.Start(context.Background())
	defer janitor.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for svc.Stats().Sessions != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not evict idle session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJanitorStopIsSafeWithoutStart(t *testing.T) {
	janitor := chat.NewJanitor(chat.NewService(chat.Config{}), nil, time.Second)
	janitor.Stop()

	janitor.Start(context.Background())
	janitor.Stop()
	janitor.Stop()
}
