package messenger

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/messenger-relay/backend/internal/model/messenger"
)

// DefaultTypingInterval is how often typing_on is repeated; Messenger hides
// the indicator after about 20 seconds.
const DefaultTypingInterval = 10 * time.Second

// typingOffTimeout bounds the best-effort typing_off sent by Stop.
const typingOffTimeout = 5 * time.Second

type typingIndicator struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Typing keeps a typing indicator alive per recipient until stopped.
type Typing struct {
	sender     Sender
	interval   time.Duration
	mu         sync.Mutex
	indicators map[string]*typingIndicator
}

// NewTyping creates a typing indicator manager.
func NewTyping(sender Sender, interval time.Duration) *Typing {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	return &Typing{
		sender:     sender,
		interval:   interval,
		indicators: make(map[string]*typingIndicator),
	}
}

// Start shows the indicator for recipient until the returned stop func is
// called or ctx ends. Starting again for the same recipient replaces the
// running indicator.
func (t *Typing) Start(ctx context.Context, recipient string) (stop func()) {
	indicatorCtx, cancel := context.WithCancel(ctx)
	indicator := &typingIndicator{ctx: ctx, cancel: cancel, done: make(chan struct{})}

	t.mu.Lock()
	if previous, ok := t.indicators[recipient]; ok {
		previous.cancel()
	}
	t.indicators[recipient] = indicator
	t.mu.Unlock()

	go t.run(indicatorCtx, recipient, indicator.done)

	var once sync.Once
	return func() {
		once.Do(func() { t.stop(recipient, indicator) })
	}
}

// Active reports whether an indicator is running for recipient.
func (t *Typing) Active(recipient string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.indicators[recipient]
	return ok
}

// StopAll cancels every running indicator without sending typing_off.
func (t *Typing) StopAll() {
	t.mu.Lock()
	indicators := t.indicators
	t.indicators = make(map[string]*typingIndicator)
	t.mu.Unlock()

	for _, indicator := range indicators {
		indicator.cancel()
		<-indicator.done
	}
}

func (t *Typing) stop(recipient string, indicator *typingIndicator) {
	t.mu.Lock()
	current, ok := t.indicators[recipient]
	owner := ok && current == indicator
	if owner {
		delete(t.indicators, recipient)
	}
	t.mu.Unlock()

	indicator.cancel()
	<-indicator.done

	if !owner {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(indicator.ctx), typingOffTimeout)
	defer cancel()
	if err := t.sender.SendAction(ctx, recipient, messenger.ActionTypingOff); err != nil {
		log.Printf("[typing] typing_off failed for recipient=%s: %v", recipient, err)
	}
}

func (t *Typing) run(ctx context.Context, recipient string, done chan<- struct{}) {
	defer close(done)

	if err := t.sender.SendAction(ctx, recipient, messenger.ActionTypingOn); err != nil && ctx.Err() == nil {
		log.Printf("[typing] typing_on failed for recipient=%s: %v", recipient, err)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.sender.SendAction(ctx, recipient, messenger.ActionTypingOn); err != nil && ctx.Err() == nil {
				log.Printf("[typing] typing_on failed for recipient=%s: %v", recipient, err)
			}
		}
	}
}
