package chat

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultSweepInterval is used when no interval is configured.
const DefaultSweepInterval = 5 * time.Minute

// Janitor periodically evicts idle sessions and stale rate-limit records.
type Janitor struct {
	sessions *Service
	limiter  *RateLimiter
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewJanitor creates a janitor. limiter may be nil.
func NewJanitor(sessions *Service, limiter *RateLimiter, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Janitor{
		sessions: sessions,
		limiter:  limiter,
		interval: interval,
	}
}

// Start launches the sweep loop. Calling Start twice is a no-op.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.running = true

	go j.run(sweepCtx, j.done)
}

// Stop cancels the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	cancel := j.cancel
	done := j.done
	j.mu.Unlock()

	cancel()
	<-done
}

func (j *Janitor) run(ctx context.Context, done chan struct{}) {
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweepOnce(time.Now().UTC())
		}
	}
}

func (j *Janitor) sweepOnce(now time.Time) {
	removed := j.sessions.Sweep(now)
	pruned := 0
	if j.limiter != nil {
		pruned = j.limiter.Prune(now)
	}
	if removed > 0 || pruned > 0 {
		stats := j.sessions.Stats()
		log.Printf("[janitor] evicted %d idle sessions, pruned %d rate records, %d sessions remain", removed, pruned, stats.Sessions)
	}
}
