package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/chat"
)

const (
	DefaultMaxTurns    = 10
	DefaultIdleTimeout = 30 * time.Minute
)

// Config bounds the per-user conversation window.
type Config struct {
	MaxTurns    int
	IdleTimeout time.Duration
}

type session struct {
	turns        []chat.Turn
	lastActivity time.Time
}

// Service is the process-wide session registry. Sessions are created lazily
// on first append, capped FIFO at MaxTurns and evicted by Sweep once idle.
type Service struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	maxTurns    int
	idleTimeout time.Duration
	now         func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used to stamp turns.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService bootstraps the in-memory session registry.
func NewService(cfg Config, opts ...Option) *Service {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	s := &Service{
		sessions:    make(map[string]*session),
		maxTurns:    maxTurns,
		idleTimeout: idle,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a turn to the user's session, dropping the oldest turns once
// the cap is exceeded.
func (s *Service) Append(_ context.Context, userID string, role chat.Role, text string) chat.Turn {
	turn := chat.Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = &session{turns: make([]chat.Turn, 0, s.maxTurns)}
		s.sessions[userID] = sess
	}

	sess.turns = append(sess.turns, turn)
	if overflow := len(sess.turns) - s.maxTurns; overflow > 0 {
		kept := make([]chat.Turn, s.maxTurns, s.maxTurns+1)
		copy(kept, sess.turns[overflow:])
		sess.turns = kept
	}
	sess.lastActivity = turn.CreatedAt

	return turn
}

// History returns the user's turns in chronological order. Unknown users get
// an empty slice. Reading does not count as activity.
func (s *Service) History(_ context.Context, userID string) []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return []chat.Turn{}
	}

	copied := make([]chat.Turn, len(sess.turns))
	copy(copied, sess.turns)
	return copied
}

// Snapshot returns the session with its last activity time.
func (s *Service) Snapshot(_ context.Context, userID string) (chat.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return chat.Session{}, false
	}

	turns := make([]chat.Turn, len(sess.turns))
	copy(turns, sess.turns)
	return chat.Session{
		UserID:       userID,
		Turns:        turns,
		LastActivity: sess.lastActivity,
	}, true
}

// Clear drops the user's session. Clearing an absent session is a no-op.
func (s *Service) Clear(_ context.Context, userID string) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// Sweep deletes every session idle for longer than the timeout and returns
// how many were removed.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, sess := range s.sessions {
		if now.Sub(sess.lastActivity) > s.idleTimeout {
			delete(s.sessions, userID)
			removed++
		}
	}
	return removed
}

// Stats reports the number of sessions and stored turns.
func (s *Service) Stats() chat.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := chat.Stats{Sessions: len(s.sessions)}
	for _, sess := range s.sessions {
		stats.Turns += len(sess.turns)
	}
	return stats
}

// MaxTurns exposes the configured cap.
func (s *Service) MaxTurns() int {
	return s.maxTurns
}
