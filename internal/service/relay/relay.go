package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/messenger-relay/backend/internal/analysis/intent"
	"github.com/zhouzirui/messenger-relay/backend/internal/config"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/apperr"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/chat"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/messenger"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/persona"
	"github.com/zhouzirui/messenger-relay/backend/internal/observability"
	"github.com/zhouzirui/messenger-relay/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/messenger-relay/backend/internal/service/chat"
	"github.com/zhouzirui/messenger-relay/backend/internal/service/events"
)

// Outcomes recorded in metrics.
const (
	OutcomeReplied = "replied"
	OutcomeDropped = "dropped"
	OutcomeCommand = "command"
	OutcomeFailed  = "failed"
)

// Postback payloads understood as commands.
const (
	PayloadGetStarted = "GET_STARTED"
	PayloadReset      = "RESET"
	PayloadHelp       = "HELP"
)

const (
	resetReply = "Done! I've forgotten our conversation. What would you like to talk about?"
	helpReply  = "I can chat about almost anything. I can also check the current weather (try \"weather in Paris\") " +
		"and look up football results (try \"how did Arsenal do?\").\n\nSend \"reset\" any time to start a new conversation."
	apologyTimeout = 10 * time.Second
)

var (
	resetCommands = map[string]bool{"reset": true, "/reset": true, "new chat": true, "/new": true, "restart": true}
	helpCommands  = map[string]bool{"help": true, "/help": true, "aide": true}
)

// Completer produces the assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, req ai.Request) (string, error)
}

// Deliverer sends a possibly long reply to a user.
type Deliverer interface {
	Deliver(ctx context.Context, recipient, text string, quickReplies []messenger.QuickReply) error
}

// ActionSender sends sender actions such as mark_seen.
type ActionSender interface {
	SendAction(ctx context.Context, recipient string, action messenger.SenderAction) error
}

// TypingIndicator keeps the typing bubble visible until stopped.
type TypingIndicator interface {
	Start(ctx context.Context, recipient string) (stop func())
}

// IntentDetector decides whether a message needs live data.
type IntentDetector interface {
	Detect(ctx context.Context, text string) intent.Decision
}

// LiveDataSource fetches the context block for a decision.
type LiveDataSource interface {
	Lookup(ctx context.Context, decision intent.Decision) (string, error)
}

// Config controls event processing.
type Config struct {
	RateLimitEnabled    bool
	ProcessingTimeout   time.Duration
	TypingEnabled       bool
	QuickRepliesEnabled bool
	ApologyText         string
	PersonaID           string
	Verbose             bool
}

// ConfigFrom collects the relay settings from the loaded configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		RateLimitEnabled:    cfg.Session.RateLimitEnabled,
		ProcessingTimeout:   cfg.Server.ProcessingTimeout,
		TypingEnabled:       cfg.Messenger.TypingEnabled,
		QuickRepliesEnabled: cfg.Messenger.QuickRepliesEnabled,
		ApologyText:         cfg.Messenger.ApologyText,
		PersonaID:           cfg.AI.Persona,
		Verbose:             cfg.Server.Verbose,
	}
}

// Dependencies are the collaborators of the relay. Completer, Sender,
// Typing, Intent, LiveData, Limiter, Metrics and Events may be nil.
type Dependencies struct {
	Sessions  *chatservice.Service
	Limiter   *chatservice.RateLimiter
	Completer Completer
	Delivery  Deliverer
	Sender    ActionSender
	Typing    TypingIndicator
	Intent    IntentDetector
	LiveData  LiveDataSource
	Personas  persona.Store
	Metrics   *observability.Metrics
	Events    *events.Hub
}

// Relay turns normalized webhook events into replies.
type Relay struct {
	cfg  Config
	deps Dependencies
	now  func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a relay.
func New(cfg Config, deps Dependencies) *Relay {
	if strings.TrimSpace(cfg.ApologyText) == "" {
		cfg.ApologyText = config.DefaultApologyText
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Relay{
		cfg:     cfg,
		deps:    deps,
		now:     time.Now,
		baseCtx: baseCtx,
		cancel:  cancel,
	}
}

// Dispatch processes ev in the background so the webhook can acknowledge
// immediately.
func (r *Relay) Dispatch(ev messenger.Event) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[relay] panic while processing event for user=%s: %v\n%s", ev.UserID, rec, debug.Stack())
			}
		}()

		ctx := r.baseCtx
		if r.cfg.ProcessingTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.cfg.ProcessingTimeout)
			defer cancel()
		}

		if err := r.Process(ctx, ev); err != nil {
			log.Printf("[relay] event for user=%s failed: %v", ev.UserID, err)
		}
	}()
}

// Wait blocks until dispatched events finish. When ctx ends first, in-flight
// work is cancelled and ctx's error returned.
func (r *Relay) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}

// Process handles a single event synchronously.
func (r *Relay) Process(ctx context.Context, ev messenger.Event) error {
	r.deps.Metrics.IncInbound(string(ev.Kind))
	r.deps.Events.Publish(events.TypeReceived, ev.UserID, string(ev.Kind))
	if r.cfg.Verbose {
		log.Printf("[relay] inbound user=%s kind=%s mid=%s text=%q payload=%q", ev.UserID, ev.Kind, ev.MID, ev.Text, ev.Payload)
	}

	if ev.Kind != messenger.KindPostback && r.cfg.RateLimitEnabled && r.deps.Limiter != nil {
		if !r.deps.Limiter.Allow(ev.UserID, r.now()) {
			log.Printf("[relay] rate limited user=%s, message dropped", ev.UserID)
			r.deps.Metrics.IncOutcome(OutcomeDropped)
			r.deps.Events.Publish(events.TypeDropped, ev.UserID, "rate limited")
			return nil
		}
	}

	if handled, err := r.handleCommand(ctx, ev); handled {
		return err
	}

	text := ev.Text
	if text == "" {
		text = ev.Payload
	}

	r.markSeen(ctx, ev.UserID)
	stopTyping := func() {}
	if r.cfg.TypingEnabled && r.deps.Typing != nil {
		stopTyping = r.deps.Typing.Start(ctx, ev.UserID)
	}
	defer stopTyping()

	liveData := r.lookupLiveData(ctx, ev.UserID, text)

	history := r.deps.Sessions.History(ctx, ev.UserID)
	r.deps.Sessions.Append(ctx, ev.UserID, chat.RoleUser, text)

	started := r.now()
	reply, err := r.complete(ctx, ai.Request{
		UserID:   ev.UserID,
		History:  history,
		Message:  text,
		LiveData: liveData,
	})
	r.deps.Metrics.ObserveCompletion(r.now().Sub(started))
	stopTyping()
	if err != nil {
		return r.fail(ctx, ev.UserID, err)
	}

	r.deps.Sessions.Append(ctx, ev.UserID, chat.RoleAssistant, reply)

	started = r.now()
	if err := r.deps.Delivery.Deliver(ctx, ev.UserID, reply, r.quickReplies()); err != nil {
		r.recordUpstream(err)
		r.deps.Metrics.IncOutcome(OutcomeFailed)
		r.deps.Events.Publish(events.TypeFailed, ev.UserID, "delivery failed")
		return fmt.Errorf("deliver reply: %w", err)
	}
	r.deps.Metrics.ObserveDelivery(r.now().Sub(started))

	r.deps.Metrics.IncOutcome(OutcomeReplied)
	r.deps.Events.Publish(events.TypeReplied, ev.UserID, fmt.Sprintf("%d chars", len([]rune(reply))))
	if r.cfg.Verbose {
		log.Printf("[relay] replied user=%s length=%d live_data=%t", ev.UserID, len([]rune(reply)), liveData != "")
	}
	return nil
}

func (r *Relay) complete(ctx context.Context, req ai.Request) (string, error) {
	if r.deps.Completer == nil {
		return "", &apperr.UpstreamError{Provider: "llm", Body: "completion provider is not configured"}
	}
	return r.deps.Completer.Complete(ctx, req)
}

// handleCommand answers reset, help and get-started without the model.
func (r *Relay) handleCommand(ctx context.Context, ev messenger.Event) (bool, error) {
	key := ev.Text
	if ev.Kind != messenger.KindText {
		key = ev.Payload
	}
	key = strings.ToLower(strings.TrimSpace(key))

	var reply string
	var name string
	switch {
	case key == strings.ToLower(PayloadGetStarted) && ev.Kind == messenger.KindPostback:
		name = "get_started"
		reply = persona.Resolve(r.deps.Personas, r.cfg.PersonaID).Greeting
	case resetCommands[key] || key == strings.ToLower(PayloadReset):
		name = "reset"
		r.deps.Sessions.Clear(ctx, ev.UserID)
		reply = resetReply
	case helpCommands[key] || key == strings.ToLower(PayloadHelp):
		name = "help"
		reply = helpReply
	default:
		return false, nil
	}

	log.Printf("[relay] command %s from user=%s", name, ev.UserID)
	r.deps.Metrics.IncOutcome(OutcomeCommand)
	r.deps.Events.Publish(events.TypeCommand, ev.UserID, name)

	if err := r.deps.Delivery.Deliver(ctx, ev.UserID, reply, r.quickReplies()); err != nil {
		r.recordUpstream(err)
		return true, fmt.Errorf("deliver %s reply: %w", name, err)
	}
	return true, nil
}

// fail records err and sends the apology exactly once.
func (r *Relay) fail(ctx context.Context, userID string, err error) error {
	r.recordUpstream(err)
	log.Printf("[relay] completion failed for user=%s: %v", userID, err)
	r.deps.Metrics.IncOutcome(OutcomeFailed)
	r.deps.Events.Publish(events.TypeFailed, userID, err.Error())

	apologyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), apologyTimeout)
	defer cancel()
	if sendErr := r.deps.Delivery.Deliver(apologyCtx, userID, r.cfg.ApologyText, nil); sendErr != nil {
		deliveryErr := &apperr.DeliveryError{Recipient: userID, Err: sendErr}
		log.Printf("[relay] %v", deliveryErr)
		return errors.Join(err, deliveryErr)
	}
	return err
}

func (r *Relay) recordUpstream(err error) {
	var upstream *apperr.UpstreamError
	if errors.As(err, &upstream) {
		r.deps.Metrics.IncProviderError(upstream.Provider, upstream.StatusCode)
	}
}

func (r *Relay) markSeen(ctx context.Context, userID string) {
	if r.deps.Sender == nil {
		return
	}
	if err := r.deps.Sender.SendAction(ctx, userID, messenger.ActionMarkSeen); err != nil {
		log.Printf("[relay] mark_seen failed for user=%s: %v", userID, err)
	}
}

func (r *Relay) lookupLiveData(ctx context.Context, userID, text string) string {
	if r.deps.Intent == nil || r.deps.LiveData == nil {
		return ""
	}

	decision := r.deps.Intent.Detect(ctx, text)
	if !decision.NeedsLiveData() {
		return ""
	}

	data, err := r.deps.LiveData.Lookup(ctx, decision)
	if err != nil {
		r.recordUpstream(err)
		r.deps.Metrics.IncLiveData(string(decision.Intent), "error")
		log.Printf("[relay] %s lookup failed for user=%s: %v", decision.Intent, userID, err)
		return ""
	}

	r.deps.Metrics.IncLiveData(string(decision.Intent), "ok")
	if r.cfg.Verbose {
		log.Printf("[relay] %s lookup for user=%s city=%q team=%q returned %d chars", decision.Intent, userID, decision.City, decision.Team, len(data))
	}
	return data
}

func (r *Relay) quickReplies() []messenger.QuickReply {
	if !r.cfg.QuickRepliesEnabled {
		return nil
	}
	p := persona.Resolve(r.deps.Personas, r.cfg.PersonaID)
	replies := make([]messenger.QuickReply, 0, len(p.QuickReplies))
	for _, title := range p.QuickReplies {
		replies = append(replies, messenger.TextReply(title))
	}
	return replies
}
