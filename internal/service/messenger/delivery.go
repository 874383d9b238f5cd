package messenger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/messenger-relay/backend/internal/config"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/messenger"
)

// Delivery splits replies and sends them as consecutive messages.
type Delivery struct {
	sender        Sender
	limit         int
	chunkDelay    time.Duration
	typingEnabled bool
}

// NewDelivery creates a Delivery from the Messenger settings.
func NewDelivery(sender Sender, cfg config.MessengerConfig) *Delivery {
	limit := cfg.MaxMessageLength
	if limit <= 0 {
		limit = messenger.DefaultMessageLimit
	}
	return &Delivery{
		sender:        sender,
		limit:         limit,
		chunkDelay:    cfg.ChunkDelay,
		typingEnabled: cfg.TypingEnabled,
	}
}

// Deliver sends text in order, pausing between chunks. Quick replies go on
// the final chunk only. The first failed send aborts the rest.
func (d *Delivery) Deliver(ctx context.Context, recipient, text string, quickReplies []messenger.QuickReply) error {
	chunks := Split(text, d.limit)
	if len(chunks) == 0 {
		return nil
	}
	replies := NormalizeQuickReplies(quickReplies)

	for i, chunk := range chunks {
		if i > 0 {
			if d.typingEnabled {
				if err := d.sender.SendAction(ctx, recipient, messenger.ActionTypingOn); err != nil {
					log.Printf("[delivery] typing_on between chunks failed for recipient=%s: %v", recipient, err)
				}
			}
			if err := sleep(ctx, d.chunkDelay); err != nil {
				return fmt.Errorf("delivery interrupted after %d of %d chunks: %w", i, len(chunks), err)
			}
		}

		var chunkReplies []messenger.QuickReply
		if i == len(chunks)-1 {
			chunkReplies = replies
		}
		if err := d.sender.SendText(ctx, recipient, chunk, chunkReplies); err != nil {
			return err
		}
	}

	if len(chunks) > 1 {
		log.Printf("[delivery] sent %d chunks to recipient=%s", len(chunks), recipient)
	}
	return nil
}

// NormalizeQuickReplies applies the platform limits: at most 13 buttons,
// titles of at most 20 characters, text content type by default.
func NormalizeQuickReplies(replies []messenger.QuickReply) []messenger.QuickReply {
	if len(replies) == 0 {
		return nil
	}

	out := make([]messenger.QuickReply, 0, len(replies))
	for _, reply := range replies {
		if len(out) == messenger.MaxQuickReplies {
			break
		}
		title := strings.TrimSpace(reply.Title)
		if title == "" {
			continue
		}
		if runes := []rune(title); len(runes) > messenger.MaxQuickReplyTitle {
			title = string(runes[:messenger.MaxQuickReplyTitle])
		}
		payload := reply.Payload
		if payload == "" {
			payload = strings.TrimSpace(reply.Title)
		}
		contentType := reply.ContentType
		if contentType == "" {
			contentType = messenger.QuickReplyTypeText
		}
		out = append(out, messenger.QuickReply{ContentType: contentType, Title: title, Payload: payload})
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
