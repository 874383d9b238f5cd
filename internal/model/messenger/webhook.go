package messenger

import (
	"strings"
	"time"
)

// ObjectPage is the only webhook object type the relay handles.
const ObjectPage = "page"

// WebhookPayload is the body of a webhook delivery.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events delivered for one page.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// MessagingEvent is one raw event inside an entry.
type MessagingEvent struct {
	Sender    Participant      `json:"sender"`
	Recipient Participant      `json:"recipient"`
	Timestamp int64            `json:"timestamp"`
	Message   *InboundMessage  `json:"message,omitempty"`
	Postback  *InboundPostback `json:"postback,omitempty"`
}

// Participant identifies a page-scoped user or the page itself.
type Participant struct {
	ID string `json:"id"`
}

// InboundMessage is the message part of an event.
type InboundMessage struct {
	MID        string      `json:"mid"`
	Text       string      `json:"text"`
	IsEcho     bool        `json:"is_echo"`
	QuickReply *QuickReply `json:"quick_reply,omitempty"`
}

// InboundPostback is sent when a user taps a button or "Get Started".
type InboundPostback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// EventKind classifies a normalized inbound event.
type EventKind string

const (
	KindText       EventKind = "text"
	KindQuickReply EventKind = "quick_reply"
	KindPostback   EventKind = "postback"
)

// Event is the normalized (user, text | payload) unit handed to the relay.
type Event struct {
	UserID    string
	PageID    string
	Kind      EventKind
	Text      string
	Payload   string
	MID       string
	Timestamp time.Time
}

// Events flattens the payload into normalized events. Echoes, events sent by
// the page itself and events carrying neither text nor payload are dropped.
// pageID overrides the entry id when set.
func (p WebhookPayload) Events(pageID string) []Event {
	var events []Event
	for _, entry := range p.Entry {
		page := pageID
		if page == "" {
			page = entry.ID
		}

		for _, raw := range entry.Messaging {
			ev, ok := normalize(raw, page)
			if !ok {
				continue
			}
			events = append(events, ev)
		}
	}
	return events
}

func normalize(raw MessagingEvent, pageID string) (Event, bool) {
	userID := strings.TrimSpace(raw.Sender.ID)
	if userID == "" || (pageID != "" && userID == pageID) {
		return Event{}, false
	}

	ev := Event{
		UserID: userID,
		PageID: pageID,
	}
	if raw.Timestamp > 0 {
		ev.Timestamp = time.UnixMilli(raw.Timestamp).UTC()
	} else {
		ev.Timestamp = time.Now().UTC()
	}

	switch {
	case raw.Message != nil:
		if raw.Message.IsEcho {
			return Event{}, false
		}
		ev.MID = raw.Message.MID
		ev.Text = strings.TrimSpace(raw.Message.Text)
		if raw.Message.QuickReply != nil && raw.Message.QuickReply.Payload != "" {
			ev.Kind = KindQuickReply
			ev.Payload = raw.Message.QuickReply.Payload
			return ev, true
		}
		if ev.Text == "" {
			return Event{}, false
		}
		ev.Kind = KindText
		return ev, true
	case raw.Postback != nil:
		if raw.Postback.Payload == "" {
			return Event{}, false
		}
		ev.Kind = KindPostback
		ev.Payload = raw.Postback.Payload
		ev.Text = strings.TrimSpace(raw.Postback.Title)
		return ev, true
	default:
		return Event{}, false
	}
}
