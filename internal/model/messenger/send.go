package messenger

// SenderAction is a UI affordance shown in the user's thread.
type SenderAction string

const (
	ActionTypingOn  SenderAction = "typing_on"
	ActionTypingOff SenderAction = "typing_off"
	ActionMarkSeen  SenderAction = "mark_seen"
)

// Platform limits for quick replies.
const (
	MaxQuickReplies     = 13
	MaxQuickReplyTitle  = 20
	QuickReplyTypeText  = "text"
	DefaultMessageLimit = 2000
)

// QuickReply is a tappable button attached to an outbound message. Inbound
// quick-reply taps carry only the payload.
type QuickReply struct {
	ContentType string `json:"content_type,omitempty"`
	Title       string `json:"title,omitempty"`
	Payload     string `json:"payload"`
}

// SendRequest is the body posted to the send API.
type SendRequest struct {
	Recipient    Participant   `json:"recipient"`
	Message      *OutboundText `json:"message,omitempty"`
	SenderAction SenderAction  `json:"sender_action,omitempty"`
}

// OutboundText is a text message with optional quick replies.
type OutboundText struct {
	Text         string       `json:"text"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
}

// TextReply builds a quick reply whose payload equals its title.
func TextReply(title string) QuickReply {
	return QuickReply{ContentType: QuickReplyTypeText, Title: title, Payload: title}
}
