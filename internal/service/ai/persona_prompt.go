package ai

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zhouzirui/messenger-relay/backend/internal/model/persona"
)

// messengerRules shape how replies render in Messenger.
var messengerRules = []string{
	"Write plain text. Messenger does not render Markdown headings, tables or links with titles.",
	"Keep answers short enough to read on a phone; use short paragraphs and simple lists.",
	"Emojis are fine in moderation.",
	"Never invent weather readings, scores or fixtures. Only quote numbers that appear in the live data below.",
}

// PromptBuilder assembles the system prompt for a persona.
type PromptBuilder struct {
	location *time.Location
	now      func() time.Time
}

// NewPromptBuilder creates a builder that prints the current time in timezone.
// Unknown zones fall back to UTC.
func NewPromptBuilder(timezone string) *PromptBuilder {
	location, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		if timezone != "" {
			log.Printf("[ai] unknown DISPLAY_TIMEZONE %q, using UTC: %v", timezone, err)
		}
		location = time.UTC
	}
	return &PromptBuilder{location: location, now: time.Now}
}

// Build creates the system prompt from the persona instructions, the current
// date and time, formatting rules and the optional live data block.
func (b *PromptBuilder) Build(p persona.Persona, liveData string) string {
	now := b.now().In(b.location)

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(p.Instructions))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Current date and time: %s (%s).\n\n", now.Format("Monday, 2 January 2006, 15:04"), b.location.String())

	sb.WriteString("Messenger rules:\n- ")
	sb.WriteString(strings.Join(messengerRules, "\n- "))

	if data := strings.TrimSpace(liveData); data != "" {
		sb.WriteString("\n\nLive data fetched just now, prefer it over your own knowledge:\n")
		sb.WriteString(data)
	}

	return sb.String()
}
