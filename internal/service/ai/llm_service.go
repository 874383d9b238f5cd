package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/messenger-relay/backend/internal/config"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/apperr"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/chat"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/persona"
)

// Request carries everything needed for one completion.
type Request struct {
	UserID   string
	History  []chat.Turn
	Message  string
	LiveData string
}

// Service encapsulates the completion client.
type Service struct {
	chatModel model.BaseChatModel
	template  prompt.ChatTemplate
	personas  persona.Store
	prompts   *PromptBuilder
	cfg       config.AIConfig
}

// NewService creates the provider chat model selected in cfg and wraps it.
func NewService(ctx context.Context, personas persona.Store, cfg config.AIConfig) (*Service, error) {
	chatModel, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(chatModel, personas, cfg), nil
}

// NewServiceWithModel wraps an existing chat model.
func NewServiceWithModel(chatModel model.BaseChatModel, personas persona.Store, cfg config.AIConfig) *Service {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	return &Service{
		chatModel: chatModel,
		template:  promptTemplate,
		personas:  personas,
		prompts:   NewPromptBuilder(cfg.DisplayTimezone),
		cfg:       cfg,
	}
}

// Provider returns the configured provider name.
func (s *Service) Provider() string {
	return s.cfg.Provider
}

// ModelName returns the configured model identifier.
func (s *Service) ModelName() string {
	return s.cfg.ModelName()
}

// GetChatModel exposes the underlying chat model.
func (s *Service) GetChatModel() model.BaseChatModel {
	return s.chatModel
}

// Persona returns the persona currently used for prompts.
func (s *Service) Persona() persona.Persona {
	return persona.Resolve(s.personas, s.cfg.Persona)
}

// Complete asks the provider for the assistant's reply to req.Message.
// Every failure, including an empty reply, is an *apperr.UpstreamError.
func (s *Service) Complete(ctx context.Context, req Request) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	history, query := buildConversation(req.History, req.Message)
	input := map[string]any{
		"system":  s.prompts.Build(s.Persona(), req.LiveData),
		"history": history,
		"query":   query,
	}

	messages, err := s.template.Format(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to format prompt: %w", err)
	}

	var opts []model.Option
	if s.cfg.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(s.cfg.Temperature)))
	}
	if s.cfg.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(s.cfg.MaxTokens))
	}

	response, err := s.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return "", wrapProviderError(s.cfg.Provider, err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", &apperr.UpstreamError{Provider: s.cfg.Provider, Body: "empty completion"}
	}

	reply := strings.TrimSpace(response.Content)
	log.Printf("[ai] generated response for user=%s, provider=%s, history=%d, length=%d", req.UserID, s.cfg.Provider, len(history), len(reply))
	return reply, nil
}

// buildConversation turns stored turns plus the new message into strictly
// alternating history and the final user query. Leading assistant turns are
// dropped and consecutive turns of the same role are merged.
func buildConversation(turns []chat.Turn, message string) ([]*schema.Message, string) {
	type entry struct {
		role chat.Role
		text string
	}

	merged := make([]entry, 0, len(turns)+1)
	add := func(role chat.Role, text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if len(merged) == 0 && role != chat.RoleUser {
			return
		}
		if n := len(merged); n > 0 && merged[n-1].role == role {
			merged[n-1].text += "\n" + text
			return
		}
		merged = append(merged, entry{role: role, text: text})
	}

	for _, turn := range turns {
		if turn.Role != chat.RoleUser && turn.Role != chat.RoleAssistant {
			continue
		}
		add(turn.Role, turn.Text)
	}
	add(chat.RoleUser, message)

	if len(merged) == 0 {
		return nil, strings.TrimSpace(message)
	}

	last := merged[len(merged)-1]
	query := last.text
	rest := merged[:len(merged)-1]
	if last.role != chat.RoleUser {
		query = strings.TrimSpace(message)
		rest = merged
	}

	history := make([]*schema.Message, 0, len(rest))
	for _, e := range rest {
		switch e.role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(e.text))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(e.text, nil))
		}
	}
	return history, query
}
