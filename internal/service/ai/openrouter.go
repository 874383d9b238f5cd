package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/zhouzirui/messenger-relay/backend/internal/config"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/apperr"
)

// OpenRouterConfig configures the OpenAI-compatible OpenRouter client.
type OpenRouterConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature *float32
	MaxTokens   *int
}

// OpenRouterChatModel implements model.BaseChatModel against any
// OpenAI-compatible chat completions endpoint.
type OpenRouterChatModel struct {
	client      *openai.Client
	model       string
	temperature *float32
	maxTokens   *int
}

// NewOpenRouterChatModel creates the client.
func NewOpenRouterChatModel(cfg OpenRouterConfig) (*OpenRouterChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openrouter model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenRouterChatModel{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Generate calls /chat/completions and returns the first choice.
func (m *OpenRouterChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}, opts...)

	messages := make([]openai.ChatCompletionMessage, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: messages,
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		req.MaxTokens = *options.MaxTokens
	}
	if options.Temperature != nil {
		temperature := *options.Temperature
		req.Temperature = &temperature
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, openRouterError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &apperr.UpstreamError{Provider: config.ProviderOpenRouter, StatusCode: 200, Body: "no choices in response"}
	}

	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

// Stream returns the Generate result as a single chunk.
func (m *OpenRouterChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func openRouterError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &apperr.UpstreamError{
			Provider:   config.ProviderOpenRouter,
			StatusCode: apiErr.HTTPStatusCode,
			Body:       apperr.Truncate(apiErr.Message, 500),
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &apperr.UpstreamError{
			Provider:   config.ProviderOpenRouter,
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}
	return &apperr.UpstreamError{Provider: config.ProviderOpenRouter, StatusCode: sniffStatus(err), Err: err}
}
