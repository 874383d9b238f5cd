package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/zhouzirui/messenger-relay/backend/internal/config"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/apperr"
)

// NewChatModel creates the chat model of the configured provider.
func NewChatModel(ctx context.Context, cfg config.AIConfig) (model.BaseChatModel, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("provider %q is missing credentials or model", cfg.Provider)
	}

	temperature := float32(cfg.Temperature)
	maxTokens := cfg.MaxTokens
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiChatModel(GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			BaseURL:     cfg.GeminiBaseURL,
			HTTPClient:  httpClient,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})
	case config.ProviderOpenRouter:
		return NewOpenRouterChatModel(OpenRouterConfig{
			APIKey:      cfg.OpenRouterAPIKey,
			Model:       cfg.OpenRouterModel,
			BaseURL:     cfg.OpenRouterBaseURL,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})
	case config.ProviderAnthropic:
		return NewAnthropicChatModel(AnthropicConfig{
			APIKey:      cfg.AnthropicAPIKey,
			Model:       cfg.AnthropicModel,
			BaseURL:     cfg.AnthropicBaseURL,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})
	case config.ProviderArk:
		return newArkChatModel(ctx, cfg, temperature, maxTokens)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

func newArkChatModel(ctx context.Context, cfg config.AIConfig, temperature float32, maxTokens int) (model.BaseChatModel, error) {
	// API key first, access key / secret key otherwise
	var arkCfg *ark.ChatModelConfig
	if cfg.APIKey != "" {
		arkCfg = &ark.ChatModelConfig{
			BaseURL:     cfg.BaseURL,
			Region:      cfg.Region,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		}
	} else {
		arkCfg = &ark.ChatModelConfig{
			BaseURL:     cfg.BaseURL,
			Region:      cfg.Region,
			AccessKey:   cfg.AccessKey,
			SecretKey:   cfg.SecretKey,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		}
	}

	chatModel, err := ark.NewChatModel(ctx, arkCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ark chat model: %w", err)
	}
	return chatModel, nil
}

// wrapProviderError keeps UpstreamErrors from the provider models and wraps
// everything else, recovering the status code when the message carries one.
func wrapProviderError(provider string, err error) error {
	var upstream *apperr.UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	return &apperr.UpstreamError{Provider: provider, StatusCode: sniffStatus(err), Err: err}
}

var statusCodePattern = regexp.MustCompile(`(?i)status(?:\s*code)?\s*[:=]?\s*(\d{3})`)

// sniffStatus extracts an HTTP status from SDK errors that only expose it in
// their message.
func sniffStatus(err error) int {
	if err == nil {
		return 0
	}
	var statusErr interface{ StatusCode() int }
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode()
	}
	match := statusCodePattern.FindStringSubmatch(err.Error())
	if len(match) != 2 {
		return 0
	}
	code, convErr := strconv.Atoi(match[1])
	if convErr != nil {
		return 0
	}
	return code
}
