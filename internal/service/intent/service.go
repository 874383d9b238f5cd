package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	analysis "github.com/zhouzirui/messenger-relay/backend/internal/analysis/intent"
)

// Config 控制意图识别服务的行为。
type Config struct {
	Enabled bool
}

// Service 使用大模型识别用户意图，并在必要时回退到关键词规则。
type Service struct {
	enabled    bool
	classifier compose.Runnable[map[string]any, *schema.Message]
	fallback   func(text string) analysis.Decision
}

// NewService 创建意图识别服务。chatModel 可重用现有的大模型实例。
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config) (*Service, error) {
	svc := &Service{
		enabled:  cfg.Enabled && chatModel != nil,
		fallback: analysis.Analyze,
	}

	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(intentSystemPrompt),
		schema.UserMessage("{message}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile intent classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled 返回大模型分类是否启用。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Detect 识别消息是否需要天气或足球数据。
func (s *Service) Detect(ctx context.Context, text string) analysis.Decision {
	heuristic := s.fallback(text)
	if !s.Enabled() {
		return heuristic
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{"message": strings.TrimSpace(text)})
	if err != nil {
		log.Printf("[intent] classifier invoke failed, use fallback: %v", err)
		return heuristic
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return heuristic
	}

	result, err := parseClassifierOutput(msg.Content)
	if err != nil {
		log.Printf("[intent] classifier output parse failed, use fallback: %v", err)
		return heuristic
	}

	label, ok := parseIntentLabel(result.Intent)
	if !ok {
		return heuristic
	}

	decision := analysis.Decision{
		Intent: label,
		City:   strings.TrimSpace(result.City),
		Team:   strings.TrimSpace(result.Team),
		Score:  10,
	}
	// 大模型漏掉实体时沿用启发式结果
	if decision.Intent == heuristic.Intent {
		if decision.City == "" {
			decision.City = heuristic.City
		}
		if decision.Team == "" {
			decision.Team = heuristic.Team
		}
	}
	return decision
}

// parseClassifierOutput 解析大模型返回的 JSON。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func parseIntentLabel(raw string) (analysis.Label, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "":
		return analysis.None, true
	case "weather":
		return analysis.Weather, true
	case "football", "soccer":
		return analysis.Football, true
	default:
		return "", false
	}
}

type classifierPayload struct {
	Intent string `json:"intent"`
	City   string `json:"city"`
	Team   string `json:"team"`
}

const intentSystemPrompt = "You classify chat messages for a Messenger assistant that can look up live weather and football results.\n" +
	"Return only one JSON object with the fields intent, city and team. intent must be one of none, weather or football. " +
	"city is the place the user asks the weather for, team is the football club the user asks about; leave a field empty when it is not mentioned. " +
	"Do not output any other text."
