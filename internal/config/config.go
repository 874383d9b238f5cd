package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultVerifyToken 是未配置 VERIFY_TOKEN 时使用的回退值。
const DefaultVerifyToken = "messenger_relay_verify_token"

// DefaultApologyText 是回复无法生成时发送一次的致歉文本。
const DefaultApologyText = "Sorry, I ran into a problem while thinking about that. Please try again in a moment."

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Messenger MessengerConfig
	AI        AIConfig
	Session   SessionConfig
	LiveData  LiveDataConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	messenger, err := loadMessengerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	liveData, err := loadLiveDataConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Messenger: messenger,
		AI:        ai,
		Session:   session,
		LiveData:  liveData,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr              string
	AdminToken        string
	ProcessingTimeout time.Duration
	Verbose           bool
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	addr := port
	if !strings.Contains(port, ":") {
		addr = ":" + port
	}

	timeout, err := parseDurationEnv("PROCESSING_TIMEOUT", 60*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	verbose, err := parseBoolEnv("VERBOSE_LOGGING", false)
	if err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{
		Addr:              addr,
		AdminToken:        strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		ProcessingTimeout: timeout,
		Verbose:           verbose,
	}, nil
}

// MessengerConfig 描述 Facebook Messenger 平台相关配置。
type MessengerConfig struct {
	PageAccessToken     string
	VerifyToken         string
	AppSecret           string
	PageID              string
	GraphAPIBaseURL     string
	MaxMessageLength    int
	ChunkDelay          time.Duration
	TypingEnabled       bool
	TypingInterval      time.Duration
	QuickRepliesEnabled bool
	ApologyText         string
	HTTPTimeout         time.Duration
}

// Enabled 表示是否配置了调用 Graph API 所需的 Page Access Token。
func (c MessengerConfig) Enabled() bool {
	return c.PageAccessToken != ""
}

func loadMessengerConfig() (MessengerConfig, error) {
	maxLength := 2000
	if override, err := parseOptionalIntEnv("MESSAGE_MAX_LENGTH"); err != nil {
		return MessengerConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return MessengerConfig{}, fmt.Errorf("invalid MESSAGE_MAX_LENGTH value %d: must be positive", *override)
		}
		maxLength = *override
	}

	chunkDelay, err := parseDurationEnv("MESSAGE_CHUNK_DELAY", 800*time.Millisecond)
	if err != nil {
		return MessengerConfig{}, err
	}

	typingEnabled, err := parseBoolEnv("TYPING_ENABLED", true)
	if err != nil {
		return MessengerConfig{}, err
	}

	typingInterval, err := parseDurationEnv("TYPING_INTERVAL", 10*time.Second)
	if err != nil {
		return MessengerConfig{}, err
	}

	quickReplies, err := parseBoolEnv("QUICK_REPLIES_ENABLED", true)
	if err != nil {
		return MessengerConfig{}, err
	}

	httpTimeout, err := parseDurationEnv("HTTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return MessengerConfig{}, err
	}

	return MessengerConfig{
		PageAccessToken:     strings.TrimSpace(os.Getenv("PAGE_ACCESS_TOKEN")),
		VerifyToken:         getEnvOrDefault("VERIFY_TOKEN", DefaultVerifyToken),
		AppSecret:           strings.TrimSpace(os.Getenv("APP_SECRET")),
		PageID:              strings.TrimSpace(os.Getenv("PAGE_ID")),
		GraphAPIBaseURL:     strings.TrimRight(getEnvOrDefault("GRAPH_API_BASE_URL", "https://graph.facebook.com/v18.0"), "/"),
		MaxMessageLength:    maxLength,
		ChunkDelay:          chunkDelay,
		TypingEnabled:       typingEnabled,
		TypingInterval:      typingInterval,
		QuickRepliesEnabled: quickReplies,
		ApologyText:         getEnvOrDefault("APOLOGY_TEXT", DefaultApologyText),
		HTTPTimeout:         httpTimeout,
	}, nil
}

// 支持的大模型 provider。
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderArk        = "ark"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterBaseURL string

	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string

	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	Temperature      float64
	MaxTokens        int
	Timeout          time.Duration
	IntentLLMEnabled bool
	Persona          string
	PersonaFile      string
	DisplayTimezone  string
}

// Enabled 表示所选 provider 是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiAPIKey != "" && c.GeminiModel != ""
	case ProviderOpenRouter:
		return c.OpenRouterAPIKey != "" && c.OpenRouterModel != ""
	case ProviderAnthropic:
		return c.AnthropicAPIKey != "" && c.AnthropicModel != ""
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	default:
		return false
	}
}

// ModelName 返回所选 provider 使用的模型标识。
func (c AIConfig) ModelName() string {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiModel
	case ProviderOpenRouter:
		return c.OpenRouterModel
	case ProviderAnthropic:
		return c.AnthropicModel
	case ProviderArk:
		return c.Model
	default:
		return ""
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderGemini))
	switch provider {
	case ProviderGemini, ProviderOpenRouter, ProviderAnthropic, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	temperature := 0.7
	if override, err := parseOptionalFloatEnv("LLM_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	maxTokens := 1000
	if override, err := parseOptionalIntEnv("LLM_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		maxTokens = *override
	}

	timeout, err := parseDurationEnv("LLM_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	intentEnabled, err := parseBoolEnv("INTENT_LLM_ENABLED", false)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:          provider,
		GeminiAPIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:       getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:     strings.TrimRight(getEnvOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"), "/"),
		OpenRouterAPIKey:  strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		OpenRouterModel:   getEnvOrDefault("OPENROUTER_MODEL", "deepseek/deepseek-chat"),
		OpenRouterBaseURL: getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		AnthropicAPIKey:   strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		AnthropicModel:    getEnvOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		AnthropicBaseURL:  strings.TrimRight(getEnvOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"), "/"),
		APIKey:            strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:         strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:         strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:             strings.TrimSpace(os.Getenv("Model")),
		BaseURL:           getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:            getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:       temperature,
		MaxTokens:         maxTokens,
		Timeout:           timeout,
		IntentLLMEnabled:  intentEnabled,
		Persona:           getEnvOrDefault("BOT_PERSONA", "friendly"),
		PersonaFile:       strings.TrimSpace(os.Getenv("PERSONA_FILE")),
		DisplayTimezone:   getEnvOrDefault("DISPLAY_TIMEZONE", "UTC"),
	}, nil
}

// SessionConfig 描述会话记忆与限流配置。
type SessionConfig struct {
	MaxTurns          int
	IdleTimeout       time.Duration
	SweepInterval     time.Duration
	RateLimitEnabled  bool
	RateLimitInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	maxTurns := 10
	if override, err := parseOptionalIntEnv("SESSION_MAX_TURNS"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			maxTurns = 1
		} else {
			maxTurns = *override
		}
	}

	idle, err := parseDurationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	sweep, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	rateLimit, err := parseBoolEnv("RATE_LIMIT_ENABLED", true)
	if err != nil {
		return SessionConfig{}, err
	}

	interval, err := parseDurationEnv("RATE_LIMIT_INTERVAL", 2*time.Second)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		MaxTurns:          maxTurns,
		IdleTimeout:       idle,
		SweepInterval:     sweep,
		RateLimitEnabled:  rateLimit,
		RateLimitInterval: interval,
	}, nil
}

// LiveDataConfig 描述天气与足球数据查询配置。
type LiveDataConfig struct {
	WeatherEnabled   bool
	WeatherAPIKey    string
	GeocodingBaseURL string
	WeatherBaseURL   string
	FootballEnabled  bool
	SportsDBAPIKey   string
	SportsDBBaseURL  string
}

func loadLiveDataConfig() (LiveDataConfig, error) {
	weather, err := parseBoolEnv("WEATHER_ENABLED", true)
	if err != nil {
		return LiveDataConfig{}, err
	}

	football, err := parseBoolEnv("FOOTBALL_ENABLED", true)
	if err != nil {
		return LiveDataConfig{}, err
	}

	return LiveDataConfig{
		WeatherEnabled:   weather,
		WeatherAPIKey:    strings.TrimSpace(os.Getenv("WEATHER_API_KEY")),
		GeocodingBaseURL: strings.TrimRight(getEnvOrDefault("GEOCODING_BASE_URL", "https://geocoding-api.open-meteo.com/v1"), "/"),
		WeatherBaseURL:   strings.TrimRight(getEnvOrDefault("WEATHER_BASE_URL", "https://api.open-meteo.com/v1"), "/"),
		FootballEnabled:  football,
		SportsDBAPIKey:   getEnvOrDefault("SPORTSDB_API_KEY", "3"),
		SportsDBBaseURL:  strings.TrimRight(getEnvOrDefault("SPORTSDB_BASE_URL", "https://www.thesportsdb.com/api/v1/json"), "/"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
