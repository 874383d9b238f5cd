package config

import (
	"strings"
	"testing"
	"time"
)

var managedKeys = []string{
	"PORT", "ADMIN_TOKEN", "PROCESSING_TIMEOUT", "VERBOSE_LOGGING",
	"PAGE_ACCESS_TOKEN", "VERIFY_TOKEN", "APP_SECRET", "PAGE_ID", "GRAPH_API_BASE_URL",
	"MESSAGE_MAX_LENGTH", "MESSAGE_CHUNK_DELAY", "TYPING_ENABLED", "TYPING_INTERVAL",
	"QUICK_REPLIES_ENABLED", "APOLOGY_TEXT", "HTTP_TIMEOUT",
	"LLM_PROVIDER", "GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL",
	"OPENROUTER_API_KEY", "OPENROUTER_MODEL", "OPENROUTER_BASE_URL",
	"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "ANTHROPIC_BASE_URL",
	"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model", "ARK_BASE_URL", "ARK_REGION",
	"LLM_TEMPERATURE", "LLM_MAX_TOKENS", "LLM_TIMEOUT", "INTENT_LLM_ENABLED",
	"BOT_PERSONA", "PERSONA_FILE", "DISPLAY_TIMEZONE",
	"SESSION_MAX_TURNS", "SESSION_IDLE_TIMEOUT", "SESSION_SWEEP_INTERVAL",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_INTERVAL",
	"WEATHER_ENABLED", "WEATHER_API_KEY", "GEOCODING_BASE_URL", "WEATHER_BASE_URL",
	"FOOTBALL_ENABLED", "SPORTSDB_API_KEY", "SPORTSDB_BASE_URL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Messenger.VerifyToken != DefaultVerifyToken {
		t.Fatalf("expected fallback verify token, got %q", cfg.Messenger.VerifyToken)
	}
	if cfg.Messenger.MaxMessageLength != 2000 {
		t.Fatalf("unexpected max length: %d", cfg.Messenger.MaxMessageLength)
	}
	if cfg.Messenger.Enabled() {
		t.Fatal("messenger should be disabled without page token")
	}
	if cfg.AI.Provider != ProviderGemini || cfg.AI.Enabled() {
		t.Fatalf("unexpected ai config: provider=%s enabled=%v", cfg.AI.Provider, cfg.AI.Enabled())
	}
	if cfg.Session.MaxTurns != 10 || cfg.Session.IdleTimeout != 30*time.Minute {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if !cfg.Session.RateLimitEnabled || cfg.Session.RateLimitInterval != 2*time.Second {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.Session)
	}
	if cfg.LiveData.SportsDBAPIKey != "3" {
		t.Fatalf("unexpected sportsdb key: %q", cfg.LiveData.SportsDBAPIKey)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("LLM_PROVIDER", "OpenRouter")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("OPENROUTER_MODEL", "meta-llama/llama-3.1-8b-instruct")
	t.Setenv("SESSION_MAX_TURNS", "6")
	t.Setenv("SESSION_IDLE_TIMEOUT", "10m")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("MESSAGE_CHUNK_DELAY", "250ms")
	t.Setenv("LLM_TEMPERATURE", "0.2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if !cfg.AI.Enabled() || cfg.AI.ModelName() != "meta-llama/llama-3.1-8b-instruct" {
		t.Fatalf("unexpected ai config: %+v", cfg.AI)
	}
	if cfg.AI.Temperature != 0.2 {
		t.Fatalf("unexpected temperature: %v", cfg.AI.Temperature)
	}
	if cfg.Session.MaxTurns != 6 || cfg.Session.IdleTimeout != 10*time.Minute {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Session.RateLimitEnabled {
		t.Fatal("rate limit should be disabled")
	}
	if cfg.Messenger.ChunkDelay != 250*time.Millisecond {
		t.Fatalf("unexpected chunk delay: %v", cfg.Messenger.ChunkDelay)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SESSION_IDLE_TIMEOUT": "soon",
		"RATE_LIMIT_ENABLED":   "maybe",
		"LLM_MAX_TOKENS":       "many",
		"LLM_PROVIDER":         "mystery",
		"PORT":                 "80 80",
		"MESSAGE_MAX_LENGTH":   "0",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
			if key != "PORT" && !strings.Contains(err.Error(), key) {
				t.Fatalf("error should name %s: %v", key, err)
			}
		})
	}
}
