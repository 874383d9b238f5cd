package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/zhouzirui/messenger-relay/backend/internal/config"
	"github.com/zhouzirui/messenger-relay/backend/internal/handler"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/persona"
	"github.com/zhouzirui/messenger-relay/backend/internal/observability"
	"github.com/zhouzirui/messenger-relay/backend/internal/service/ai"
	"github.com/zhouzirui/messenger-relay/backend/internal/service/chat"
	"github.com/zhouzirui/messenger-relay/backend/internal/service/events"
	intentservice "github.com/zhouzirui/messenger-relay/backend/internal/service/intent"
	"github.com/zhouzirui/messenger-relay/backend/internal/service/livedata"
	"github.com/zhouzirui/messenger-relay/backend/internal/service/messenger"
	"github.com/zhouzirui/messenger-relay/backend/internal/service/relay"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	personaStore := loadPersonas(ctx, cfg.AI.PersonaFile)

	// Session registry, rate limiter and the background sweep
	sessions := chat.NewService(chat.Config{
		MaxTurns:    cfg.Session.MaxTurns,
		IdleTimeout: cfg.Session.IdleTimeout,
	})
	limiter := chat.NewRateLimiter(cfg.Session.RateLimitInterval)
	janitor := chat.NewJanitor(sessions, limiter, cfg.Session.SweepInterval)
	janitor.Start(ctx)

	// Initialize AI service
	var aiService *ai.Service
	var completer relay.Completer
	if cfg.AI.Enabled() {
		aiService, err = ai.NewService(ctx, personaStore, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality, users will receive the apology text")
		} else {
			completer = aiService
			log.Printf("AI service initialized: provider=%s model=%s", aiService.Provider(), aiService.ModelName())
		}
	} else {
		log.Printf("LLM_PROVIDER=%s 凭证未配置，跳过 AI 功能初始化", cfg.AI.Provider)
	}

	// Intent classifier (LLM-based with keyword fallback)
	var chatModelForIntent model.BaseChatModel
	if aiService != nil {
		chatModelForIntent = aiService.GetChatModel()
	}
	intentSvc, err := intentservice.NewService(ctx, chatModelForIntent, intentservice.Config{Enabled: cfg.AI.IntentLLMEnabled})
	if err != nil {
		log.Printf("warning: failed to initialize intent classifier, using keyword rules: %v", err)
		intentSvc, _ = intentservice.NewService(ctx, nil, intentservice.Config{})
	} else if intentSvc.Enabled() {
		log.Println("Intent classifier service enabled")
	} else if cfg.AI.IntentLLMEnabled {
		log.Println("Intent classifier requested but chat model unavailable, falling back to keyword rules")
	}

	outboundClient := &http.Client{Timeout: cfg.Messenger.HTTPTimeout}
	liveData := livedata.NewService(cfg.LiveData, outboundClient)

	if !cfg.Messenger.Enabled() {
		log.Println("warning: PAGE_ACCESS_TOKEN is not set, replies cannot be delivered")
	}
	if cfg.Messenger.VerifyToken == config.DefaultVerifyToken {
		log.Println("warning: VERIFY_TOKEN is not set, using the built-in default")
	}
	sender := messenger.NewClient(outboundClient, cfg.Messenger.GraphAPIBaseURL, cfg.Messenger.PageAccessToken)
	delivery := messenger.NewDelivery(sender, cfg.Messenger)
	typing := messenger.NewTyping(sender, cfg.Messenger.TypingInterval)

	metrics := observability.NewMetrics("relay", func() float64 {
		return float64(sessions.Stats().Sessions)
	})
	hub := events.NewHub(64)

	relaySvc := relay.New(relay.ConfigFrom(cfg), relay.Dependencies{
		Sessions:  sessions,
		Limiter:   limiter,
		Completer: completer,
		Delivery:  delivery,
		Sender:    sender,
		Typing:    typing,
		Intent:    intentSvc,
		LiveData:  liveData,
		Personas:  personaStore,
		Metrics:   metrics,
		Events:    hub,
	})

	router := handler.NewRouter(handler.Dependencies{
		Config:     cfg,
		Personas:   personaStore,
		Sessions:   sessions,
		Limiter:    limiter,
		Dispatcher: relaySvc,
		Metrics:    metrics,
		Events:     hub,
	})

	startServer(ctx, cfg.Server, router)

	// Drain in-flight events before stopping background work
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := relaySvc.Wait(drainCtx); err != nil {
		log.Printf("warning: in-flight events cancelled on shutdown: %v", err)
	}
	typing.StopAll()
	janitor.Stop()
	log.Println("Messenger relay stopped")
}

// loadPersonas returns the file-backed store when PERSONA_FILE is set and
// loads, and the built-in personas otherwise.
func loadPersonas(ctx context.Context, path string) persona.Store {
	if path == "" {
		return persona.NewMemoryStore(persona.Seed())
	}

	store, err := persona.NewFileStore(path)
	if err != nil {
		log.Printf("warning: %v, using built-in personas", err)
		return persona.NewMemoryStore(persona.Seed())
	}
	if err := store.Watch(ctx); err != nil {
		log.Printf("warning: persona hot reload disabled: %v", err)
	}
	log.Printf("loaded %d personas from %s", len(store.List()), path)
	return store
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Messenger relay listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
