package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/messenger-relay/backend/internal/config"
	"github.com/zhouzirui/messenger-relay/backend/internal/handler/chat"
	"github.com/zhouzirui/messenger-relay/backend/internal/handler/events"
	"github.com/zhouzirui/messenger-relay/backend/internal/handler/persona"
	"github.com/zhouzirui/messenger-relay/backend/internal/handler/status"
	"github.com/zhouzirui/messenger-relay/backend/internal/handler/webhook"
	middlewarePkg "github.com/zhouzirui/messenger-relay/backend/internal/middleware"
	personaModel "github.com/zhouzirui/messenger-relay/backend/internal/model/persona"
	"github.com/zhouzirui/messenger-relay/backend/internal/observability"
	chatService "github.com/zhouzirui/messenger-relay/backend/internal/service/chat"
	eventService "github.com/zhouzirui/messenger-relay/backend/internal/service/events"
)

// Dependencies are the services exposed over HTTP. Limiter, Metrics and
// Events may be nil.
type Dependencies struct {
	Config     *config.Config
	Personas   personaModel.Store
	Sessions   *chatService.Service
	Limiter    *chatService.RateLimiter
	Dispatcher webhook.Dispatcher
	Metrics    *observability.Metrics
	Events     *eventService.Hub
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RedactQuery)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	var limiter status.LimiterStats
	if deps.Limiter != nil {
		limiter = deps.Limiter
	}
	statusHandler := status.New(status.Info{
		Provider: cfg.AI.Provider,
		Model:    cfg.AI.ModelName(),
		Persona:  cfg.AI.Persona,
	}, deps.Sessions, limiter)
	statusHandler.RegisterRoutes(r)

	webhookHandler := webhook.New(webhook.Config{
		VerifyToken: cfg.Messenger.VerifyToken,
		AppSecret:   cfg.Messenger.AppSecret,
		PageID:      cfg.Messenger.PageID,
		Verbose:     cfg.Server.Verbose,
	}, deps.Dispatcher)
	webhookHandler.RegisterRoutes(r)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		persona.New(deps.Personas, cfg.AI.Persona).RegisterRoutes(api)

		// Session administration and the event feed are only exposed with a token
		if cfg.Server.AdminToken != "" {
			api.Group(func(admin chi.Router) {
				admin.Use(middlewarePkg.AdminAuth(cfg.Server.AdminToken))
				chat.New(deps.Sessions).RegisterRoutes(admin)
				if deps.Events != nil {
					events.New(deps.Events).RegisterRoutes(admin)
				}
			})
		}
	})

	return r
}
