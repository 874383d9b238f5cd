package status

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/messenger-relay/backend/internal/model/chat"
	"github.com/zhouzirui/messenger-relay/backend/pkg/utils"
)

// SessionStats 提供会话数量统计
type SessionStats interface {
	Stats() chat.Stats
}

// LimiterStats 提供当前处于限流记录中的用户数
type LimiterStats interface {
	Len() int
}

// Info 描述当前运行的 relay
type Info struct {
	Provider string
	Model    string
	Persona  string
}

// Response 是 /stats 的响应体
type Response struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	UptimeSeconds    int64  `json:"uptimeSeconds"`
	Sessions         int    `json:"sessions"`
	Turns            int    `json:"turns"`
	RateLimitedUsers int    `json:"rateLimitedUsers"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	Persona          string `json:"persona"`
}

// Handler 状态与统计的HTTP处理器
type Handler struct {
	info     Info
	sessions SessionStats
	limiter  LimiterStats
	started  time.Time
	now      func() time.Time
}

// New 创建状态处理器，limiter 可以为 nil
func New(info Info, sessions SessionStats, limiter LimiterStats) *Handler {
	return &Handler{
		info:     info,
		sessions: sessions,
		limiter:  limiter,
		started:  time.Now(),
		now:      time.Now,
	}
}

// RegisterRoutes 注册状态路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleStatus)
	r.Get("/stats", h.handleStats)
}

func (h *Handler) snapshot() Response {
	uptime := h.now().Sub(h.started).Truncate(time.Second)
	stats := h.sessions.Stats()
	resp := Response{
		Status:        "ok",
		Uptime:        uptime.String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Sessions:      stats.Sessions,
		Turns:         stats.Turns,
		Provider:      h.info.Provider,
		Model:         h.info.Model,
		Persona:       h.info.Persona,
	}
	if h.limiter != nil {
		resp.RateLimitedUsers = h.limiter.Len()
	}
	return resp
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := h.snapshot()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Messenger relay is running\nuptime: %s\nprovider: %s (%s)\npersona: %s\nactive sessions: %d\n",
		resp.Uptime, resp.Provider, resp.Model, resp.Persona, resp.Sessions)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.snapshot())
}
