package chat

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/messenger-relay/backend/internal/service/chat"
	"github.com/zhouzirui/messenger-relay/backend/pkg/utils"
)

// Handler 会话管理的HTTP处理器，仅在配置了 ADMIN_TOKEN 时注册
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建会话处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{userID}", h.handleGetSession)
	r.Delete("/sessions/{userID}", h.handleClearSession)
}

// handleGetSession 返回用户当前的会话窗口
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userID is required")
		return
	}

	session, ok := h.chatSvc.Snapshot(r.Context(), userID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, session)
}

// handleClearSession 清空用户会话，对不存在的会话同样成功
func (h *Handler) handleClearSession(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userID is required")
		return
	}

	h.chatSvc.Clear(r.Context(), userID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "cleared", "userId": userID})
}
