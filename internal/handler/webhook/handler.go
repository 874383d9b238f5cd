package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/messenger-relay/backend/internal/model/apperr"
	"github.com/zhouzirui/messenger-relay/backend/internal/model/messenger"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
	maxBodyBytes    = 1 << 20
	ackBody         = "EVENT_RECEIVED"
)

// Dispatcher 异步处理规范化后的事件，不能阻塞请求
type Dispatcher interface {
	Dispatch(ev messenger.Event)
}

// Config 描述 webhook 校验参数
type Config struct {
	VerifyToken string
	AppSecret   string
	PageID      string
	Verbose     bool
}

// Handler webhook 的HTTP处理器
type Handler struct {
	cfg        Config
	dispatcher Dispatcher
}

// New 创建 webhook 处理器
func New(cfg Config, dispatcher Dispatcher) *Handler {
	return &Handler{cfg: cfg, dispatcher: dispatcher}
}

// RegisterRoutes 注册 webhook 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/webhook", h.handleVerify)
	r.Post("/webhook", h.handleEvents)
}

// handleVerify 响应订阅校验请求
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if err := h.verify(mode, token); err != nil {
		log.Printf("[webhook] verification rejected: mode=%q", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	log.Println("[webhook] verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

func (h *Handler) verify(mode, token string) error {
	if mode != "subscribe" || h.cfg.VerifyToken == "" {
		return apperr.ErrAuth
	}
	if !hmac.Equal([]byte(token), []byte(h.cfg.VerifyToken)) {
		return apperr.ErrAuth
	}
	return nil
}

// handleEvents 确认投递并将事件交给 dispatcher
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Printf("[webhook] %v", &apperr.MalformedPayloadError{Err: err})
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := h.checkSignature(r.Header.Get(signatureHeader), body); err != nil {
		log.Printf("[webhook] %v", err)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var payload messenger.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("[webhook] %v", &apperr.MalformedPayloadError{Err: err})
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if payload.Object != messenger.ObjectPage {
		log.Printf("[webhook] ignoring object %q", payload.Object)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	events := payload.Events(h.cfg.PageID)
	if h.cfg.Verbose {
		log.Printf("[webhook] %d entries, %d events", len(payload.Entry), len(events))
	}
	for _, ev := range events {
		h.dispatcher.Dispatch(ev)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, ackBody)
}

// checkSignature 在配置了 APP_SECRET 时校验 X-Hub-Signature-256
func (h *Handler) checkSignature(header string, body []byte) error {
	if h.cfg.AppSecret == "" {
		return nil
	}

	signature, ok := strings.CutPrefix(strings.TrimSpace(header), signaturePrefix)
	if !ok {
		return fmt.Errorf("%w: missing %s", apperr.ErrAuth, signatureHeader)
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrAuth, err)
	}

	if !hmac.Equal(provided, Sign(h.cfg.AppSecret, body)) {
		return errors.Join(apperr.ErrAuth, errors.New("signature mismatch"))
	}
	return nil
}

// Sign 使用 secret 计算 body 的 HMAC-SHA256
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
