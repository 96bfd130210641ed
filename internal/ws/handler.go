package ws

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kmarket/odds-stream/internal/auth"
	"github.com/kmarket/odds-stream/internal/hub"
)

// Handler faz o upgrade do endpoint de odds ao vivo. Exige um token bearer
// válido na query string antes da sessão chegar a Open.
type Handler struct {
	hub       *hub.Hub
	validator auth.TokenValidator
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

func NewHandler(h *hub.Hub, validator auth.TokenValidator, allowOrigin func(r *http.Request) bool, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		hub:       h,
		validator: validator,
		upgrader:  websocket.Upgrader{CheckOrigin: allowOrigin},
		log:       log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "ws hub not initialized")
		return
	}
	if h.validator == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "token validator not configured")
		return
	}

	token := r.URL.Query().Get("token")
	sess, err := h.validator.Validate(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	s := newSession(conn, h.hub, sess.UserID, h.log)
	go s.run()
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}
