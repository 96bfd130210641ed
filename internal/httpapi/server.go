package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kmarket/odds-stream/internal/auth"
	"github.com/kmarket/odds-stream/internal/hub"
	"github.com/kmarket/odds-stream/internal/publish"
	"github.com/kmarket/odds-stream/internal/quote"
)

// OverrideRepo é a escrita de auditoria que o endpoint administrativo
// precisa do sistema de registro.
type OverrideRepo interface {
	CreateOddsOverride(ctx context.Context, adminUserID int64, marketID int64, payload json.RawMessage) (int64, error)
}

// API expõe os endpoints REST de odds e o endpoint WebSocket.
// Dependências nil são estados "não configurado" válidos: os handlers
// degradam com 503 em vez de quebrar.
type API struct {
	Quotes    *quote.Service
	Hub       *hub.Hub
	Repo      OverrideRepo
	Validator auth.TokenValidator
	Publisher *publish.Publisher
	WS        http.Handler
	Log       *zap.Logger
}

// Router retorna o roteador HTTP com os endpoints do serviço.
func (a *API) Router() http.Handler {
	if a.Log == nil {
		a.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Get("/markets/active", a.activeMarkets)
	r.Get("/markets/{id}/odds/snapshot", a.oddsSnapshot)
	r.Get("/markets/{id}/odds/updates", a.oddsUpdates)
	r.Post("/admin/odds/override", a.oddsOverride)
	r.Get("/ws/stats", a.wsStats)
	if a.WS != nil {
		r.Get("/ws/odds", a.WS.ServeHTTP)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}
