package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kmarket/odds-stream/internal/publish"
	"github.com/kmarket/odds-stream/internal/quote"
)

const (
	updatesDefaultLimit = 200
	updatesMaxLimit     = 2000
)

// oddsSnapshot devolve o estado completo da cotação de um mercado.
// seq é sempre 0 aqui: o snapshot não participa do sequenciamento e serve
// de bootstrap antes do cliente migrar para updates incrementais/push.
func (a *API) oddsSnapshot(w http.ResponseWriter, r *http.Request) {
	marketID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid market id")
		return
	}

	q, _, err := a.Quotes.GetQuote(r.Context(), marketID)
	if err != nil {
		switch {
		case errors.Is(err, quote.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "snapshot not found")
		case errors.Is(err, quote.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "quote sources not configured")
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId": q.MarketID,
		"seq":      0,
		"ts":       q.Timestamp,
		"payload": map[string]any{
			"moneyline": q.Moneyline,
			"spread":    q.Spread,
			"total":     q.Total,
		},
	})
}

// oddsUpdates devolve os eventos retidos com seq > since_seq, limitados.
func (a *API) oddsUpdates(w http.ResponseWriter, r *http.Request) {
	if a.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "ws hub not initialized")
		return
	}
	marketID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid market id")
		return
	}

	sinceSeq, _ := strconv.ParseInt(r.URL.Query().Get("since_seq"), 10, 64)
	limit := updatesDefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > updatesMaxLimit {
		limit = updatesMaxLimit
	}

	list := a.Hub.GetUpdates(marketID, sinceSeq, limit)

	toSeq := sinceSeq
	payloads := make([]json.RawMessage, 0, len(list))
	for _, ev := range list {
		payloads = append(payloads, ev.Payload)
		toSeq = ev.Seq
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"marketId": marketID,
		"fromSeq":  sinceSeq,
		"toSeq":    toSeq,
		"updates":  payloads,
	})
}

// activeMarkets devolve o snapshot agregado de mercados ativos
func (a *API) activeMarkets(w http.ResponseWriter, r *http.Request) {
	list, source, err := a.Quotes.GetActiveMarkets(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, quote.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "market sources not configured")
		case errors.Is(err, quote.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "no active markets")
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": list,
		"source":  source,
	})
}

// wsStats devolve os contadores best-effort do hub
func (a *API) wsStats(w http.ResponseWriter, r *http.Request) {
	if a.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "ws hub not initialized")
		return
	}
	writeJSON(w, http.StatusOK, a.Hub.GetStats())
}

type oddsOverrideRequest struct {
	MarketID int64                   `json:"market_id"`
	Payload  publish.OverridePayload `json:"payload"`
	Reason   string                  `json:"reason,omitempty"`
}

// oddsOverride registra a auditoria do override e dispara o caminho de
// publicação. A resposta reporta applied=true independente do resultado dos
// passos best-effort (cache/broadcast/kafka): a fonte de verdade é o
// registro de auditoria, já durável quando a publicação começa.
func (a *API) oddsOverride(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if a.Validator == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "token validator not configured")
		return
	}
	sess, err := a.Validator.Validate(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token")
		return
	}

	if a.Repo == nil {
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "database not configured")
		return
	}

	var req oddsOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body")
		return
	}
	if req.MarketID <= 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "market_id required")
		return
	}
	if req.Reason != "" {
		req.Payload.Reason = req.Reason
	}

	raw, err := json.Marshal(req.Payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "encode payload failed")
		return
	}

	overrideID, err := a.Repo.CreateOddsOverride(r.Context(), sess.UserID, req.MarketID, raw)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "create odds override failed: "+err.Error())
		return
	}

	if a.Publisher != nil {
		a.Publisher.PublishOverride(r.Context(), overrideID, req.MarketID, req.Payload)
	}

	a.Log.Info("odds override applied",
		zap.Int64("overrideId", overrideID),
		zap.Int64("marketId", req.MarketID),
		zap.Int64("adminUserId", sess.UserID),
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"overrideId": overrideID,
		"applied":    true,
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
