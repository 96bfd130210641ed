package publish

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kmarket/odds-stream/internal/hub"
	"github.com/kmarket/odds-stream/internal/quote"
	"github.com/kmarket/odds-stream/pkg/contracts/events"
)

// OverridePayload é o corpo de um override administrativo de odds.
// Cada seção é opcional.
type OverridePayload struct {
	Moneyline *quote.Moneyline `json:"moneyline,omitempty"`
	Spread    *quote.Spread    `json:"spread,omitempty"`
	Total     *quote.Total     `json:"total,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// QuoteWriter é o que o publisher precisa do cache de cotações.
type QuoteWriter interface {
	SetQuote(ctx context.Context, q quote.Quote) error
}

// EventProducer é o emissor opcional de eventos para o Kafka.
type EventProducer interface {
	PublishOddsOverride(ctx context.Context, e events.OddsOverride) error
}

// Publisher é o único caminho que muda a cotação corrente de um mercado.
// É invocado depois que a mutação administrativa já foi registrada de forma
// durável (auditoria); daqui pra frente tudo é best-effort e independente:
// falha no cache não impede o broadcast e vice-versa, e nenhuma falha aqui
// reverte o registro de auditoria.
type Publisher struct {
	quotes   QuoteWriter
	hub      *hub.Hub
	producer EventProducer
	log      *zap.Logger
}

func New(quotes QuoteWriter, h *hub.Hub, producer EventProducer, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{quotes: quotes, hub: h, producer: producer, log: log}
}

// PublishOverride aplica o override: write-through no cache, broadcast no
// hub e emissão do evento Kafka, cada passo best-effort.
func (p *Publisher) PublishOverride(ctx context.Context, overrideID int64, marketID int64, payload OverridePayload) {
	now := time.Now().UnixMilli()

	// 1) cache (best-effort)
	if p.quotes != nil {
		q := quote.Quote{
			MarketID:  marketID,
			Moneyline: payload.Moneyline,
			Spread:    payload.Spread,
			Total:     payload.Total,
			Timestamp: now,
		}
		if err := p.quotes.SetQuote(ctx, q); err != nil {
			p.log.Warn("set quote failed", zap.Int64("marketId", marketID), zap.Error(err))
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		p.log.Warn("marshal override payload failed", zap.Int64("marketId", marketID), zap.Error(err))
		return
	}

	// 2) broadcast ao vivo (best-effort)
	if p.hub != nil {
		wire, err := json.Marshal(map[string]any{
			"type":    "odds_update",
			"payload": json.RawMessage(raw),
		})
		if err == nil {
			p.hub.Publish(marketID, wire)
		}
	}

	// 3) evento Kafka (best-effort)
	if p.producer != nil {
		ev := events.OddsOverride{
			MarketID:   marketID,
			OverrideID: overrideID,
			Payload:    raw,
			TsUnixMs:   now,
			Source:     "admin-override",
		}
		if err := p.producer.PublishOddsOverride(ctx, ev); err != nil {
			p.log.Warn("kafka publish failed", zap.Int64("marketId", marketID), zap.Error(err))
		}
	}
}
