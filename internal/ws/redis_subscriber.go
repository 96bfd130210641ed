package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kmarket/odds-stream/internal/hub"
)

// StartRedisSubscriber escuta o canal Redis Pub/Sub e repassa atualizações
// de odds vindas de outros processos para o hub local.
//
// Funcionamento:
// - Recebe mensagens JSON {marketId, payload} do canal
// - Embrulha no formato de broadcast e publica no hub
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, h *hub.Hub, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg := <-ch:
				if msg == nil {
					continue
				}
				var upd BridgeUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
					log.Warn("bridge unmarshal error", zap.Error(err))
					continue
				}
				wire, err := json.Marshal(map[string]any{
					"type":    "odds_update",
					"payload": upd.Payload,
				})
				if err != nil {
					continue
				}
				h.Publish(upd.MarketID, wire)
			}
		}
	}()
}
