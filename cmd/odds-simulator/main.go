package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kmarket/odds-stream/internal/quote"
	"github.com/kmarket/odds-stream/internal/shared/cache"
	"github.com/kmarket/odds-stream/internal/shared/config"
	"github.com/kmarket/odds-stream/internal/shared/logger"
	"github.com/kmarket/odds-stream/internal/ws"
)

// Catálogo fixo de mercados simulados para geração de odds
var marketCatalog = []int64{42, 43, 44, 45}

// gera número aleatório entre min e max
func rnd(min, max float64) float64 {
	return (rand.Float64() * (max - min)) + min
}

// Publica odds sintéticas no canal Redis Pub/Sub consumido pelo
// odds-stream, útil para exercitar o caminho ao vivo em desenvolvimento.
func main() {
	cfg := config.Load()
	log, err := logger.New("odds-simulator", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()

	log.Info("odds simulator running",
		zap.String("channel", cfg.RedisPubSubChannel),
		zap.Int("markets", len(marketCatalog)),
	)

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			for _, marketID := range marketCatalog {
				payload, err := json.Marshal(map[string]any{
					"moneyline": quote.Moneyline{
						Home: rnd(1.40, 3.50),
						Away: rnd(2.00, 5.00),
					},
				})
				if err != nil {
					continue
				}
				upd := ws.BridgeUpdate{MarketID: marketID, Payload: payload}
				b, err := json.Marshal(upd)
				if err != nil {
					continue
				}
				if err := redisClient.Publish(ctx, cfg.RedisPubSubChannel, b).Err(); err != nil {
					log.Warn("publish failed", zap.Int64("marketId", marketID), zap.Error(err))
				}
			}
		}
	}
}
