package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kmarket/odds-stream/internal/auth"
	"github.com/kmarket/odds-stream/internal/httpapi"
	"github.com/kmarket/odds-stream/internal/hub"
	"github.com/kmarket/odds-stream/internal/publish"
	"github.com/kmarket/odds-stream/internal/quote"
	"github.com/kmarket/odds-stream/internal/repo"
	"github.com/kmarket/odds-stream/internal/shared/cache"
	"github.com/kmarket/odds-stream/internal/shared/config"
	"github.com/kmarket/odds-stream/internal/shared/db"
	"github.com/kmarket/odds-stream/internal/shared/logger"
	"github.com/kmarket/odds-stream/internal/shared/metrics"
	"github.com/kmarket/odds-stream/internal/ws"
)

func main() {
	// carrega config
	cfg := config.Load()

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// conecta com db Postgres (sistema de registro; obrigatório)
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	log.Info("postgres connected")

	// conecta com cache Redis (opcional: sem ele o serviço degrada pro banco)
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Warn("redis unavailable, running without cache", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		log.Info("redis connected")
	}

	// producer Kafka (opcional, best-effort)
	producer := publish.NewProducer(cfg.KafkaBrokers, cfg.TopicOddsUpdates)
	defer producer.Close()
	log.Info("kafka producer ready", zap.String("topic", cfg.TopicOddsUpdates))

	// monta as dependências do core
	readRepo := repo.New(pg)

	var quoteCache quote.Cache
	var validator auth.TokenValidator
	if redisClient != nil {
		quoteCache = quote.NewStore(redisClient)
		validator = auth.NewSessionStore(redisClient)
	}
	quotes := quote.NewService(quoteCache, readRepo, log)

	h := hub.New(cfg.HistoryCap, log)
	publisher := publish.New(quotes, h, producer, log)

	// ponte Redis Pub/Sub -> hub (atualizações vindas de outros processos)
	if redisClient != nil {
		ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, h, log)
		log.Info("redis pubsub bridge started", zap.String("channel", cfg.RedisPubSubChannel))
	}

	wsHandler := ws.NewHandler(h, validator, func(r *http.Request) bool { return true }, log)

	api := &httpapi.API{
		Quotes:    quotes,
		Hub:       h,
		Repo:      readRepo,
		Validator: validator,
		Publisher: publisher,
		WS:        wsHandler,
		Log:       log,
	}

	// sobe servidor de métricas e health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	})
	log.Info("metrics/health server started", zap.String("port", cfg.MetricsPort))

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}

	go func() {
		log.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
