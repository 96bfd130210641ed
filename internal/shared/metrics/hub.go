package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Métricas do hub de broadcast de odds
var (
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "odds_ws_connections",
		Help: "Número de conexões WebSocket ativas.",
	})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odds_ws_messages_sent_total",
		Help: "Total de eventos entregues a assinantes.",
	})

	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odds_ws_dropped_total",
		Help: "Total de eventos descartados por assinante lento (fila cheia).",
	})

	BroadcastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "odds_broadcast_duration_seconds",
		Help:    "Duração do fan-out de um publish para todos os assinantes.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
	})
)
