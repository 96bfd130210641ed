package hub

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kmarket/odds-stream/internal/shared/metrics"
)

// Event é uma atualização de odds já sequenciada para um mercado.
// Imutável depois de criado; assinantes recebem cópias.
type Event struct {
	MarketID int64           `json:"marketId"`
	Seq      int64           `json:"seq"`
	Ts       int64           `json:"ts"` // unix millis
	Payload  json.RawMessage `json:"payload"`
}

// Subscriber é o alvo de entrega de eventos de um tópico.
// Deliver não pode bloquear: retorna false quando a fila do assinante
// está cheia e o evento foi descartado para ele.
type Subscriber interface {
	ID() string
	Deliver(ev Event) bool
}

// Stats é um snapshot de observabilidade do hub.
type Stats struct {
	Connections         int64  `json:"connections"`
	Topics              int    `json:"topics"`
	MessagesSent        int64  `json:"messages_sent"`
	BroadcastLatencyP95 *int64 `json:"broadcast_latency_ms_p95"`
}

// topic concentra o estado exclusivo de um mercado: contador de sequência,
// histórico limitado (FIFO) e conjunto de assinantes. Tudo protegido pelo
// mutex do próprio tópico, então mercados diferentes andam em paralelo.
type topic struct {
	mu   sync.Mutex
	seq  int64
	hist *ring
	subs map[Subscriber]struct{}
}

// Hub é a única autoridade sobre sequenciamento, histórico e fan-out por
// mercado. Toda mutação de um tópico passa pelo lock daquele tópico.
type Hub struct {
	mu     sync.RWMutex
	topics map[int64]*topic

	historyCap   int
	connections  atomic.Int64
	messagesSent atomic.Int64

	// janela de amostras de latência de broadcast (millis), p/ GetStats
	latMu      sync.Mutex
	latSamples []int64

	log *zap.Logger
}

const defaultHistoryCap = 1024

func New(historyCap int, log *zap.Logger) *Hub {
	if historyCap <= 0 {
		historyCap = defaultHistoryCap
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		topics:     make(map[int64]*topic),
		historyCap: historyCap,
		log:        log,
	}
}

// getTopic retorna o tópico do mercado, criando-o de forma preguiçosa.
func (h *Hub) getTopic(marketID int64) *topic {
	h.mu.RLock()
	t, ok := h.topics[marketID]
	h.mu.RUnlock()
	if ok {
		return t
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok = h.topics[marketID]; ok {
		return t
	}
	t = &topic{
		hist: newRing(h.historyCap),
		subs: make(map[Subscriber]struct{}),
	}
	h.topics[marketID] = t
	return t
}

// Subscribe registra o assinante no mercado. Idempotente; não entrega nada
// de imediato (o cliente pede snapshot/resume separadamente).
func (h *Hub) Subscribe(marketID int64, sub Subscriber) {
	t := h.getTopic(marketID)
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
}

// Unsubscribe remove o assinante do mercado. Remoção ativa: não dependemos
// de falha de entrega para limpar o conjunto.
func (h *Hub) Unsubscribe(marketID int64, sub Subscriber) {
	h.mu.RLock()
	t, ok := h.topics[marketID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.subs, sub)
	t.mu.Unlock()
}

// DropSubscriber remove o assinante de todos os tópicos. Chamado no
// encerramento da conexão para evitar handles órfãos sob churn.
func (h *Hub) DropSubscriber(sub Subscriber) {
	h.mu.RLock()
	ts := make([]*topic, 0, len(h.topics))
	for _, t := range h.topics {
		ts = append(ts, t)
	}
	h.mu.RUnlock()

	for _, t := range ts {
		t.mu.Lock()
		delete(t.subs, sub)
		t.mu.Unlock()
	}
}

// Publish atribui a próxima sequência do mercado, grava no histórico
// (descartando o mais antigo quando cheio) e entrega a todos os assinantes
// correntes. Entrega é fire-and-forget por assinante: fila cheia de um não
// atrasa nem derruba os demais, e nunca falha o publish.
func (h *Hub) Publish(marketID int64, payload json.RawMessage) Event {
	t := h.getTopic(marketID)
	start := time.Now()

	t.mu.Lock()
	t.seq++
	ev := Event{
		MarketID: marketID,
		Seq:      t.seq,
		Ts:       time.Now().UnixMilli(),
		Payload:  payload,
	}
	t.hist.push(ev)

	var sent, dropped int64
	for sub := range t.subs {
		if sub.Deliver(ev) {
			sent++
		} else {
			dropped++
			h.log.Debug("subscriber queue full, event dropped",
				zap.String("subscriber", sub.ID()),
				zap.Int64("marketId", marketID),
				zap.Int64("seq", ev.Seq),
			)
		}
	}
	t.mu.Unlock()

	h.messagesSent.Add(sent)
	metrics.MessagesSent.Add(float64(sent))
	if dropped > 0 {
		metrics.MessagesDropped.Add(float64(dropped))
	}

	elapsed := time.Since(start)
	metrics.BroadcastDuration.Observe(elapsed.Seconds())
	h.recordLatency(elapsed.Milliseconds())

	return ev
}

// Replay entrega ao assinante, em ordem, os eventos retidos com seq maior
// que sinceSeq. Se o histórico não cobre a faixa, nada é entregue e cabe ao
// cliente re-sincronizar via snapshot REST.
func (h *Hub) Replay(marketID int64, sinceSeq int64, sub Subscriber) {
	h.mu.RLock()
	t, ok := h.topics[marketID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	t.mu.Lock()
	evs := t.hist.after(sinceSeq, t.hist.len())
	t.mu.Unlock()

	var sent int64
	for _, ev := range evs {
		if sub.Deliver(ev) {
			sent++
		}
	}
	h.messagesSent.Add(sent)
	metrics.MessagesSent.Add(float64(sent))
}

// GetUpdates é a variante de leitura pura do Replay: devolve os eventos
// retidos com seq > sinceSeq, em ordem crescente, limitados a limit.
func (h *Hub) GetUpdates(marketID int64, sinceSeq int64, limit int) []Event {
	h.mu.RLock()
	t, ok := h.topics[marketID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hist.after(sinceSeq, limit)
}

// AddConnection/RemoveConnection mantêm o contador de sessões vivas.
func (h *Hub) AddConnection() {
	h.connections.Add(1)
	metrics.WSConnections.Inc()
}

func (h *Hub) RemoveConnection() {
	h.connections.Add(-1)
	metrics.WSConnections.Dec()
}

// GetStats devolve contadores best-effort do hub.
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	topics := len(h.topics)
	h.mu.RUnlock()

	return Stats{
		Connections:         h.connections.Load(),
		Topics:              topics,
		MessagesSent:        h.messagesSent.Load(),
		BroadcastLatencyP95: h.latencyP95(),
	}
}

const latencyWindow = 256

func (h *Hub) recordLatency(ms int64) {
	h.latMu.Lock()
	if len(h.latSamples) >= latencyWindow {
		copy(h.latSamples, h.latSamples[1:])
		h.latSamples = h.latSamples[:latencyWindow-1]
	}
	h.latSamples = append(h.latSamples, ms)
	h.latMu.Unlock()
}

func (h *Hub) latencyP95() *int64 {
	h.latMu.Lock()
	defer h.latMu.Unlock()
	if len(h.latSamples) == 0 {
		return nil
	}
	sorted := make([]int64, len(h.latSamples))
	copy(sorted, h.latSamples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (len(sorted)*95 + 99) / 100
	if idx > 0 {
		idx--
	}
	p := sorted[idx]
	return &p
}
