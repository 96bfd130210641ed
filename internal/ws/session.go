package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kmarket/odds-stream/internal/hub"
)

const (
	// intervalo do ping de transporte e janela de tolerância do heartbeat
	pingInterval     = 15 * time.Second
	heartbeatTimeout = 60 * time.Second

	writeWait     = 10 * time.Second
	maxMessageLen = 4096

	// fila de saída por assinante; estourou, o evento é descartado para
	// essa sessão e o cliente reconcilia via resume/REST
	sendQueueLen = 256
)

// Session é o tradutor entre uma conexão viva e o hub: frames de controle
// viram chamadas no hub, eventos entregues pelo hub viram frames de saída.
// O conjunto de mercados assinados é tocado só pela goroutine de leitura.
type Session struct {
	id   string
	conn *websocket.Conn
	hub  *hub.Hub
	log  *zap.Logger

	// saída serializada: só o writePump escreve na conexão
	events chan hub.Event
	frames chan []byte

	subscribed    map[int64]struct{}
	lastHeartbeat atomic.Int64 // unix millis

	userID int64

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn *websocket.Conn, h *hub.Hub, userID int64, log *zap.Logger) *Session {
	s := &Session{
		id:         uuid.NewString(),
		conn:       conn,
		hub:        h,
		events:     make(chan hub.Event, sendQueueLen),
		frames:     make(chan []byte, 16),
		subscribed: make(map[int64]struct{}),
		userID:     userID,
		done:       make(chan struct{}),
	}
	s.log = log.With(zap.String("session", s.id), zap.Int64("userId", userID))
	s.lastHeartbeat.Store(time.Now().UnixMilli())
	return s
}

// ID identifica a sessão nos logs do hub.
func (s *Session) ID() string { return s.id }

// Deliver enfileira o evento sem bloquear. Fila cheia: descarta e sinaliza
// ao hub, que contabiliza o drop.
func (s *Session) Deliver(ev hub.Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// run conduz a sessão até o fim e libera os recursos no hub.
func (s *Session) run() {
	s.hub.AddConnection()
	go s.writePump()
	s.readPump()

	s.close()
	s.hub.DropSubscriber(s)
	s.hub.RemoveConnection()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Session) touchHeartbeat() {
	s.lastHeartbeat.Store(time.Now().UnixMilli())
}

// readPump processa os frames de controle do cliente.
func (s *Session) readPump() {
	s.conn.SetReadLimit(maxMessageLen)
	s.conn.SetPongHandler(func(string) error {
		s.touchHeartbeat()
		return nil
	})
	s.conn.SetPingHandler(func(string) error {
		s.touchHeartbeat()
		s.enqueuePong()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.touchHeartbeat()

		var msg ClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("invalid client frame", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "subscribe":
			acked := make([]int64, 0, len(msg.Markets))
			for _, m := range msg.Markets {
				id := int64(m)
				s.subscribed[id] = struct{}{}
				s.hub.Subscribe(id, s)
				acked = append(acked, id)
			}
			s.sendJSON(ackMsg{Type: "ack", OK: true, Subscribed: acked})

		case "unsubscribe":
			for _, m := range msg.Markets {
				id := int64(m)
				delete(s.subscribed, id)
				s.hub.Unsubscribe(id, s)
			}
			s.sendJSON(ackMsg{Type: "ack", OK: true})

		case "resume":
			for mid, since := range msg.Offsets {
				var id MarketID
				if err := id.UnmarshalJSON([]byte(`"` + mid + `"`)); err != nil {
					continue
				}
				s.hub.Replay(int64(id), since, s)
			}
			s.sendJSON(ackMsg{Type: "ack", OK: true, Resume: true})

		case "ping":
			s.touchHeartbeat()
			s.sendJSON(pongMsg{Type: "pong", Ts: s.lastHeartbeat.Load()})

		default:
			// frame desconhecido: ignorado
		}
	}
}

// writePump é o único escritor da conexão: eventos do hub, acks e pings de
// transporte saem por aqui, e é aqui que o timeout de heartbeat encerra a
// sessão.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case ev := <-s.events:
			data, err := encodeEvent(ev)
			if err != nil {
				s.log.Warn("encode event failed", zap.Error(err))
				continue
			}
			if !s.write(websocket.TextMessage, data) {
				return
			}

		case frame := <-s.frames:
			if frame == nil {
				if !s.write(websocket.PongMessage, nil) {
					return
				}
				continue
			}
			if !s.write(websocket.TextMessage, frame) {
				return
			}

		case <-ticker.C:
			if time.Now().UnixMilli()-s.lastHeartbeat.Load() > heartbeatTimeout.Milliseconds() {
				s.log.Info("heartbeat timeout, closing session")
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "heartbeat timeout"),
					time.Now().Add(writeWait))
				s.close()
				return
			}
			if !s.write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *Session) write(messageType int, data []byte) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		s.close()
		return false
	}
	return true
}

func (s *Session) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case s.frames <- b:
	case <-s.done:
	}
}

func (s *Session) enqueuePong() {
	select {
	case s.frames <- nil: // nil = pong de transporte
	default:
	}
}

// encodeEvent garante os campos de roteamento no frame de saída: type
// (default "odds_update"), marketId, seq e ts.
func encodeEvent(ev hub.Event) ([]byte, error) {
	payload := map[string]any{}
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			payload = map[string]any{}
		}
	}
	if _, ok := payload["type"]; !ok {
		payload["type"] = "odds_update"
	}
	payload["marketId"] = ev.MarketID
	payload["seq"] = ev.Seq
	payload["ts"] = ev.Ts
	return json.Marshal(payload)
}
