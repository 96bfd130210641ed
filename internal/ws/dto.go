package ws

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ClientMsg representa uma mensagem de controle recebida do cliente.
// Type: subscribe | unsubscribe | resume | ping
type ClientMsg struct {
	Type    string           `json:"type"`
	Markets []MarketID       `json:"markets,omitempty"` // subscribe/unsubscribe
	Offsets map[string]int64 `json:"offsets,omitempty"` // resume: marketId -> since_seq
}

// MarketID aceita o id do mercado como número ou string JSON
// (clientes antigos mandam string).
type MarketID int64

func (m *MarketID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid market id %q", s)
		}
		*m = MarketID(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid market id: %w", err)
	}
	*m = MarketID(n)
	return nil
}

// ackMsg é a confirmação enviada para o cliente.
type ackMsg struct {
	Type       string  `json:"type"` // "ack"
	OK         bool    `json:"ok"`
	Subscribed []int64 `json:"subscribed,omitempty"`
	Resume     bool    `json:"resume,omitempty"`
}

type pongMsg struct {
	Type string `json:"type"` // "pong"
	Ts   int64  `json:"ts"`
}

// BridgeUpdate é a mensagem recebida no canal Redis Pub/Sub por processos
// externos que alimentam o hub.
type BridgeUpdate struct {
	MarketID int64           `json:"marketId"`
	Payload  json.RawMessage `json:"payload"`
}
