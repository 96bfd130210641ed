package events

import "encoding/json"

// Evento publicado no tópico "odds_updates" após um override administrativo.
// O payload carrega o corpo bruto do override (moneyline/spread/total).
type OddsOverride struct {
	MarketID   int64           `json:"market_id"`
	OverrideID int64           `json:"override_id"`
	Payload    json.RawMessage `json:"payload"`
	TsUnixMs   int64           `json:"ts_unix_ms"`
	Source     string          `json:"source"` // "admin-override"
}
