package quote

// Estruturas de cotação de odds por mercado. Cada sub-estrutura é opcional:
// uma cotação pode carregar só moneyline, só spread, só total ou qualquer
// combinação.

type Moneyline struct {
	Home float64 `json:"home"`
	Away float64 `json:"away"`
}

type Spread struct {
	Line float64 `json:"line"`
	Home float64 `json:"home"`
	Away float64 `json:"away"`
}

type Total struct {
	Line  float64 `json:"line"`
	Over  float64 `json:"over"`
	Under float64 `json:"under"`
}

// Quote é a cotação corrente de um mercado.
type Quote struct {
	MarketID  int64      `json:"market_id"`
	Moneyline *Moneyline `json:"moneyline,omitempty"`
	Spread    *Spread    `json:"spread,omitempty"`
	Total     *Total     `json:"total,omitempty"`
	Timestamp int64      `json:"timestamp"` // unix millis
}

// MarketSummary é o resumo de mercado usado no snapshot "markets:active".
type MarketSummary struct {
	MarketID int64  `json:"market_id"`
	Title    string `json:"title"`
	Category string `json:"category"`
}
