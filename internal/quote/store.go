package quote

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLs por domínio de chave
const (
	TTLOddsQuote     = 60 * time.Second // cotação de odds
	TTLMarketsActive = 30 * time.Second // snapshot agregado de mercados ativos
)

// Store encapsula as operações de cache de cotações no Redis.
// Sem merge: último escritor vence, e o TTL limita a janela de staleness.
type Store struct {
	R *redis.Client
}

func NewStore(r *redis.Client) *Store { return &Store{R: r} }

func keyQuote(marketID int64) string { return "oddsq:" + strconv.FormatInt(marketID, 10) }

const keyMarketsActive = "markets:active"

// GetQuote lê a cotação do cache. Retorna (zero, false, nil) em miss.
func (s *Store) GetQuote(ctx context.Context, marketID int64) (Quote, bool, error) {
	b, err := s.R.Get(ctx, keyQuote(marketID)).Bytes()
	if err == redis.Nil {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, err
	}
	var q Quote
	if err := json.Unmarshal(b, &q); err != nil {
		return Quote{}, false, err
	}
	return q, true, nil
}

// SetQuote sobrescreve incondicionalmente a cotação do mercado com o TTL
// padrão de odds.
func (s *Store) SetQuote(ctx context.Context, q Quote) error {
	b, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, keyQuote(q.MarketID), b, TTLOddsQuote).Err()
}

// GetMarketsActive lê o snapshot agregado de mercados ativos.
func (s *Store) GetMarketsActive(ctx context.Context) ([]MarketSummary, bool, error) {
	b, err := s.R.Get(ctx, keyMarketsActive).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var list []MarketSummary
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, false, err
	}
	return list, true, nil
}

func (s *Store) SetMarketsActive(ctx context.Context, list []MarketSummary) error {
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, keyMarketsActive, b, TTLMarketsActive).Err()
}
