package quote

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("quote not found")
	// ErrUnavailable indica que nem cache nem banco estão configurados.
	ErrUnavailable = errors.New("quote source unavailable")
)

// Cache é a camada de leitura/escrita rápida (Redis em produção).
type Cache interface {
	GetQuote(ctx context.Context, marketID int64) (Quote, bool, error)
	SetQuote(ctx context.Context, q Quote) error
	GetMarketsActive(ctx context.Context) ([]MarketSummary, bool, error)
	SetMarketsActive(ctx context.Context, list []MarketSummary) error
}

// Source é o sistema de registro (Postgres em produção): calcula a cotação
// base a partir das opções do mercado.
type Source interface {
	ComputeMoneyline(ctx context.Context, marketID int64) (*Moneyline, error)
	ListActiveMarkets(ctx context.Context) ([]MarketSummary, error)
}

// Service implementa o caminho de leitura em camadas: cache primeiro,
// fallback para o banco com write-back oportunista. Cache e banco são
// dependências opcionais; "não configurado" é um estado válido e tratado.
type Service struct {
	cache Cache
	src   Source
	log   *zap.Logger
}

func NewService(cache Cache, src Source, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cache: cache, src: src, log: log}
}

// GetQuote devolve a cotação corrente do mercado e a origem ("cache" ou
// "db"). Erro de cache nunca falha a leitura: degrada para o banco.
func (s *Service) GetQuote(ctx context.Context, marketID int64) (Quote, string, error) {
	if s.cache != nil {
		q, ok, err := s.cache.GetQuote(ctx, marketID)
		if err != nil {
			s.log.Warn("cache read failed, falling back to db", zap.Int64("marketId", marketID), zap.Error(err))
		} else if ok {
			return q, "cache", nil
		}
	}

	if s.src == nil {
		if s.cache == nil {
			return Quote{}, "", ErrUnavailable
		}
		return Quote{}, "", ErrNotFound
	}

	ml, err := s.src.ComputeMoneyline(ctx, marketID)
	if err != nil {
		return Quote{}, "", err
	}
	if ml == nil {
		return Quote{}, "", ErrNotFound
	}

	q := Quote{
		MarketID:  marketID,
		Moneyline: ml,
		Timestamp: time.Now().UnixMilli(),
	}

	// write-back oportunista; falha aqui nunca falha a leitura
	if s.cache != nil {
		if err := s.cache.SetQuote(ctx, q); err != nil {
			s.log.Warn("cache write-back failed", zap.Int64("marketId", marketID), zap.Error(err))
		}
	}

	return q, "db", nil
}

// SetQuote grava a cotação no cache (último escritor vence).
func (s *Service) SetQuote(ctx context.Context, q Quote) error {
	if s.cache == nil {
		return ErrUnavailable
	}
	return s.cache.SetQuote(ctx, q)
}

// GetActiveMarkets devolve o snapshot de mercados ativos, com o mesmo
// esquema cache -> banco -> write-back.
func (s *Service) GetActiveMarkets(ctx context.Context) ([]MarketSummary, string, error) {
	if s.cache != nil {
		list, ok, err := s.cache.GetMarketsActive(ctx)
		if err != nil {
			s.log.Warn("cache read failed, falling back to db", zap.Error(err))
		} else if ok {
			return list, "cache", nil
		}
	}

	if s.src == nil {
		if s.cache == nil {
			return nil, "", ErrUnavailable
		}
		return nil, "", ErrNotFound
	}

	list, err := s.src.ListActiveMarkets(ctx)
	if err != nil {
		return nil, "", err
	}

	if s.cache != nil {
		if err := s.cache.SetMarketsActive(ctx, list); err != nil {
			s.log.Warn("cache write-back failed", zap.Error(err))
		}
	}

	return list, "db", nil
}
