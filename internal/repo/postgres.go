package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/kmarket/odds-stream/internal/quote"
)

// Postgres expõe as leituras do sistema de registro usadas pelo caminho de
// cotações e a escrita de auditoria de overrides administrativos.
type Postgres struct {
	DB *sql.DB
}

func New(db *sql.DB) *Postgres { return &Postgres{DB: db} }

// bps inteiro (ex: 185) -> odd decimal (1.85)
func bpsToOdds(bps int32) float64 { return float64(bps) / 100.0 }

// ComputeMoneyline calcula a moneyline base do mercado a partir das opções
// cadastradas (code=1 home, code=2 away, ou pelo label). Retorna nil quando
// o mercado não existe ou não tem as duas pontas.
func (r *Postgres) ComputeMoneyline(ctx context.Context, marketID int64) (*quote.Moneyline, error) {
	const q = `
		SELECT code, label, initial_odds
		FROM market_options
		WHERE market_id = $1 AND code IN (1,2)
		ORDER BY code ASC;
	`
	rows, err := r.DB.QueryContext(ctx, q, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var homeBps, awayBps *int32
	for rows.Next() {
		var (
			code  int16
			label string
			init  sql.NullInt32
		)
		if err := rows.Scan(&code, &label, &init); err != nil {
			return nil, err
		}
		if !init.Valid {
			continue
		}
		v := init.Int32
		switch {
		case code == 1 || strings.EqualFold(label, "home"):
			homeBps = &v
		case code == 2 || strings.EqualFold(label, "away"):
			awayBps = &v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if homeBps == nil || awayBps == nil {
		return nil, nil
	}
	return &quote.Moneyline{Home: bpsToOdds(*homeBps), Away: bpsToOdds(*awayBps)}, nil
}

// ListActiveMarkets lista os mercados ativos para o snapshot agregado.
func (r *Postgres) ListActiveMarkets(ctx context.Context) ([]quote.MarketSummary, error) {
	const q = `
		SELECT id, title, category
		FROM markets
		WHERE status = 'active'
		ORDER BY id;
	`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []quote.MarketSummary
	for rows.Next() {
		var m quote.MarketSummary
		if err := rows.Scan(&m.MarketID, &m.Title, &m.Category); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateOddsOverride grava o registro de auditoria do override e devolve o
// id criado. Esse insert acontece antes de qualquer efeito em cache/broadcast.
func (r *Postgres) CreateOddsOverride(ctx context.Context, adminUserID int64, marketID int64, payload json.RawMessage) (int64, error) {
	const q = `
		INSERT INTO odds_overrides (admin_user_id, market_id, payload, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id;
	`
	var id int64
	err := r.DB.QueryRowContext(ctx, q, adminUserID, marketID, []byte(payload)).Scan(&id)
	return id, err
}
