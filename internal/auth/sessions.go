package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TTLs de chaves de autenticação
const (
	TTLSession = 7 * 24 * time.Hour // token bearer de longa duração
	TTLNonce   = 5 * time.Minute    // challenge de uso único
)

var ErrInvalidToken = errors.New("invalid or expired token")

// SessionData identifica o dono de um token de sessão.
type SessionData struct {
	UserID  int64  `json:"user_id"`
	Address string `json:"address"`
}

// TokenValidator é a capacidade passa/não-passa consumida pelos handlers
// WebSocket e administrativos.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (SessionData, error)
}

// SessionStore guarda sessões e nonces de desafio no Redis.
type SessionStore struct {
	R *redis.Client
}

func NewSessionStore(r *redis.Client) *SessionStore { return &SessionStore{R: r} }

func keySession(token string) string { return "session:" + token }
func keyNonce(address string) string { return "nonce:" + strings.ToLower(address) }

// CreateSession emite um token opaco novo e grava a sessão com TTL padrão.
func (s *SessionStore) CreateSession(ctx context.Context, data SessionData) (string, error) {
	token := uuid.NewString()
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	if err := s.R.Set(ctx, keySession(token), b, TTLSession).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Validate resolve o token para a sessão dona. Qualquer miss vira
// ErrInvalidToken; erro de infraestrutura propaga como está.
func (s *SessionStore) Validate(ctx context.Context, token string) (SessionData, error) {
	if token == "" {
		return SessionData{}, ErrInvalidToken
	}
	b, err := s.R.Get(ctx, keySession(token)).Bytes()
	if err == redis.Nil {
		return SessionData{}, ErrInvalidToken
	}
	if err != nil {
		return SessionData{}, err
	}
	var data SessionData
	if err := json.Unmarshal(b, &data); err != nil {
		return SessionData{}, ErrInvalidToken
	}
	return data, nil
}

// RevokeSession apaga a sessão do token (logout).
func (s *SessionStore) RevokeSession(ctx context.Context, token string) error {
	return s.R.Del(ctx, keySession(token)).Err()
}

// IssueNonce emite um challenge de uso único para o endereço, expirando bem
// antes de qualquer atraso plausível de assinatura.
func (s *SessionStore) IssueNonce(ctx context.Context, address string) (string, error) {
	nonce := uuid.NewString()
	if err := s.R.Set(ctx, keyNonce(address), nonce, TTLNonce).Err(); err != nil {
		return "", err
	}
	return nonce, nil
}

// ConsumeNonce compara e, no sucesso, apaga o nonce imediatamente: cada
// challenge serve a uma única tentativa.
func (s *SessionStore) ConsumeNonce(ctx context.Context, address, nonce string) (bool, error) {
	key := keyNonce(address)
	cur, err := s.R.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur != nonce {
		return false, nil
	}
	_ = s.R.Del(ctx, key).Err()
	return true, nil
}
