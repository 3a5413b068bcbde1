package authapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// stateEnvelope is what travels through LINE as the opaque state parameter.
type stateEnvelope struct {
	RedirectURI string `json:"r"`
	State       string `json:"s,omitempty"`
	TenantID    string `json:"t"`
	Nonce       string `json:"n"`
}

func encodeState(e stateEnvelope) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

var errBadState = errors.New("state is not a valid login envelope")

func decodeState(raw string) (stateEnvelope, error) {
	var e stateEnvelope
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return e, errBadState
	}
	if err := json.Unmarshal(b, &e); err != nil {
		return e, errBadState
	}
	if e.RedirectURI == "" || e.Nonce == "" {
		return e, errBadState
	}
	return e, nil
}

// NonceStore makes each login state usable once.
type NonceStore interface {
	Put(ctx context.Context, nonce string, ttl time.Duration) error
	// Consume reports whether nonce was outstanding, removing it.
	Consume(ctx context.Context, nonce string) (bool, error)
}

const noncePrefix = "lineauth:state:"

// RedisNonces shares outstanding states across replicas.
type RedisNonces struct{ rdb *redis.Client }

func NewRedisNonces(rdb *redis.Client) *RedisNonces { return &RedisNonces{rdb: rdb} }

func (r *RedisNonces) Put(ctx context.Context, nonce string, ttl time.Duration) error {
	ok, err := r.rdb.SetNX(ctx, noncePrefix+nonce, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("store state nonce: %w", err)
	}
	if !ok {
		return errors.New("state nonce collision")
	}
	return nil
}

func (r *RedisNonces) Consume(ctx context.Context, nonce string) (bool, error) {
	_, err := r.rdb.GetDel(ctx, noncePrefix+nonce).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume state nonce: %w", err)
	}
	return true, nil
}

// MemoryNonces is the single-process store used when REDIS_URL is unset.
type MemoryNonces struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryNonces() *MemoryNonces {
	return &MemoryNonces{expires: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryNonces) Put(_ context.Context, nonce string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for n, exp := range m.expires {
		if now.After(exp) {
			delete(m.expires, n)
		}
	}
	if _, ok := m.expires[nonce]; ok {
		return errors.New("state nonce collision")
	}
	m.expires[nonce] = now.Add(ttl)
	return nil
}

func (m *MemoryNonces) Consume(_ context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expires[nonce]
	delete(m.expires, nonce)
	return ok && !m.now().After(exp), nil
}
