package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopify-auth-layer/internal/domain"
	"shopify-auth-layer/internal/ports"

	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "oauth:state:"

// RedisStateStore implements ports.StateStore backed by Redis. The key TTL
// enforces expiry; consumption uses GETDEL so a state can only be read once.
type RedisStateStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

var _ ports.StateStore = (*RedisStateStore)(nil)

// NewRedisStateStore constructs a Redis-backed state store.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client, now: time.Now}
}

// Save stores the encoded state payload under its token with TTL.
func (s *RedisStateStore) Save(ctx context.Context, state *domain.InstallState, ttl time.Duration) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, stateKeyPrefix+state.State, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Consume atomically removes and returns the state. Already-consumed and
// TTL-evicted tokens both surface as ErrStateNotFound.
func (s *RedisStateStore) Consume(ctx context.Context, token, shopDomain string) (*domain.InstallState, error) {
	bytes, err := s.client.GetDel(ctx, stateKeyPrefix+token).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrStateNotFound
		}
		return nil, fmt.Errorf("load state: %w", err)
	}

	var state domain.InstallState
	if err := json.Unmarshal(bytes, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if state.Expired(s.now()) {
		return nil, domain.ErrStateExpired
	}
	if state.ShopDomain != shopDomain {
		return nil, domain.ErrShopMismatch
	}
	return &state, nil
}
