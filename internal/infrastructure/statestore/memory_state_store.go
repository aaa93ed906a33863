package statestore

import (
	"context"
	"sync"
	"time"

	"shopify-auth-layer/internal/domain"
	"shopify-auth-layer/internal/ports"
)

// MemoryStateStore is an in-process ports.StateStore. Suitable for a single
// instance and for tests; states are lost on restart. Expired entries are
// swept opportunistically on Save rather than by a background job.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]domain.InstallState
	now    func() time.Time
}

var _ ports.StateStore = (*MemoryStateStore)(nil)

// NewMemoryStateStore returns an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]domain.InstallState),
		now:    time.Now,
	}
}

func (s *MemoryStateStore) Save(ctx context.Context, state *domain.InstallState, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.states[state.State] = *state
	return nil
}

func (s *MemoryStateStore) Consume(ctx context.Context, token, shopDomain string) (*domain.InstallState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[token]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	delete(s.states, token)

	if state.Expired(s.now()) {
		return nil, domain.ErrStateExpired
	}
	if state.ShopDomain != shopDomain {
		return nil, domain.ErrShopMismatch
	}
	return &state, nil
}

func (s *MemoryStateStore) sweepLocked() {
	now := s.now()
	for token, state := range s.states {
		if state.Expired(now) {
			delete(s.states, token)
		}
	}
}
