package ports

import (
	"context"
	"time"

	"shopify-auth-layer/internal/domain"
)

// StateStore persists single-use OAuth install states for replay prevention.
type StateStore interface {
	// Save stores the state with the given TTL.
	Save(ctx context.Context, state *domain.InstallState, ttl time.Duration) error

	// Consume removes the state and returns it. Consumption is destructive:
	// a second call with the same token returns domain.ErrStateNotFound.
	// Returns domain.ErrStateExpired past the TTL and domain.ErrShopMismatch
	// when the state was issued for a different shop (the state is removed
	// in both cases).
	Consume(ctx context.Context, token, shopDomain string) (*domain.InstallState, error)
}
