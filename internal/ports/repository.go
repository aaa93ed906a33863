package ports

import (
	"context"

	"shopify-auth-layer/internal/domain"
)

// InstallationRepository defines the interface for installation persistence.
// Upsert is keyed by (shop_domain, access_mode): at most one row per pair.
type InstallationRepository interface {
	// Upsert writes the installation, replacing any prior token for the same
	// (shop, mode) key. The write is durable when the call returns.
	Upsert(ctx context.Context, installation *domain.Installation) (*domain.Installation, error)

	// Get retrieves the installation for a (shop, mode) pair.
	// Returns domain.ErrInstallationNotFound when no row exists.
	Get(ctx context.Context, shopDomain string, mode domain.AccessMode) (*domain.Installation, error)

	// ListByShop retrieves every installation for a shop, one per access mode,
	// ordered by access mode.
	ListByShop(ctx context.Context, shopDomain string) ([]*domain.Installation, error)
}
