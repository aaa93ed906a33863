package ports

import (
	"context"

	"shopify-auth-layer/internal/domain"

	shopify "github.com/bold-commerce/go-shopify/v4"
)

// ShopifyClient defines the outbound Shopify operations the auth flow needs.
type ShopifyClient interface {
	// AuthorizeURL builds the merchant-facing OAuth authorization URL.
	// Online mode appends grant_options[]=per-user.
	AuthorizeURL(shop string, scopes []string, redirectURI, state string, mode domain.AccessMode) string

	// ExchangeCode trades an authorization code for an access token at the
	// shop's token endpoint. Single attempt, bounded timeout; errors map to
	// domain.ErrExchangeUnavailable, domain.ErrInvalidGrant or
	// domain.ErrExchangeFailed.
	ExchangeCode(ctx context.Context, shop, code string) (*domain.TokenGrant, error)

	// ExchangeSessionToken trades a verified session token for an offline
	// access token using the token-exchange grant.
	ExchangeSessionToken(ctx context.Context, shop, idToken string) (*domain.TokenGrant, error)

	// GetShop fetches the shop resource through the Admin API. Used as a
	// lightweight token validity probe after exchange.
	GetShop(ctx context.Context, shop, accessToken string) (*shopify.Shop, error)
}
