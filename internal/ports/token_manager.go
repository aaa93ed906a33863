package ports

import "context"

// TokenManager handles token encryption at rest and post-exchange validation.
type TokenManager interface {
	EncryptToken(token string) (string, error)
	DecryptToken(encryptedToken string) (string, error)

	// ValidateToken probes the Admin API with the token. False means the
	// token is invalid or revoked; network errors report true so a flaky
	// probe never fails an install.
	ValidateToken(ctx context.Context, client ShopifyClient, token, shopDomain string) (bool, error)
}
