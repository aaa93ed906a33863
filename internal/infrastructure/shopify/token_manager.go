package shopify

import (
	"context"
	"fmt"
	"strings"

	"shopify-auth-layer/internal/ports"

	"github.com/rs/zerolog"
)

// TokenManager wraps token encryption at rest and post-exchange validation.
type TokenManager struct {
	encryptionSvc ports.EncryptionService
	logger        zerolog.Logger
}

// NewTokenManager creates a new token manager.
func NewTokenManager(encryptionSvc ports.EncryptionService, logger zerolog.Logger) *TokenManager {
	return &TokenManager{
		encryptionSvc: encryptionSvc,
		logger:        logger,
	}
}

// EncryptToken encrypts an access token before storage.
func (tm *TokenManager) EncryptToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token cannot be empty")
	}
	return tm.encryptionSvc.Encrypt(token)
}

// DecryptToken decrypts an access token after retrieval.
func (tm *TokenManager) DecryptToken(encryptedToken string) (string, error) {
	if encryptedToken == "" {
		return "", fmt.Errorf("encrypted token cannot be empty")
	}
	return tm.encryptionSvc.Decrypt(encryptedToken)
}

// ValidateToken probes the Admin API with the freshly exchanged token.
// Shopify access tokens do not expire but can be revoked; a 401/403 here
// means the token is already dead. Network errors are treated as valid so a
// flaky probe never fails a legitimate install.
func (tm *TokenManager) ValidateToken(ctx context.Context, client ports.ShopifyClient, token, shopDomain string) (bool, error) {
	if token == "" {
		return false, fmt.Errorf("token is empty")
	}
	if shopDomain == "" {
		return false, fmt.Errorf("shop domain is required for token validation")
	}

	_, err := client.GetShop(ctx, shopDomain, token)
	if err != nil {
		// The go-shopify library wraps HTTP errors, so inspect the message.
		errStr := strings.ToLower(err.Error())
		if strings.Contains(errStr, "401") ||
			strings.Contains(errStr, "unauthorized") ||
			strings.Contains(errStr, "invalid token") ||
			strings.Contains(errStr, "forbidden") {
			tm.logger.Warn().
				Str("shop", shopDomain).
				Msg("Token validation failed: token is invalid or revoked")
			return false, nil
		}

		tm.logger.Warn().
			Err(err).
			Str("shop", shopDomain).
			Msg("Token validation encountered an error (assuming token is valid)")
		return true, nil
	}

	tm.logger.Debug().
		Str("shop", shopDomain).
		Msg("Token validation successful")
	return true, nil
}
