package application

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"shopify-auth-layer/internal/domain"
	"shopify-auth-layer/internal/ports"

	"github.com/rs/zerolog"
)

// Config holds the settings the auth flow needs, passed explicitly at
// construction so the service stays testable in isolation.
type Config struct {
	Scopes         []string
	RedirectURI    string
	PostInstallURL string
	StateTTL       time.Duration
	ValidateTokens bool
}

// AuthService orchestrates the OAuth install and callback flow:
// verify signature, consume state, exchange code, persist token.
// It depends on ports (interfaces), not concrete implementations.
type AuthService struct {
	repo            ports.InstallationRepository
	states          ports.StateStore
	client          ports.ShopifyClient
	verifier        ports.CallbackVerifier
	sessionVerifier ports.SessionTokenVerifier
	tokenManager    ports.TokenManager
	config          Config
	logger          zerolog.Logger
}

// NewAuthService creates the install/callback orchestrator.
func NewAuthService(
	repo ports.InstallationRepository,
	states ports.StateStore,
	client ports.ShopifyClient,
	verifier ports.CallbackVerifier,
	sessionVerifier ports.SessionTokenVerifier,
	tokenManager ports.TokenManager,
	config Config,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		repo:            repo,
		states:          states,
		client:          client,
		verifier:        verifier,
		sessionVerifier: sessionVerifier,
		tokenManager:    tokenManager,
		config:          config,
		logger:          logger,
	}
}

// BuildInstallURL issues a fresh single-use state for the (shop, mode) pair
// and returns the authorization URL the merchant is redirected to.
func (s *AuthService) BuildInstallURL(ctx context.Context, shop, accessMode string) (string, error) {
	if !domain.IsValidShopDomain(shop) {
		return "", fmt.Errorf("invalid shop domain %q: %w", shop, domain.ErrInvalidRequest)
	}
	mode, err := domain.ParseAccessMode(accessMode)
	if err != nil {
		return "", err
	}

	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	now := time.Now().UTC()
	installState := &domain.InstallState{
		State:      state,
		ShopDomain: shop,
		AccessMode: mode,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.config.StateTTL),
	}
	if err := s.states.Save(ctx, installState, s.config.StateTTL); err != nil {
		return "", fmt.Errorf("save install state: %w", err)
	}

	authURL := s.client.AuthorizeURL(shop, s.config.Scopes, s.config.RedirectURI, state, mode)
	s.logger.Info().
		Str("shop", shop).
		Str("access_mode", string(mode)).
		Msg("Install URL built")
	return authURL, nil
}

// HandleCallback runs the callback pipeline for a single redirect. Signature
// and state are both checked before the code is exchanged; nothing is
// persisted on any error path.
func (s *AuthService) HandleCallback(ctx context.Context, params url.Values) (*domain.Installation, error) {
	if err := s.verifier.Verify(params); err != nil {
		s.logger.Warn().Err(err).Str("shop", params.Get("shop")).Msg("Callback rejected")
		return nil, err
	}

	shop := params.Get("shop")
	if !domain.IsValidShopDomain(shop) {
		return nil, fmt.Errorf("invalid shop domain %q: %w", shop, domain.ErrInvalidRequest)
	}

	state, err := s.states.Consume(ctx, params.Get("state"), shop)
	if err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Msg("State consumption failed")
		return nil, err
	}

	grant, err := s.client.ExchangeCode(ctx, shop, params.Get("code"))
	if err != nil {
		return nil, err
	}

	// Shopify lets the merchant strip scopes during authorization, so check
	// that everything we asked for was actually granted.
	if missing := missingScopes(s.config.Scopes, grant.Scopes); len(missing) > 0 {
		s.logger.Warn().
			Str("shop", shop).
			Strs("missing_scopes", missing).
			Msg("Merchant did not grant required scopes")
		return nil, fmt.Errorf("scopes not granted: %v: %w", missing, domain.ErrScopeNotGranted)
	}

	return s.persistGrant(ctx, shop, state.AccessMode, grant)
}

// ExchangeSessionToken handles the managed-installation flow: a verified
// session token JWT is traded for an offline access token. No state or HMAC
// is involved; the JWT signature is the authenticity proof.
func (s *AuthService) ExchangeSessionToken(ctx context.Context, shop, idToken string) (*domain.Installation, error) {
	if !domain.IsValidShopDomain(shop) {
		return nil, fmt.Errorf("invalid shop domain %q: %w", shop, domain.ErrInvalidRequest)
	}
	if idToken == "" {
		return nil, fmt.Errorf("id_token is required: %w", domain.ErrInvalidRequest)
	}
	if err := s.sessionVerifier.VerifySessionToken(idToken, shop); err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Msg("Session token rejected")
		return nil, err
	}

	grant, err := s.client.ExchangeSessionToken(ctx, shop, idToken)
	if err != nil {
		return nil, err
	}
	return s.persistGrant(ctx, shop, domain.AccessModeOffline, grant)
}

// GetShopInstallations returns the stored records for a shop, one per access
// mode, with tokens decrypted.
func (s *AuthService) GetShopInstallations(ctx context.Context, shop string) ([]*domain.Installation, error) {
	if !domain.IsValidShopDomain(shop) {
		return nil, fmt.Errorf("invalid shop domain %q: %w", shop, domain.ErrInvalidRequest)
	}

	installations, err := s.repo.ListByShop(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("list installations: %v: %w", err, domain.ErrPersistence)
	}
	if len(installations) == 0 {
		return nil, domain.ErrInstallationNotFound
	}

	for _, installation := range installations {
		token, err := s.tokenManager.DecryptToken(installation.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("decrypt stored token: %v: %w", err, domain.ErrPersistence)
		}
		installation.AccessToken = token
	}
	return installations, nil
}

// persistGrant validates (optionally), encrypts and upserts the exchanged
// token. The upsert is durable before the caller can respond.
func (s *AuthService) persistGrant(ctx context.Context, shop string, mode domain.AccessMode, grant *domain.TokenGrant) (*domain.Installation, error) {
	if s.config.ValidateTokens {
		ok, err := s.tokenManager.ValidateToken(ctx, s.client, grant.AccessToken, shop)
		if err == nil && !ok {
			return nil, fmt.Errorf("exchanged token failed validation: %w", domain.ErrExchangeFailed)
		}
	}

	encrypted, err := s.tokenManager.EncryptToken(grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt token: %v: %w", err, domain.ErrPersistence)
	}

	installation, err := s.repo.Upsert(ctx, &domain.Installation{
		ShopDomain:       shop,
		AccessMode:       mode,
		AccessToken:      encrypted,
		Scopes:           grant.Scopes,
		AssociatedUserID: grant.AssociatedUserID,
		IsActive:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("persist installation: %v: %w", err, domain.ErrPersistence)
	}

	s.logger.Info().
		Str("shop", shop).
		Str("access_mode", string(mode)).
		Str("token", domain.MaskToken(grant.AccessToken)).
		Strs("scopes", grant.Scopes).
		Msg("Installation persisted")

	result := *installation
	result.AccessToken = grant.AccessToken
	return &result, nil
}

// generateState returns a 192-bit random value, URL-safe base64 encoded.
func generateState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func missingScopes(required, granted []string) []string {
	has := make(map[string]struct{}, len(granted))
	for _, scope := range granted {
		has[scope] = struct{}{}
	}
	var missing []string
	for _, scope := range required {
		if _, ok := has[scope]; !ok {
			missing = append(missing, scope)
		}
	}
	return missing
}
