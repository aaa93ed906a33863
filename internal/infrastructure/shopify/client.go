package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shopify-auth-layer/internal/domain"
	"shopify-auth-layer/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

const (
	grantTypeTokenExchange    = "urn:ietf:params:oauth:grant-type:token-exchange"
	subjectTokenTypeIDToken   = "urn:ietf:params:oauth:token-type:id_token"
	requestedTokenTypeOffline = "urn:shopify:params:oauth:token-type:offline-access-token"
	responseBodyReadLimit     = 1 << 20
)

type client struct {
	apiKey     string
	apiSecret  string
	apiVersion string
	app        goshopify.App
	httpClient *http.Client
	scheme     string
	logger     zerolog.Logger
}

// NewClient creates a Shopify client adapter with a bounded timeout on the
// outbound token-exchange call.
func NewClient(apiKey, apiSecret, apiVersion string, timeout time.Duration, logger zerolog.Logger) ports.ShopifyClient {
	return &client{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		apiVersion: apiVersion,
		app: goshopify.App{
			ApiKey:    apiKey,
			ApiSecret: apiSecret,
		},
		httpClient: &http.Client{Timeout: timeout},
		scheme:     "https",
		logger:     logger,
	}
}

// AuthorizeURL builds the merchant-facing authorization URL. Shopify expects
// scopes comma-separated without spaces; online mode adds the per-user grant
// option.
func (c *client) AuthorizeURL(shop string, scopes []string, redirectURI, state string, mode domain.AccessMode) string {
	values := url.Values{}
	values.Set("client_id", c.apiKey)
	values.Set("scope", strings.Join(scopes, ","))
	values.Set("redirect_uri", redirectURI)
	values.Set("state", state)
	if mode == domain.AccessModeOnline {
		values.Set("grant_options[]", "per-user")
	}
	return fmt.Sprintf("%s://%s/admin/oauth/authorize?%s", c.scheme, shop, values.Encode())
}

// tokenResponse is the shape of Shopify's access_token endpoint payload.
// associated_user is present only for online-mode grants.
type tokenResponse struct {
	AccessToken    string `json:"access_token"`
	Scope          string `json:"scope"`
	AssociatedUser *struct {
		ID json.Number `json:"id"`
	} `json:"associated_user"`
}

func (c *client) ExchangeCode(ctx context.Context, shop, code string) (*domain.TokenGrant, error) {
	values := url.Values{}
	values.Set("client_id", c.apiKey)
	values.Set("client_secret", c.apiSecret)
	values.Set("code", code)
	return c.postTokenRequest(ctx, shop, values)
}

func (c *client) ExchangeSessionToken(ctx context.Context, shop, idToken string) (*domain.TokenGrant, error) {
	values := url.Values{}
	values.Set("client_id", c.apiKey)
	values.Set("client_secret", c.apiSecret)
	values.Set("grant_type", grantTypeTokenExchange)
	values.Set("subject_token", idToken)
	values.Set("subject_token_type", subjectTokenTypeIDToken)
	values.Set("requested_token_type", requestedTokenTypeOffline)
	return c.postTokenRequest(ctx, shop, values)
}

// postTokenRequest performs the single outbound call to the shop's token
// endpoint. Shopify requires application/x-www-form-urlencoded, not JSON.
// No retry on any path: a failed exchange means the install flow restarts.
func (c *client) postTokenRequest(ctx context.Context, shop string, values url.Values) (*domain.TokenGrant, error) {
	tokenURL := fmt.Sprintf("%s://%s/admin/oauth/access_token", c.scheme, shop)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("shop", shop).Msg("Token endpoint unreachable")
		return nil, fmt.Errorf("token endpoint request: %v: %w", err, domain.ErrExchangeUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, fmt.Errorf("read token response: %v: %w", err, domain.ErrExchangeUnavailable)
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Code already used, expired, or rejected. Terminal.
		c.logger.Warn().Int("status", resp.StatusCode).Str("shop", shop).Msg("Token exchange rejected")
		return nil, fmt.Errorf("token endpoint returned %d: %w", resp.StatusCode, domain.ErrInvalidGrant)
	case resp.StatusCode >= 500:
		c.logger.Error().Int("status", resp.StatusCode).Str("shop", shop).Msg("Token endpoint error")
		return nil, fmt.Errorf("token endpoint returned %d: %w", resp.StatusCode, domain.ErrExchangeFailed)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode token response: %v: %w", err, domain.ErrExchangeFailed)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token: %w", domain.ErrExchangeFailed)
	}

	grant := &domain.TokenGrant{
		AccessToken: parsed.AccessToken,
		Scopes:      splitScopes(parsed.Scope),
	}
	if parsed.AssociatedUser != nil {
		grant.AssociatedUserID = parsed.AssociatedUser.ID.String()
	}

	c.logger.Info().
		Str("shop", shop).
		Str("token", domain.MaskToken(grant.AccessToken)).
		Strs("granted_scopes", grant.Scopes).
		Msg("Token exchange completed")
	return grant, nil
}

// GetShop fetches the shop resource through the Admin API.
func (c *client) GetShop(ctx context.Context, shop, accessToken string) (*goshopify.Shop, error) {
	sc, err := goshopify.NewClient(c.app, shop, accessToken, goshopify.WithVersion(c.apiVersion))
	if err != nil {
		return nil, fmt.Errorf("create shopify client: %w", err)
	}
	result, err := sc.Shop.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get shop: %w", err)
	}
	return result, nil
}

func splitScopes(scope string) []string {
	if scope == "" {
		return nil
	}
	parts := strings.Split(scope, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}
