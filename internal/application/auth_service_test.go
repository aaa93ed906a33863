package application_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"shopify-auth-layer/internal/application"
	"shopify-auth-layer/internal/domain"
	shopifyinfra "shopify-auth-layer/internal/infrastructure/shopify"
	"shopify-auth-layer/internal/infrastructure/statestore"
	"shopify-auth-layer/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey = "apikey123"
	testSecret = "shpss_test_secret"
	testShop   = "foo.myshopify.com"
)

type fakeRepo struct {
	records map[string]*domain.Installation
	upserts int
	failure error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]*domain.Installation)}
}

func repoKey(shop string, mode domain.AccessMode) string {
	return shop + "|" + string(mode)
}

func (r *fakeRepo) Upsert(_ context.Context, installation *domain.Installation) (*domain.Installation, error) {
	if r.failure != nil {
		return nil, r.failure
	}
	r.upserts++
	stored := *installation
	if existing, ok := r.records[repoKey(installation.ShopDomain, installation.AccessMode)]; ok {
		stored.ID = existing.ID
		stored.InstalledAt = existing.InstalledAt
	} else {
		stored.ID = fmt.Sprintf("row-%d", r.upserts)
		stored.InstalledAt = time.Now().UTC()
	}
	stored.UpdatedAt = time.Now().UTC()
	r.records[repoKey(installation.ShopDomain, installation.AccessMode)] = &stored
	result := stored
	return &result, nil
}

func (r *fakeRepo) Get(_ context.Context, shop string, mode domain.AccessMode) (*domain.Installation, error) {
	if record, ok := r.records[repoKey(shop, mode)]; ok {
		result := *record
		return &result, nil
	}
	return nil, domain.ErrInstallationNotFound
}

func (r *fakeRepo) ListByShop(_ context.Context, shop string) ([]*domain.Installation, error) {
	var out []*domain.Installation
	for _, record := range r.records {
		if record.ShopDomain == shop {
			result := *record
			out = append(out, &result)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccessMode < out[j].AccessMode })
	return out, nil
}

type fakeClient struct {
	grant         *domain.TokenGrant
	exchangeErr   error
	exchangeCalls int
	lastCode      string
}

func (c *fakeClient) AuthorizeURL(shop string, scopes []string, redirectURI, state string, mode domain.AccessMode) string {
	values := url.Values{}
	values.Set("client_id", testAPIKey)
	values.Set("scope", strings.Join(scopes, ","))
	values.Set("redirect_uri", redirectURI)
	values.Set("state", state)
	if mode == domain.AccessModeOnline {
		values.Set("grant_options[]", "per-user")
	}
	return "https://" + shop + "/admin/oauth/authorize?" + values.Encode()
}

func (c *fakeClient) ExchangeCode(_ context.Context, shop, code string) (*domain.TokenGrant, error) {
	c.exchangeCalls++
	c.lastCode = code
	if c.exchangeErr != nil {
		return nil, c.exchangeErr
	}
	result := *c.grant
	return &result, nil
}

func (c *fakeClient) ExchangeSessionToken(_ context.Context, shop, idToken string) (*domain.TokenGrant, error) {
	c.exchangeCalls++
	if c.exchangeErr != nil {
		return nil, c.exchangeErr
	}
	result := *c.grant
	return &result, nil
}

func (c *fakeClient) GetShop(context.Context, string, string) (*goshopify.Shop, error) {
	return &goshopify.Shop{}, nil
}

type fakeTokenManager struct{}

func (fakeTokenManager) EncryptToken(token string) (string, error) {
	return "enc:" + token, nil
}

func (fakeTokenManager) DecryptToken(encrypted string) (string, error) {
	if !strings.HasPrefix(encrypted, "enc:") {
		return "", fmt.Errorf("not an encrypted token")
	}
	return strings.TrimPrefix(encrypted, "enc:"), nil
}

func (fakeTokenManager) ValidateToken(context.Context, ports.ShopifyClient, string, string) (bool, error) {
	return true, nil
}

type harness struct {
	service *application.AuthService
	repo    *fakeRepo
	client  *fakeClient
	states  *statestore.MemoryStateStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := newFakeRepo()
	client := &fakeClient{grant: &domain.TokenGrant{
		AccessToken: "tok_abc",
		Scopes:      []string{"read_orders"},
	}}
	states := statestore.NewMemoryStateStore()

	service := application.NewAuthService(
		repo,
		states,
		client,
		shopifyinfra.NewCallbackVerifier(testSecret, 5*time.Minute),
		shopifyinfra.NewSessionTokenVerifier(testAPIKey, testSecret),
		fakeTokenManager{},
		application.Config{
			Scopes:      []string{"read_orders"},
			RedirectURI: "https://app.example.com/auth/callback",
			StateTTL:    10 * time.Minute,
		},
		zerolog.Nop(),
	)
	return &harness{service: service, repo: repo, client: client, states: states}
}

func signParams(secret string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key != "hmac" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params.Get(key))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

func signedCallback(shop, code, state string) url.Values {
	params := url.Values{}
	params.Set("shop", shop)
	params.Set("code", code)
	params.Set("state", state)
	params.Set("timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	params.Set("hmac", signParams(testSecret, params))
	return params
}

// stateFromInstallURL extracts the state parameter issued by BuildInstallURL.
func stateFromInstallURL(t *testing.T, installURL string) string {
	t.Helper()
	u, err := url.Parse(installURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestBuildInstallURL(t *testing.T) {
	h := newHarness(t)

	installURL, err := h.service.BuildInstallURL(context.Background(), testShop, "offline")
	require.NoError(t, err)

	u, err := url.Parse(installURL)
	require.NoError(t, err)
	require.Equal(t, testShop, u.Host)
	require.Equal(t, "read_orders", u.Query().Get("scope"))
	require.Equal(t, "https://app.example.com/auth/callback", u.Query().Get("redirect_uri"))

	// Two installs never share a state value.
	second, err := h.service.BuildInstallURL(context.Background(), testShop, "offline")
	require.NoError(t, err)
	require.NotEqual(t, stateFromInstallURL(t, installURL), stateFromInstallURL(t, second))
}

func TestBuildInstallURL_RejectsBadInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.BuildInstallURL(context.Background(), "not-a-shop", "offline")
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = h.service.BuildInstallURL(context.Background(), testShop, "perpetual")
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestHandleCallback_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	installURL, err := h.service.BuildInstallURL(ctx, testShop, "offline")
	require.NoError(t, err)
	state := stateFromInstallURL(t, installURL)

	installation, err := h.service.HandleCallback(ctx, signedCallback(testShop, "code123", state))
	require.NoError(t, err)
	require.Equal(t, testShop, installation.ShopDomain)
	require.Equal(t, domain.AccessModeOffline, installation.AccessMode)
	require.Equal(t, "tok_abc", installation.AccessToken)
	require.True(t, installation.IsActive)
	require.Equal(t, "code123", h.client.lastCode)

	// Stored token is encrypted at rest.
	stored, err := h.repo.Get(ctx, testShop, domain.AccessModeOffline)
	require.NoError(t, err)
	require.Equal(t, "enc:tok_abc", stored.AccessToken)
}

func TestHandleCallback_ReplayFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	installURL, err := h.service.BuildInstallURL(ctx, testShop, "offline")
	require.NoError(t, err)
	params := signedCallback(testShop, "code123", stateFromInstallURL(t, installURL))

	_, err = h.service.HandleCallback(ctx, params)
	require.NoError(t, err)

	// Identical parameters a second time: state is already consumed.
	_, err = h.service.HandleCallback(ctx, params)
	require.ErrorIs(t, err, domain.ErrStateNotFound)
	require.Equal(t, 1, h.repo.upserts)
	require.Equal(t, 1, h.client.exchangeCalls)
}

func TestHandleCallback_BadSignatureSkipsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	installURL, err := h.service.BuildInstallURL(ctx, testShop, "offline")
	require.NoError(t, err)
	params := signedCallback(testShop, "code123", stateFromInstallURL(t, installURL))
	params.Set("hmac", strings.Repeat("0", 64))

	_, err = h.service.HandleCallback(ctx, params)
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)
	require.Zero(t, h.client.exchangeCalls)
	require.Zero(t, h.repo.upserts)

	// The state survived the rejected callback and is still consumable.
	_, err = h.service.HandleCallback(ctx, signedCallback(testShop, "code123", stateFromInstallURL(t, installURL)))
	require.NoError(t, err)
}

func TestHandleCallback_ShopMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	installURL, err := h.service.BuildInstallURL(ctx, "bar.myshopify.com", "offline")
	require.NoError(t, err)

	_, err = h.service.HandleCallback(ctx, signedCallback(testShop, "code123", stateFromInstallURL(t, installURL)))
	require.ErrorIs(t, err, domain.ErrShopMismatch)
	require.Zero(t, h.repo.upserts)
}

func TestHandleCallback_ExpiredState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	now := time.Now().UTC()
	expired := &domain.InstallState{
		State:      "expired-state",
		ShopDomain: testShop,
		AccessMode: domain.AccessModeOffline,
		CreatedAt:  now.Add(-time.Hour),
		ExpiresAt:  now.Add(-50 * time.Minute),
	}
	require.NoError(t, h.states.Save(ctx, expired, time.Minute))

	_, err := h.service.HandleCallback(ctx, signedCallback(testShop, "code123", "expired-state"))
	require.ErrorIs(t, err, domain.ErrStateExpired)
	require.Zero(t, h.repo.upserts)
}

func TestHandleCallback_ScopeNotGranted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.client.grant = &domain.TokenGrant{AccessToken: "tok_abc", Scopes: []string{"read_products"}}

	installURL, err := h.service.BuildInstallURL(ctx, testShop, "offline")
	require.NoError(t, err)

	_, err = h.service.HandleCallback(ctx, signedCallback(testShop, "code123", stateFromInstallURL(t, installURL)))
	require.ErrorIs(t, err, domain.ErrScopeNotGranted)
	require.Zero(t, h.repo.upserts)
}

func TestHandleCallback_ExchangeFailureWritesNothing(t *testing.T) {
	for _, kind := range []error{
		domain.ErrExchangeUnavailable,
		domain.ErrInvalidGrant,
		domain.ErrExchangeFailed,
	} {
		t.Run(kind.Error(), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.client.exchangeErr = kind

			installURL, err := h.service.BuildInstallURL(ctx, testShop, "offline")
			require.NoError(t, err)

			_, err = h.service.HandleCallback(ctx, signedCallback(testShop, "code123", stateFromInstallURL(t, installURL)))
			require.ErrorIs(t, err, kind)
			require.Zero(t, h.repo.upserts)
		})
	}
}

func TestHandleCallback_StorageFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.repo.failure = fmt.Errorf("connection refused")

	installURL, err := h.service.BuildInstallURL(ctx, testShop, "offline")
	require.NoError(t, err)

	_, err = h.service.HandleCallback(ctx, signedCallback(testShop, "code123", stateFromInstallURL(t, installURL)))
	require.ErrorIs(t, err, domain.ErrPersistence)
}

func TestHandleCallback_ModesAreIndependent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	offlineURL, err := h.service.BuildInstallURL(ctx, testShop, "offline")
	require.NoError(t, err)
	_, err = h.service.HandleCallback(ctx, signedCallback(testShop, "code-off", stateFromInstallURL(t, offlineURL)))
	require.NoError(t, err)

	h.client.grant = &domain.TokenGrant{
		AccessToken:      "tok_online",
		Scopes:           []string{"read_orders"},
		AssociatedUserID: "902541635",
	}
	onlineURL, err := h.service.BuildInstallURL(ctx, testShop, "online")
	require.NoError(t, err)
	_, err = h.service.HandleCallback(ctx, signedCallback(testShop, "code-on", stateFromInstallURL(t, onlineURL)))
	require.NoError(t, err)

	installations, err := h.service.GetShopInstallations(ctx, testShop)
	require.NoError(t, err)
	require.Len(t, installations, 2)
	require.Equal(t, domain.AccessModeOffline, installations[0].AccessMode)
	require.Equal(t, "tok_abc", installations[0].AccessToken)
	require.Equal(t, domain.AccessModeOnline, installations[1].AccessMode)
	require.Equal(t, "tok_online", installations[1].AccessToken)
	require.Equal(t, "902541635", installations[1].AssociatedUserID)
}

func TestGetShopInstallations_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.GetShopInstallations(context.Background(), "nobody.myshopify.com")
	require.ErrorIs(t, err, domain.ErrInstallationNotFound)
}

func TestExchangeSessionToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"dest": "https://" + testShop,
		"aud":  testAPIKey,
		"exp":  time.Now().Add(time.Minute).Unix(),
	})
	idToken, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	installation, err := h.service.ExchangeSessionToken(ctx, testShop, idToken)
	require.NoError(t, err)
	require.Equal(t, domain.AccessModeOffline, installation.AccessMode)
	require.Equal(t, "tok_abc", installation.AccessToken)

	// A forged token never reaches the exchange.
	calls := h.client.exchangeCalls
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"dest": "https://" + testShop,
		"aud":  testAPIKey,
		"exp":  time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	_, err = h.service.ExchangeSessionToken(ctx, testShop, forged)
	require.ErrorIs(t, err, domain.ErrSignatureInvalid)
	require.Equal(t, calls, h.client.exchangeCalls)
}
