package shopify

import (
	"fmt"
	"strings"
	"time"

	"shopify-auth-layer/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenVerifier validates Shopify session tokens (id_token JWTs sent
// on embedded app loads). Session tokens are HS256-signed with the app API
// secret, with the API key as audience and the shop origin as dest claim.
type SessionTokenVerifier struct {
	apiKey    string
	apiSecret string
	leeway    time.Duration
}

// NewSessionTokenVerifier creates a session token verifier.
func NewSessionTokenVerifier(apiKey, apiSecret string) *SessionTokenVerifier {
	return &SessionTokenVerifier{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		leeway:    10 * time.Second,
	}
}

type sessionTokenClaims struct {
	Dest string `json:"dest"`
	jwt.RegisteredClaims
}

// VerifySessionToken checks signature, expiry, audience and that the dest
// claim matches the shop the caller says the token is for.
func (v *SessionTokenVerifier) VerifySessionToken(idToken, shop string) error {
	claims := &sessionTokenClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(v.apiSecret), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(v.apiKey),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("session token rejected: %v: %w", err, domain.ErrSignatureInvalid)
	}

	dest := strings.TrimPrefix(claims.Dest, "https://")
	if dest == "" || !strings.EqualFold(dest, shop) {
		return fmt.Errorf("session token dest %q does not match shop %q: %w", claims.Dest, shop, domain.ErrShopMismatch)
	}
	return nil
}
