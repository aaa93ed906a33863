package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"shopify-auth-layer/internal/domain"
)

// requiredCallbackParams must all be present for a callback to be considered.
var requiredCallbackParams = []string{"shop", "code", "state", "timestamp", "hmac"}

// requiredInstallParams are what the platform signs on the install trigger.
var requiredInstallParams = []string{"shop", "timestamp", "hmac"}

// CallbackVerifier validates OAuth callback signatures against the app secret.
type CallbackVerifier struct {
	secret  string
	maxSkew time.Duration
	now     func() time.Time
}

// NewCallbackVerifier creates a verifier with the given skew window for the
// timestamp parameter.
func NewCallbackVerifier(secret string, maxSkew time.Duration) *CallbackVerifier {
	return &CallbackVerifier{
		secret:  secret,
		maxSkew: maxSkew,
		now:     time.Now,
	}
}

// Verify checks the hmac parameter against the HMAC-SHA256 of the remaining
// callback parameters, canonicalized as sorted key=value pairs joined by "&".
// Fails closed: missing parameters, a stale timestamp or a malformed signature
// are all rejected.
func (v *CallbackVerifier) Verify(params url.Values) error {
	return v.verify(params, requiredCallbackParams)
}

// VerifyInstallRequest validates the signed install trigger sent to the app
// root, which carries shop and timestamp but no code or state.
func (v *CallbackVerifier) VerifyInstallRequest(params url.Values) error {
	return v.verify(params, requiredInstallParams)
}

func (v *CallbackVerifier) verify(params url.Values, required []string) error {
	for _, key := range required {
		if params.Get(key) == "" {
			return fmt.Errorf("missing callback parameter %q: %w", key, domain.ErrInvalidRequest)
		}
	}

	ts, err := strconv.ParseInt(params.Get("timestamp"), 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp: %w", domain.ErrInvalidRequest)
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return fmt.Errorf("callback timestamp outside %s skew window: %w", v.maxSkew, domain.ErrSignatureInvalid)
	}

	supplied, err := hex.DecodeString(params.Get("hmac"))
	if err != nil {
		return fmt.Errorf("malformed hmac parameter: %w", domain.ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(canonicalizeParams(params)))
	if !hmac.Equal(mac.Sum(nil), supplied) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// canonicalizeParams builds the signed message: every parameter except hmac,
// sorted by key, as key=value pairs joined with "&".
func canonicalizeParams(params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "hmac" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+strings.Join(params[key], ","))
	}
	return strings.Join(pairs, "&")
}
