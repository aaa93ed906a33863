package ports

import "net/url"

// CallbackVerifier validates that callback query parameters were signed by
// the platform with the shared app secret.
type CallbackVerifier interface {
	// Verify recomputes the HMAC over the callback parameters (excluding the
	// hmac field) and compares it in constant time. Fails closed: missing
	// required parameters or a stale timestamp are both invalid.
	Verify(params url.Values) error

	// VerifyInstallRequest validates the signed install trigger the platform
	// sends to the app root, which carries no code or state.
	VerifyInstallRequest(params url.Values) error
}

// SessionTokenVerifier validates Shopify session tokens (the id_token JWT
// sent on embedded app loads), which are signed with the app API secret.
type SessionTokenVerifier interface {
	// VerifySessionToken checks the token signature, expiry and destination
	// claim against the given shop.
	VerifySessionToken(idToken, shop string) error
}

// EncryptionService encrypts access tokens before they reach storage.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
