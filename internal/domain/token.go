package domain

// TokenGrant is the result of a successful code or session-token exchange.
type TokenGrant struct {
	AccessToken      string
	Scopes           []string
	AssociatedUserID string
}
