package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AccessMode distinguishes long-lived shop tokens from user-scoped ones.
type AccessMode string

const (
	AccessModeOffline AccessMode = "offline"
	AccessModeOnline  AccessMode = "online"
)

// ParseAccessMode validates and normalizes an access mode string.
// An empty value defaults to offline, matching Shopify's install links.
func ParseAccessMode(raw string) (AccessMode, error) {
	switch AccessMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", AccessModeOffline:
		return AccessModeOffline, nil
	case AccessModeOnline:
		return AccessModeOnline, nil
	default:
		return "", fmt.Errorf("access_mode must be either offline or online: %w", ErrInvalidRequest)
	}
}

// Installation represents the stored authorization for one (shop, access mode) pair.
// Exactly one row exists per pair; a repeated install replaces the token.
type Installation struct {
	ID               string     `json:"id"`
	ShopDomain       string     `json:"shop_domain"`
	AccessMode       AccessMode `json:"access_mode"`
	AccessToken      string     `json:"access_token"`
	Scopes           []string   `json:"scopes"`
	AssociatedUserID string     `json:"associated_user_id,omitempty"`
	IsActive         bool       `json:"is_active"`
	InstalledAt      time.Time  `json:"installed_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// IsValidShopDomain reports whether shop looks like a real *.myshopify.com domain.
func IsValidShopDomain(shop string) bool {
	return shopDomainPattern.MatchString(shop)
}

// MaskToken hides the middle of an access token for log output.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
