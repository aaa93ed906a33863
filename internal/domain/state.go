package domain

import "time"

// InstallState is the single-use value binding an install request to its callback.
// It is consumed exactly once; a second consumption attempt yields ErrStateNotFound.
type InstallState struct {
	State      string     `json:"state"`
	ShopDomain string     `json:"shop_domain"`
	AccessMode AccessMode `json:"access_mode"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// Expired reports whether the state's TTL has elapsed at the given instant.
func (s *InstallState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
