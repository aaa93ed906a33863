package entity

import (
	"time"

	"shopify-auth-layer/internal/domain"

	"github.com/uptrace/bun"
)

// InstallationRecord is the shop_installations row. The (shop_domain,
// access_mode) unique group guarantees one row per pair.
type InstallationRecord struct {
	bun.BaseModel `bun:"table:shop_installations,alias:si"`

	ID               string    `bun:"id,pk"`
	ShopDomain       string    `bun:"shop_domain,notnull,unique:uq_shop_mode"`
	AccessMode       string    `bun:"access_mode,notnull,unique:uq_shop_mode"`
	AccessToken      string    `bun:"access_token,notnull"`
	Scopes           []string  `bun:"scopes,type:jsonb"`
	AssociatedUserID string    `bun:"associated_user_id"`
	IsActive         bool      `bun:"is_active,notnull"`
	InstalledAt      time.Time `bun:"installed_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// ToDomain converts the row to a domain entity.
func (r *InstallationRecord) ToDomain() *domain.Installation {
	return &domain.Installation{
		ID:               r.ID,
		ShopDomain:       r.ShopDomain,
		AccessMode:       domain.AccessMode(r.AccessMode),
		AccessToken:      r.AccessToken,
		Scopes:           r.Scopes,
		AssociatedUserID: r.AssociatedUserID,
		IsActive:         r.IsActive,
		InstalledAt:      r.InstalledAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// InstallationRecordFromDomain converts a domain entity to a row.
func InstallationRecordFromDomain(installation *domain.Installation) *InstallationRecord {
	return &InstallationRecord{
		ID:               installation.ID,
		ShopDomain:       installation.ShopDomain,
		AccessMode:       string(installation.AccessMode),
		AccessToken:      installation.AccessToken,
		Scopes:           installation.Scopes,
		AssociatedUserID: installation.AssociatedUserID,
		IsActive:         installation.IsActive,
		InstalledAt:      installation.InstalledAt,
		UpdatedAt:        installation.UpdatedAt,
	}
}
