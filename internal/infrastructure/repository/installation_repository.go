package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shopify-auth-layer/internal/domain"
	"shopify-auth-layer/internal/infrastructure/repository/entity"
	"shopify-auth-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunInstallationRepository implements InstallationRepository over a
// relational table using bun. Works against sqlite and postgres.
type BunInstallationRepository struct {
	db *bun.DB
}

var _ ports.InstallationRepository = (*BunInstallationRepository)(nil)

// NewBunInstallationRepository creates a new installation repository.
func NewBunInstallationRepository(db *bun.DB) *BunInstallationRepository {
	return &BunInstallationRepository{db: db}
}

// EnsureSchema creates the shop_installations table if it does not exist.
func (r *BunInstallationRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.NewCreateTable().
		Model((*entity.InstallationRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create shop_installations table: %w", err)
	}
	return nil
}

// Upsert writes the installation keyed by (shop_domain, access_mode). A
// conflicting row keeps its id and installed_at; token, scopes, user and
// activity flag are replaced. The write is committed before returning.
func (r *BunInstallationRepository) Upsert(ctx context.Context, installation *domain.Installation) (*domain.Installation, error) {
	record := entity.InstallationRecordFromDomain(installation)
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.InstalledAt.IsZero() {
		record.InstalledAt = now
	}
	record.UpdatedAt = now

	if _, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (shop_domain, access_mode) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("scopes = EXCLUDED.scopes").
		Set("associated_user_id = EXCLUDED.associated_user_id").
		Set("is_active = EXCLUDED.is_active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("upsert installation: %w", err)
	}

	// Re-read so the caller sees the surviving row's id and installed_at.
	return r.Get(ctx, installation.ShopDomain, installation.AccessMode)
}

// Get retrieves the installation for a (shop, mode) pair.
func (r *BunInstallationRepository) Get(ctx context.Context, shopDomain string, mode domain.AccessMode) (*domain.Installation, error) {
	record := new(entity.InstallationRecord)
	err := r.db.NewSelect().
		Model(record).
		Where("shop_domain = ?", shopDomain).
		Where("access_mode = ?", string(mode)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInstallationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get installation: %w", err)
	}
	return record.ToDomain(), nil
}

// ListByShop retrieves every installation for a shop, ordered by access mode.
func (r *BunInstallationRepository) ListByShop(ctx context.Context, shopDomain string) ([]*domain.Installation, error) {
	var records []entity.InstallationRecord
	if err := r.db.NewSelect().
		Model(&records).
		Where("shop_domain = ?", shopDomain).
		Order("access_mode ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}

	installations := make([]*domain.Installation, 0, len(records))
	for i := range records {
		installations = append(installations, records[i].ToDomain())
	}
	return installations, nil
}
