package repository_test

import (
	"context"
	"database/sql"
	"testing"

	"shopify-auth-layer/internal/domain"
	"shopify-auth-layer/internal/infrastructure/repository"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func newTestRepository(t *testing.T) *repository.BunInstallationRepository {
	t.Helper()
	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })

	db := bun.NewDB(sqldb, sqlitedialect.New())
	repo := repository.NewBunInstallationRepository(db)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestUpsert_CreatesThenReplaces(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	first, err := repo.Upsert(ctx, &domain.Installation{
		ShopDomain:  "foo.myshopify.com",
		AccessMode:  domain.AccessModeOffline,
		AccessToken: "tok_v1",
		Scopes:      []string{"read_orders"},
		IsActive:    true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, "tok_v1", first.AccessToken)

	second, err := repo.Upsert(ctx, &domain.Installation{
		ShopDomain:  "foo.myshopify.com",
		AccessMode:  domain.AccessModeOffline,
		AccessToken: "tok_v2",
		Scopes:      []string{"read_orders", "read_products"},
		IsActive:    true,
	})
	require.NoError(t, err)

	// Same key keeps the original row identity; token and scopes replaced.
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "tok_v2", second.AccessToken)
	require.Equal(t, []string{"read_orders", "read_products"}, second.Scopes)

	all, err := repo.ListByShop(ctx, "foo.myshopify.com")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestUpsert_ModesAreIndependentRows(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Upsert(ctx, &domain.Installation{
		ShopDomain:  "foo.myshopify.com",
		AccessMode:  domain.AccessModeOffline,
		AccessToken: "tok_offline",
		IsActive:    true,
	})
	require.NoError(t, err)

	_, err = repo.Upsert(ctx, &domain.Installation{
		ShopDomain:       "foo.myshopify.com",
		AccessMode:       domain.AccessModeOnline,
		AccessToken:      "tok_online",
		AssociatedUserID: "902541635",
		IsActive:         true,
	})
	require.NoError(t, err)

	all, err := repo.ListByShop(ctx, "foo.myshopify.com")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, domain.AccessModeOffline, all[0].AccessMode)
	require.Equal(t, domain.AccessModeOnline, all[1].AccessMode)

	offline, err := repo.Get(ctx, "foo.myshopify.com", domain.AccessModeOffline)
	require.NoError(t, err)
	require.Equal(t, "tok_offline", offline.AccessToken)
	require.Empty(t, offline.AssociatedUserID)

	online, err := repo.Get(ctx, "foo.myshopify.com", domain.AccessModeOnline)
	require.NoError(t, err)
	require.Equal(t, "tok_online", online.AccessToken)
	require.Equal(t, "902541635", online.AssociatedUserID)
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.Get(context.Background(), "nobody.myshopify.com", domain.AccessModeOffline)
	require.ErrorIs(t, err, domain.ErrInstallationNotFound)
}

func TestListByShop_EmptyForUnknownShop(t *testing.T) {
	repo := newTestRepository(t)
	all, err := repo.ListByShop(context.Background(), "nobody.myshopify.com")
	require.NoError(t, err)
	require.Empty(t, all)
}
