package plugin

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundry/npmstore/internal/adapters/index"
	"github.com/foundry/npmstore/internal/adapters/objectstore"
	"github.com/foundry/npmstore/internal/adapters/settings"
	"github.com/foundry/npmstore/internal/config"
	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/core/services"
)

func diskConfig(t *testing.T) config.StorageConfig {
	t.Helper()
	cfg := config.Default().Storage
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestFromConfigBlobBackedIndex(t *testing.T) {
	ctx := context.Background()
	cfg := diskConfig(t)

	p, err := FromConfig(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Add(ctx, "left-pad"))

	store, err := objectstore.NewDiskStore(cfg.DataDir)
	require.NoError(t, err)
	exists, err := store.Exists(ctx, index.DefaultBlobKey)
	require.NoError(t, err)
	assert.True(t, exists, "index should be stored as an object")
}

func TestFromConfigSettingsBackedIndex(t *testing.T) {
	ctx := context.Background()
	cfg := diskConfig(t)
	cfg.Index.SettingsDSN = filepath.Join(t.TempDir(), "settings.db")

	p, err := FromConfig(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, p.SetSecret(ctx, "abc"))
	require.NoError(t, p.Close())

	store, err := objectstore.NewDiskStore(cfg.DataDir)
	require.NoError(t, err)
	exists, err := store.Exists(ctx, index.DefaultBlobKey)
	require.NoError(t, err)
	assert.False(t, exists, "settings-backed index must not write the blob")

	db, err := settings.NewSQLiteStore(cfg.Index.SettingsDSN)
	require.NoError(t, err)
	defer db.Close()
	st, err := db.GetSetting(ctx, "registry-db")
	require.NoError(t, err)
	assert.JSONEq(t, `{"list":[],"secret":"abc"}`, st.Value)
}

func TestFromConfigUnknownBackend(t *testing.T) {
	cfg := diskConfig(t)
	cfg.Backend = "azure"

	_, err := FromConfig(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestSecretSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := diskConfig(t)

	first, err := FromConfig(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)

	secret, err := first.Secret(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", secret)
	require.NoError(t, first.SetSecret(ctx, "abc"))

	second, err := FromConfig(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	secret, err = second.Secret(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", secret)
}

func TestAddRejectsInvalidNames(t *testing.T) {
	p, err := FromConfig(context.Background(), diskConfig(t), zerolog.Nop())
	require.NoError(t, err)

	for _, name := range []string{"", "../etc", "a/b", `a\b`} {
		assert.ErrorIs(t, p.Add(context.Background(), name), services.ErrInvalidName, name)
	}
}

func TestPackageStorageUsesConfiguredLayout(t *testing.T) {
	ctx := context.Background()
	cfg := diskConfig(t)
	cfg.PackagesDir = "npm"
	cfg.CacheMetadataSeconds = 30

	p, err := FromConfig(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)

	ps, err := p.PackageStorage("@scope/pkg")
	require.NoError(t, err)
	_, err = ps.ReadPackage(ctx)
	require.NoError(t, err)

	store, err := objectstore.NewDiskStore(cfg.DataDir)
	require.NoError(t, err)
	props, err := store.Properties(ctx, "npm/@scope/pkg/package.json")
	require.NoError(t, err)
	assert.Equal(t, "public, max-age=30", props.CacheControl)
}

func TestUnimplementedOperations(t *testing.T) {
	ctx := context.Background()
	p, err := FromConfig(ctx, diskConfig(t), zerolog.Nop())
	require.NoError(t, err)

	_, err = p.Search(ctx, "left")
	assert.ErrorIs(t, err, services.ErrUnimplemented)
	assert.ErrorIs(t, p.SaveToken(ctx, models.Token{User: "u"}), services.ErrUnimplemented)
	assert.ErrorIs(t, p.DeleteToken(ctx, "u", "k"), services.ErrUnimplemented)
	_, err = p.ReadTokens(ctx, models.TokenFilter{User: "u"})
	assert.ErrorIs(t, err, services.ErrUnimplemented)
}
