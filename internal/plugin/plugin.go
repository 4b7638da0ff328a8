package plugin

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/foundry/npmstore/internal/adapters/index"
	"github.com/foundry/npmstore/internal/adapters/objectstore"
	"github.com/foundry/npmstore/internal/adapters/settings"
	"github.com/foundry/npmstore/internal/config"
	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/core/services"
)

// Plugin is the storage surface the registry host talks to: registry-wide
// index operations plus a factory for per-package storage.
type Plugin struct {
	index  *services.LocalIndex
	store  services.ObjectStore
	opts   services.StorageOptions
	logger zerolog.Logger
	closer io.Closer
}

// New builds a plugin over an already constructed store and index provider.
func New(store services.ObjectStore, provider services.IndexProvider, opts services.StorageOptions, logger zerolog.Logger) *Plugin {
	return &Plugin{
		index:  services.NewLocalIndex(provider, logger.With().Str("component", "local_index").Logger()),
		store:  store,
		opts:   opts,
		logger: logger,
	}
}

// FromConfig selects the object store and index provider named by cfg.
// The index lives in the settings database when a DSN is configured and in
// the object store otherwise.
func FromConfig(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*Plugin, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		provider services.IndexProvider
		closer   io.Closer
	)
	if cfg.Index.SettingsDSN != "" {
		db, err := settings.NewSQLiteStore(cfg.Index.SettingsDSN)
		if err != nil {
			return nil, fmt.Errorf("opening settings store: %w", err)
		}
		provider = index.NewSettingsProvider(db, cfg.Index.KeyName, logger)
		closer = db
		logger.Info().Str("key", cfg.Index.KeyName).Msg("using settings-backed local index")
	} else {
		provider = index.NewBlobProvider(store, "", logger)
		logger.Info().Str("key", index.DefaultBlobKey).Msg("using blob-backed local index")
	}

	p := New(store, provider, services.StorageOptions{
		PackagesDir:          cfg.PackagesDir,
		CacheMetadataSeconds: cfg.CacheMetadataSeconds,
		CachePackageSeconds:  cfg.CachePackageSeconds,
		RedirectTarballs:     cfg.RedirectTarballs,
		RedirectTTL:          cfg.RedirectTTL,
	}, logger)
	p.closer = closer
	return p, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (services.ObjectStore, error) {
	switch cfg.Backend {
	case config.BackendDisk:
		store, err := objectstore.NewDiskStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("initializing disk store: %w", err)
		}
		return store, nil
	case config.BackendMinio:
		store, err := objectstore.NewMinioStore(ctx, objectstore.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing minio store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Close releases the settings database, if one was opened.
func (p *Plugin) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

func (p *Plugin) Add(ctx context.Context, name string) error {
	if err := services.ValidatePackageName(name); err != nil {
		return err
	}
	return p.index.Add(ctx, name)
}

func (p *Plugin) Remove(ctx context.Context, name string) error {
	return p.index.Remove(ctx, name)
}

func (p *Plugin) List(ctx context.Context) ([]string, error) {
	return p.index.List(ctx)
}

func (p *Plugin) Secret(ctx context.Context) (string, error) {
	return p.index.Secret(ctx)
}

func (p *Plugin) SetSecret(ctx context.Context, secret string) error {
	return p.index.SetSecret(ctx, secret)
}

// PackageStorage returns storage scoped to one package.
func (p *Plugin) PackageStorage(name string) (*services.PackageStorage, error) {
	return services.NewPackageStorage(name, p.store, p.opts, p.logger)
}

// Search is not supported by object storage.
func (p *Plugin) Search(ctx context.Context, query string) ([]string, error) {
	return nil, unimplemented("search")
}

func (p *Plugin) SaveToken(ctx context.Context, token models.Token) error {
	return unimplemented("saveToken")
}

func (p *Plugin) DeleteToken(ctx context.Context, user, tokenKey string) error {
	return unimplemented("deleteToken")
}

func (p *Plugin) ReadTokens(ctx context.Context, filter models.TokenFilter) ([]models.Token, error) {
	return nil, unimplemented("readTokens")
}

func unimplemented(op string) error {
	return fmt.Errorf("%w: %s", services.ErrUnimplemented, op)
}

