package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/foundry/npmstore/internal/core/models"
)

// StorageOptions configures how package objects are laid out and served.
type StorageOptions struct {
	PackagesDir          string
	CacheMetadataSeconds int
	CachePackageSeconds  int
	RedirectTarballs     bool
	RedirectTTL          time.Duration
}

func (o StorageOptions) packagesDir() string {
	if o.PackagesDir == "" {
		return DefaultPackagesDir
	}
	return o.PackagesDir
}

// UpdateFunc mutates a manifest in place. Returning an error aborts the update.
type UpdateFunc func(m *models.Manifest) error

// TransformFunc turns an updated manifest into the document that gets stored.
type TransformFunc func(m *models.Manifest) *models.Manifest

// PackageStorage reads and writes the objects of a single package.
type PackageStorage struct {
	name        string
	store       ObjectStore
	opts        StorageOptions
	logger      zerolog.Logger
	metadataKey string
}

// NewPackageStorage returns storage scoped to the package name.
func NewPackageStorage(name string, store ObjectStore, opts StorageOptions, logger zerolog.Logger) (*PackageStorage, error) {
	if err := ValidatePackageName(name); err != nil {
		return nil, err
	}
	return &PackageStorage{
		name:        name,
		store:       store,
		opts:        opts,
		logger:      logger.With().Str("package", name).Logger(),
		metadataKey: objectKey(opts.packagesDir(), name, MetadataFile),
	}, nil
}

// Name returns the package this storage is scoped to.
func (p *PackageStorage) Name() string {
	return p.name
}

// ReadPackage returns the package manifest, creating an empty one if the
// package has none yet.
func (p *PackageStorage) ReadPackage(ctx context.Context) (*models.Manifest, error) {
	m, _, err := p.GetOrCreatePackage(ctx)
	return m, err
}

// GetOrCreatePackage is ReadPackage that also reports whether the manifest
// was created by this call.
func (p *PackageStorage) GetOrCreatePackage(ctx context.Context) (*models.Manifest, bool, error) {
	exists, err := p.store.Exists(ctx, p.metadataKey)
	if err != nil {
		p.logger.Error().Err(err).Msg("checking package data")
		return nil, false, fmt.Errorf("checking package data: %w", err)
	}

	if !exists {
		m := models.NewManifest(p.name)
		if err := p.writeManifest(ctx, m); err != nil {
			p.logger.Error().Err(err).Msg("precreating package data")
			return nil, false, err
		}
		p.logger.Debug().Msg("precreated package data")
		return m, true, nil
	}

	m, err := p.fetchManifest(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("reading package data")
		return nil, false, err
	}
	p.logger.Debug().Msg("finished reading package data")
	return m, false, nil
}

// CreatePackage stores m unless the package already has a manifest.
func (p *PackageStorage) CreatePackage(ctx context.Context, m *models.Manifest) error {
	exists, err := p.store.Exists(ctx, p.metadataKey)
	if err != nil {
		p.logger.Error().Err(err).Msg("creating package data")
		return fmt.Errorf("checking package data: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: package data for %s already exists", ErrConflict, p.name)
	}
	return p.SavePackage(ctx, m)
}

// SavePackage replaces the stored manifest with m.
func (p *PackageStorage) SavePackage(ctx context.Context, m *models.Manifest) error {
	if err := p.writeManifest(ctx, m); err != nil {
		p.logger.Error().Err(err).Msg("saving package data")
		return err
	}
	p.logger.Debug().Msg("finished saving package data")
	return nil
}

// UpdatePackage reads the manifest, applies update, then stores the result
// of transform. A failing update leaves the stored manifest untouched.
// There is no version check against the store: concurrent updates race and
// the last write wins.
func (p *PackageStorage) UpdatePackage(ctx context.Context, update UpdateFunc, transform TransformFunc) (*models.Manifest, error) {
	m, err := p.ReadPackage(ctx)
	if err != nil {
		return nil, err
	}

	if err := update(m); err != nil {
		p.logger.Error().Err(err).Msg("updating package data")
		return nil, err
	}

	if transform != nil {
		m = transform(m)
	}
	if err := p.SavePackage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeletePackage deletes one object of the package, usually MetadataFile.
func (p *PackageStorage) DeletePackage(ctx context.Context, fileName string) error {
	if err := ValidateFileName(fileName); err != nil {
		return err
	}
	if err := p.store.Delete(ctx, p.key(fileName)); err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.logger.Error().Err(err).Str("file", fileName).Msg("deleting package data")
		}
		return fmt.Errorf("deleting %s/%s: %w", p.name, fileName, err)
	}
	p.logger.Debug().Str("file", fileName).Msg("finished deleting package data")
	return nil
}

// RemovePackage is called once every file of a package has been deleted.
// Object stores have no directory left to clean up.
func (p *PackageStorage) RemovePackage(ctx context.Context) error {
	return nil
}

func (p *PackageStorage) fetchManifest(ctx context.Context) (*models.Manifest, error) {
	raw, err := p.store.Download(ctx, p.metadataKey)
	if err != nil {
		return nil, fmt.Errorf("downloading package data: %w", err)
	}

	var m models.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, p.metadataKey, err)
	}
	return &m, nil
}

func (p *PackageStorage) writeManifest(ctx context.Context, m *models.Manifest) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding package data: %w", err)
	}

	opts := models.PutOptions{ContentType: contentTypeJSON}
	if cc := CacheControl(p.opts.CacheMetadataSeconds); cc != "" {
		opts.CacheControl = cc
		p.logger.Debug().Int("seconds", p.opts.CacheMetadataSeconds).Msg("using cache-control on package data")
	}

	if err := p.store.Upload(ctx, p.metadataKey, raw, opts); err != nil {
		return fmt.Errorf("uploading package data: %w", err)
	}
	return nil
}

func (p *PackageStorage) key(fileName string) string {
	return objectKey(p.opts.packagesDir(), p.name, fileName)
}
