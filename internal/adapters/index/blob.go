package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/core/services"
)

// DefaultBlobKey is the object holding the local index in the blob-backed variant.
const DefaultBlobKey = ".registry-db.json"

const contentTypeJSON = "application/json"

var (
	_ services.IndexProvider = (*BlobProvider)(nil)
	_ services.IndexProvider = (*SettingsProvider)(nil)
)

// BlobProvider keeps the local index as one JSON object in the object store.
type BlobProvider struct {
	store  services.ObjectStore
	key    string
	logger zerolog.Logger
}

// NewBlobProvider stores the index under key, or DefaultBlobKey when empty.
func NewBlobProvider(store services.ObjectStore, key string, logger zerolog.Logger) *BlobProvider {
	if key == "" {
		key = DefaultBlobKey
	}
	return &BlobProvider{store: store, key: key, logger: logger}
}

func (p *BlobProvider) Get(ctx context.Context) (*models.LocalIndex, error) {
	exists, err := p.store.Exists(ctx, p.key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	p.logger.Debug().Str("key", p.key).Msg("getting local index")
	raw, err := p.store.Download(ctx, p.key)
	if err != nil {
		return nil, err
	}
	return decode(p.key, raw)
}

func (p *BlobProvider) Save(ctx context.Context, idx *models.LocalIndex) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encoding local index: %w", err)
	}
	return p.store.Upload(ctx, p.key, raw, models.PutOptions{ContentType: contentTypeJSON})
}

func decode(source string, raw []byte) (*models.LocalIndex, error) {
	var idx models.LocalIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", services.ErrMalformed, source, err)
	}
	return &idx, nil
}
