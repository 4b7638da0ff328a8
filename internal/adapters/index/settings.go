package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/core/services"
)

// DefaultSettingsKey is the setting holding the local index in the config-backed variant.
const DefaultSettingsKey = "registry-db"

// SettingsProvider keeps the local index as one value of a configuration store.
type SettingsProvider struct {
	store  services.SettingsStore
	key    string
	logger zerolog.Logger
}

// NewSettingsProvider stores the index under key, or DefaultSettingsKey when empty.
func NewSettingsProvider(store services.SettingsStore, key string, logger zerolog.Logger) *SettingsProvider {
	if key == "" {
		key = DefaultSettingsKey
	}
	return &SettingsProvider{store: store, key: key, logger: logger}
}

// Get treats a missing key, or one with an empty value, as no index.
func (p *SettingsProvider) Get(ctx context.Context) (*models.LocalIndex, error) {
	st, err := p.store.GetSetting(ctx, p.key)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if st.Value == "" {
		return nil, nil
	}

	p.logger.Debug().Str("key", p.key).Msg("getting local index")
	return decode(p.key, []byte(st.Value))
}

func (p *SettingsProvider) Save(ctx context.Context, idx *models.LocalIndex) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encoding local index: %w", err)
	}
	return p.store.SetSetting(ctx, models.Setting{
		Key:         p.key,
		Value:       string(raw),
		ContentType: contentTypeJSON,
	})
}
