package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/foundry/npmstore/internal/core/models"
)

// LocalIndex owns the cached copy of the registry's package list and secret.
// It loads the index from its provider on first use and writes the whole
// document back after every mutation. Mutations are serialized, and the
// cache is only replaced once the provider accepted the new document.
type LocalIndex struct {
	provider IndexProvider
	logger   zerolog.Logger

	mu   sync.Mutex
	data *models.LocalIndex
}

// NewLocalIndex creates an uninitialized manager over provider.
func NewLocalIndex(provider IndexProvider, logger zerolog.Logger) *LocalIndex {
	return &LocalIndex{provider: provider, logger: logger}
}

// Add appends name to the list unless it is already present.
func (l *LocalIndex) Add(ctx context.Context, name string) error {
	return l.mutate(ctx, func(cur *models.LocalIndex) *models.LocalIndex {
		if cur.Contains(name) {
			return nil
		}
		next := cur.Clone()
		next.List = append(next.List, name)
		return next
	}, "add", name)
}

// Remove drops name from the list. Removing an unknown name succeeds.
func (l *LocalIndex) Remove(ctx context.Context, name string) error {
	return l.mutate(ctx, func(cur *models.LocalIndex) *models.LocalIndex {
		if !cur.Contains(name) {
			return nil
		}
		return cur.Without(name)
	}, "remove", name)
}

// List returns a snapshot of the package names in insertion order.
func (l *LocalIndex) List(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	return data.Clone().List, nil
}

// Secret returns the registry secret, empty for a fresh index.
func (l *LocalIndex) Secret(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.load(ctx)
	if err != nil {
		return "", err
	}
	return data.Secret, nil
}

// SetSecret overwrites the registry secret.
func (l *LocalIndex) SetSecret(ctx context.Context, secret string) error {
	return l.mutate(ctx, func(cur *models.LocalIndex) *models.LocalIndex {
		next := cur.Clone()
		next.Secret = secret
		return next
	}, "set_secret", "")
}

// mutate applies fn to the current index and persists the result. A nil
// result from fn means nothing changed and nothing is written.
func (l *LocalIndex) mutate(ctx context.Context, fn func(*models.LocalIndex) *models.LocalIndex, op, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, err := l.load(ctx)
	if err != nil {
		return err
	}

	next := fn(cur)
	if next == nil {
		return nil
	}

	if err := l.provider.Save(ctx, next); err != nil {
		l.logger.Error().Err(err).Str("op", op).Str("package", name).Msg("saving local index")
		return fmt.Errorf("saving local index: %w", err)
	}
	l.data = next

	l.logger.Debug().Str("op", op).Str("package", name).Int("packages", len(next.List)).Msg("local index updated")
	return nil
}

// load returns the cached index, fetching or creating it on first use.
// Callers must hold l.mu.
func (l *LocalIndex) load(ctx context.Context) (*models.LocalIndex, error) {
	if l.data != nil {
		return l.data, nil
	}

	data, err := l.provider.Get(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("reading local index")
		return nil, fmt.Errorf("reading local index: %w", err)
	}

	if data == nil {
		l.logger.Warn().Msg("local index does not exist, creating")
		data = &models.LocalIndex{List: []string{}, Secret: ""}
		if err := l.provider.Save(ctx, data); err != nil {
			l.logger.Error().Err(err).Msg("creating local index")
			return nil, fmt.Errorf("creating local index: %w", err)
		}
	}
	if data.List == nil {
		data.List = []string{}
	}

	l.data = data
	return l.data, nil
}
