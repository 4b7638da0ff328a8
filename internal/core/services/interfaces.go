package services

import (
	"context"
	"io"
	"time"

	"github.com/foundry/npmstore/internal/core/models"
)

// ObjectStore is the remote blob store the storage layer is built on.
// Keys are slash-joined paths. Implementations must overwrite whole objects
// atomically and make a completed write visible to the next read.
type ObjectStore interface {
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Download returns the full body of the object.
	// Returns ErrNotFound if the key does not exist.
	Download(ctx context.Context, key string) ([]byte, error)

	// DownloadStream opens the object for streaming and returns its length.
	DownloadStream(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Upload writes data as the whole content of key.
	Upload(ctx context.Context, key string, data []byte, opts models.PutOptions) error

	// UploadStream writes everything read from r as the content of key.
	// Nothing is visible under key unless r is consumed to EOF.
	UploadStream(ctx context.Context, key string, r io.Reader, opts models.PutOptions) error

	// Delete removes the object. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, key string) error

	// Properties returns the stored headers and timestamps of the object.
	Properties(ctx context.Context, key string) (*models.ObjectProperties, error)
}

// URLSigner is implemented by stores that can hand out direct download URLs.
type URLSigner interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// IndexProvider persists the local index as a single document.
type IndexProvider interface {
	// Get returns nil and no error when no index has been stored yet.
	Get(ctx context.Context) (*models.LocalIndex, error)

	// Save replaces the stored index.
	Save(ctx context.Context, index *models.LocalIndex) error
}

// SettingsStore is a key/value configuration service.
type SettingsStore interface {
	// GetSetting returns ErrNotFound if the key has never been set.
	GetSetting(ctx context.Context, key string) (*models.Setting, error)

	// SetSetting creates or replaces a setting.
	SetSetting(ctx context.Context, setting models.Setting) error
}

// Authenticator validates request tokens.
type Authenticator interface {
	// ValidateToken checks if a token is valid.
	ValidateToken(token string) bool
}
