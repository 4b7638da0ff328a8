package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/core/services"
)

// DiskStore stores objects on the local filesystem.
//
// Layout:
//
//	dataDir/objects/<key>        object body
//	dataDir/attrs/<key>.json     content type, cache-control, etag, timestamps
//	dataDir/tmp/                 in-flight uploads
//
// Bodies are written to a temp file first and renamed into place, so a
// reader never observes a partial object.
type DiskStore struct {
	dataDir string
}

type diskAttrs struct {
	ContentType  string    `json:"content_type"`
	CacheControl string    `json:"cache_control,omitempty"`
	ETag         string    `json:"etag"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewDiskStore creates a new DiskStore rooted at dataDir.
func NewDiskStore(dataDir string) (*DiskStore, error) {
	for _, dir := range []string{"objects", "attrs", "tmp"} {
		if err := os.MkdirAll(filepath.Join(dataDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", dir, err)
		}
	}
	return &DiskStore{dataDir: dataDir}, nil
}

// Exists checks if an object is stored under key.
func (s *DiskStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking object: %w", err)
	}
	return !info.IsDir(), nil
}

// Download reads the whole object.
func (s *DiskStore) Download(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := s.DownloadStream(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading object: %w", err)
	}
	return data, nil
}

// DownloadStream opens the object and returns its size.
func (s *DiskStore) DownloadStream(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	p, err := s.objectPath(key)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: object %s", services.ErrNotFound, key)
		}
		return nil, 0, fmt.Errorf("opening object: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat object: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: object %s", services.ErrNotFound, key)
	}
	return f, info.Size(), nil
}

// Upload writes data as the whole content of key.
func (s *DiskStore) Upload(ctx context.Context, key string, data []byte, opts models.PutOptions) error {
	return s.UploadStream(ctx, key, bytes.NewReader(data), opts)
}

// UploadStream streams r into a temp file and renames it into place once r
// is exhausted. A read error discards the temp file.
func (s *DiskStore) UploadStream(ctx context.Context, key string, r io.Reader, opts models.PutOptions) error {
	finalPath, err := s.objectPath(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.dataDir, "tmp"), "upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Ensure cleanup on failure.
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	digest := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, digest), &ctxReader{ctx: ctx, r: r}); err != nil {
		return fmt.Errorf("streaming to file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("moving object to final path: %w", err)
	}
	success = true

	attrs := diskAttrs{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		ETag:         hex.EncodeToString(digest.Sum(nil)),
		CreatedAt:    time.Now().UTC(),
	}
	if prev, err := s.readAttrs(key); err == nil && !prev.CreatedAt.IsZero() {
		attrs.CreatedAt = prev.CreatedAt
	}
	return s.writeAttrs(key, attrs)
}

// Delete removes the object and its attributes.
func (s *DiskStore) Delete(ctx context.Context, key string) error {
	p, err := s.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: object %s", services.ErrNotFound, key)
		}
		return fmt.Errorf("deleting object: %w", err)
	}

	ap, _ := s.attrsPath(key)
	if err := os.Remove(ap); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting object attributes: %w", err)
	}
	return nil
}

// Properties returns the object's stored headers and timestamps.
func (s *DiskStore) Properties(ctx context.Context, key string) (*models.ObjectProperties, error) {
	p, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: object %s", services.ErrNotFound, key)
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	props := &models.ObjectProperties{
		Key:        key,
		Size:       info.Size(),
		CreatedAt:  info.ModTime().UTC(),
		ModifiedAt: info.ModTime().UTC(),
	}
	if attrs, err := s.readAttrs(key); err == nil {
		props.ContentType = attrs.ContentType
		props.CacheControl = attrs.CacheControl
		props.ETag = attrs.ETag
		if !attrs.CreatedAt.IsZero() {
			props.CreatedAt = attrs.CreatedAt
		}
	}
	return props, nil
}

func (s *DiskStore) readAttrs(key string) (*diskAttrs, error) {
	p, err := s.attrsPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var a diskAttrs
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *DiskStore) writeAttrs(key string, a diskAttrs) error {
	p, err := s.attrsPath(key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding object attributes: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating attributes directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.dataDir, "tmp"), "attrs-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing object attributes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("moving object attributes: %w", err)
	}
	return nil
}

func (s *DiskStore) objectPath(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dataDir, "objects", filepath.FromSlash(clean)), nil
}

func (s *DiskStore) attrsPath(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dataDir, "attrs", filepath.FromSlash(clean)+".json"), nil
}

// cleanKey rejects keys that would resolve outside the store.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: key %q", services.ErrInvalidName, key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: key %q", services.ErrInvalidName, key)
	}
	return clean, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
