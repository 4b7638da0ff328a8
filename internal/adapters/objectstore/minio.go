package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/core/services"
)

const defaultPresignTTL = 15 * time.Minute

var (
	_ services.ObjectStore = (*DiskStore)(nil)
	_ services.ObjectStore = (*MinioStore)(nil)
	_ services.URLSigner   = (*MinioStore)(nil)
)

// MinioConfig holds the connection settings of an S3-compatible store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps objects in a bucket of an S3-compatible service.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the service and creates the bucket if missing.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Exists checks if an object is stored under key.
func (m *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
	return true, nil
}

// Download reads the whole object.
func (m *MinioStore) Download(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := m.DownloadStream(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, mapError(key, err)
	}
	return data, nil
}

// DownloadStream opens the object and returns its size.
func (m *MinioStore) DownloadStream(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, mapError(key, err)
	}
	// GetObject is lazy; Stat issues the request and surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, mapError(key, err)
	}
	return obj, info.Size, nil
}

// Upload writes data as the whole content of key.
func (m *MinioStore) Upload(ctx context.Context, key string, data []byte, opts models.PutOptions) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), putOptions(opts))
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// UploadStream streams r of unknown length as a multipart upload. The object
// only appears once the upload completes.
func (m *MinioStore) UploadStream(ctx context.Context, key string, r io.Reader, opts models.PutOptions) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, -1, putOptions(opts))
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is
// checked first to report a missing key.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	exists, err := m.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: object %s", services.ErrNotFound, key)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapError(key, err)
	}
	return nil
}

// Properties returns the object's stored headers and timestamps. S3 keeps no
// creation time separate from the last write.
func (m *MinioStore) Properties(ctx context.Context, key string) (*models.ObjectProperties, error) {
	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapError(key, err)
	}
	return &models.ObjectProperties{
		Key:          key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		CacheControl: info.Metadata.Get("Cache-Control"),
		ETag:         info.ETag,
		CreatedAt:    info.LastModified,
		ModifiedAt:   info.LastModified,
	}, nil
}

// SignedURL returns a presigned GET URL for key.
func (m *MinioStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return u.String(), nil
}

func putOptions(opts models.PutOptions) minio.PutObjectOptions {
	return minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
	}
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}

func mapError(key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: object %s", services.ErrNotFound, key)
	}
	return fmt.Errorf("object %s: %w", key, err)
}
