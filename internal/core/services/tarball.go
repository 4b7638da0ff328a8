package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/foundry/npmstore/internal/core/models"
)

// TarballWriter is the sink returned by WriteTarball. Bytes written to it
// are streamed to a background upload; Close signals the end of input and
// waits for that upload to settle.
type TarballWriter struct {
	pw     *io.PipeWriter
	upload *pool.ErrorPool
	logger zerolog.Logger

	once sync.Once
	done chan struct{}
	err  error
}

// Write streams p into the upload. It fails once the upload has failed.
func (w *TarballWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Close finalizes the tarball. It returns only after the upload completed
// and reports the upload's error. Later or concurrent calls wait for the
// first one and return the same result.
func (w *TarballWriter) Close() error {
	w.finish(nil)
	return w.err
}

// Abort discards the tarball; nothing becomes visible under its key.
func (w *TarballWriter) Abort(cause error) error {
	if cause == nil {
		cause = errors.New("upload aborted")
	}
	w.finish(cause)
	return w.err
}

// Done is closed exactly once, when the upload has settled.
func (w *TarballWriter) Done() <-chan struct{} {
	return w.done
}

// Err returns the terminal error once Done is closed.
func (w *TarballWriter) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

func (w *TarballWriter) finish(cause error) {
	w.once.Do(func() {
		if cause != nil {
			w.pw.CloseWithError(cause)
		} else {
			w.pw.Close()
		}
		w.err = w.upload.Wait()
		if w.err == nil && cause != nil {
			w.err = cause
		}

		if w.err != nil {
			w.logger.Error().Err(w.err).Msg("error creating package tarball")
		} else {
			w.logger.Debug().Msg("finished uploading package tarball")
		}
		close(w.done)
	})
	<-w.done
}

// WriteTarball opens a sink for the named tarball. The upload starts
// immediately and runs until the sink is closed or aborted.
func (p *PackageStorage) WriteTarball(ctx context.Context, name string) (*TarballWriter, error) {
	if err := ValidateFileName(name); err != nil {
		return nil, err
	}

	key := p.key(name)
	opts := models.PutOptions{ContentType: contentTypeTarball}
	if cc := CacheControl(p.opts.CachePackageSeconds); cc != "" {
		opts.CacheControl = cc
		p.logger.Debug().Int("seconds", p.opts.CachePackageSeconds).Msg("using cache-control on package")
	}

	pr, pw := io.Pipe()
	w := &TarballWriter{
		pw:     pw,
		upload: pool.New().WithErrors(),
		logger: p.logger.With().Str("file", name).Logger(),
		done:   make(chan struct{}),
	}

	// The context is detached so a caller giving up mid-request cannot
	// interrupt an upload that Close is about to commit.
	uploadCtx := context.WithoutCancel(ctx)
	w.upload.Go(func() error {
		err := p.store.UploadStream(uploadCtx, key, pr, opts)
		if err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("uploading %s: %w", key, err)
		}
		pr.Close()
		return nil
	})

	return w, nil
}

// Tarball is an opened tarball. In redirect mode Body is nil and Location
// holds where the caller should send the client instead.
type Tarball struct {
	Body     io.ReadCloser
	Size     int64
	Redirect bool
	Location string
}

// ReadTarball opens the named tarball. It returns ErrNotFound without
// opening anything when the tarball does not exist.
func (p *PackageStorage) ReadTarball(ctx context.Context, name string) (*Tarball, error) {
	if err := ValidateFileName(name); err != nil {
		return nil, err
	}

	key := p.key(name)
	exists, err := p.store.Exists(ctx, key)
	if err != nil {
		p.logger.Error().Err(err).Str("file", name).Msg("error reading package tarball")
		return nil, fmt.Errorf("checking tarball: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: tarball %s/%s", ErrNotFound, p.name, name)
	}

	if p.opts.RedirectTarballs {
		t := &Tarball{Redirect: true}
		if signer, ok := p.store.(URLSigner); ok {
			loc, err := signer.SignedURL(ctx, key, p.opts.RedirectTTL)
			if err != nil {
				return nil, fmt.Errorf("signing tarball url: %w", err)
			}
			t.Location = loc
		}
		return t, nil
	}

	body, size, err := p.store.DownloadStream(ctx, key)
	if err != nil {
		p.logger.Error().Err(err).Str("file", name).Msg("error reading package tarball")
		return nil, fmt.Errorf("downloading tarball: %w", err)
	}
	p.logger.Debug().Str("file", name).Int64("size", size).Msg("finished downloading package tarball")
	return &Tarball{Body: body, Size: size}, nil
}

// HasTarball reports whether the named tarball is stored.
func (p *PackageStorage) HasTarball(ctx context.Context, name string) (bool, error) {
	if err := ValidateFileName(name); err != nil {
		return false, err
	}
	exists, err := p.store.Exists(ctx, p.key(name))
	if err != nil {
		return false, fmt.Errorf("checking tarball: %w", err)
	}
	return exists, nil
}

// RemoveTarball deletes the named tarball.
func (p *PackageStorage) RemoveTarball(ctx context.Context, name string) error {
	return p.DeletePackage(ctx, name)
}
