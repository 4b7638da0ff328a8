package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/core/services"
	"github.com/foundry/npmstore/internal/util/logging"
)

// Storage is the registry storage the handlers serve.
type Storage interface {
	Add(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	Secret(ctx context.Context) (string, error)
	SetSecret(ctx context.Context, secret string) error
	PackageStorage(name string) (*services.PackageStorage, error)
}

// Handler holds all HTTP handlers and their dependencies.
type Handler struct {
	storage Storage
	auth    services.Authenticator
	logger  zerolog.Logger
	locksMu sync.Mutex
	locks   map[string]*keyLock
}

// New creates a new Handler with the given dependencies.
func New(storage Storage, auth services.Authenticator, logger zerolog.Logger) *Handler {
	return &Handler{
		storage: storage,
		auth:    auth,
		logger:  logger,
		locks:   make(map[string]*keyLock),
	}
}

// Router returns the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestIDMiddleware)
	r.Use(h.loggingMiddleware)
	r.Use(h.authMiddleware)

	r.Get("/api/v1/packages", h.ListPackages)
	r.Get("/api/v1/packages/{package}", h.GetPackage)
	r.Put("/api/v1/packages/{package}", h.CreatePackage)
	r.Post("/api/v1/packages/{package}", h.SavePackage)
	r.Delete("/api/v1/packages/{package}", h.DeletePackage)
	r.Put("/api/v1/packages/{package}/dist-tags/{tag}", h.SetDistTag)
	r.Put("/api/v1/packages/{package}/-/{file}", h.UploadTarball)
	r.Get("/api/v1/packages/{package}/-/{file}", h.DownloadTarball)
	r.Delete("/api/v1/packages/{package}/-/{file}", h.DeleteTarball)
	r.Get("/api/v1/secret", h.GetSecret)
	r.Put("/api/v1/secret", h.PutSecret)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// requestIDMiddleware adds a unique request ID to each request.
func (h *Handler) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := logging.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs each request.
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logging.LogRequest(h.logger, r.Context(), r.Method, r.URL.Path, rw.status, rw.written, time.Since(start))
	})
}

// authMiddleware validates the bearer token.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if !h.auth.ValidateToken(token) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListPackages handles GET /api/v1/packages
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	names, err := h.storage.List(r.Context())
	if err != nil {
		h.fail(w, r, err, "listing packages")
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// GetPackage handles GET /api/v1/packages/{package}. A package without a
// manifest gets an empty one.
func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	ps, ok := h.packageStorage(w, r)
	if !ok {
		return
	}

	m, created, err := ps.GetOrCreatePackage(r.Context())
	if err != nil {
		h.fail(w, r, err, "reading package")
		return
	}
	if created {
		h.logger.Info().
			Str("request_id", logging.RequestID(r.Context())).
			Str("package", ps.Name()).
			Msg("package data precreated")
	}
	writeJSON(w, http.StatusOK, m)
}

// CreatePackage handles PUT /api/v1/packages/{package}
func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	ps, ok := h.packageStorage(w, r)
	if !ok {
		return
	}
	m, ok := decodeManifest(w, r, ps.Name())
	if !ok {
		return
	}

	unlock := h.lock(ps.Name())
	defer unlock()

	if err := ps.CreatePackage(r.Context(), m); err != nil {
		h.fail(w, r, err, "creating package")
		return
	}
	if err := h.storage.Add(r.Context(), ps.Name()); err != nil {
		h.fail(w, r, err, "adding package to index")
		return
	}

	h.logger.Info().
		Str("request_id", logging.RequestID(r.Context())).
		Str("package", ps.Name()).
		Msg("package created")

	writeJSON(w, http.StatusCreated, m)
}

// SavePackage handles POST /api/v1/packages/{package}
func (h *Handler) SavePackage(w http.ResponseWriter, r *http.Request) {
	ps, ok := h.packageStorage(w, r)
	if !ok {
		return
	}
	m, ok := decodeManifest(w, r, ps.Name())
	if !ok {
		return
	}

	unlock := h.lock(ps.Name())
	defer unlock()

	if err := ps.SavePackage(r.Context(), m); err != nil {
		h.fail(w, r, err, "saving package")
		return
	}
	// A document precreated by a read was never listed.
	if err := h.storage.Add(r.Context(), ps.Name()); err != nil {
		h.fail(w, r, err, "adding package to index")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// SetDistTag handles PUT /api/v1/packages/{package}/dist-tags/{tag}. The
// body is the JSON-encoded version string.
func (h *Handler) SetDistTag(w http.ResponseWriter, r *http.Request) {
	ps, ok := h.packageStorage(w, r)
	if !ok {
		return
	}
	tag, ok := pathParam(w, r, "tag")
	if !ok {
		return
	}

	var version string
	if err := json.NewDecoder(r.Body).Decode(&version); err != nil || version == "" {
		writeError(w, http.StatusBadRequest, "body must be a JSON string naming a version")
		return
	}

	unlock := h.lock(ps.Name())
	defer unlock()

	m, err := ps.UpdatePackage(r.Context(), func(m *models.Manifest) error {
		if _, ok := m.Versions[version]; !ok {
			return fmt.Errorf("%w: version %s of %s", services.ErrNotFound, version, ps.Name())
		}
		if m.DistTags == nil {
			m.DistTags = map[string]string{}
		}
		m.DistTags[tag] = version
		return nil
	}, nil)
	if err != nil {
		h.fail(w, r, err, "setting dist-tag")
		return
	}
	writeJSON(w, http.StatusOK, m.DistTags)
}

// DeletePackage handles DELETE /api/v1/packages/{package}
func (h *Handler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	ps, ok := h.packageStorage(w, r)
	if !ok {
		return
	}

	unlock := h.lock(ps.Name())
	defer unlock()

	if err := ps.DeletePackage(r.Context(), services.MetadataFile); err != nil {
		h.fail(w, r, err, "deleting package")
		return
	}
	if err := ps.RemovePackage(r.Context()); err != nil {
		h.fail(w, r, err, "removing package")
		return
	}
	if err := h.storage.Remove(r.Context(), ps.Name()); err != nil {
		h.fail(w, r, err, "removing package from index")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// UploadTarball handles PUT /api/v1/packages/{package}/-/{file}
func (h *Handler) UploadTarball(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ps, ok := h.packageStorage(w, r)
	if !ok {
		return
	}
	file, ok := pathParam(w, r, "file")
	if !ok {
		return
	}

	unlock := h.lock(ps.Name() + "/" + file)
	defer unlock()

	exists, err := ps.HasTarball(r.Context(), file)
	if err != nil {
		h.fail(w, r, err, "checking existing tarball")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, fmt.Sprintf("tarball %s/%s already exists", ps.Name(), file))
		return
	}

	sink, err := ps.WriteTarball(r.Context(), file)
	if err != nil {
		h.fail(w, r, err, "opening tarball")
		return
	}

	size, err := io.Copy(sink, r.Body)
	if err != nil {
		sink.Abort(err)
		h.fail(w, r, err, "streaming tarball")
		return
	}
	if err := sink.Close(); err != nil {
		h.fail(w, r, err, "storing tarball")
		return
	}

	h.logger.Info().
		Str("request_id", logging.RequestID(r.Context())).
		Str("package", ps.Name()).
		Str("file", file).
		Int64("size", size).
		Dur("upload_latency", time.Since(start)).
		Msg("tarball upload completed")

	writeJSON(w, http.StatusCreated, models.UploadResponse{
		Package: ps.Name(),
		File:    file,
		Size:    size,
	})
}

// DownloadTarball handles GET /api/v1/packages/{package}/-/{file}
func (h *Handler) DownloadTarball(w http.ResponseWriter, r *http.Request) {
	ps, ok := h.packageStorage(w, r)
	if !ok {
		return
	}
	file, ok := pathParam(w, r, "file")
	if !ok {
		return
	}

	tb, err := ps.ReadTarball(r.Context(), file)
	if err != nil {
		h.fail(w, r, err, "reading tarball")
		return
	}

	if tb.Redirect {
		if tb.Location == "" {
			h.fail(w, r, errors.New("store cannot produce a redirect location"), "redirecting tarball")
			return
		}
		http.Redirect(w, r, tb.Location, http.StatusFound)
		return
	}
	defer tb.Body.Close()

	w.Header().Set("Content-Type", "application/x-compressed")
	w.Header().Set("Content-Length", strconv.FormatInt(tb.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, tb.Body); err != nil {
		h.logger.Error().
			Err(err).
			Str("request_id", logging.RequestID(r.Context())).
			Str("package", ps.Name()).
			Str("file", file).
			Msg("streaming tarball response")
	}
}

// DeleteTarball handles DELETE /api/v1/packages/{package}/-/{file}
func (h *Handler) DeleteTarball(w http.ResponseWriter, r *http.Request) {
	ps, ok := h.packageStorage(w, r)
	if !ok {
		return
	}
	file, ok := pathParam(w, r, "file")
	if !ok {
		return
	}

	if err := ps.RemoveTarball(r.Context(), file); err != nil {
		h.fail(w, r, err, "deleting tarball")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type secretBody struct {
	Secret string `json:"secret"`
}

// GetSecret handles GET /api/v1/secret
func (h *Handler) GetSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := h.storage.Secret(r.Context())
	if err != nil {
		h.fail(w, r, err, "reading secret")
		return
	}
	writeJSON(w, http.StatusOK, secretBody{Secret: secret})
}

// PutSecret handles PUT /api/v1/secret
func (h *Handler) PutSecret(w http.ResponseWriter, r *http.Request) {
	var body secretBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.storage.SetSecret(r.Context(), body.Secret); err != nil {
		h.fail(w, r, err, "saving secret")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Helper functions

func (h *Handler) packageStorage(w http.ResponseWriter, r *http.Request) (*services.PackageStorage, bool) {
	name, ok := pathParam(w, r, "package")
	if !ok {
		return nil, false
	}
	ps, err := h.storage.PackageStorage(name)
	if err != nil {
		h.fail(w, r, err, "resolving package")
		return nil, false
	}
	return ps, true
}

// pathParam returns the decoded URL parameter. Routing runs on the raw path
// so that scoped names can carry an escaped slash.
func pathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, key))
	if err != nil || v == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
		return "", false
	}
	return v, true
}

func decodeManifest(w http.ResponseWriter, r *http.Request, name string) (*models.Manifest, bool) {
	var m models.Manifest
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid package document")
		return nil, false
	}
	if m.Name == "" {
		m.Name = name
	}
	if m.Name != name {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("document name %q does not match package %q", m.Name, name))
		return nil, false
	}
	return &m, true
}

// fail writes the response for err. Only unexpected errors are logged here;
// the services already log their own failures with full context.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().
			Err(err).
			Str("request_id", logging.RequestID(r.Context())).
			Msg(op)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrUnimplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Message: msg,
	})
}

// responseWriter wraps http.ResponseWriter to capture status and bytes written.
type responseWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// lock serializes requests touching the same key within this process.
func (h *Handler) lock(key string) func() {
	h.locksMu.Lock()
	l, ok := h.locks[key]
	if !ok {
		l = &keyLock{}
		h.locks[key] = l
	}
	l.refs++
	h.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		h.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.locks, key)
		}
		h.locksMu.Unlock()
	}
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}
