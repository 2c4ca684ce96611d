package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/studentfund/studentfund/internal/api/middleware"
	"github.com/studentfund/studentfund/internal/api/response"
	"github.com/studentfund/studentfund/internal/metrics"
	"github.com/studentfund/studentfund/internal/storage"
)

const publicCacheControl = "max-age=3600"

type deleteObjectsRequest struct {
	Paths []string `json:"paths"`
}

type uploadResponse struct {
	Bucket    string `json:"bucket"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	PublicURL string `json:"publicUrl"`
}

// StorageHandler handles object uploads, listings, deletions and public reads.
type StorageHandler struct {
	store    *storage.FileStore
	registry *storage.Registry
	baseURL  string
	metrics  *metrics.Metrics
}

// NewStorageHandler creates a new StorageHandler. baseURL prefixes public object URLs.
func NewStorageHandler(store *storage.FileStore, registry *storage.Registry, baseURL string, m *metrics.Metrics) *StorageHandler {
	return &StorageHandler{
		store:    store,
		registry: registry,
		baseURL:  strings.TrimRight(baseURL, "/"),
		metrics:  m,
	}
}

// PublicURL returns the URL an object is served from without authentication.
func (h *StorageHandler) PublicURL(bucket, p string) string {
	return h.baseURL + "/storage/public/" + url.PathEscape(bucket) + "/" + (&url.URL{Path: p}).EscapedPath()
}

func (h *StorageHandler) policy(w http.ResponseWriter, r *http.Request, bucket string) (storage.Policy, bool) {
	p, ok := h.registry.Get(bucket)
	if !ok {
		response.Err(w, http.StatusNotFound, "BUCKET_NOT_FOUND", "Bucket not found", middleware.GetRequestID(r.Context()))
	}
	return p, ok
}

// Upload handles PUT /storage/{bucket}/{userID}/{name}. Existing objects are
// never replaced.
func (h *StorageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	identity := middleware.GetIdentity(r.Context())
	bucket := chi.URLParam(r, "bucket")

	policy, ok := h.policy(w, r, bucket)
	if !ok {
		return
	}

	if chi.URLParam(r, "userID") != identity.UserID.String() {
		response.Err(w, http.StatusForbidden, "FORBIDDEN", "Uploads are only allowed into your own folder", requestID)
		return
	}

	objectPath, err := storage.CleanPath(path.Join(chi.URLParam(r, "userID"), chi.URLParam(r, "name")))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_PATH", "Object path is invalid", requestID)
		return
	}

	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_CONTENT_TYPE", "Content-Type header is required", requestID)
		return
	}

	limit := policy.MaxBytes
	if limit <= 0 {
		limit = maxJSONBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		err = fmt.Errorf("%w: maximum size is %d bytes", storage.ErrTooLarge, limit)
	case err != nil:
		response.Err(w, http.StatusBadRequest, "INVALID_BODY", "Failed to read request body", requestID)
		return
	default:
		err = policy.Check(contentType, int64(len(body)))
	}
	if err != nil {
		h.metrics.Uploads.WithLabelValues(bucket, "rejected").Inc()
		code := "INVALID_FILE_TYPE"
		if errors.Is(err, storage.ErrTooLarge) {
			code = "FILE_TOO_LARGE"
		}
		response.Err(w, http.StatusBadRequest, code, err.Error(), requestID)
		return
	}

	n, err := h.store.Put(bucket, objectPath, bytes.NewReader(body))
	if err != nil {
		if errors.Is(err, storage.ErrObjectExists) {
			h.metrics.Uploads.WithLabelValues(bucket, "exists").Inc()
			response.Err(w, http.StatusConflict, "OBJECT_EXISTS", "An object already exists at this path", requestID)
			return
		}
		h.metrics.Uploads.WithLabelValues(bucket, "error").Inc()
		slog.Error("failed to store object", "bucket", bucket, "path", objectPath, "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to upload file", requestID)
		return
	}
	h.metrics.Uploads.WithLabelValues(bucket, "success").Inc()

	response.Success(w, http.StatusCreated, uploadResponse{
		Bucket:    bucket,
		Path:      objectPath,
		Size:      n,
		PublicURL: h.PublicURL(bucket, objectPath),
	}, requestID)
}

// List handles GET /storage/{bucket}?prefix=.
func (h *StorageHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	bucket := chi.URLParam(r, "bucket")

	if _, ok := h.policy(w, r, bucket); !ok {
		return
	}

	objects, err := h.store.List(bucket, r.URL.Query().Get("prefix"))
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPath) {
			response.Err(w, http.StatusBadRequest, "INVALID_PATH", "Prefix is invalid", requestID)
			return
		}
		slog.Error("failed to list objects", "bucket", bucket, "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list files", requestID)
		return
	}

	response.SuccessList(w, http.StatusOK, objects, len(objects), len(objects), requestID)
}

// Delete handles DELETE /storage/{bucket}. Only objects in the caller's own
// folder may be removed.
func (h *StorageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	identity := middleware.GetIdentity(r.Context())
	bucket := chi.URLParam(r, "bucket")

	if _, ok := h.policy(w, r, bucket); !ok {
		return
	}

	var req deleteObjectsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	folder := identity.UserID.String() + "/"
	for _, p := range req.Paths {
		cleaned, err := storage.CleanPath(p)
		if err != nil || !strings.HasPrefix(cleaned, folder) {
			response.Err(w, http.StatusForbidden, "FORBIDDEN", "Deletes are only allowed in your own folder", requestID)
			return
		}
	}

	if err := h.store.Delete(bucket, req.Paths); err != nil {
		slog.Error("failed to delete objects", "bucket", bucket, "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete files", requestID)
		return
	}

	response.NoContent(w)
}

// Public handles GET /storage/public/{bucket}/*.
func (h *StorageHandler) Public(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	bucket := chi.URLParam(r, "bucket")

	if _, ok := h.policy(w, r, bucket); !ok {
		return
	}

	f, obj, err := h.store.Open(bucket, chi.URLParam(r, "*"))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidPath) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Object not found", requestID)
			return
		}
		slog.Error("failed to open object", "bucket", bucket, "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read file", requestID)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Cache-Control", publicCacheControl)
	http.ServeContent(w, r, obj.Name, obj.CreatedAt, f)
}
