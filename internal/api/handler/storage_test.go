package handler_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentfund/studentfund/internal/api/handler"
	"github.com/studentfund/studentfund/internal/auth"
	"github.com/studentfund/studentfund/internal/metrics"
	"github.com/studentfund/studentfund/internal/storage"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake image data")

func newStorageHandler(t *testing.T) (*handler.StorageHandler, *storage.FileStore, *metrics.Metrics) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := metrics.New()
	return handler.NewStorageHandler(store, storage.DefaultRegistry(), "http://files.local/", m), store, m
}

func uploadRequest(identity *auth.Identity, bucket, userID, name, contentType string, body []byte) *http.Request {
	req := newRequest(http.MethodPut, "/storage/"+bucket+"/"+userID+"/"+name, bytes.NewReader(body), identity,
		map[string]string{"bucket": bucket, "userID": userID, "name": name})
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func TestStorageUpload_Success(t *testing.T) {
	t.Parallel()

	h, store, m := newStorageHandler(t)
	identity := newIdentity()
	folder := identity.UserID.String()
	w := httptest.NewRecorder()

	h.Upload(w, uploadRequest(identity, storage.BucketProfilePictures, folder, "1700000000000.png", "image/png", pngBytes))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var body struct {
		Bucket    string `json:"bucket"`
		Path      string `json:"path"`
		Size      int64  `json:"size"`
		PublicURL string `json:"publicUrl"`
	}
	decodeData(t, w, &body)
	assert.Equal(t, folder+"/1700000000000.png", body.Path)
	assert.EqualValues(t, len(pngBytes), body.Size)
	assert.Equal(t, "http://files.local/storage/public/profile-pictures/"+folder+"/1700000000000.png", body.PublicURL)

	objects, err := store.List(storage.BucketProfilePictures, folder)
	require.NoError(t, err)
	assert.Len(t, objects, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Uploads.WithLabelValues(storage.BucketProfilePictures, "success")))
}

func TestStorageUpload_NeverOverwrites(t *testing.T) {
	t.Parallel()

	h, _, _ := newStorageHandler(t)
	identity := newIdentity()
	folder := identity.UserID.String()

	w := httptest.NewRecorder()
	h.Upload(w, uploadRequest(identity, storage.BucketBannerImages, folder, "a.png", "image/png", pngBytes))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	h.Upload(w, uploadRequest(identity, storage.BucketBannerImages, folder, "a.png", "image/png", []byte("other")))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "OBJECT_EXISTS", errorCode(t, w))
}

func TestStorageUpload_Rejections(t *testing.T) {
	t.Parallel()

	identity := newIdentity()
	own := identity.UserID.String()
	big := bytes.Repeat([]byte{0}, 5*1024*1024+1)

	tests := []struct {
		name        string
		bucket      string
		userID      string
		contentType string
		body        []byte
		wantCode    int
		wantError   string
	}{
		{"unknown bucket", "documents", own, "image/png", pngBytes, http.StatusNotFound, "BUCKET_NOT_FOUND"},
		{"other user's folder", storage.BucketProfilePictures, newIdentity().UserID.String(), "image/png", pngBytes, http.StatusForbidden, "FORBIDDEN"},
		{"missing content type", storage.BucketProfilePictures, own, "", pngBytes, http.StatusBadRequest, "INVALID_CONTENT_TYPE"},
		{"wrong content type", storage.BucketProfilePictures, own, "application/pdf", pngBytes, http.StatusBadRequest, "INVALID_FILE_TYPE"},
		{"too large", storage.BucketProfilePictures, own, "image/png", big, http.StatusBadRequest, "FILE_TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, _, _ := newStorageHandler(t)
			w := httptest.NewRecorder()

			h.Upload(w, uploadRequest(identity, tt.bucket, tt.userID, "x.png", tt.contentType, tt.body))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantError, errorCode(t, w))
		})
	}
}

func TestStorageList_NewestFirst(t *testing.T) {
	t.Parallel()

	h, store, _ := newStorageHandler(t)
	identity := newIdentity()
	folder := identity.UserID.String()
	for _, name := range []string{"1.png", "2.png"} {
		_, err := store.Put(storage.BucketProfilePictures, folder+"/"+name, bytes.NewReader(pngBytes))
		require.NoError(t, err)
	}
	w := httptest.NewRecorder()

	req := newRequest(http.MethodGet, "/storage/profile-pictures?prefix="+folder, nil, identity,
		map[string]string{"bucket": storage.BucketProfilePictures})
	h.List(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var objects []storage.Object
	decodeData(t, w, &objects)
	require.Len(t, objects, 2)
	assert.Equal(t, "image/png", objects[0].ContentType)
}

func TestStorageDelete_OwnFolderOnly(t *testing.T) {
	t.Parallel()

	h, store, _ := newStorageHandler(t)
	identity := newIdentity()
	own := identity.UserID.String() + "/a.png"
	other := newIdentity().UserID.String() + "/b.png"
	for _, p := range []string{own, other} {
		_, err := store.Put(storage.BucketBannerImages, p, bytes.NewReader(pngBytes))
		require.NoError(t, err)
	}
	params := map[string]string{"bucket": storage.BucketBannerImages}

	w := httptest.NewRecorder()
	h.Delete(w, newRequest(http.MethodDelete, "/storage/banner-images", strings.NewReader(`{"paths":["`+other+`"]}`), identity, params))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	h.Delete(w, newRequest(http.MethodDelete, "/storage/banner-images", strings.NewReader(`{"paths":["`+own+`"]}`), identity, params))
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, _, err := store.Open(storage.BucketBannerImages, own)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	f, _, err := store.Open(storage.BucketBannerImages, other)
	require.NoError(t, err)
	f.Close()
}

func TestStoragePublic(t *testing.T) {
	t.Parallel()

	h, store, _ := newStorageHandler(t)
	p := newIdentity().UserID.String() + "/avatar.png"
	_, err := store.Put(storage.BucketProfilePictures, p, bytes.NewReader(pngBytes))
	require.NoError(t, err)

	t.Run("served with cache header", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Public(w, newRequest(http.MethodGet, "/storage/public/profile-pictures/"+p, nil, nil,
			map[string]string{"bucket": storage.BucketProfilePictures, "*": p}))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, "max-age=3600", w.Header().Get("Cache-Control"))
		assert.Equal(t, pngBytes, w.Body.Bytes())
	})

	t.Run("missing object", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Public(w, newRequest(http.MethodGet, "/storage/public/profile-pictures/nope.png", nil, nil,
			map[string]string{"bucket": storage.BucketProfilePictures, "*": "nope.png"}))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("path traversal", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Public(w, newRequest(http.MethodGet, "/storage/public/profile-pictures/x", nil, nil,
			map[string]string{"bucket": storage.BucketProfilePictures, "*": "../banner-images/x.png"}))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
