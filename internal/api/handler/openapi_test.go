package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	specpkg "github.com/studentfund/studentfund/api"
	"github.com/studentfund/studentfund/internal/api/handler"
)

func TestOpenAPIHandler_ReturnsJSON(t *testing.T) {
	t.Parallel()

	yamlSpec := []byte(`openapi: "3.1.0"
info:
  title: Test API
  version: "1.0.0"
paths: {}
`)
	h := handler.NewOpenAPIHandler(yamlSpec)
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &result)
	require.NoError(t, err, "response should be valid JSON")

	assert.Equal(t, "3.1.0", result["openapi"])
	info := result["info"].(map[string]interface{})
	assert.Equal(t, "Test API", info["title"])
	assert.Contains(t, result, "paths")
}

func TestOpenAPIHandler_YAMLFormat(t *testing.T) {
	t.Parallel()

	yamlSpec := []byte("openapi: \"3.1.0\"\npaths: {}\n")
	h := handler.NewOpenAPIHandler(yamlSpec)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.json?format=yaml", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Equal(t, yamlSpec, w.Body.Bytes())
}

func TestOpenAPIHandler_InvalidYAML(t *testing.T) {
	t.Parallel()

	h := handler.NewOpenAPIHandler([]byte("paths: [unclosed"))
	w := httptest.NewRecorder()

	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestOpenAPIHandler_EmbeddedDocument(t *testing.T) {
	t.Parallel()

	h := handler.NewOpenAPIHandler(specpkg.OpenAPISpec)
	w := httptest.NewRecorder()

	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Contains(t, doc.Paths, "/auth/login")
	assert.Contains(t, doc.Paths, "/profiles/{id}")
}
