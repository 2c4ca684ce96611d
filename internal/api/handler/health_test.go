package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentfund/studentfund/internal/api/handler"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error {
	return m.err
}

type healthBody struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database struct {
		Connected bool `json:"connected"`
	} `json:"database"`
	SessionStore struct {
		Connected bool `json:"connected"`
	} `json:"sessionStore"`
}

func TestHealthHandler_Healthy(t *testing.T) {
	// Arrange
	h := handler.NewHealthHandler(&mockPinger{}, &mockPinger{}, "0.1.0")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	// Act
	h.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body healthBody
	decodeData(t, w, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "0.1.0", body.Version)
	assert.True(t, body.Database.Connected)
	assert.True(t, body.SessionStore.Connected)
}

func TestHealthHandler_Degraded(t *testing.T) {
	tests := []struct {
		name     string
		db       handler.Pinger
		sessions handler.Pinger
	}{
		{"database down", &mockPinger{err: errors.New("refused")}, &mockPinger{}},
		{"session store down", &mockPinger{}, &mockPinger{err: errors.New("refused")}},
		{"not configured", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(tt.db, tt.sessions, "0.1.0")
			w := httptest.NewRecorder()

			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, http.StatusOK, w.Code)
			var body healthBody
			decodeData(t, w, &body)
			assert.Equal(t, "degraded", body.Status)
		})
	}
}
