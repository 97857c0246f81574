package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler(nil, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "ok", response.Status)
	assert.NotEmpty(t, response.Timestamp)
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	t.Run("ready when database answers ping", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing()

		handler := NewHealthHandler(map[string]Pinger{
			"database": PingFunc(db.PingContext),
			"redis":    nil,
		}, logger)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "ready", response.Status)
		assert.Equal(t, "healthy", response.Checks["database"])
		assert.Equal(t, "not_configured", response.Checks["redis"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not ready when a dependency fails", func(t *testing.T) {
		handler := NewHealthHandler(map[string]Pinger{
			"redis": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
		}, logger)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "not_ready", response.Status)
		assert.Equal(t, "unhealthy", response.Checks["redis"])
	})

	t.Run("ready with nothing configured", func(t *testing.T) {
		handler := NewHealthHandler(nil, logger)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
