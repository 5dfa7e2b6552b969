package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	handler := &Handler{}

	rr := httptest.NewRecorder()
	handler.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestReady(t *testing.T) {
	ready := func(t *testing.T, h *Handler) (int, readinessResponse) {
		t.Helper()
		rr := httptest.NewRecorder()
		h.Ready(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
		var body readinessResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		return rr.Code, body
	}

	t.Run("all dependencies up", func(t *testing.T) {
		h := New(nil, nil, nil, nil,
			HealthCheck{Name: "database", Checker: &MockHealthChecker{}},
			HealthCheck{Name: "nats", Checker: &MockHealthChecker{}},
		)

		code, body := ready(t, h)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, map[string]string{"database": "ok", "nats": "ok"}, body.Checks)
	})

	t.Run("one dependency down", func(t *testing.T) {
		h := New(nil, nil, nil, nil,
			HealthCheck{Name: "database", Checker: &MockHealthChecker{}},
			HealthCheck{Name: "redis", Checker: HealthCheckFunc(func(ctx context.Context) error {
				return errors.New("connection refused")
			})},
		)

		code, body := ready(t, h)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unavailable", body.Status)
		assert.Equal(t, "ok", body.Checks["database"])
		assert.Equal(t, "unavailable", body.Checks["redis"])
	})

	t.Run("no checks registered", func(t *testing.T) {
		code, body := ready(t, New(nil, nil, nil, nil))

		assert.Equal(t, http.StatusOK, code)
		assert.Empty(t, body.Checks)
	})

	t.Run("pings get a short deadline", func(t *testing.T) {
		var deadline time.Time
		h := New(nil, nil, nil, nil, HealthCheck{Name: "database", Checker: &MockHealthChecker{
			PingFunc: func(ctx context.Context) error {
				deadline, _ = ctx.Deadline()
				return nil
			},
		}})

		ready(t, h)

		assert.WithinDuration(t, time.Now().Add(readyTimeout), deadline, time.Second)
	})
}
