package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Ready(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	down := checkerFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		h      *HealthHandler
		status int
		checks map[string]string
	}{
		{"all up", NewHealthHandler("v1").Depends("postgres", ok).Depends("redis", ok), http.StatusOK,
			map[string]string{"postgres": "ok", "redis": "ok"}},
		{"redis down", NewHealthHandler("v1").Depends("postgres", ok).Depends("redis", down), http.StatusServiceUnavailable,
			map[string]string{"postgres": "ok", "redis": "error"}},
		{"missing client", NewHealthHandler("v1").Depends("postgres", nil), http.StatusServiceUnavailable,
			map[string]string{"postgres": "missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/ready", tt.h.Ready)
			w := do(r, http.MethodGet, "/ready", "")
			require.Equal(t, tt.status, w.Code)

			var resp readinessResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			got := map[string]string{}
			for name, st := range resp.Checks {
				got[name] = st.Status
			}
			assert.Equal(t, tt.checks, got)
		})
	}
}

func TestHealthHandler_Health(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewHealthHandler("1.4.0").Health)
	w := do(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","version":"1.4.0"}`, w.Body.String())
}
