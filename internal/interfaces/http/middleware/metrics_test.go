package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"lesson-forge-api/pkg/metrics"
)

func TestMetrics_SkipsProbes(t *testing.T) {
	r := gin.New()
	r.Use(Metrics("/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/lessons/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200"))
	serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/lessons/l-1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/lessons/l-2", nil))

	assert.Equal(t, before, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/lessons/:id", "200")))
	assert.Zero(t, testutil.ToFloat64(metrics.HTTPRequestsInFlight))
}
