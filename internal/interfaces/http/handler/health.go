// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 2 * time.Second

// HealthChecker 依赖健康检查
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type dependency struct {
	name    string
	checker HealthChecker
}

// HealthHandler 探针处理器
type HealthHandler struct {
	version string
	deps    []dependency
}

// NewHealthHandler 创建探针处理器，依赖通过 Depends 登记
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

// Depends 登记就绪检查依赖；checker 为 nil 时该依赖报告 missing
func (h *HealthHandler) Depends(name string, checker HealthChecker) *HealthHandler {
	h.deps = append(h.deps, dependency{name: name, checker: checker})
	return h
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type dependencyStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type readinessResponse struct {
	Status string                       `json:"status"`
	Checks map[string]*dependencyStatus `json:"checks,omitempty"`
}

// Health GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// Live GET /live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready GET /ready，并发探测全部依赖，任一失败返回 503
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]*dependencyStatus, len(h.deps))
		g      errgroup.Group
	)
	for _, d := range h.deps {
		d := d
		g.Go(func() error {
			st := probe(ctx, d.checker)
			mu.Lock()
			checks[d.name] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	resp := readinessResponse{Status: "ok", Checks: checks}
	for _, st := range checks {
		if st.Status != "ok" {
			resp.Status = "not_ready"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

func probe(ctx context.Context, checker HealthChecker) *dependencyStatus {
	if checker == nil {
		return &dependencyStatus{Status: "missing"}
	}
	start := time.Now()
	err := checker.HealthCheck(ctx)
	st := &dependencyStatus{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		st.Status = "error"
		st.Error = err.Error()
	}
	return st
}
