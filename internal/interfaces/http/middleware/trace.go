package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
)

// probePaths 不生成追踪 Span 的探针路径
var probePaths = map[string]struct{}{
	"/health": {},
	"/ready":  {},
	"/live":   {},
}

// Trace OpenTelemetry 追踪中间件，探针请求不采样
func Trace(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		_, probe := probePaths[r.URL.Path]
		return !probe
	}))
}

// TraceContext 将 trace_id 写入 gin 上下文与响应头；日志字段由 logger 从 Span 中读取
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.IsValid() {
			traceID := sc.TraceID().String()
			c.Set("trace_id", traceID)
			c.Header("X-Trace-ID", traceID)
		}
		c.Next()
	}
}
