package guardrail

import (
	"context"
	"time"

	wfmodel "lesson-forge-api/internal/workflow/model"
	workflowport "lesson-forge-api/internal/workflow/port"
	apperrors "lesson-forge-api/pkg/errors"
	"lesson-forge-api/pkg/logger"
	"lesson-forge-api/pkg/metrics"
)

// retryingClient 传输层失败（超时、响应无法解析）时退避后重试一次，与内容修复轮数分开计算
type retryingClient struct {
	next    workflowport.GenerationClient
	backoff time.Duration
}

// WithTransportRetry 为生成客户端加上一次重试；第二次失败返回 ErrGenerationFailed
func WithTransportRetry(next workflowport.GenerationClient, backoff time.Duration) workflowport.GenerationClient {
	return &retryingClient{next: next, backoff: backoff}
}

func (c *retryingClient) Generate(ctx context.Context, call *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
	scope := "full"
	if call.Scoped() {
		scope = "scoped"
	}

	art, err := c.next.Generate(ctx, call)
	if err == nil {
		metrics.GenerationCallsTotal.WithLabelValues(scope, "success").Inc()
		return art, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.GenerationCallsTotal.WithLabelValues(scope, "cancelled").Inc()
		return nil, ctxErr
	}

	metrics.GenerationCallsTotal.WithLabelValues(scope, "retry").Inc()
	logger.Warn(ctx, "generation call failed, retrying once",
		"scope", scope,
		"attempt", call.Attempt,
		"backoff", c.backoff.String(),
		"error", err.Error(),
	)

	if c.backoff > 0 {
		timer := time.NewTimer(c.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	art, err = c.next.Generate(ctx, call)
	if err == nil {
		metrics.GenerationCallsTotal.WithLabelValues(scope, "success").Inc()
		return art, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.GenerationCallsTotal.WithLabelValues(scope, "cancelled").Inc()
		return nil, ctxErr
	}
	metrics.GenerationCallsTotal.WithLabelValues(scope, "error").Inc()
	return nil, apperrors.ErrGenerationFailed.WithDetail(scope).WithError(err)
}
