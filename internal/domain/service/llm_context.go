// Package service 提供跨层共享的上下文标注
package service

import (
	"context"
	"strings"
)

const unknownLabel = "unknown"

// CallLabels 描述一次模型调用的归属，用于指标与链路标签
type CallLabels struct {
	Workflow string
	Provider string
	// Attempt 为定向修复轮次，整篇生成为 0
	Attempt int
}

type callLabelsKey struct{}

// WithCallLabels 合并标注：空字段保留上层已有值
func WithCallLabels(ctx context.Context, labels CallLabels) context.Context {
	if ctx == nil {
		return nil
	}
	cur, _ := ctx.Value(callLabelsKey{}).(CallLabels)
	if w := strings.TrimSpace(labels.Workflow); w != "" {
		cur.Workflow = w
	}
	if p := strings.TrimSpace(labels.Provider); p != "" {
		cur.Provider = p
	}
	if labels.Attempt > 0 {
		cur.Attempt = labels.Attempt
	}
	return context.WithValue(ctx, callLabelsKey{}, cur)
}

// CallLabelsFromContext 返回当前标注，缺失的名称字段填充为 "unknown"
func CallLabelsFromContext(ctx context.Context) CallLabels {
	var l CallLabels
	if ctx != nil {
		l, _ = ctx.Value(callLabelsKey{}).(CallLabels)
	}
	if l.Workflow == "" {
		l.Workflow = unknownLabel
	}
	if l.Provider == "" {
		l.Provider = unknownLabel
	}
	return l
}
