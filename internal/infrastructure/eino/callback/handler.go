// Package callback 注册 Eino 全局回调，采集模型调用的指标与链路
package callback

import (
	"context"
	"sync"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lesson-forge-api/internal/domain/service"
	"lesson-forge-api/pkg/metrics"
)

type startTimeKey struct{}

var registerOnce sync.Once

// Init 将模型回调追加到 Eino 全局回调链，重复调用无副作用
func Init() {
	registerOnce.Do(func() {
		einocb.AppendGlobalHandlers(Handler())
	})
}

// Handler 只订阅 ChatModel 事件的回调
func Handler() einocb.Handler {
	return cbtemplate.NewHandlerHelper().ChatModel(newChatModelCallbackHandler()).Handler()
}

func newChatModelCallbackHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())
			labels := service.CallLabelsFromContext(ctx)

			attrs := []attribute.KeyValue{
				attribute.String("eino.workflow", labels.Workflow),
				attribute.String("llm.provider", labels.Provider),
				attribute.String("llm.model", modelNameFromInput(input)),
				attribute.Int("lesson.repair_attempt", labels.Attempt),
			}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.node_name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}

			ctx, _ = otel.Tracer("eino").Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			span := trace.SpanFromContext(ctx)
			l := observe(ctx, modelNameFromOutput(output), "success")
			if output != nil && output.TokenUsage != nil {
				usage := output.TokenUsage
				metrics.LLMTokensUsed.WithLabelValues(l.Workflow, l.Provider, l.model, "prompt").Add(float64(usage.PromptTokens))
				metrics.LLMTokensUsed.WithLabelValues(l.Workflow, l.Provider, l.model, "completion").Add(float64(usage.CompletionTokens))
				span.SetAttributes(
					attribute.Int("llm.prompt_tokens", usage.PromptTokens),
					attribute.Int("llm.completion_tokens", usage.CompletionTokens),
				)
			}
			span.End()
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			modelName := ""
			if info != nil {
				modelName = info.Type
			}
			observe(ctx, modelName, "error")

			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return ctx
		},
	}
}

type observedCall struct {
	service.CallLabels
	model string
}

// observe 记录调用次数与耗时
func observe(ctx context.Context, modelName, status string) observedCall {
	l := observedCall{CallLabels: service.CallLabelsFromContext(ctx), model: modelName}
	metrics.LLMCallTotal.WithLabelValues(l.Workflow, l.Provider, l.model, status).Inc()
	if d := elapsedSeconds(ctx); d > 0 {
		metrics.LLMCallDuration.WithLabelValues(l.Workflow, l.Provider, l.model).Observe(d)
	}
	return l
}

func elapsedSeconds(ctx context.Context) float64 {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}

func modelNameFromInput(in *model.CallbackInput) string {
	if in == nil || in.Config == nil {
		return ""
	}
	return in.Config.Model
}

func modelNameFromOutput(out *model.CallbackOutput) string {
	if out == nil || out.Config == nil {
		return ""
	}
	return out.Config.Model
}
