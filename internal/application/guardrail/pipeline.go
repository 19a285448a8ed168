// Package guardrail 编排指令组装、生成、违规修复与持久化闸门
package guardrail

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lesson-forge-api/internal/application/guardrail/repair"
	wfmodel "lesson-forge-api/internal/workflow/model"
	workflowport "lesson-forge-api/internal/workflow/port"
	apperrors "lesson-forge-api/pkg/errors"
	"lesson-forge-api/pkg/logger"
	"lesson-forge-api/pkg/metrics"
)

var tracer = otel.Tracer("guardrail.pipeline")

// Outcome 流水线终态
type Outcome string

const (
	OutcomeClean     Outcome = "clean"
	OutcomeFlagged   Outcome = "flagged"
	OutcomeCancelled Outcome = "cancelled"
)

// DirectiveAssembler 指令组装
type DirectiveAssembler interface {
	Assemble(ctx context.Context, req *wfmodel.GenerationRequest) (*wfmodel.AssembledDirective, error)
}

// Result 一次流水线运行的结果。取消时只有 Outcome 有意义。
type Result struct {
	Outcome         Outcome
	LessonID        string
	Artifact        *wfmodel.Artifact
	Directive       *wfmodel.AssembledDirective
	Remaining       []wfmodel.Violation
	History         []wfmodel.RepairAttempt
	GenerationCalls int
	ReviewSummary   string
}

// Options 流水线参数
type Options struct {
	MaxAttempts    int
	OverallTimeout time.Duration
	RetryBackoff   time.Duration
}

// Pipeline 课程生成流水线
type Pipeline struct {
	assembler  DirectiveAssembler
	client     workflowport.GenerationClient
	controller *repair.Controller
	gate       Gate
	timeout    time.Duration
}

// NewPipeline 创建流水线；生成客户端会被包上一次传输层重试
func NewPipeline(assembler DirectiveAssembler, client workflowport.GenerationClient, scanner repair.Scanner, gate Gate, opts Options) *Pipeline {
	retrying := WithTransportRetry(client, opts.RetryBackoff)
	timeout := opts.OverallTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Pipeline{
		assembler:  assembler,
		client:     retrying,
		controller: repair.NewController(retrying, scanner, opts.MaxAttempts),
		gate:       gate,
		timeout:    timeout,
	}
}

// RunOption 单次运行选项
type RunOption func(*runOptions)

type runOptions struct {
	timeout time.Duration
}

// WithTimeout 覆盖本次运行的总超时
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Run 执行一次完整流水线：组装 → 生成 → 修复 → 闸门。
// 调用方取消时返回 OutcomeCancelled 且 err 为 nil；超出总超时返回 ErrPipelineTimeout。两种情况都不会落库。
func (p *Pipeline) Run(ctx context.Context, req *wfmodel.GenerationRequest, opts ...RunOption) (*Result, error) {
	o := runOptions{timeout: p.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	start := time.Now()
	res, err := p.run(ctx, req)

	label := "failed"
	switch {
	case err == nil:
		label = string(res.Outcome)
	case errors.Is(err, apperrors.ErrPipelineTimeout):
		label = "timeout"
	}
	metrics.PipelineRunsTotal.WithLabelValues(label).Inc()
	metrics.PipelineDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("pipeline.outcome", label))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error(ctx, "lesson pipeline failed", err, "outcome", label)
		return nil, err
	}

	logger.Info(ctx, "lesson pipeline finished",
		"outcome", label,
		"lesson_id", res.LessonID,
		"repair_attempts", len(res.History),
		"generation_calls", res.GenerationCalls,
		"remaining_violations", len(res.Remaining),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req *wfmodel.GenerationRequest) (*Result, error) {
	if res, stop, err := interrupted(ctx); stop {
		return res, err
	}

	directive, err := p.assembler.Assemble(ctx, req)
	if err != nil {
		if res, stop, ierr := interrupted(ctx); stop {
			return res, ierr
		}
		return nil, err
	}
	logger.Debug(ctx, "directive assembled",
		"manifest", directive.Manifest.String(),
		"fragments", len(directive.Fragments),
	)

	if res, stop, err := interrupted(ctx); stop {
		return res, err
	}
	draft, err := p.client.Generate(ctx, &wfmodel.GenerationCall{
		Directive:     directive,
		FreshnessSeed: directive.FreshnessSeed,
	})
	if err != nil {
		if res, stop, ierr := interrupted(ctx); stop {
			return res, ierr
		}
		return nil, err
	}

	outcome, err := p.controller.Run(ctx, directive, draft)
	if err != nil {
		if res, stop, ierr := interrupted(ctx); stop {
			return res, ierr
		}
		return nil, err
	}
	if outcome.State == repair.StateCancelled {
		if res, stop, ierr := interrupted(ctx); stop {
			return res, ierr
		}
		return &Result{Outcome: OutcomeCancelled}, nil
	}
	metrics.RepairAttempts.Observe(float64(len(outcome.History)))

	if res, stop, err := interrupted(ctx); stop {
		return res, err
	}
	lessonID, err := p.gate.Save(ctx, &SaveRequest{
		RequestID:     req.RequestID,
		Artifact:      outcome.Artifact,
		Manifest:      directive.Manifest,
		Flagged:       outcome.Flagged(),
		Remaining:     outcome.Remaining,
		History:       outcome.History,
		FreshnessSeed: directive.FreshnessSeed,
	})
	if err != nil {
		if res, stop, ierr := interrupted(ctx); stop {
			return res, ierr
		}
		return nil, err
	}

	res := &Result{
		Outcome:         OutcomeClean,
		LessonID:        lessonID,
		Artifact:        outcome.Artifact,
		Directive:       directive,
		Remaining:       outcome.Remaining,
		History:         outcome.History,
		GenerationCalls: 1 + outcome.GenerationCalls,
	}
	if outcome.Flagged() {
		res.Outcome = OutcomeFlagged
		res.ReviewSummary = ReviewSummary(outcome.Remaining, len(outcome.History))
	}
	return res, nil
}

// interrupted 区分调用方取消与总超时
func interrupted(ctx context.Context) (*Result, bool, error) {
	err := ctx.Err()
	if err == nil {
		return nil, false, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, true, apperrors.ErrPipelineTimeout.WithError(err)
	}
	return &Result{Outcome: OutcomeCancelled}, true, nil
}
