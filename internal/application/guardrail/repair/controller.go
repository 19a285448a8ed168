// Package repair 实现"扫描-定向重写-复扫"的有界修复状态机
package repair

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"lesson-forge-api/internal/domain/entity"
	wfmodel "lesson-forge-api/internal/workflow/model"
	workflowport "lesson-forge-api/internal/workflow/port"
	"lesson-forge-api/pkg/logger"
)

var tracer = otel.Tracer("guardrail.repair")

// State 控制器状态
type State string

const (
	StateDrafted   State = "drafted"
	StateScanned   State = "scanned"
	StateRepairing State = "repairing"
	StateClean     State = "clean"
	StateExhausted State = "exhausted"
	StateCancelled State = "cancelled"
)

// Terminal 是否为终态
func (s State) Terminal() bool {
	return s == StateClean || s == StateExhausted || s == StateCancelled
}

// Scanner 违规扫描
type Scanner interface {
	Scan(ctx context.Context, artifact *wfmodel.Artifact, manifest wfmodel.Manifest) ([]wfmodel.Violation, error)
}

// Outcome 一次修复流程的结果
type Outcome struct {
	State    State
	Artifact *wfmodel.Artifact
	// Initial 首次扫描的违规；Remaining 终态时仍存在的违规
	Initial   []wfmodel.Violation
	Remaining []wfmodel.Violation
	History   []wfmodel.RepairAttempt
	// Trace 经过的状态序列
	Trace []State
	// GenerationCalls 本控制器发起的定向生成调用次数
	GenerationCalls int
}

// Flagged 是否需要人工复核
func (o *Outcome) Flagged() bool {
	return o != nil && o.State == StateExhausted
}

// Controller 修复控制器
type Controller struct {
	client      workflowport.GenerationClient
	scanner     Scanner
	maxAttempts int
}

// NewController 创建控制器；maxAttempts 为内容违规的修复轮数上限
func NewController(client workflowport.GenerationClient, scanner Scanner, maxAttempts int) *Controller {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Controller{client: client, scanner: scanner, maxAttempts: maxAttempts}
}

// MaxAttempts 修复轮数上限
func (c *Controller) MaxAttempts() int {
	return c.maxAttempts
}

// Run 从草稿开始驱动状态机直到终态。
// 每次状态转移前检查 ctx；取消时返回 StateCancelled 且不报错，由调用方区分取消与超时。
func (c *Controller) Run(ctx context.Context, directive *wfmodel.AssembledDirective, draft *wfmodel.Artifact) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "repair.Run")
	defer span.End()

	out := &Outcome{State: StateDrafted, Artifact: draft, Trace: []State{StateDrafted}}
	transition := func(s State) {
		out.State = s
		out.Trace = append(out.Trace, s)
	}
	cancelled := func() bool {
		if ctx.Err() == nil {
			return false
		}
		transition(StateCancelled)
		return true
	}

	if cancelled() {
		return out, nil
	}
	violations, err := c.scanner.Scan(ctx, out.Artifact, directive.Manifest)
	if err != nil {
		if cancelled() {
			return out, nil
		}
		return nil, err
	}
	out.Initial = violations
	transition(StateScanned)

	for {
		if cancelled() {
			out.Remaining = violations
			return out, nil
		}

		if len(violations) == 0 {
			out.Remaining = nil
			transition(StateClean)
			break
		}
		if len(out.History) >= c.maxAttempts {
			out.Remaining = violations
			transition(StateExhausted)
			logger.Warn(ctx, "repair attempts exhausted, artifact will be flagged for review",
				"attempts", len(out.History),
				"violations", len(violations),
				"manifest", directive.Manifest.String(),
			)
			break
		}

		transition(StateRepairing)
		attempt, next, err := c.repairOnce(ctx, directive, out.Artifact, violations, len(out.History)+1)
		out.GenerationCalls++
		if err != nil {
			if cancelled() {
				out.Remaining = violations
				return out, nil
			}
			return nil, err
		}

		after, err := c.scanner.Scan(ctx, next, directive.Manifest)
		if err != nil {
			if cancelled() {
				out.Remaining = violations
				return out, nil
			}
			return nil, err
		}
		attempt.ViolationsAfter = after
		attempt.Repeated = repeated(attempt.TargetedSections, attempt.ViolationsBefore, after)
		if attempt.Repeated {
			logger.Warn(ctx, "repair produced the same violations again",
				"attempt", attempt.AttemptNumber,
				"sections", attempt.TargetedSections,
			)
		}

		out.History = append(out.History, *attempt)
		out.Artifact = next
		violations = after
		transition(StateScanned)
	}

	span.SetAttributes(
		attribute.String("repair.state", string(out.State)),
		attribute.Int("repair.attempts", len(out.History)),
		attribute.Int("repair.remaining", len(out.Remaining)),
	)
	return out, nil
}

// repairOnce 只重写存在违规的章节（含缺失的必需章节），其余章节原文固定，返回合并后的新产物
func (c *Controller) repairOnce(ctx context.Context, directive *wfmodel.AssembledDirective, current *wfmodel.Artifact, violations []wfmodel.Violation, attemptNo int) (*wfmodel.RepairAttempt, *wfmodel.Artifact, error) {
	targets := wfmodel.ViolatingSections(current, violations)
	targetSet := make(map[string]struct{}, len(targets))
	for _, id := range targets {
		targetSet[id] = struct{}{}
	}

	call := &wfmodel.GenerationCall{
		Directive:     directive,
		SectionScope:  targets,
		SectionOrder:  current.SectionIDs(),
		FixedSections: make(map[string]string, len(current.Sections)),
		ScopedDrafts:  make(map[string]wfmodel.Section, len(targets)),
		Corrections:   BuildCorrections(violations),
		FreshnessSeed: directive.FreshnessSeed,
		Attempt:       attemptNo,
	}
	for _, s := range current.Sections {
		if _, ok := targetSet[s.ID]; ok {
			call.ScopedDrafts[s.ID] = s
			continue
		}
		call.FixedSections[s.ID] = s.Content
	}

	attempt := &wfmodel.RepairAttempt{
		AttemptNumber:    attemptNo,
		TargetedSections: targets,
		ViolationsBefore: violations,
	}

	regenerated, err := c.client.Generate(ctx, call)
	if err != nil {
		return attempt, nil, fmt.Errorf("repair attempt %d: %w", attemptNo, err)
	}

	replacements := make(map[string]wfmodel.Section, len(targets))
	for _, s := range regenerated.Sections {
		if _, ok := targetSet[s.ID]; ok {
			replacements[s.ID] = s
		}
	}
	if len(replacements) < len(targets) {
		logger.Warn(ctx, "repair response missing targeted sections, keeping previous text",
			"attempt", attemptNo,
			"targeted", len(targets),
			"returned", len(replacements),
		)
	}
	next := current.ReplaceSections(replacements)
	// 缺失的必需章节按目标顺序补在末尾
	for _, id := range targets {
		if _, ok := current.Section(id); ok {
			continue
		}
		if sec, ok := replacements[id]; ok {
			sec.ID = id
			next.Sections = append(next.Sections, sec)
		}
	}
	return attempt, next, nil
}

// repeated 目标章节修复后的违规集合与修复前完全一致
func repeated(targets []string, before, after []wfmodel.Violation) bool {
	targetSet := make(map[string]struct{}, len(targets))
	for _, id := range targets {
		targetSet[id] = struct{}{}
	}
	keys := func(vs []wfmodel.Violation) map[string]int {
		m := make(map[string]int)
		for _, v := range vs {
			if _, ok := targetSet[v.SectionID]; ok {
				m[v.Key()]++
			}
		}
		return m
	}
	b, a := keys(before), keys(after)
	if len(b) == 0 || len(b) != len(a) {
		return false
	}
	for k, n := range b {
		if a[k] != n {
			return false
		}
	}
	return true
}

// BuildCorrections 为每条违规生成修改指令，指明命中片段与所违反的规则
func BuildCorrections(violations []wfmodel.Violation) []wfmodel.Correction {
	out := make([]wfmodel.Correction, 0, len(violations))
	for _, v := range violations {
		var instruction string
		switch v.DetectorKind {
		case entity.DetectorRequired:
			instruction = fmt.Sprintf("This section must include: %s.", trimRequired(v.Message))
		case entity.DetectorQuoteLength:
			instruction = "Shorten or paraphrase this quotation so it stays within the allowed length."
		default:
			instruction = "Remove or rephrase the offending text so the section complies."
		}
		if v.Hint != "" {
			instruction += " " + v.Hint
		}
		out = append(out, wfmodel.Correction{
			SectionID:   v.SectionID,
			DetectorID:  v.DetectorID,
			MatchedSpan: v.MatchedSpan,
			RuleRef:     v.RuleRef().String(),
			Instruction: instruction,
		})
	}
	return out
}

func trimRequired(msg string) string {
	const prefix = "required text missing: "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
