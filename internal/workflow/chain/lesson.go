// Package chain 封装面向大模型的生成调用
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	llmctx "lesson-forge-api/internal/domain/service"
	wfmodel "lesson-forge-api/internal/workflow/model"
	wfnode "lesson-forge-api/internal/workflow/node"
	workflowport "lesson-forge-api/internal/workflow/port"
	workflowprompt "lesson-forge-api/internal/workflow/prompt"
	"lesson-forge-api/pkg/logger"
)

const (
	workflowLessonGenerate = "lesson_generate"
	workflowLessonRepair   = "lesson_repair"

	maxSpanRunes = 160
)

// LessonChain 基于 Eino ChatModel 的生成客户端
type LessonChain struct {
	factory  workflowport.ChatModelFactory
	prompts  *workflowprompt.Registry
	provider string
	model    string
}

// NewLessonChain 创建课程生成链；provider/model 为空时使用工厂默认值
func NewLessonChain(factory workflowport.ChatModelFactory, provider, modelName string) *LessonChain {
	return &LessonChain{
		factory:  factory,
		prompts:  workflowprompt.NewRegistry(),
		provider: strings.TrimSpace(provider),
		model:    strings.TrimSpace(modelName),
	}
}

// Generate 执行一次生成调用，见 GenerationClient
func (c *LessonChain) Generate(ctx context.Context, call *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if call == nil || call.Directive == nil {
		return nil, fmt.Errorf("generation call requires an assembled directive")
	}

	workflow := workflowLessonGenerate
	promptID := workflowprompt.PromptLessonGenV1
	if call.Scoped() {
		workflow = workflowLessonRepair
		promptID = workflowprompt.PromptLessonRepairV1
	}

	ctx = llmctx.WithCallLabels(ctx, llmctx.CallLabels{Workflow: workflow, Provider: c.provider, Attempt: call.Attempt})
	chatModel, err := c.factory.Get(ctx, c.provider)
	if err != nil {
		return nil, err
	}

	msgs, err := c.formatMessages(ctx, promptID, call)
	if err != nil {
		return nil, err
	}

	outMsg, err := chatModel.Generate(ctx, msgs, c.modelOptions(true)...)
	if err != nil && wfnode.IsResponseFormatRejected(err) {
		logger.Warn(ctx, "llm json response_format not supported, fallback to prompt-only",
			"provider", c.provider,
			"model", c.model,
			"error", err.Error(),
		)
		outMsg, err = chatModel.Generate(ctx, msgs, c.modelOptions(false)...)
	}
	if err != nil {
		return nil, err
	}
	if outMsg == nil || strings.TrimSpace(outMsg.Content) == "" {
		return nil, fmt.Errorf("%w: empty llm response", workflowport.ErrMalformedResponse)
	}

	return ParseArtifact(outMsg.Content, call)
}

// ParseArtifact 解析模型输出并按调用范围校验。
// 整篇生成要求覆盖章节规划；定向修复只保留范围内章节，且范围内章节必须齐全。
func ParseArtifact(content string, call *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
	plan := call.Directive.SectionPlan
	if call.Scoped() {
		plan = call.SectionScope
	}

	art, err := wfnode.ParseSections(content, plan)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workflowport.ErrMalformedResponse, err)
	}

	seen := make(map[string]struct{}, len(art.Sections))
	for _, s := range art.Sections {
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate section %q", workflowport.ErrMalformedResponse, s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	if !call.Scoped() {
		for _, id := range plan {
			s, ok := art.Section(id)
			if !ok || strings.TrimSpace(s.Content) == "" {
				return nil, fmt.Errorf("%w: missing section %q", workflowport.ErrMalformedResponse, id)
			}
		}
		return art, nil
	}

	scoped := &wfmodel.Artifact{Title: art.Title, Sections: make([]wfmodel.Section, 0, len(call.SectionScope))}
	for _, id := range call.SectionScope {
		s, ok := art.Section(id)
		if !ok || strings.TrimSpace(s.Content) == "" {
			return nil, fmt.Errorf("%w: missing scoped section %q", workflowport.ErrMalformedResponse, id)
		}
		scoped.Sections = append(scoped.Sections, s)
	}
	return scoped, nil
}

func (c *LessonChain) formatMessages(ctx context.Context, id workflowprompt.PromptID, call *wfmodel.GenerationCall) ([]*schema.Message, error) {
	tpl, err := c.prompts.ChatTemplate(id)
	if err != nil {
		return nil, err
	}

	d := call.Directive
	vars := map[string]any{
		"directive":      d.Render(),
		"section_plan":   strings.Join(d.SectionPlan, ", "),
		"passage":        valueOrNone(d.Content.Passage),
		"topic":          valueOrNone(d.Content.Topic),
		"notes":          valueOrNone(d.Content.Notes),
		"freshness_seed": valueOrNone(call.FreshnessSeed),
	}
	if call.Scoped() {
		vars["section_scope"] = strings.Join(call.SectionScope, ", ")
		vars["fixed_sections"] = renderFixedSections(call)
		vars["scoped_sections"] = renderScopedSections(call)
		vars["corrections"] = renderCorrections(call.Corrections)
	}
	return tpl.Format(ctx, vars)
}

func (c *LessonChain) modelOptions(enableJSON bool) []model.Option {
	opts := make([]model.Option, 0, 2)
	if c.model != "" {
		opts = append(opts, model.WithModel(c.model))
	}
	if enableJSON {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{"type": "json_object"},
		}))
	}
	return opts
}

func renderFixedSections(call *wfmodel.GenerationCall) string {
	if len(call.FixedSections) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, id := range call.SectionOrder {
		content, ok := call.FixedSections[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n%s\n\n", id, strings.TrimSpace(content))
	}
	return strings.TrimSpace(b.String())
}

func renderScopedSections(call *wfmodel.GenerationCall) string {
	items := make([]wfmodel.Section, 0, len(call.SectionScope))
	for _, id := range call.SectionScope {
		s, ok := call.ScopedDrafts[id]
		if !ok {
			s = wfmodel.Section{ID: id}
		}
		s.ID = id
		items = append(items, s)
	}
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return strings.Join(call.SectionScope, ", ")
	}
	return string(raw)
}

func renderCorrections(corrections []wfmodel.Correction) string {
	if len(corrections) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(corrections))
	for i, c := range corrections {
		line := fmt.Sprintf("%d. [%s] %s", i+1, c.SectionID, c.Instruction)
		if c.MatchedSpan != "" {
			line += fmt.Sprintf(" Offending text: %q.", wfnode.Truncate(c.MatchedSpan, maxSpanRunes))
		}
		line += fmt.Sprintf(" (rule %s, detector %s)", c.RuleRef, c.DetectorID)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func valueOrNone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(none)"
	}
	return s
}
