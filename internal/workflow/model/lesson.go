package model

import (
	"fmt"
	"sort"
	"strings"

	"lesson-forge-api/internal/domain/entity"
)

// DefaultSectionPlan 未指定章节规划时的默认结构
var DefaultSectionPlan = []string{"opening", "body-1", "body-2", "body-3", "closing"}

// RuleSelection 请求方对某一类别的规则集选择；Key 为空取默认，Version 为 0 取最新
type RuleSelection struct {
	Key     string `json:"key,omitempty"`
	Version int    `json:"version,omitempty"`
}

// AudienceProfile 受众画像
type AudienceProfile struct {
	AgeGroup      string `json:"age_group,omitempty"`
	TargetMinutes int    `json:"target_minutes,omitempty"`
	TargetWords   int    `json:"target_words,omitempty"`
	Setting       string `json:"setting,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// Empty 是否未填写任何字段
func (p AudienceProfile) Empty() bool {
	return p == AudienceProfile{}
}

// LessonContent 请求方提供的课程素材
type LessonContent struct {
	Passage string `json:"passage"`
	Topic   string `json:"topic,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// GenerationRequest 一次课程生成请求
type GenerationRequest struct {
	RequestID     string                                `json:"request_id,omitempty"`
	Selections    map[entity.RuleCategory]RuleSelection `json:"selections,omitempty"`
	Content       LessonContent                         `json:"content"`
	Audience      AudienceProfile                       `json:"audience"`
	SectionPlan   []string                              `json:"section_plan,omitempty"`
	FreshnessSeed string                                `json:"freshness_seed,omitempty"`
}

// Fragment 指令文档中的一条片段
type Fragment struct {
	Category    entity.RuleCategory `json:"category"`
	RuleKey     string              `json:"rule_key"`
	RuleVersion int                 `json:"rule_version"`
	DirectiveID string              `json:"directive_id"`
	Concern     string              `json:"concern,omitempty"`
	Text        string              `json:"text"`
	Precedence  int                 `json:"precedence"`
}

// Ref 片段所属规则集
func (f Fragment) Ref() entity.RuleRef {
	return entity.RuleRef{Category: f.Category, Key: f.RuleKey, Version: f.RuleVersion}
}

// DropReason 片段被丢弃的原因
type DropReason string

const (
	DropSuperseded DropReason = "superseded"
	DropDuplicate  DropReason = "duplicate"
)

// DroppedFragment 冲突消解中被丢弃的片段
type DroppedFragment struct {
	Fragment Fragment   `json:"fragment"`
	Reason   DropReason `json:"reason"`
	// WinnerRef 保留下来的片段，形如 doctrinal:reformed-baptist@3#baptism-mode
	WinnerRef string `json:"winner_ref"`
}

// ManifestEntry 实际生效的规则集版本
type ManifestEntry struct {
	Category entity.RuleCategory `json:"category"`
	Key      string              `json:"key"`
	Version  int                 `json:"version"`
}

// Ref 转为规则集引用
func (e ManifestEntry) Ref() entity.RuleRef {
	return entity.RuleRef{Category: e.Category, Key: e.Key, Version: e.Version}
}

// Manifest 按类别顺序排列的生效版本清单
type Manifest []ManifestEntry

// Map 返回 {category: "key@version"}
func (m Manifest) Map() map[string]string {
	out := make(map[string]string, len(m))
	for _, e := range m {
		out[string(e.Category)] = fmt.Sprintf("%s@%d", e.Key, e.Version)
	}
	return out
}

// Lookup 按类别查找
func (m Manifest) Lookup(category entity.RuleCategory) (ManifestEntry, bool) {
	for _, e := range m {
		if e.Category == category {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

func (m Manifest) String() string {
	parts := make([]string, 0, len(m))
	for _, e := range m {
		parts = append(parts, fmt.Sprintf("%s=%s@%d", e.Category, e.Key, e.Version))
	}
	return strings.Join(parts, ",")
}

// AssembledDirective 组装完成的生成指令
type AssembledDirective struct {
	Fragments     []Fragment        `json:"fragments"`
	Dropped       []DroppedFragment `json:"dropped,omitempty"`
	Manifest      Manifest          `json:"manifest"`
	Content       LessonContent     `json:"content"`
	Audience      AudienceProfile   `json:"audience"`
	SectionPlan   []string          `json:"section_plan"`
	FreshnessSeed string            `json:"freshness_seed,omitempty"`
}

// Render 输出确定性的指令文本：按类别分节，片段保持组装顺序，受众画像在最后
func (d *AssembledDirective) Render() string {
	if d == nil {
		return ""
	}
	var b strings.Builder
	var current entity.RuleCategory
	for _, f := range d.Fragments {
		if f.Category != current {
			if current != "" {
				b.WriteString("\n")
			}
			current = f.Category
			ref := fmt.Sprintf("%s@%d", f.RuleKey, f.RuleVersion)
			if e, ok := d.Manifest.Lookup(f.Category); ok {
				ref = fmt.Sprintf("%s@%d", e.Key, e.Version)
			}
			fmt.Fprintf(&b, "## %s (%s)\n", f.Category.Title(), ref)
		}
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(f.Text))
	}

	if !d.Audience.Empty() {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## Audience profile\n")
		if d.Audience.AgeGroup != "" {
			fmt.Fprintf(&b, "- Age group: %s\n", d.Audience.AgeGroup)
		}
		if d.Audience.TargetMinutes > 0 {
			fmt.Fprintf(&b, "- Target length: about %d minutes\n", d.Audience.TargetMinutes)
		}
		if d.Audience.TargetWords > 0 {
			fmt.Fprintf(&b, "- Target words: about %d\n", d.Audience.TargetWords)
		}
		if d.Audience.Setting != "" {
			fmt.Fprintf(&b, "- Setting: %s\n", d.Audience.Setting)
		}
		if d.Audience.Notes != "" {
			fmt.Fprintf(&b, "- Notes: %s\n", d.Audience.Notes)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Section 课程的一个章节
type Section struct {
	ID      string `json:"id"`
	Heading string `json:"heading,omitempty"`
	Content string `json:"content"`
}

// Artifact 生成的课程产物
type Artifact struct {
	Title    string    `json:"title,omitempty"`
	Sections []Section `json:"sections"`
}

// Section 按 ID 查找章节
func (a *Artifact) Section(id string) (Section, bool) {
	if a == nil {
		return Section{}, false
	}
	for _, s := range a.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// SectionIDs 按顺序返回章节 ID
func (a *Artifact) SectionIDs() []string {
	if a == nil {
		return nil
	}
	ids := make([]string, 0, len(a.Sections))
	for _, s := range a.Sections {
		ids = append(ids, s.ID)
	}
	return ids
}

// Clone 深拷贝
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	out := &Artifact{Title: a.Title, Sections: make([]Section, len(a.Sections))}
	copy(out.Sections, a.Sections)
	return out
}

// ReplaceSections 返回替换了指定章节的新产物；未出现在 replacements 中的章节原样保留，顺序不变
func (a *Artifact) ReplaceSections(replacements map[string]Section) *Artifact {
	out := a.Clone()
	if out == nil {
		return nil
	}
	for i, s := range out.Sections {
		r, ok := replacements[s.ID]
		if !ok {
			continue
		}
		r.ID = s.ID
		if strings.TrimSpace(r.Heading) == "" {
			r.Heading = s.Heading
		}
		out.Sections[i] = r
	}
	return out
}

// Violation 扫描命中的一条违规
type Violation struct {
	Kind         string              `json:"kind"`
	Category     entity.RuleCategory `json:"category"`
	SectionID    string              `json:"section_id"`
	MatchedSpan  string              `json:"matched_span,omitempty"`
	RuleKey      string              `json:"rule_key"`
	RuleVersion  int                 `json:"rule_version"`
	DetectorID   string              `json:"detector_id"`
	DetectorKind entity.DetectorKind `json:"detector_kind"`
	Message      string              `json:"message"`
	// Hint 规则作者提供的修改建议
	Hint string `json:"hint,omitempty"`
}

// Key 用于比较两轮扫描是否命中同一问题
func (v Violation) Key() string {
	return v.SectionID + "|" + v.DetectorID + "|" + strings.ToLower(v.MatchedSpan)
}

// RuleRef 违规所引用的规则集版本
func (v Violation) RuleRef() entity.RuleRef {
	return entity.RuleRef{Category: v.Category, Key: v.RuleKey, Version: v.RuleVersion}
}

// Summary 人类可读的单行描述
func (v Violation) Summary() string {
	if v.MatchedSpan != "" {
		return fmt.Sprintf("[%s] %s in %s: %q (%s)", v.Category, v.Kind, v.SectionID, v.MatchedSpan, v.RuleRef())
	}
	return fmt.Sprintf("[%s] %s in %s: %s (%s)", v.Category, v.Kind, v.SectionID, v.Message, v.RuleRef())
}

// ViolatingSections 按产物中的章节顺序返回存在违规的章节；
// 产物中不存在的章节（缺失的必需章节）按违规出现顺序排在最后
func ViolatingSections(a *Artifact, violations []Violation) []string {
	hit := make(map[string]struct{}, len(violations))
	for _, v := range violations {
		hit[v.SectionID] = struct{}{}
	}
	out := make([]string, 0, len(hit))
	for _, id := range a.SectionIDs() {
		if _, ok := hit[id]; ok {
			out = append(out, id)
			delete(hit, id)
		}
	}
	for _, v := range violations {
		if _, ok := hit[v.SectionID]; ok {
			out = append(out, v.SectionID)
			delete(hit, v.SectionID)
		}
	}
	return out
}

// ViolationKinds 去重排序后的违规类型
func ViolationKinds(violations []Violation) []string {
	seen := make(map[string]struct{}, len(violations))
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		if _, ok := seen[v.Kind]; ok {
			continue
		}
		seen[v.Kind] = struct{}{}
		out = append(out, v.Kind)
	}
	sort.Strings(out)
	return out
}

// Correction 针对一条违规的修改指令
type Correction struct {
	SectionID   string `json:"section_id"`
	DetectorID  string `json:"detector_id"`
	MatchedSpan string `json:"matched_span,omitempty"`
	RuleRef     string `json:"rule_ref"`
	Instruction string `json:"instruction"`
}

// RepairAttempt 一轮修复记录
type RepairAttempt struct {
	AttemptNumber    int         `json:"attempt_number"`
	TargetedSections []string    `json:"targeted_sections"`
	ViolationsBefore []Violation `json:"violations_before"`
	ViolationsAfter  []Violation `json:"violations_after"`
	// Repeated 修复后目标章节仍命中与修复前完全相同的违规
	Repeated bool `json:"repeated,omitempty"`
}

// GenerationCall 一次生成调用。SectionScope 为空表示整篇生成。
type GenerationCall struct {
	Directive    *AssembledDirective
	SectionScope []string
	// FixedSections 必须原样保留的章节；SectionOrder 给出其在产物中的顺序
	FixedSections map[string]string
	SectionOrder  []string
	// ScopedDrafts 待重写章节的当前文本
	ScopedDrafts  map[string]Section
	Corrections   []Correction
	FreshnessSeed string
	Attempt       int
}

// Scoped 是否为定向修复调用
func (c *GenerationCall) Scoped() bool {
	return c != nil && len(c.SectionScope) > 0
}
