// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
	"time"
)

// RuleCategory 规则类别
type RuleCategory string

const (
	RuleCategoryDoctrinal RuleCategory = "doctrinal"
	RuleCategoryCopyright RuleCategory = "copyright"
	RuleCategoryAudience  RuleCategory = "audience"
	RuleCategoryStyle     RuleCategory = "style"
	RuleCategoryFreshness RuleCategory = "freshness"
)

// ruleCategoryOrder 固定顺序：硬约束在前，措辞变化在最后
var ruleCategoryOrder = []RuleCategory{
	RuleCategoryDoctrinal,
	RuleCategoryCopyright,
	RuleCategoryAudience,
	RuleCategoryStyle,
	RuleCategoryFreshness,
}

// RuleCategories 按固定顺序返回全部类别
func RuleCategories() []RuleCategory {
	out := make([]RuleCategory, len(ruleCategoryOrder))
	copy(out, ruleCategoryOrder)
	return out
}

// Rank 返回类别在固定顺序中的位置，未知类别返回 -1
func (c RuleCategory) Rank() int {
	for i, cat := range ruleCategoryOrder {
		if cat == c {
			return i
		}
	}
	return -1
}

// Valid 是否为已知类别
func (c RuleCategory) Valid() bool {
	return c.Rank() >= 0
}

// Verifiable 该类别的输出可被检测器校验
func (c RuleCategory) Verifiable() bool {
	return c == RuleCategoryDoctrinal || c == RuleCategoryCopyright
}

// HardConstraint 硬约束类别不会被措辞变化类片段覆盖
func (c RuleCategory) HardConstraint() bool {
	return c == RuleCategoryDoctrinal || c == RuleCategoryCopyright
}

// Title 指令文档中的分节标题
func (c RuleCategory) Title() string {
	switch c {
	case RuleCategoryDoctrinal:
		return "Doctrinal guardrails"
	case RuleCategoryCopyright:
		return "Copyright handling"
	case RuleCategoryAudience:
		return "Audience directives"
	case RuleCategoryStyle:
		return "Style and voice"
	case RuleCategoryFreshness:
		return "Variation hints"
	default:
		return string(c)
	}
}

// ParseRuleCategory 解析类别字符串
func ParseRuleCategory(s string) (RuleCategory, error) {
	c := RuleCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown rule category: %q", s)
	}
	return c, nil
}

// Directive 单条指令片段
type Directive struct {
	ID string `json:"id" yaml:"id" validate:"required,max=64"`
	// Concern 指令所约束的关注点（如 terminology:baptism），同一关注点的不同指令视为冲突
	Concern string `json:"concern,omitempty" yaml:"concern,omitempty" validate:"max=128"`
	Text    string `json:"text" yaml:"text" validate:"required"`
}

// DetectorKind 检测器类型
type DetectorKind string

const (
	// DetectorBlacklist 命中即违规的短语/正则
	DetectorBlacklist DetectorKind = "blacklist"
	// DetectorRequired 在限定章节中缺失即违规
	DetectorRequired DetectorKind = "required"
	// DetectorQuoteLength 引用经文超出版权档位允许的长度
	DetectorQuoteLength DetectorKind = "quote_length"
)

// DetectorPattern 模式到违规类型的映射
type DetectorPattern struct {
	ID      string       `json:"id" yaml:"id" validate:"required,max=64"`
	Kind    DetectorKind `json:"kind" yaml:"kind" validate:"required,oneof=blacklist required quote_length"`
	Pattern string       `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	// Regex 为 true 时 Pattern 按正则解释，否则按字面短语匹配
	Regex         bool   `json:"regex,omitempty" yaml:"regex,omitempty"`
	ViolationKind string `json:"violation_kind" yaml:"violation_kind" validate:"required,max=64"`
	// SectionScope 限定检测的章节，支持 body-* 通配；为空表示全部章节
	SectionScope []string `json:"section_scope,omitempty" yaml:"section_scope,omitempty"`
	// MaxWords 仅 quote_length 使用；为 0 时取版权规则的 MaxQuoteWords
	MaxWords   int    `json:"max_words,omitempty" yaml:"max_words,omitempty" validate:"gte=0"`
	Correction string `json:"correction,omitempty" yaml:"correction,omitempty"`
}

// RequiredSections 必需检测器以字面 id（不含通配）指定的章节，产物中必须存在
func (d DetectorPattern) RequiredSections() []string {
	if d.Kind != DetectorRequired {
		return nil
	}
	var out []string
	for _, scope := range d.SectionScope {
		if scope != "" && !strings.ContainsAny(scope, `*?[\`) {
			out = append(out, scope)
		}
	}
	return out
}

// CategoryRules 各类别专属字段（和类型）
type CategoryRules interface {
	Category() RuleCategory
	isCategoryRules()
}

// DoctrinalRules 教义护栏
type DoctrinalRules struct {
	Tradition  string   `json:"tradition" yaml:"tradition" validate:"required"`
	Confession string   `json:"confession,omitempty" yaml:"confession,omitempty"`
	Affirms    []string `json:"affirms,omitempty" yaml:"affirms,omitempty"`
}

// CopyrightTier 译本版权档位
type CopyrightTier string

const (
	CopyrightPublicDomain CopyrightTier = "public_domain"
	CopyrightLicensed     CopyrightTier = "licensed"
	CopyrightRestricted   CopyrightTier = "restricted"
)

// CopyrightRules 版权约束
type CopyrightRules struct {
	Translation   string        `json:"translation" yaml:"translation" validate:"required"`
	Tier          CopyrightTier `json:"tier" yaml:"tier" validate:"required,oneof=public_domain licensed restricted"`
	MaxQuoteWords int           `json:"max_quote_words,omitempty" yaml:"max_quote_words,omitempty" validate:"gte=0"`
	Attribution   string        `json:"attribution,omitempty" yaml:"attribution,omitempty"`
}

// AudienceRules 受众/年龄约束
type AudienceRules struct {
	AgeGroup     string `json:"age_group" yaml:"age_group" validate:"required"`
	ReadingLevel string `json:"reading_level,omitempty" yaml:"reading_level,omitempty"`
}

// StyleRules 文风/语气
type StyleRules struct {
	Voice  string `json:"voice" yaml:"voice" validate:"required"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// FreshnessRules 措辞变化池
type FreshnessRules struct {
	Pool []Directive `json:"pool" yaml:"pool" validate:"required,min=1,dive"`
	// Pick 每次请求从池中选取的数量
	Pick int `json:"pick" yaml:"pick" validate:"gte=1"`
}

func (*DoctrinalRules) Category() RuleCategory { return RuleCategoryDoctrinal }
func (*CopyrightRules) Category() RuleCategory { return RuleCategoryCopyright }
func (*AudienceRules) Category() RuleCategory  { return RuleCategoryAudience }
func (*StyleRules) Category() RuleCategory     { return RuleCategoryStyle }
func (*FreshnessRules) Category() RuleCategory { return RuleCategoryFreshness }

func (*DoctrinalRules) isCategoryRules() {}
func (*CopyrightRules) isCategoryRules() {}
func (*AudienceRules) isCategoryRules()  {}
func (*StyleRules) isCategoryRules()     {}
func (*FreshnessRules) isCategoryRules() {}

// RuleRef 规则集版本引用
type RuleRef struct {
	Category RuleCategory `json:"category"`
	Key      string       `json:"key"`
	Version  int          `json:"version"`
}

// String 形如 doctrinal:reformed-baptist@3
func (r RuleRef) String() string {
	return fmt.Sprintf("%s:%s@%d", r.Category, r.Key, r.Version)
}

// RuleSet 某一类别下命名、带版本的规则集。请求期只读，不可修改。
type RuleSet struct {
	Key         string       `validate:"required,max=64"`
	Version     int          `validate:"gte=1"`
	Category    RuleCategory `validate:"required"`
	Precedence  int
	IsDefault   bool
	Description string

	Directives []Directive       `validate:"dive"`
	Detectors  []DetectorPattern `validate:"dive"`

	// Rules 类别专属字段，类型与 Category 一致
	Rules CategoryRules `validate:"-"`

	PublishedAt time.Time
}

// Ref 返回版本引用
func (r *RuleSet) Ref() RuleRef {
	return RuleRef{Category: r.Category, Key: r.Key, Version: r.Version}
}

// Copyright 返回版权规则；类别不符时 ok=false
func (r *RuleSet) Copyright() (*CopyrightRules, bool) {
	c, ok := r.Rules.(*CopyrightRules)
	return c, ok
}

// Freshness 返回措辞变化规则；类别不符时 ok=false
func (r *RuleSet) Freshness() (*FreshnessRules, bool) {
	f, ok := r.Rules.(*FreshnessRules)
	return f, ok
}
