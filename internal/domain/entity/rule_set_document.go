package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// RuleSetDocument 规则集的外部表示（YAML 文件、jsonb 列、Redis 缓存共用）。
// 类别专属字段以带标签的块出现，只能填写与 category 对应的那一块。
type RuleSetDocument struct {
	Key         string       `json:"key" yaml:"key"`
	Category    RuleCategory `json:"category" yaml:"category"`
	Version     int          `json:"version" yaml:"version"`
	Precedence  int          `json:"precedence" yaml:"precedence"`
	Default     bool         `json:"default,omitempty" yaml:"default,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`

	Directives []Directive       `json:"directives,omitempty" yaml:"directives,omitempty"`
	Detectors  []DetectorPattern `json:"detectors,omitempty" yaml:"detectors,omitempty"`

	Doctrinal *DoctrinalRules `json:"doctrinal,omitempty" yaml:"doctrinal,omitempty"`
	Copyright *CopyrightRules `json:"copyright,omitempty" yaml:"copyright,omitempty"`
	Audience  *AudienceRules  `json:"audience,omitempty" yaml:"audience,omitempty"`
	Style     *StyleRules     `json:"style,omitempty" yaml:"style,omitempty"`
	Freshness *FreshnessRules `json:"freshness,omitempty" yaml:"freshness,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty" yaml:"published_at,omitempty"`
}

// NewRuleSetDocument 由规则集生成外部表示
func NewRuleSetDocument(rs *RuleSet) *RuleSetDocument {
	doc := &RuleSetDocument{
		Key:         rs.Key,
		Category:    rs.Category,
		Version:     rs.Version,
		Precedence:  rs.Precedence,
		Default:     rs.IsDefault,
		Description: rs.Description,
		Directives:  rs.Directives,
		Detectors:   rs.Detectors,
	}
	if !rs.PublishedAt.IsZero() {
		t := rs.PublishedAt
		doc.PublishedAt = &t
	}
	switch r := rs.Rules.(type) {
	case *DoctrinalRules:
		doc.Doctrinal = r
	case *CopyrightRules:
		doc.Copyright = r
	case *AudienceRules:
		doc.Audience = r
	case *StyleRules:
		doc.Style = r
	case *FreshnessRules:
		doc.Freshness = r
	}
	return doc
}

// ToRuleSet 转换为领域规则集，类别块缺失或多填时报错
func (d *RuleSetDocument) ToRuleSet() (*RuleSet, error) {
	if !d.Category.Valid() {
		return nil, fmt.Errorf("rule set %q: unknown category %q", d.Key, d.Category)
	}

	var blocks []CategoryRules
	if d.Doctrinal != nil {
		blocks = append(blocks, d.Doctrinal)
	}
	if d.Copyright != nil {
		blocks = append(blocks, d.Copyright)
	}
	if d.Audience != nil {
		blocks = append(blocks, d.Audience)
	}
	if d.Style != nil {
		blocks = append(blocks, d.Style)
	}
	if d.Freshness != nil {
		blocks = append(blocks, d.Freshness)
	}
	if len(blocks) != 1 {
		return nil, fmt.Errorf("rule set %q: expected exactly one category block, got %d", d.Key, len(blocks))
	}
	if blocks[0].Category() != d.Category {
		return nil, fmt.Errorf("rule set %q: category %q carries a %q block", d.Key, d.Category, blocks[0].Category())
	}

	rs := &RuleSet{
		Key:         d.Key,
		Version:     d.Version,
		Category:    d.Category,
		Precedence:  d.Precedence,
		IsDefault:   d.Default,
		Description: d.Description,
		Directives:  d.Directives,
		Detectors:   d.Detectors,
		Rules:       blocks[0],
	}
	if d.PublishedAt != nil {
		rs.PublishedAt = *d.PublishedAt
	}
	return rs, nil
}

// RuleSetVersion 规则集版本持久化记录，每行不可变
type RuleSetVersion struct {
	ID         string          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Category   RuleCategory    `json:"category" gorm:"type:varchar(16);not null;uniqueIndex:uk_rule_set_version,priority:1"`
	Key        string          `json:"key" gorm:"type:varchar(64);not null;uniqueIndex:uk_rule_set_version,priority:2"`
	Version    int             `json:"version" gorm:"not null;uniqueIndex:uk_rule_set_version,priority:3"`
	Precedence int             `json:"precedence" gorm:"not null;default:0"`
	IsDefault  bool            `json:"is_default" gorm:"not null;default:false"`
	Document   json.RawMessage `json:"document" gorm:"type:jsonb;not null"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (RuleSetVersion) TableName() string {
	return "rule_set_versions"
}

// NewRuleSetVersion 将规则集编码为持久化记录
func NewRuleSetVersion(rs *RuleSet) (*RuleSetVersion, error) {
	raw, err := json.Marshal(NewRuleSetDocument(rs))
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule set %s: %w", rs.Ref(), err)
	}
	return &RuleSetVersion{
		Category:   rs.Category,
		Key:        rs.Key,
		Version:    rs.Version,
		Precedence: rs.Precedence,
		IsDefault:  rs.IsDefault,
		Document:   raw,
	}, nil
}

// Decode 解码为领域规则集
func (v *RuleSetVersion) Decode() (*RuleSet, error) {
	var doc RuleSetDocument
	if err := json.Unmarshal(v.Document, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode rule set %s:%s@%d: %w", v.Category, v.Key, v.Version, err)
	}
	rs, err := doc.ToRuleSet()
	if err != nil {
		return nil, err
	}
	if rs.PublishedAt.IsZero() {
		rs.PublishedAt = v.CreatedAt
	}
	return rs, nil
}
