package dto

import (
	"lesson-forge-api/internal/domain/entity"
	wfmodel "lesson-forge-api/internal/workflow/model"
)

// DirectivePreviewResponse 指令预览，不触发生成
type DirectivePreviewResponse struct {
	Manifest  map[string]string         `json:"manifest"`
	Fragments []wfmodel.Fragment        `json:"fragments"`
	Dropped   []wfmodel.DroppedFragment `json:"dropped,omitempty"`
	Rendered  string                    `json:"rendered"`
}

// ToDirectivePreview 转换组装结果
func ToDirectivePreview(d *wfmodel.AssembledDirective) *DirectivePreviewResponse {
	return &DirectivePreviewResponse{
		Manifest:  d.Manifest.Map(),
		Fragments: d.Fragments,
		Dropped:   d.Dropped,
		Rendered:  d.Render(),
	}
}

// ToRuleSetResponse 规则集快照，沿用规则文件的文档格式
func ToRuleSetResponse(rs *entity.RuleSet) *entity.RuleSetDocument {
	return entity.NewRuleSetDocument(rs)
}
