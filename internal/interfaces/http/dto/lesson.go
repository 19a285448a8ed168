package dto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lesson-forge-api/internal/domain/entity"
	wfmodel "lesson-forge-api/internal/workflow/model"
)

// RuleSelectionRequest 规则集选择；key 为空使用类别默认，version 为 0 使用最新版本
type RuleSelectionRequest struct {
	Key     string `json:"key,omitempty" binding:"omitempty,max=64"`
	Version int    `json:"version,omitempty" binding:"gte=0"`
}

// AudienceRequest 受众画像
type AudienceRequest struct {
	AgeGroup      string `json:"age_group,omitempty" binding:"max=64"`
	TargetMinutes int    `json:"target_minutes,omitempty" binding:"gte=0,lte=240"`
	TargetWords   int    `json:"target_words,omitempty" binding:"gte=0,lte=20000"`
	Setting       string `json:"setting,omitempty" binding:"max=128"`
	Notes         string `json:"notes,omitempty" binding:"max=2000"`
}

// GenerateLessonRequest 生成课程请求
type GenerateLessonRequest struct {
	RequestID     string                          `json:"request_id,omitempty" binding:"max=64"`
	Rules         map[string]RuleSelectionRequest `json:"rules,omitempty" binding:"dive"`
	Passage       string                          `json:"passage" binding:"required,max=500"`
	Topic         string                          `json:"topic,omitempty" binding:"max=500"`
	Notes         string                          `json:"notes,omitempty" binding:"max=4000"`
	Audience      AudienceRequest                 `json:"audience"`
	SectionPlan   []string                        `json:"section_plan,omitempty" binding:"max=12,dive,required,max=32"`
	FreshnessSeed string                          `json:"freshness_seed,omitempty" binding:"max=128"`
}

// ToGenerationRequest 转换为流水线请求；未知类别返回错误。
// 未给出 request_id 时生成一个；未给出 freshness_seed 时沿用 request_id。
func (r *GenerateLessonRequest) ToGenerationRequest() (*wfmodel.GenerationRequest, error) {
	selections := make(map[entity.RuleCategory]wfmodel.RuleSelection, len(r.Rules))
	for name, sel := range r.Rules {
		cat, err := entity.ParseRuleCategory(name)
		if err != nil {
			return nil, err
		}
		selections[cat] = wfmodel.RuleSelection{Key: strings.TrimSpace(sel.Key), Version: sel.Version}
	}

	requestID := strings.TrimSpace(r.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	seed := strings.TrimSpace(r.FreshnessSeed)
	if seed == "" {
		seed = requestID
	}

	plan := make([]string, 0, len(r.SectionPlan))
	seen := make(map[string]struct{}, len(r.SectionPlan))
	for _, id := range r.SectionPlan {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate section id %q in section_plan", id)
		}
		seen[id] = struct{}{}
		plan = append(plan, id)
	}

	return &wfmodel.GenerationRequest{
		RequestID:  requestID,
		Selections: selections,
		Content: wfmodel.LessonContent{
			Passage: strings.TrimSpace(r.Passage),
			Topic:   strings.TrimSpace(r.Topic),
			Notes:   strings.TrimSpace(r.Notes),
		},
		Audience: wfmodel.AudienceProfile{
			AgeGroup:      strings.TrimSpace(r.Audience.AgeGroup),
			TargetMinutes: r.Audience.TargetMinutes,
			TargetWords:   r.Audience.TargetWords,
			Setting:       strings.TrimSpace(r.Audience.Setting),
			Notes:         strings.TrimSpace(r.Audience.Notes),
		},
		SectionPlan:   plan,
		FreshnessSeed: seed,
	}, nil
}

// SectionResponse 课程章节
type SectionResponse struct {
	ID      string `json:"id"`
	Heading string `json:"heading,omitempty"`
	Content string `json:"content"`
}

// ViolationResponse 违规记录
type ViolationResponse struct {
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	SectionID   string `json:"section_id"`
	MatchedSpan string `json:"matched_span,omitempty"`
	Rule        string `json:"rule"`
	DetectorID  string `json:"detector_id"`
	Message     string `json:"message"`
}

// GenerateLessonResponse 生成课程响应
type GenerateLessonResponse struct {
	LessonID        string              `json:"lesson_id"`
	RequestID       string              `json:"request_id"`
	Outcome         string              `json:"outcome"`
	Flagged         bool                `json:"flagged"`
	Manifest        map[string]string   `json:"manifest"`
	Title           string              `json:"title"`
	Sections        []SectionResponse   `json:"sections"`
	Attempts        int                 `json:"attempts"`
	GenerationCalls int                 `json:"generation_calls"`
	ReviewSummary   string              `json:"review_summary,omitempty"`
	Remaining       []ViolationResponse `json:"remaining_violations,omitempty"`
}

// ToSectionResponses 转换章节
func ToSectionResponses(sections []wfmodel.Section) []SectionResponse {
	out := make([]SectionResponse, 0, len(sections))
	for _, s := range sections {
		out = append(out, SectionResponse{ID: s.ID, Heading: s.Heading, Content: s.Content})
	}
	return out
}

// ToViolationResponses 转换违规记录
func ToViolationResponses(vs []wfmodel.Violation) []ViolationResponse {
	if len(vs) == 0 {
		return nil
	}
	out := make([]ViolationResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, ViolationResponse{
			Kind:        v.Kind,
			Category:    string(v.Category),
			SectionID:   v.SectionID,
			MatchedSpan: v.MatchedSpan,
			Rule:        v.RuleRef().String(),
			DetectorID:  v.DetectorID,
			Message:     v.Message,
		})
	}
	return out
}

// ReviewFlagResponse 人工复核记录
type ReviewFlagResponse struct {
	Summary        string          `json:"summary"`
	SectionIDs     []string        `json:"section_ids"`
	ViolationKinds []string        `json:"violation_kinds"`
	Remaining      json.RawMessage `json:"remaining"`
	History        json.RawMessage `json:"history"`
	ResolvedAt     string          `json:"resolved_at,omitempty"`
}

// LessonResponse 已保存的课程
type LessonResponse struct {
	ID            string              `json:"id"`
	RequestID     string              `json:"request_id,omitempty"`
	Title         string              `json:"title"`
	Status        string              `json:"status"`
	Flagged       bool                `json:"flagged"`
	Manifest      json.RawMessage     `json:"manifest"`
	Sections      json.RawMessage     `json:"sections"`
	FreshnessSeed string              `json:"freshness_seed,omitempty"`
	RepairCycles  int                 `json:"repair_cycles"`
	Review        *ReviewFlagResponse `json:"review,omitempty"`
	CreatedAt     string              `json:"created_at"`
}

// ToLessonResponse 转换课程实体；flag 可为 nil
func ToLessonResponse(l *entity.Lesson, flag *entity.LessonReviewFlag) *LessonResponse {
	resp := &LessonResponse{
		ID:            l.ID,
		RequestID:     l.RequestID,
		Title:         l.Title,
		Status:        string(l.Status),
		Flagged:       l.Flagged,
		Manifest:      l.Manifest,
		Sections:      l.Sections,
		FreshnessSeed: l.FreshnessSeed,
		RepairCycles:  l.RepairCycles,
		CreatedAt:     l.CreatedAt.Format(time.RFC3339),
	}
	if flag != nil {
		resp.Review = &ReviewFlagResponse{
			Summary:        flag.Summary,
			SectionIDs:     flag.SectionIDs,
			ViolationKinds: flag.ViolationKinds,
			Remaining:      flag.Remaining,
			History:        flag.History,
		}
		if flag.ResolvedAt != nil {
			resp.Review.ResolvedAt = flag.ResolvedAt.Format(time.RFC3339)
		}
	}
	return resp
}

// LessonSummaryResponse 列表项
type LessonSummaryResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	RepairCycles int    `json:"repair_cycles"`
	CreatedAt    string `json:"created_at"`
}

// ToLessonSummaries 转换课程列表
func ToLessonSummaries(lessons []*entity.Lesson) []LessonSummaryResponse {
	out := make([]LessonSummaryResponse, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, LessonSummaryResponse{
			ID:           l.ID,
			Title:        l.Title,
			Status:       string(l.Status),
			RepairCycles: l.RepairCycles,
			CreatedAt:    l.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}
