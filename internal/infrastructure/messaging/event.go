// Package messaging 将待复核课程写入 Redis Stream
package messaging

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"lesson-forge-api/internal/domain/entity"
)

// DefaultReviewStream 复核流默认名
const DefaultReviewStream = "stream:lesson:review"

// TypeLessonFlagged 修复耗尽后仍有违规
const TypeLessonFlagged = "lesson.flagged"

// LessonFlaggedEvent 审核人员消费的事件体
type LessonFlaggedEvent struct {
	LessonID       string          `json:"lesson_id"`
	RequestID      string          `json:"request_id,omitempty"`
	Title          string          `json:"title"`
	Manifest       json.RawMessage `json:"manifest"`
	RepairCycles   int             `json:"repair_cycles"`
	SectionIDs     []string        `json:"section_ids"`
	ViolationKinds []string        `json:"violation_kinds"`
	Summary        string          `json:"summary"`
	FlaggedAt      time.Time       `json:"flagged_at"`
}

func newFlaggedEvent(lesson *entity.Lesson, flag *entity.LessonReviewFlag, at time.Time) *LessonFlaggedEvent {
	return &LessonFlaggedEvent{
		LessonID:       lesson.ID,
		RequestID:      lesson.RequestID,
		Title:          lesson.Title,
		Manifest:       lesson.Manifest,
		RepairCycles:   lesson.RepairCycles,
		SectionIDs:     flag.SectionIDs,
		ViolationKinds: flag.ViolationKinds,
		Summary:        flag.Summary,
		FlaggedAt:      at.UTC(),
	}
}

// streamFields 展开为 XADD 字段；lesson_id 与 repair_cycles 冗余一份便于按字段过滤
func (e *LessonFlaggedEvent) streamFields() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", TypeLessonFlagged, err)
	}
	return map[string]interface{}{
		"type":          TypeLessonFlagged,
		"lesson_id":     e.LessonID,
		"repair_cycles": strconv.Itoa(e.RepairCycles),
		"data":          string(data),
	}, nil
}

// DecodeFlaggedEvent 从流消息字段还原事件
func DecodeFlaggedEvent(values map[string]interface{}) (*LessonFlaggedEvent, error) {
	if t, _ := values["type"].(string); t != TypeLessonFlagged {
		return nil, fmt.Errorf("unexpected event type %q", t)
	}
	raw, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("%s event has no data field", TypeLessonFlagged)
	}
	var e LessonFlaggedEvent
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", TypeLessonFlagged, err)
	}
	return &e, nil
}
