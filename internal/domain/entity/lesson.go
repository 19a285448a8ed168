package entity

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// LessonStatus 课程状态
type LessonStatus string

const (
	// LessonStatusVerified 扫描通过
	LessonStatusVerified LessonStatus = "verified"
	// LessonStatusFlagged 修复耗尽仍有违规，待人工复核
	LessonStatusFlagged LessonStatus = "flagged"
)

// Lesson 已落库的课程产物
type Lesson struct {
	ID        string `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RequestID string `json:"request_id,omitempty" gorm:"type:varchar(64);index"`
	Title     string `json:"title" gorm:"type:varchar(255)"`
	// Sections 有序章节 [{id, heading, content}]
	Sections json.RawMessage `json:"sections" gorm:"type:jsonb;not null"`
	// Manifest 生成所用规则集版本 {category: "key@version"}
	Manifest      json.RawMessage `json:"manifest" gorm:"type:jsonb;not null"`
	Status        LessonStatus    `json:"status" gorm:"type:varchar(16);not null;index"`
	Flagged       bool            `json:"flagged" gorm:"not null;default:false"`
	FreshnessSeed string          `json:"freshness_seed,omitempty" gorm:"type:varchar(128)"`
	RepairCycles  int             `json:"repair_cycles" gorm:"not null;default:0"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// LessonReviewFlag 人工复核记录，随 flagged 课程一同写入
type LessonReviewFlag struct {
	ID       string `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	LessonID string `json:"lesson_id" gorm:"type:uuid;not null;uniqueIndex"`
	Summary  string `json:"summary" gorm:"type:text;not null"`
	// Remaining 修复耗尽后仍存在的违规
	Remaining json.RawMessage `json:"remaining" gorm:"type:jsonb;not null"`
	// History 每轮修复的前后违规记录
	History        json.RawMessage `json:"history" gorm:"type:jsonb;not null"`
	SectionIDs     pq.StringArray  `json:"section_ids" gorm:"type:text[]"`
	ViolationKinds pq.StringArray  `json:"violation_kinds" gorm:"type:text[]"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (LessonReviewFlag) TableName() string {
	return "lesson_review_flags"
}
