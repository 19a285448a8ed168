package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lesson-forge-api/internal/domain/entity"
	"lesson-forge-api/internal/domain/repository"
	wfmodel "lesson-forge-api/internal/workflow/model"
	apperrors "lesson-forge-api/pkg/errors"
	"lesson-forge-api/pkg/logger"
)

// SaveRequest 落库请求
type SaveRequest struct {
	RequestID     string
	Artifact      *wfmodel.Artifact
	Manifest      wfmodel.Manifest
	Flagged       bool
	Remaining     []wfmodel.Violation
	History       []wfmodel.RepairAttempt
	FreshnessSeed string
}

// Gate 持久化闸门
type Gate interface {
	Save(ctx context.Context, req *SaveRequest) (string, error)
}

// ReviewNotifier 通知人工复核
type ReviewNotifier interface {
	NotifyFlagged(ctx context.Context, lesson *entity.Lesson, flag *entity.LessonReviewFlag) error
}

// PersistenceGate 只接受扫描通过的产物，或显式标记为待复核的产物
type PersistenceGate struct {
	lessons  repository.LessonRepository
	tx       repository.Transactor
	notifier ReviewNotifier
}

// NewPersistenceGate 创建闸门；notifier 可为 nil
func NewPersistenceGate(lessons repository.LessonRepository, tx repository.Transactor, notifier ReviewNotifier) *PersistenceGate {
	return &PersistenceGate{lessons: lessons, tx: tx, notifier: notifier}
}

// Save 仍有违规却未标记时拒绝写入；标记的产物与复核记录在同一事务中写入
func (g *PersistenceGate) Save(ctx context.Context, req *SaveRequest) (string, error) {
	if req == nil || req.Artifact == nil {
		return "", apperrors.ErrInvalidParam.WithDetail("nothing to save")
	}
	if len(req.Remaining) > 0 && !req.Flagged {
		return "", apperrors.ErrUnflaggedViolation.WithDetail(fmt.Sprintf("%d violations remain", len(req.Remaining)))
	}

	lesson, err := newLesson(req)
	if err != nil {
		return "", err
	}
	var flag *entity.LessonReviewFlag

	err = g.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := g.lessons.Create(ctx, lesson); err != nil {
			return err
		}
		if !req.Flagged {
			return nil
		}
		f, err := newReviewFlag(lesson.ID, req)
		if err != nil {
			return err
		}
		if err := g.lessons.CreateReviewFlag(ctx, f); err != nil {
			return err
		}
		flag = f
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("save lesson: %w", err)
	}

	if flag != nil && g.notifier != nil {
		if err := g.notifier.NotifyFlagged(ctx, lesson, flag); err != nil {
			logger.Error(ctx, "failed to publish review notification", err, "lesson_id", lesson.ID)
		}
	}
	return lesson.ID, nil
}

func newLesson(req *SaveRequest) (*entity.Lesson, error) {
	sections, err := json.Marshal(req.Artifact.Sections)
	if err != nil {
		return nil, fmt.Errorf("encode sections: %w", err)
	}
	manifest, err := json.Marshal(req.Manifest.Map())
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	status := entity.LessonStatusVerified
	if req.Flagged {
		status = entity.LessonStatusFlagged
	}
	return &entity.Lesson{
		RequestID:     req.RequestID,
		Title:         req.Artifact.Title,
		Sections:      sections,
		Manifest:      manifest,
		Status:        status,
		Flagged:       req.Flagged,
		FreshnessSeed: req.FreshnessSeed,
		RepairCycles:  len(req.History),
	}, nil
}

func newReviewFlag(lessonID string, req *SaveRequest) (*entity.LessonReviewFlag, error) {
	remaining, err := json.Marshal(req.Remaining)
	if err != nil {
		return nil, fmt.Errorf("encode remaining violations: %w", err)
	}
	history, err := json.Marshal(req.History)
	if err != nil {
		return nil, fmt.Errorf("encode repair history: %w", err)
	}
	return &entity.LessonReviewFlag{
		LessonID:       lessonID,
		Summary:        ReviewSummary(req.Remaining, len(req.History)),
		Remaining:      remaining,
		History:        history,
		SectionIDs:     wfmodel.ViolatingSections(req.Artifact, req.Remaining),
		ViolationKinds: wfmodel.ViolationKinds(req.Remaining),
	}, nil
}

// ReviewSummary 面向审核人员的违规摘要
func ReviewSummary(remaining []wfmodel.Violation, attempts int) string {
	if len(remaining) == 0 {
		return "no violations remain"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d violation(s) remain after %d repair attempt(s):", len(remaining), attempts)
	for _, v := range remaining {
		b.WriteString("\n- ")
		b.WriteString(v.Summary())
	}
	return b.String()
}
