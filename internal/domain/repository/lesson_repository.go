package repository

import (
	"context"

	"lesson-forge-api/internal/domain/entity"
)

// LessonRepository 课程仓储接口
type LessonRepository interface {
	Create(ctx context.Context, lesson *entity.Lesson) error
	GetByID(ctx context.Context, id string) (*entity.Lesson, error)
	CreateReviewFlag(ctx context.Context, flag *entity.LessonReviewFlag) error
	// GetReviewFlag 获取课程的复核记录，不存在返回 nil
	GetReviewFlag(ctx context.Context, lessonID string) (*entity.LessonReviewFlag, error)
	ListFlagged(ctx context.Context, pagination Pagination) (*PagedResult[*entity.Lesson], error)
}
