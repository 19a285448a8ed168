package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"lesson-forge-api/internal/domain/entity"
	"lesson-forge-api/internal/domain/repository"
)

// LessonRepository 课程仓储实现
type LessonRepository struct {
	client *Client
}

// NewLessonRepository 创建课程仓储
func NewLessonRepository(client *Client) *LessonRepository {
	return &LessonRepository{client: client}
}

// Create 创建课程
func (r *LessonRepository) Create(ctx context.Context, lesson *entity.Lesson) error {
	ctx, span := tracer.Start(ctx, "postgres.LessonRepository.Create")
	defer span.End()

	db := r.client.conn(ctx)
	if err := db.Create(lesson).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create lesson: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取课程
func (r *LessonRepository) GetByID(ctx context.Context, id string) (*entity.Lesson, error) {
	ctx, span := tracer.Start(ctx, "postgres.LessonRepository.GetByID")
	defer span.End()

	db := r.client.conn(ctx)
	var lesson entity.Lesson
	if err := db.First(&lesson, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	return &lesson, nil
}

// CreateReviewFlag 创建复核记录
func (r *LessonRepository) CreateReviewFlag(ctx context.Context, flag *entity.LessonReviewFlag) error {
	ctx, span := tracer.Start(ctx, "postgres.LessonRepository.CreateReviewFlag")
	defer span.End()

	db := r.client.conn(ctx)
	if err := db.Create(flag).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create review flag: %w", err)
	}
	return nil
}

// GetReviewFlag 获取课程的复核记录
func (r *LessonRepository) GetReviewFlag(ctx context.Context, lessonID string) (*entity.LessonReviewFlag, error) {
	ctx, span := tracer.Start(ctx, "postgres.LessonRepository.GetReviewFlag")
	defer span.End()

	db := r.client.conn(ctx)
	var flag entity.LessonReviewFlag
	if err := db.First(&flag, "lesson_id = ?", lessonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get review flag: %w", err)
	}
	return &flag, nil
}

// ListFlagged 分页列出待复核课程
func (r *LessonRepository) ListFlagged(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.Lesson], error) {
	ctx, span := tracer.Start(ctx, "postgres.LessonRepository.ListFlagged")
	defer span.End()

	db := r.client.conn(ctx)
	query := db.Model(&entity.Lesson{}).Where("flagged = ?", true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count flagged lessons: %w", err)
	}

	var lessons []*entity.Lesson
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&lessons).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list flagged lessons: %w", err)
	}

	return repository.NewPagedResult(lessons, total, pagination), nil
}
