package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"lesson-forge-api/internal/application/guardrail"
	"lesson-forge-api/internal/domain/entity"
	"lesson-forge-api/internal/domain/repository"
	"lesson-forge-api/internal/interfaces/http/dto"
	wfmodel "lesson-forge-api/internal/workflow/model"
	apperrors "lesson-forge-api/pkg/errors"
	"lesson-forge-api/pkg/logger"
)

// LessonPipeline 课程生成流水线
type LessonPipeline interface {
	Run(ctx context.Context, req *wfmodel.GenerationRequest, opts ...guardrail.RunOption) (*guardrail.Result, error)
}

// LessonHandler 课程处理器
type LessonHandler struct {
	pipeline LessonPipeline
	lessons  repository.LessonRepository
}

// NewLessonHandler 创建课程处理器
func NewLessonHandler(pipeline LessonPipeline, lessons repository.LessonRepository) *LessonHandler {
	return &LessonHandler{pipeline: pipeline, lessons: lessons}
}

// GenerateLesson 生成课程
// @Summary 生成课程
// @Description 组装规则指令、生成、扫描并定向修复后保存；修复耗尽的课程标记为待复核
// @Tags Lessons
// @Accept json
// @Produce json
// @Param body body dto.GenerateLessonRequest true "生成参数"
// @Success 200 {object} dto.Response[dto.GenerateLessonResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Failure 504 {object} dto.ErrorResponse
// @Router /v1/lessons/generate [post]
func (h *LessonHandler) GenerateLesson(c *gin.Context) {
	ctx := c.Request.Context()

	var body dto.GenerateLessonRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	req, err := body.ToGenerationRequest()
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	res, err := h.pipeline.Run(ctx, req)
	if err != nil {
		respondError(c, err, "failed to generate lesson")
		return
	}
	if res.Outcome == guardrail.OutcomeCancelled {
		logger.Info(ctx, "lesson generation cancelled by client", "request_id", req.RequestID)
		dto.Error(c, http.StatusRequestTimeout, "request cancelled")
		return
	}

	dto.Success(c, &dto.GenerateLessonResponse{
		LessonID:        res.LessonID,
		RequestID:       req.RequestID,
		Outcome:         string(res.Outcome),
		Flagged:         res.Outcome == guardrail.OutcomeFlagged,
		Manifest:        res.Directive.Manifest.Map(),
		Title:           res.Artifact.Title,
		Sections:        dto.ToSectionResponses(res.Artifact.Sections),
		Attempts:        len(res.History),
		GenerationCalls: res.GenerationCalls,
		ReviewSummary:   res.ReviewSummary,
		Remaining:       dto.ToViolationResponses(res.Remaining),
	})
}

// GetLesson 获取课程
// @Summary 获取课程
// @Description 获取已保存课程及其复核记录
// @Tags Lessons
// @Produce json
// @Param id path string true "课程 ID"
// @Success 200 {object} dto.Response[dto.LessonResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/lessons/{id} [get]
func (h *LessonHandler) GetLesson(c *gin.Context) {
	ctx := c.Request.Context()
	id := dto.BindLessonID(c)

	lesson, err := h.lessons.GetByID(ctx, id)
	if err != nil {
		respondError(c, err, "failed to get lesson")
		return
	}
	if lesson == nil {
		dto.AppError(c, apperrors.ErrLessonNotFound)
		return
	}

	var flag *entity.LessonReviewFlag
	if lesson.Flagged {
		flag, err = h.lessons.GetReviewFlag(ctx, lesson.ID)
		if err != nil {
			respondError(c, err, "failed to get review flag")
			return
		}
	}
	dto.Success(c, dto.ToLessonResponse(lesson, flag))
}

// ListFlaggedLessons 待复核课程列表
// @Summary 待复核课程
// @Tags Lessons
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[[]dto.LessonSummaryResponse]
// @Router /v1/lessons/flagged [get]
func (h *LessonHandler) ListFlaggedLessons(c *gin.Context) {
	ctx := c.Request.Context()
	result, err := h.lessons.ListFlagged(ctx, dto.BindPage(c))
	if err != nil {
		respondError(c, err, "failed to list flagged lessons")
		return
	}
	dto.SuccessPaged(c, dto.ToLessonSummaries(result.Items), result)
}
