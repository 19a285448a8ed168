package handler

import (
	"github.com/gin-gonic/gin"

	"lesson-forge-api/internal/interfaces/http/dto"
	apperrors "lesson-forge-api/pkg/errors"
	"lesson-forge-api/pkg/logger"
)

// respondError AppError 按其状态码返回，其余错误记录日志后返回 500
func respondError(c *gin.Context, err error, msg string) {
	if apperrors.IsAppError(err) {
		appErr := apperrors.AsAppError(err)
		if appErr.HTTPStatus >= 500 {
			logger.Error(c.Request.Context(), msg, err)
		}
		dto.AppError(c, appErr)
		return
	}
	logger.Error(c.Request.Context(), msg, err)
	dto.InternalError(c, msg)
}
