// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strings"

	"github.com/gin-gonic/gin"

	"lesson-forge-api/internal/domain/repository"
)

// pageQuery 分页查询参数；非法值按默认处理
type pageQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// BindPage 绑定分页参数并规范化
func BindPage(c *gin.Context) repository.Pagination {
	var q pageQuery
	_ = c.ShouldBindQuery(&q)
	return repository.NewPagination(q.Page, q.PageSize)
}

// BindLessonID 从路径读取课程 ID
func BindLessonID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("id"))
}
