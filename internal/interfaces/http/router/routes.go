package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers, generateLimit gin.HandlerFunc) {
	// 课程
	if h.Lesson != nil {
		lessons := v1.Group("/lessons")
		{
			lessons.POST("/generate", generateLimit, h.Lesson.GenerateLesson)
			lessons.GET("/flagged", h.Lesson.ListFlaggedLessons)
			lessons.GET("/:id", h.Lesson.GetLesson)
		}
	}

	// 规则集（只读）与指令预览
	if h.RuleSet != nil {
		v1.GET("/rulesets/:category/:key", h.RuleSet.GetRuleSet)
		v1.POST("/directives/preview", h.RuleSet.PreviewDirective)
	}
}
