package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"lesson-forge-api/internal/domain/entity"
	"lesson-forge-api/internal/interfaces/http/dto"
	wfmodel "lesson-forge-api/internal/workflow/model"
)

// RuleResolver 只读规则解析
type RuleResolver interface {
	Resolve(ctx context.Context, category entity.RuleCategory, key string, version int) (*entity.RuleSet, error)
}

// DirectiveAssembler 指令组装
type DirectiveAssembler interface {
	Assemble(ctx context.Context, req *wfmodel.GenerationRequest) (*wfmodel.AssembledDirective, error)
}

// RuleSetHandler 规则集与指令预览处理器
type RuleSetHandler struct {
	rules     RuleResolver
	assembler DirectiveAssembler
}

// NewRuleSetHandler 创建规则集处理器
func NewRuleSetHandler(rules RuleResolver, assembler DirectiveAssembler) *RuleSetHandler {
	return &RuleSetHandler{rules: rules, assembler: assembler}
}

// GetRuleSet 获取规则集快照
// @Summary 获取规则集
// @Tags RuleSets
// @Produce json
// @Param category path string true "类别"
// @Param key path string true "规则集 key，default 表示类别默认"
// @Param version query int false "版本，缺省为最新"
// @Success 200 {object} dto.Response[entity.RuleSetDocument]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/rulesets/{category}/{key} [get]
func (h *RuleSetHandler) GetRuleSet(c *gin.Context) {
	ctx := c.Request.Context()

	category, err := entity.ParseRuleCategory(c.Param("category"))
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	key := c.Param("key")
	if key == "default" {
		key = ""
	}
	version := 0
	if v := c.Query("version"); v != "" {
		version, err = strconv.Atoi(v)
		if err != nil || version < 1 {
			dto.BadRequest(c, "version must be a positive integer")
			return
		}
	}

	rs, err := h.rules.Resolve(ctx, category, key, version)
	if err != nil {
		respondError(c, err, "failed to resolve rule set")
		return
	}
	dto.Success(c, dto.ToRuleSetResponse(rs))
}

// PreviewDirective 仅组装指令，不调用模型
// @Summary 指令预览
// @Tags RuleSets
// @Accept json
// @Produce json
// @Param body body dto.GenerateLessonRequest true "与生成接口相同的参数"
// @Success 200 {object} dto.Response[dto.DirectivePreviewResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/directives/preview [post]
func (h *RuleSetHandler) PreviewDirective(c *gin.Context) {
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

	directive, err := h.assembler.Assemble(ctx, req)
	if err != nil {
		respondError(c, err, "failed to assemble directive")
		return
	}
	dto.Success(c, dto.ToDirectivePreview(directive))
}
