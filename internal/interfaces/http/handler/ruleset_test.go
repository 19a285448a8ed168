package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lesson-forge-api/internal/domain/entity"
	wfmodel "lesson-forge-api/internal/workflow/model"
	apperrors "lesson-forge-api/pkg/errors"
)

type resolveCall struct {
	category entity.RuleCategory
	key      string
	version  int
}

type fakeResolver struct {
	calls []resolveCall
}

func (f *fakeResolver) Resolve(_ context.Context, category entity.RuleCategory, key string, version int) (*entity.RuleSet, error) {
	f.calls = append(f.calls, resolveCall{category, key, version})
	if key == "missing" {
		return nil, apperrors.ErrUnknownRuleKind
	}
	if key == "" {
		key = "reformed-baptist"
	}
	return &entity.RuleSet{Key: key, Version: 3, Category: category, IsDefault: true}, nil
}

type fakeAssembler struct {
	err error
}

func (f fakeAssembler) Assemble(_ context.Context, req *wfmodel.GenerationRequest) (*wfmodel.AssembledDirective, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &wfmodel.AssembledDirective{
		Fragments: []wfmodel.Fragment{{Category: entity.RuleCategoryDoctrinal, RuleKey: "reformed-baptist", RuleVersion: 3, DirectiveID: "grace", Text: "Grace alone."}},
		Manifest:  manifest(),
		Content:   req.Content,
	}, nil
}

func newRuleSetEngine(r RuleResolver, a DirectiveAssembler) *gin.Engine {
	h := NewRuleSetHandler(r, a)
	e := gin.New()
	e.GET("/rulesets/:category/:key", h.GetRuleSet)
	e.POST("/directives/preview", h.PreviewDirective)
	return e
}

func TestGetRuleSet(t *testing.T) {
	res := &fakeResolver{}
	e := newRuleSetEngine(res, fakeAssembler{})

	w := do(e, http.MethodGet, "/rulesets/doctrinal/default", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"reformed-baptist"`)

	w = do(e, http.MethodGet, "/rulesets/doctrinal/reformed-baptist?version=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []resolveCall{
		{entity.RuleCategoryDoctrinal, "", 0},
		{entity.RuleCategoryDoctrinal, "reformed-baptist", 2},
	}, res.calls)
}

func TestGetRuleSet_Errors(t *testing.T) {
	e := newRuleSetEngine(&fakeResolver{}, fakeAssembler{})

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/rulesets/politics/x", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/rulesets/doctrinal/x?version=0", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/rulesets/doctrinal/missing", "").Code)
}

func TestPreviewDirective(t *testing.T) {
	e := newRuleSetEngine(&fakeResolver{}, fakeAssembler{})
	w := do(e, http.MethodPost, "/directives/preview", `{"passage": "Jonah 1"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"doctrinal":"reformed-baptist@3"`)
	assert.Contains(t, w.Body.String(), "Grace alone.")

	e = newRuleSetEngine(&fakeResolver{}, fakeAssembler{err: apperrors.ErrUnresolvableConflict})
	w = do(e, http.MethodPost, "/directives/preview", `{"passage": "Jonah 1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
