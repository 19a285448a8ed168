package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("resolve doctrinal: %w", ErrUnknownRuleKind.WithDetail("doctrinal:nope"))

	assert.True(t, stderrors.Is(err, ErrUnknownRuleKind))
	assert.False(t, stderrors.Is(err, ErrVersionNotFound))
	assert.Empty(t, ErrUnknownRuleKind.Detail)
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "[6002] rule set version not found (doctrinal:reformed-baptist@9)",
		ErrVersionNotFound.WithDetail("doctrinal:reformed-baptist@9").Error())

	cause := stderrors.New("yaml: line 3")
	wrapped := ErrRuleSetInvalid.WithError(cause)
	assert.Equal(t, "[6004] rule set failed validation: yaml: line 3", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestAsAppError(t *testing.T) {
	got := AsAppError(fmt.Errorf("gate: %w", ErrUnflaggedViolation))
	assert.Equal(t, CodeUnflaggedViolation, got.Code)

	got = AsAppError(stderrors.New("boom"))
	assert.Equal(t, CodeUnknown, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.HTTPStatus)
	assert.False(t, IsAppError(stderrors.New("plain")))
}

func TestCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{ErrInvalidParam, http.StatusBadRequest},
		{ErrLessonNotFound, http.StatusNotFound},
		{ErrUnknownRuleKind, http.StatusNotFound},
		{ErrVersionNotFound, http.StatusNotFound},
		{ErrGenerationFailed, http.StatusBadGateway},
		{ErrPipelineTimeout, http.StatusGatewayTimeout},
		{ErrUnresolvableConflict, http.StatusInternalServerError},
		{ErrRuleSetInvalid, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus)
		})
	}
}
