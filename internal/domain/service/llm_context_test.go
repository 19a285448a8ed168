package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallLabels(t *testing.T) {
	assert.Equal(t, CallLabels{Workflow: "unknown", Provider: "unknown"}, CallLabelsFromContext(context.Background()))

	ctx := WithCallLabels(context.Background(), CallLabels{Workflow: " lesson_generate ", Provider: "openai"})
	ctx = WithCallLabels(ctx, CallLabels{Attempt: 2})
	assert.Equal(t, CallLabels{Workflow: "lesson_generate", Provider: "openai", Attempt: 2}, CallLabelsFromContext(ctx))

	ctx = WithCallLabels(ctx, CallLabels{Workflow: "lesson_repair", Provider: "  "})
	got := CallLabelsFromContext(ctx)
	assert.Equal(t, "lesson_repair", got.Workflow)
	assert.Equal(t, "openai", got.Provider)
}
