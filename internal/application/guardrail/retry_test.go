package guardrail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wfmodel "lesson-forge-api/internal/workflow/model"
	apperrors "lesson-forge-api/pkg/errors"
)

func TestTransportRetry_SecondFailureIsGenerationFailed(t *testing.T) {
	boom := errors.New("upstream 502")
	client := &scriptedClient{fn: func(context.Context, int, *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
		return nil, boom
	}}

	_, err := WithTransportRetry(client, 0).Generate(context.Background(), &wfmodel.GenerationCall{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrGenerationFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, client.count())
}

func TestTransportRetry_SuccessOnRetry(t *testing.T) {
	client := &scriptedClient{fn: func(_ context.Context, n int, _ *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
		if n == 1 {
			return nil, errors.New("malformed")
		}
		return &wfmodel.Artifact{Title: "ok"}, nil
	}}

	art, err := WithTransportRetry(client, time.Millisecond).Generate(context.Background(), &wfmodel.GenerationCall{SectionScope: []string{"body-1"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", art.Title)
	assert.Equal(t, 2, client.count())
}

func TestTransportRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{fn: func(context.Context, int, *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
		cancel()
		return nil, errors.New("timeout")
	}}

	_, err := WithTransportRetry(client, time.Hour).Generate(ctx, &wfmodel.GenerationCall{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.count())
}
