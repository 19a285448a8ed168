package guardrail

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lesson-forge-api/internal/application/guardrail/assembler"
	"lesson-forge-api/internal/application/guardrail/registry"
	"lesson-forge-api/internal/application/guardrail/scanner"
	"lesson-forge-api/internal/domain/entity"
	wfmodel "lesson-forge-api/internal/workflow/model"
	apperrors "lesson-forge-api/pkg/errors"
)

// shippedFixture 使用 configs/rulesets 中的真实规则集，只替换生成客户端与存储
type shippedFixture struct {
	client   *scriptedClient
	lessons  *memLessons
	notifier *recordingNotifier
	pipeline *Pipeline
}

func newShippedFixture(t *testing.T, fn func(context.Context, int, *wfmodel.GenerationCall) (*wfmodel.Artifact, error)) *shippedFixture {
	t.Helper()
	src, err := registry.LoadFileSource(os.DirFS(filepath.Join("..", "..", "..", "configs")), "rulesets")
	require.NoError(t, err)
	reg := registry.New(src)

	f := &shippedFixture{
		client:   &scriptedClient{fn: fn},
		lessons:  &memLessons{},
		notifier: &recordingNotifier{},
	}
	gate := NewPersistenceGate(f.lessons, &directTx{}, f.notifier)
	f.pipeline = NewPipeline(assembler.New(reg), f.client, scanner.New(reg), gate, Options{MaxAttempts: 2})
	return f
}

func shippedRequest() *wfmodel.GenerationRequest {
	req := request()
	req.Selections = map[entity.RuleCategory]wfmodel.RuleSelection{
		entity.RuleCategoryDoctrinal: {Key: "reformed-baptist"},
		entity.RuleCategoryCopyright: {Key: "kjv-public-domain"},
	}
	return req
}

func cleanLessonDraft() *wfmodel.Artifact {
	return lessonDraft(
		"Have you ever been caught outside in a storm?",
		"Jesus and his friends set out across the lake in a small boat.",
		"A great wind rose and the waves filled the boat, but Jesus slept.",
		"He stood up and said to the sea, Peace, be still, and it was calm.",
		"Jesus is stronger than every storm. Trust him and receive his grace.",
	)
}

func TestShippedRules_CleanFirstDraft(t *testing.T) {
	f := newShippedFixture(t, draftThen(cleanLessonDraft(), nil))

	res, err := f.pipeline.Run(context.Background(), shippedRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeClean, res.Outcome)
	assert.Equal(t, 1, f.client.count())
	assert.Empty(t, res.Remaining)

	manifest := res.Directive.Manifest.Map()
	assert.Equal(t, "reformed-baptist@1", manifest["doctrinal"])
	assert.Equal(t, "kjv-public-domain@1", manifest["copyright"])
	assert.Len(t, manifest, len(entity.RuleCategories()))

	require.Equal(t, 1, f.lessons.saved())
	assert.Equal(t, entity.LessonStatusVerified, f.lessons.lessons[0].Status)
	assert.Empty(t, f.notifier.flags)
}

func TestShippedRules_BlacklistHitRepairedInPlace(t *testing.T) {
	draft := cleanLessonDraft()
	draft.Sections[2].Content = "The disciples wished each other good luck as the waves rose."

	f := newShippedFixture(t, draftThen(draft, func(id string) string {
		return "The waves rose, yet God was ruling over the wind and the sea."
	}))

	res, err := f.pipeline.Run(context.Background(), shippedRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeClean, res.Outcome)
	assert.Equal(t, 2, f.client.count())

	require.Len(t, res.History, 1)
	attempt := res.History[0]
	assert.Equal(t, []string{"body-2"}, attempt.TargetedSections)
	require.Len(t, attempt.ViolationsBefore, 1)
	assert.Equal(t, "luck", attempt.ViolationsBefore[0].DetectorID)
	assert.Equal(t, "good luck", attempt.ViolationsBefore[0].MatchedSpan)

	repairCall := f.client.calls[1]
	assert.Equal(t, []string{"body-2"}, repairCall.SectionScope)
	assert.Len(t, repairCall.FixedSections, 4)
	for i, sec := range res.Artifact.Sections {
		if sec.ID == "body-2" {
			continue
		}
		assert.Equal(t, draft.Sections[i], sec, "section %s is held fixed", sec.ID)
	}
	assert.Equal(t, 1, f.lessons.lessons[0].RepairCycles)
}

func TestShippedRules_MissingGospelCallIsFlagged(t *testing.T) {
	draft := cleanLessonDraft()
	draft.Sections[4].Content = "Be brave like the sailors."

	f := newShippedFixture(t, draftThen(draft, func(string) string { return "Be brave and be kind." }))

	res, err := f.pipeline.Run(context.Background(), shippedRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFlagged, res.Outcome)
	assert.Equal(t, 3, f.client.count())
	require.Len(t, res.Remaining, 1)
	assert.Equal(t, "closing", res.Remaining[0].SectionID)
	assert.Equal(t, "missing_gospel_call", res.Remaining[0].Kind)
	assert.Contains(t, res.ReviewSummary, "missing_gospel_call")
	assert.Len(t, f.notifier.flags, 1)
}

func TestShippedRules_UnknownKeyFailsBeforeGeneration(t *testing.T) {
	f := newShippedFixture(t, draftThen(cleanLessonDraft(), nil))
	req := shippedRequest()
	req.Selections[entity.RuleCategoryDoctrinal] = wfmodel.RuleSelection{Key: "no-such-tradition"}

	res, err := f.pipeline.Run(context.Background(), req)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrUnknownRuleKind)
	assert.Zero(t, f.client.count())
	assert.Zero(t, f.lessons.saved())
}

func TestShippedRules_SectionPlanWithoutClosingRejected(t *testing.T) {
	f := newShippedFixture(t, draftThen(cleanLessonDraft(), nil))
	req := shippedRequest()
	req.SectionPlan = []string{"opening", "body-1"}

	res, err := f.pipeline.Run(context.Background(), req)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParam)
	assert.Zero(t, f.client.count())
	assert.Zero(t, f.lessons.saved())
}
