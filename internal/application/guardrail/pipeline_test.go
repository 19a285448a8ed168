package guardrail

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lesson-forge-api/internal/domain/entity"
	"lesson-forge-api/internal/domain/repository"
	wfmodel "lesson-forge-api/internal/workflow/model"
	apperrors "lesson-forge-api/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubAssembler struct {
	calls int
	err   error
}

func (a *stubAssembler) Assemble(_ context.Context, req *wfmodel.GenerationRequest) (*wfmodel.AssembledDirective, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return &wfmodel.AssembledDirective{
		Manifest: wfmodel.Manifest{
			{Category: entity.RuleCategoryDoctrinal, Key: "reformed-baptist", Version: 3},
			{Category: entity.RuleCategoryCopyright, Key: "kjv-public-domain", Version: 1},
		},
		SectionPlan:   req.SectionPlan,
		FreshnessSeed: req.FreshnessSeed,
	}, nil
}

// markerScanner 章节内容每出现一次 BAD 记一条违规
type markerScanner struct{}

func (markerScanner) Scan(_ context.Context, a *wfmodel.Artifact, _ wfmodel.Manifest) ([]wfmodel.Violation, error) {
	var out []wfmodel.Violation
	for _, s := range a.Sections {
		for i := 0; i < strings.Count(s.Content, "BAD"); i++ {
			out = append(out, wfmodel.Violation{
				Kind:         "doctrinal_conflict",
				Category:     entity.RuleCategoryDoctrinal,
				SectionID:    s.ID,
				MatchedSpan:  "BAD",
				RuleKey:      "reformed-baptist",
				RuleVersion:  3,
				DetectorID:   "marker",
				DetectorKind: entity.DetectorBlacklist,
				Message:      "prohibited text: BAD",
			})
		}
	}
	return out, nil
}

type scriptedClient struct {
	mu    sync.Mutex
	calls []*wfmodel.GenerationCall
	fn    func(ctx context.Context, n int, call *wfmodel.GenerationCall) (*wfmodel.Artifact, error)
}

func (c *scriptedClient) Generate(ctx context.Context, call *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	n := len(c.calls)
	c.mu.Unlock()
	return c.fn(ctx, n, call)
}

func (c *scriptedClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// draftThen 首次调用返回给定草稿，之后的定向调用交给 repair
func draftThen(draft *wfmodel.Artifact, repair func(id string) string) func(context.Context, int, *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
	return func(_ context.Context, _ int, call *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
		if !call.Scoped() {
			return draft.Clone(), nil
		}
		out := &wfmodel.Artifact{}
		for _, id := range call.SectionScope {
			out.Sections = append(out.Sections, wfmodel.Section{ID: id, Content: repair(id)})
		}
		return out, nil
	}
}

func lessonDraft(contents ...string) *wfmodel.Artifact {
	ids := []string{"opening", "body-1", "body-2", "body-3", "closing"}
	a := &wfmodel.Artifact{Title: "The Storm on the Lake"}
	for i, c := range contents {
		a.Sections = append(a.Sections, wfmodel.Section{ID: ids[i], Heading: ids[i], Content: c})
	}
	return a
}

type memLessons struct {
	mu      sync.Mutex
	lessons []*entity.Lesson
	flags   []*entity.LessonReviewFlag
	err     error
}

func (r *memLessons) Create(_ context.Context, l *entity.Lesson) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = "lesson-1"
	r.lessons = append(r.lessons, l)
	return nil
}

func (r *memLessons) GetByID(_ context.Context, id string) (*entity.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lessons {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, nil
}

func (r *memLessons) CreateReviewFlag(_ context.Context, f *entity.LessonReviewFlag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags = append(r.flags, f)
	return nil
}

func (r *memLessons) GetReviewFlag(_ context.Context, lessonID string) (*entity.LessonReviewFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.flags {
		if f.LessonID == lessonID {
			return f, nil
		}
	}
	return nil, nil
}

func (r *memLessons) ListFlagged(_ context.Context, p repository.Pagination) (*repository.PagedResult[*entity.Lesson], error) {
	return repository.NewPagedResult[*entity.Lesson](nil, 0, p), nil
}

func (r *memLessons) saved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lessons)
}

type directTx struct{ calls int }

func (t *directTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type recordingNotifier struct {
	flags []*entity.LessonReviewFlag
}

func (n *recordingNotifier) NotifyFlagged(_ context.Context, _ *entity.Lesson, f *entity.LessonReviewFlag) error {
	n.flags = append(n.flags, f)
	return nil
}

type fixture struct {
	assembler *stubAssembler
	client    *scriptedClient
	lessons   *memLessons
	notifier  *recordingNotifier
	pipeline  *Pipeline
}

func newFixture(fn func(context.Context, int, *wfmodel.GenerationCall) (*wfmodel.Artifact, error)) *fixture {
	f := &fixture{
		assembler: &stubAssembler{},
		client:    &scriptedClient{fn: fn},
		lessons:   &memLessons{},
		notifier:  &recordingNotifier{},
	}
	gate := NewPersistenceGate(f.lessons, &directTx{}, f.notifier)
	f.pipeline = NewPipeline(f.assembler, f.client, markerScanner{}, gate, Options{MaxAttempts: 2})
	return f
}

func request() *wfmodel.GenerationRequest {
	return &wfmodel.GenerationRequest{
		RequestID:     "req-1",
		Content:       wfmodel.LessonContent{Passage: "Mark 4:35-41"},
		SectionPlan:   wfmodel.DefaultSectionPlan,
		FreshnessSeed: "2026-10-18",
	}
}

func TestPipeline_CleanFirstDraft(t *testing.T) {
	f := newFixture(draftThen(lessonDraft("a", "b", "c", "d", "e"), nil))

	res, err := f.pipeline.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, OutcomeClean, res.Outcome)
	assert.Equal(t, "lesson-1", res.LessonID)
	assert.Equal(t, 1, res.GenerationCalls)
	assert.Empty(t, res.History)
	assert.Empty(t, res.Remaining)

	require.Equal(t, 1, f.lessons.saved())
	saved := f.lessons.lessons[0]
	assert.Equal(t, entity.LessonStatusVerified, saved.Status)
	assert.False(t, saved.Flagged)
	assert.Equal(t, "req-1", saved.RequestID)
	assert.JSONEq(t, `{"doctrinal":"reformed-baptist@3","copyright":"kjv-public-domain@1"}`, string(saved.Manifest))
	assert.Empty(t, f.lessons.flags)
	assert.Empty(t, f.notifier.flags)
}

func TestPipeline_ScopedRepairThenSave(t *testing.T) {
	f := newFixture(draftThen(lessonDraft("a", "BAD", "c", "d", "e"), func(id string) string { return "fixed " + id }))

	res, err := f.pipeline.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, OutcomeClean, res.Outcome)
	assert.Equal(t, 2, res.GenerationCalls)
	require.Len(t, res.History, 1)
	assert.Equal(t, []string{"body-1"}, res.History[0].TargetedSections)

	require.Equal(t, 2, f.client.count())
	repairCall := f.client.calls[1]
	assert.Equal(t, []string{"body-1"}, repairCall.SectionScope)
	assert.Len(t, repairCall.FixedSections, 4)

	assert.Equal(t, "a", res.Artifact.Sections[0].Content)
	assert.Equal(t, "fixed body-1", res.Artifact.Sections[1].Content)
	assert.Equal(t, 1, f.lessons.lessons[0].RepairCycles)
}

func TestPipeline_ExhaustedIsFlagged(t *testing.T) {
	f := newFixture(draftThen(lessonDraft("a", "BAD", "c", "d", "e"), func(string) string { return "BAD again" }))

	res, err := f.pipeline.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFlagged, res.Outcome)
	assert.Len(t, res.History, 2)
	assert.Equal(t, 3, res.GenerationCalls)
	assert.Equal(t, 3, f.client.count())
	assert.Len(t, res.Remaining, 1)
	assert.Contains(t, res.ReviewSummary, "1 violation(s) remain after 2 repair attempt(s)")

	require.Equal(t, 1, f.lessons.saved())
	assert.Equal(t, entity.LessonStatusFlagged, f.lessons.lessons[0].Status)
	require.Len(t, f.lessons.flags, 1)
	flag := f.lessons.flags[0]
	assert.Equal(t, "lesson-1", flag.LessonID)
	assert.Equal(t, []string{"body-1"}, []string(flag.SectionIDs))
	assert.Equal(t, []string{"doctrinal_conflict"}, []string(flag.ViolationKinds))
	assert.Len(t, f.notifier.flags, 1)
}

func TestPipeline_AssemblyFailureSkipsGeneration(t *testing.T) {
	f := newFixture(draftThen(lessonDraft("a"), nil))
	f.assembler.err = apperrors.ErrVersionNotFound.WithDetail("doctrinal:reformed-baptist@9")

	res, err := f.pipeline.Run(context.Background(), request())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrVersionNotFound)
	assert.Zero(t, f.client.count())
	assert.Zero(t, f.lessons.saved())
}

func TestPipeline_CancelledByCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(func(ctx context.Context, n int, call *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
		if !call.Scoped() {
			return lessonDraft("a", "BAD", "c", "d", "e"), nil
		}
		cancel()
		return nil, ctx.Err()
	})

	res, err := f.pipeline.Run(ctx, request())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, 2, f.client.count(), "no retry after cancellation")
	assert.Zero(t, f.lessons.saved())
}

func TestPipeline_OverallTimeout(t *testing.T) {
	f := newFixture(func(ctx context.Context, _ int, _ *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	res, err := f.pipeline.Run(context.Background(), request(), WithTimeout(20*time.Millisecond))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apperrors.ErrPipelineTimeout)
	assert.Zero(t, f.lessons.saved())
}

func TestPipeline_TransportFailureRetriedOnce(t *testing.T) {
	f := newFixture(func(_ context.Context, n int, _ *wfmodel.GenerationCall) (*wfmodel.Artifact, error) {
		if n == 1 {
			return nil, errors.New("connection reset")
		}
		return lessonDraft("a", "b"), nil
	})

	res, err := f.pipeline.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, OutcomeClean, res.Outcome)
	assert.Equal(t, 2, f.client.count())
}
