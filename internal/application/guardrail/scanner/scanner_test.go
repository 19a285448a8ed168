package scanner

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lesson-forge-api/internal/domain/entity"
	wfmodel "lesson-forge-api/internal/workflow/model"
	apperrors "lesson-forge-api/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDetectors map[entity.RuleRef][]entity.DetectorPattern

func (f fakeDetectors) ListDetectors(_ context.Context, ref entity.RuleRef) ([]entity.DetectorPattern, error) {
	if !ref.Category.Verifiable() {
		return nil, nil
	}
	d, ok := f[ref]
	if !ok {
		return nil, apperrors.ErrVersionNotFound.WithDetail(ref.String())
	}
	return d, nil
}

var (
	doctrinalRef = entity.RuleRef{Category: entity.RuleCategoryDoctrinal, Key: "reformed-baptist", Version: 3}
	copyrightRef = entity.RuleRef{Category: entity.RuleCategoryCopyright, Key: "niv-limited", Version: 1}
	styleRef     = entity.RuleRef{Category: entity.RuleCategoryStyle, Key: "warm", Version: 1}
)

func testManifest() wfmodel.Manifest {
	return wfmodel.Manifest{
		{Category: doctrinalRef.Category, Key: doctrinalRef.Key, Version: doctrinalRef.Version},
		{Category: copyrightRef.Category, Key: copyrightRef.Key, Version: copyrightRef.Version},
		{Category: styleRef.Category, Key: styleRef.Key, Version: styleRef.Version},
	}
}

func testDetectors() fakeDetectors {
	return fakeDetectors{
		doctrinalRef: {
			{ID: "infant-baptism", Kind: entity.DetectorBlacklist, Pattern: "infant baptism", ViolationKind: "doctrinal_conflict", Correction: "Describe believer's baptism."},
			{ID: "purgatory", Kind: entity.DetectorBlacklist, Pattern: `purgator(y|ial)`, Regex: true, ViolationKind: "doctrinal_conflict"},
			{ID: "gospel-call", Kind: entity.DetectorRequired, Pattern: "repent and believe", ViolationKind: "missing_gospel", SectionScope: []string{"closing"}},
		},
		copyrightRef: {
			{ID: "long-quote", Kind: entity.DetectorQuoteLength, MaxWords: 5, ViolationKind: "quote_too_long"},
		},
	}
}

func TestScan_Clean(t *testing.T) {
	art := &wfmodel.Artifact{Sections: []wfmodel.Section{
		{ID: "opening", Content: "Jesus was asleep in the boat."},
		{ID: "closing", Content: "Repent and believe the good news."},
	}}
	vs, err := New(testDetectors()).Scan(context.Background(), art, testManifest())
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestScan_ReportsEveryViolation(t *testing.T) {
	art := &wfmodel.Artifact{Sections: []wfmodel.Section{
		{ID: "opening", Content: "Some churches practise INFANT   baptism; others teach purgatory."},
		{ID: "body-1", Content: `He said "Peace, be still, and the wind ceased" to the sea.`},
		{ID: "closing", Content: "Go home and be kind. Infant baptism again."},
	}}
	vs, err := New(testDetectors()).Scan(context.Background(), art, testManifest())
	require.NoError(t, err)

	type key struct{ section, detector, span string }
	got := make([]key, 0, len(vs))
	for _, v := range vs {
		got = append(got, key{v.SectionID, v.DetectorID, v.MatchedSpan})
	}
	want := []key{
		{"opening", "infant-baptism", "INFANT   baptism"},
		{"opening", "purgatory", "purgatory"},
		{"body-1", "long-quote", "Peace, be still, and the wind ceased"},
		{"closing", "infant-baptism", "Infant baptism"},
		{"closing", "gospel-call", ""},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(key{})); diff != "" {
		t.Fatalf("violations mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Describe believer's baptism.", vs[0].Hint)
	assert.Equal(t, "reformed-baptist", vs[0].RuleKey)
	assert.Equal(t, 3, vs[0].RuleVersion)
	assert.Equal(t, entity.RuleCategoryCopyright, vs[2].Category)
	assert.Contains(t, vs[4].Message, "repent and believe")
}

func TestScan_NormalizesEvasions(t *testing.T) {
	art := &wfmodel.Artifact{Sections: []wfmodel.Section{
		// 零宽空格与全角字母
		{ID: "opening", Content: "in\u200bfant baptism"},
		{ID: "body-1", Content: "ｉｎｆａｎｔ baptism"},
		{ID: "body-2", Content: "infantbaptism is not a word"},
		{ID: "closing", Content: "Repent and believe."},
	}}
	vs, err := New(testDetectors()).Scan(context.Background(), art, testManifest())
	require.NoError(t, err)

	var sections []string
	for _, v := range vs {
		sections = append(sections, v.SectionID)
	}
	assert.Equal(t, []string{"opening", "body-1"}, sections)
}

func TestScan_CurlyQuotes(t *testing.T) {
	art := &wfmodel.Artifact{Sections: []wfmodel.Section{
		{ID: "body-1", Content: "Jesus asked, “Why are you so afraid? Do you still have no faith?”"},
		{ID: "body-2", Content: "He said “Quiet! Be still!” and it was calm."},
		{ID: "closing", Content: "Repent and believe."},
	}}
	vs, err := New(testDetectors()).Scan(context.Background(), art, testManifest())
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "body-1", vs[0].SectionID)
	assert.Equal(t, "quote_too_long", vs[0].Kind)
}

func TestScan_SectionScopeGlob(t *testing.T) {
	dets := testDetectors()
	dets[doctrinalRef] = []entity.DetectorPattern{
		{ID: "no-jokes", Kind: entity.DetectorBlacklist, Pattern: "joke", ViolationKind: "tone", SectionScope: []string{"body-*"}},
	}
	art := &wfmodel.Artifact{Sections: []wfmodel.Section{
		{ID: "opening", Content: "A joke to start."},
		{ID: "body-1", Content: "Another joke."},
		{ID: "body-2", Content: "No jokes here."},
	}}
	vs, err := New(dets).Scan(context.Background(), art, testManifest())
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "body-1", vs[0].SectionID)
}

func TestScan_Deterministic(t *testing.T) {
	art := &wfmodel.Artifact{}
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"} {
		art.Sections = append(art.Sections, wfmodel.Section{ID: id, Content: "purgatory and infant baptism and purgatorial fire"})
	}
	art.Sections = append(art.Sections, wfmodel.Section{ID: "closing", Content: "Repent and believe."})
	s := New(testDetectors(), WithConcurrency(3))

	first, err := s.Scan(context.Background(), art, testManifest())
	require.NoError(t, err)
	require.Len(t, first, 8*3)
	for i := 0; i < 10; i++ {
		again, err := s.Scan(context.Background(), art, testManifest())
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("scan %d differs:\n%s", i, diff)
		}
	}
}

func TestScan_UnknownRuleVersion(t *testing.T) {
	manifest := wfmodel.Manifest{{Category: entity.RuleCategoryDoctrinal, Key: "reformed-baptist", Version: 99}}
	_, err := New(testDetectors()).Scan(context.Background(), &wfmodel.Artifact{}, manifest)
	assert.ErrorIs(t, err, apperrors.ErrVersionNotFound)
}

func TestScan_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	art := &wfmodel.Artifact{Sections: []wfmodel.Section{{ID: "opening", Content: "x"}}}
	_, err := New(testDetectors()).Scan(ctx, art, testManifest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScan_MissingRequiredSection(t *testing.T) {
	art := &wfmodel.Artifact{Sections: []wfmodel.Section{
		{ID: "opening", Content: "Jesus was asleep in the boat."},
		{ID: "body-1", Content: "The disciples were afraid."},
	}}
	vs, err := New(testDetectors()).Scan(context.Background(), art, testManifest())
	require.NoError(t, err)
	require.Len(t, vs, 1)

	v := vs[0]
	assert.Equal(t, "closing", v.SectionID)
	assert.Equal(t, "gospel-call", v.DetectorID)
	assert.Equal(t, "missing_gospel", v.Kind)
	assert.Equal(t, entity.DetectorRequired, v.DetectorKind)
	assert.Empty(t, v.MatchedSpan)
	assert.Contains(t, v.Message, `"closing"`)

	assert.Equal(t, []string{"closing"}, wfmodel.ViolatingSections(art, vs))
}

func TestScan_GlobScopeDoesNotRequireSections(t *testing.T) {
	dets := testDetectors()
	dets[doctrinalRef] = []entity.DetectorPattern{
		{ID: "body-call", Kind: entity.DetectorRequired, Pattern: "Jesus", ViolationKind: "missing_christ", SectionScope: []string{"body-*"}},
	}
	art := &wfmodel.Artifact{Sections: []wfmodel.Section{{ID: "opening", Content: "A stormy night."}}}

	vs, err := New(dets).Scan(context.Background(), art, testManifest())
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestScan_NonASCIIPhraseBoundaries(t *testing.T) {
	dets := testDetectors()
	dets[doctrinalRef] = []entity.DetectorPattern{
		{ID: "vitalism", Kind: entity.DetectorBlacklist, Pattern: "élan vital", ViolationKind: "doctrinal_conflict"},
		{ID: "karma", Kind: entity.DetectorBlacklist, Pattern: "карма", ViolationKind: "doctrinal_conflict"},
	}

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"accented phrase", "God is no mere élan vital.", []string{"élan vital"}},
		{"case folded", "ÉLAN  VITAL is not the Spirit.", []string{"ÉLAN  VITAL"}},
		{"cyrillic", "Это не карма, а благодать.", []string{"карма"}},
		{"word continues after", "Their élan vitality faded.", nil},
		{"word continues before", "Кармапа is a title.", nil},
		{"rejected candidate followed by a real hit", "élan vitals and élan vital", []string{"élan vital"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art := &wfmodel.Artifact{Sections: []wfmodel.Section{{ID: "body-1", Content: tt.text}}}
			vs, err := New(dets).Scan(context.Background(), art, testManifest())
			require.NoError(t, err)

			var spans []string
			for _, v := range vs {
				spans = append(spans, v.MatchedSpan)
			}
			assert.Equal(t, tt.want, spans)
		})
	}
}

func TestScan_NonASCIIRequiredPhrase(t *testing.T) {
	dets := testDetectors()
	dets[doctrinalRef] = []entity.DetectorPattern{
		{ID: "grace", Kind: entity.DetectorRequired, Pattern: "gracia", ViolationKind: "missing_gospel", SectionScope: []string{"closing"}},
		{ID: "amen", Kind: entity.DetectorRequired, Pattern: "Amén", ViolationKind: "missing_amen", SectionScope: []string{"closing"}},
	}
	art := &wfmodel.Artifact{Sections: []wfmodel.Section{{ID: "closing", Content: "Por gracia sois salvos. ¡Amén!"}}}

	vs, err := New(dets).Scan(context.Background(), art, testManifest())
	require.NoError(t, err)
	assert.Empty(t, vs)
}
