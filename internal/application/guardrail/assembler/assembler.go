// Package assembler 按类别解析规则集并组装确定性的生成指令
package assembler

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"lesson-forge-api/internal/domain/entity"
	wfmodel "lesson-forge-api/internal/workflow/model"
	apperrors "lesson-forge-api/pkg/errors"
	"lesson-forge-api/pkg/logger"
)

// Resolver 规则集解析
type Resolver interface {
	Resolve(ctx context.Context, category entity.RuleCategory, key string, version int) (*entity.RuleSet, error)
}

// Assembler 指令组装器，无状态，可并发使用
type Assembler struct {
	resolver Resolver
}

// New 创建组装器
func New(resolver Resolver) *Assembler {
	return &Assembler{resolver: resolver}
}

// Assemble 每个类别解析恰好一个规则集（未选择则取默认），按类别顺序拼接片段并消解冲突。
// 同一输入总是得到逐字节相同的输出。
func (a *Assembler) Assemble(ctx context.Context, req *wfmodel.GenerationRequest) (*wfmodel.AssembledDirective, error) {
	if req == nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("generation request is nil")
	}
	for cat := range req.Selections {
		if !cat.Valid() {
			return nil, apperrors.ErrUnknownRuleKind.WithDetail(fmt.Sprintf("unknown category %q", cat))
		}
	}

	out := &wfmodel.AssembledDirective{
		Content:       req.Content,
		Audience:      req.Audience,
		SectionPlan:   sectionPlan(req.SectionPlan),
		FreshnessSeed: req.FreshnessSeed,
	}

	var candidates []wfmodel.Fragment
	for _, cat := range entity.RuleCategories() {
		sel := req.Selections[cat]
		rs, err := a.resolver.Resolve(ctx, cat, sel.Key, sel.Version)
		if err != nil {
			return nil, fmt.Errorf("resolve %s rule set: %w", cat, err)
		}
		out.Manifest = append(out.Manifest, wfmodel.ManifestEntry{Category: cat, Key: rs.Key, Version: rs.Version})
		if err := checkSectionPlan(rs, out.SectionPlan); err != nil {
			return nil, err
		}

		frags := fragmentsOf(rs, req.FreshnessSeed)
		if err := checkInternalConflicts(rs, frags); err != nil {
			return nil, err
		}
		candidates = append(candidates, frags...)
	}

	out.Fragments, out.Dropped = resolveConflicts(candidates)
	if len(out.Dropped) > 0 {
		logger.Debug(ctx, "directive fragments dropped during assembly",
			"dropped", len(out.Dropped),
			"manifest", out.Manifest.String(),
		)
	}
	return out, nil
}

func sectionPlan(plan []string) []string {
	src := plan
	if len(src) == 0 {
		src = wfmodel.DefaultSectionPlan
	}
	out := make([]string, 0, len(src))
	for _, id := range src {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func fragmentsOf(rs *entity.RuleSet, seed string) []wfmodel.Fragment {
	directives := rs.Directives
	if fr, ok := rs.Freshness(); ok {
		directives = append(append([]entity.Directive{}, rs.Directives...), pickFreshness(rs.Key, fr, seed)...)
	}

	out := make([]wfmodel.Fragment, 0, len(directives))
	for _, d := range directives {
		out = append(out, wfmodel.Fragment{
			Category:    rs.Category,
			RuleKey:     rs.Key,
			RuleVersion: rs.Version,
			DirectiveID: d.ID,
			Concern:     strings.TrimSpace(d.Concern),
			Text:        strings.TrimSpace(d.Text),
			Precedence:  rs.Precedence,
		})
	}
	return out
}

// pickFreshness 按种子对池中每条指令打分，取分数最小的 Pick 条，并保持池内原顺序
func pickFreshness(key string, fr *entity.FreshnessRules, seed string) []entity.Directive {
	n := fr.Pick
	if n <= 0 || n >= len(fr.Pool) {
		return fr.Pool
	}

	type scored struct {
		idx   int
		score uint64
	}
	scores := make([]scored, len(fr.Pool))
	for i, d := range fr.Pool {
		h := fnv.New64a()
		_, _ = h.Write([]byte(seed))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(key))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(d.ID))
		scores[i] = scored{idx: i, score: h.Sum64()}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score < scores[j].score
		}
		return scores[i].idx < scores[j].idx
	})

	picked := make([]int, 0, n)
	for _, s := range scores[:n] {
		picked = append(picked, s.idx)
	}
	sort.Ints(picked)

	out := make([]entity.Directive, 0, n)
	for _, i := range picked {
		out = append(out, fr.Pool[i])
	}
	return out
}

// checkSectionPlan 必需检测器点名的章节必须出现在章节规划中
func checkSectionPlan(rs *entity.RuleSet, plan []string) error {
	if !rs.Category.Verifiable() {
		return nil
	}
	planned := make(map[string]struct{}, len(plan))
	for _, id := range plan {
		planned[id] = struct{}{}
	}
	for _, d := range rs.Detectors {
		for _, id := range d.RequiredSections() {
			if _, ok := planned[id]; !ok {
				return apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf(
					"section_plan omits %q required by %s#%s", id, rs.Ref(), d.ID,
				))
			}
		}
	}
	return nil
}

// checkInternalConflicts 同一规则集内同一关注点出现不同文本，属于配置完整性错误
func checkInternalConflicts(rs *entity.RuleSet, frags []wfmodel.Fragment) error {
	seen := make(map[string]wfmodel.Fragment, len(frags))
	for _, f := range frags {
		if f.Concern == "" {
			continue
		}
		prev, ok := seen[f.Concern]
		if !ok {
			seen[f.Concern] = f
			continue
		}
		if !sameText(prev.Text, f.Text) {
			return apperrors.ErrUnresolvableConflict.WithDetail(fmt.Sprintf(
				"%s: directives %q and %q both address %q at precedence %d",
				rs.Ref(), prev.DirectiveID, f.DirectiveID, f.Concern, rs.Precedence,
			))
		}
	}
	return nil
}

// resolveConflicts 同一关注点只保留一个片段：
// 文本相同视为重复；措辞变化类片段不能覆盖硬约束类；其余按优先级，优先级相同按类别顺序。
func resolveConflicts(candidates []wfmodel.Fragment) ([]wfmodel.Fragment, []wfmodel.DroppedFragment) {
	winners := make(map[string]int, len(candidates))
	dropped := make([]bool, len(candidates))
	var drops []wfmodel.DroppedFragment

	for i, f := range candidates {
		if f.Concern == "" {
			continue
		}
		wi, ok := winners[f.Concern]
		if !ok {
			winners[f.Concern] = i
			continue
		}
		w := candidates[wi]

		switch {
		case sameText(w.Text, f.Text):
			dropped[i] = true
			drops = append(drops, wfmodel.DroppedFragment{Fragment: f, Reason: wfmodel.DropDuplicate, WinnerRef: fragmentRef(w)})
		case beats(f, w):
			dropped[wi] = true
			winners[f.Concern] = i
			drops = append(drops, wfmodel.DroppedFragment{Fragment: w, Reason: wfmodel.DropSuperseded, WinnerRef: fragmentRef(f)})
		default:
			dropped[i] = true
			drops = append(drops, wfmodel.DroppedFragment{Fragment: f, Reason: wfmodel.DropSuperseded, WinnerRef: fragmentRef(w)})
		}
	}

	kept := make([]wfmodel.Fragment, 0, len(candidates))
	for i, f := range candidates {
		if !dropped[i] {
			kept = append(kept, f)
		}
	}
	return kept, drops
}

// beats 候选 f 是否胜过当前保留的 w。候选总是按类别顺序到达，w 的类别不晚于 f。
func beats(f, w wfmodel.Fragment) bool {
	if f.Category == entity.RuleCategoryFreshness && w.Category.HardConstraint() {
		return false
	}
	if f.Precedence != w.Precedence {
		return f.Precedence > w.Precedence
	}
	return f.Category.Rank() < w.Category.Rank()
}

func sameText(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}

func fragmentRef(f wfmodel.Fragment) string {
	return fmt.Sprintf("%s#%s", f.Ref(), f.DirectiveID)
}
