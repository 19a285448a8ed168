// Package scanner 将产物的每个章节与生效规则集的检测器逐一比对，产出完整的违规集合
package scanner

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"lesson-forge-api/internal/domain/entity"
	wfmodel "lesson-forge-api/internal/workflow/model"
	apperrors "lesson-forge-api/pkg/errors"
	"lesson-forge-api/pkg/metrics"
)

var tracer = otel.Tracer("guardrail.scanner")

const defaultConcurrency = 4

// DetectorSource 按规则集版本列出检测器
type DetectorSource interface {
	ListDetectors(ctx context.Context, ref entity.RuleRef) ([]entity.DetectorPattern, error)
}

// Scanner 违规扫描器。同一 (产物, 清单) 总是得到相同顺序的相同结果。
type Scanner struct {
	source      DetectorSource
	concurrency int

	compiled sync.Map // compiledKey -> detector
}

type compiledKey struct {
	ref        entity.RuleRef
	detectorID string
}

// Option 扫描器选项
type Option func(*Scanner)

// WithConcurrency 设置章节并发度
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New 创建扫描器
func New(source DetectorSource, opts ...Option) *Scanner {
	s := &Scanner{source: source, concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan 扫描整个产物。每个检测器都会作用于其范围内的每个章节，不会在首个命中处停止。
// 结果按章节顺序、检测器顺序、命中位置排列，缺失的必需章节排在最后。
func (s *Scanner) Scan(ctx context.Context, artifact *wfmodel.Artifact, manifest wfmodel.Manifest) ([]wfmodel.Violation, error) {
	ctx, span := tracer.Start(ctx, "scanner.Scan")
	defer span.End()

	if artifact == nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("artifact is nil")
	}

	detectors, err := s.bind(ctx, manifest)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([][]wfmodel.Violation, len(artifact.Sections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, sec := range artifact.Sections {
		i, sec := i, sec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = scanSection(sec, detectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var out []wfmodel.Violation
	for _, r := range results {
		out = append(out, r...)
	}
	out = append(out, missingSections(artifact, detectors)...)
	for _, v := range out {
		metrics.ViolationsTotal.WithLabelValues(string(v.Category), v.Kind).Inc()
	}
	span.SetAttributes(
		attribute.Int("scan.sections", len(artifact.Sections)),
		attribute.Int("scan.detectors", len(detectors)),
		attribute.Int("scan.violations", len(out)),
	)
	return out, nil
}

// bind 按清单顺序收集可校验类别的检测器并编译（编译结果按规则集版本缓存）
func (s *Scanner) bind(ctx context.Context, manifest wfmodel.Manifest) ([]*boundDetector, error) {
	var out []*boundDetector
	for _, entry := range manifest {
		if !entry.Category.Verifiable() {
			continue
		}
		ref := entry.Ref()
		patterns, err := s.source.ListDetectors(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("list detectors for %s: %w", ref, err)
		}
		for _, p := range patterns {
			impl, err := s.compiledFor(ref, p)
			if err != nil {
				return nil, apperrors.ErrRuleSetInvalid.WithDetail(ref.String()).WithError(err)
			}
			out = append(out, &boundDetector{ref: ref, pattern: p, impl: impl})
		}
	}
	return out, nil
}

func (s *Scanner) compiledFor(ref entity.RuleRef, p entity.DetectorPattern) (detector, error) {
	key := compiledKey{ref: ref, detectorID: p.ID}
	if d, ok := s.compiled.Load(key); ok {
		return d.(detector), nil
	}
	d, err := compile(p)
	if err != nil {
		return nil, err
	}
	actual, _ := s.compiled.LoadOrStore(key, d)
	return actual.(detector), nil
}

func scanSection(sec wfmodel.Section, detectors []*boundDetector) []wfmodel.Violation {
	text := normalize(sec.Heading + "\n" + sec.Content)

	var out []wfmodel.Violation
	for _, d := range detectors {
		if !d.inScope(sec.ID) {
			continue
		}
		for _, m := range d.impl.detect(text) {
			out = append(out, wfmodel.Violation{
				Kind:         d.pattern.ViolationKind,
				Category:     d.ref.Category,
				SectionID:    sec.ID,
				MatchedSpan:  m.span,
				RuleKey:      d.ref.Key,
				RuleVersion:  d.ref.Version,
				DetectorID:   d.pattern.ID,
				DetectorKind: d.pattern.Kind,
				Message:      d.message(m),
				Hint:         d.pattern.Correction,
			})
		}
	}
	return out
}

// missingSections 必需检测器点名的章节不存在时，缺失本身记为该章节的违规
func missingSections(artifact *wfmodel.Artifact, detectors []*boundDetector) []wfmodel.Violation {
	present := make(map[string]struct{}, len(artifact.Sections))
	for _, sec := range artifact.Sections {
		present[sec.ID] = struct{}{}
	}

	var out []wfmodel.Violation
	for _, d := range detectors {
		for _, id := range d.pattern.RequiredSections() {
			if _, ok := present[id]; ok {
				continue
			}
			out = append(out, wfmodel.Violation{
				Kind:         d.pattern.ViolationKind,
				Category:     d.ref.Category,
				SectionID:    id,
				RuleKey:      d.ref.Key,
				RuleVersion:  d.ref.Version,
				DetectorID:   d.pattern.ID,
				DetectorKind: d.pattern.Kind,
				Message:      fmt.Sprintf("required section %q is missing", id),
				Hint:         d.pattern.Correction,
			})
		}
	}
	return out
}
