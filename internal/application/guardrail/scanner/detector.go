package scanner

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"lesson-forge-api/internal/domain/entity"
)

// match 一次命中；span 为空表示"缺失"类违规
type match struct {
	span string
}

type detector interface {
	detect(text string) []match
}

// boundDetector 已编译的检测器及其所属规则集
type boundDetector struct {
	ref     entity.RuleRef
	pattern entity.DetectorPattern
	impl    detector
}

func (b *boundDetector) inScope(sectionID string) bool {
	if len(b.pattern.SectionScope) == 0 {
		return true
	}
	for _, scope := range b.pattern.SectionScope {
		if ok, _ := path.Match(scope, sectionID); ok {
			return true
		}
	}
	return false
}

func (b *boundDetector) message(m match) string {
	switch b.pattern.Kind {
	case entity.DetectorRequired:
		return fmt.Sprintf("required text missing: %s", b.pattern.Pattern)
	case entity.DetectorQuoteLength:
		return fmt.Sprintf("quotation exceeds %d words", b.pattern.MaxWords)
	default:
		return fmt.Sprintf("prohibited text: %s", m.span)
	}
}

func compile(p entity.DetectorPattern) (detector, error) {
	switch p.Kind {
	case entity.DetectorBlacklist:
		m, err := compilePhrase(p)
		if err != nil {
			return nil, err
		}
		return &blacklistDetector{phrase: m}, nil
	case entity.DetectorRequired:
		m, err := compilePhrase(p)
		if err != nil {
			return nil, err
		}
		return &requiredDetector{phrase: m}, nil
	case entity.DetectorQuoteLength:
		if p.MaxWords <= 0 {
			return nil, fmt.Errorf("detector %s: max_words must be positive", p.ID)
		}
		return &quoteLengthDetector{maxWords: p.MaxWords}, nil
	default:
		return nil, fmt.Errorf("detector %s: unknown kind %q", p.ID, p.Kind)
	}
}

// phraseMatcher 短语匹配；字面短语的词边界在命中后按 Unicode 字母数字判断
type phraseMatcher struct {
	re         *regexp.Regexp
	startBound bool
	endBound   bool
}

// compilePhrase 字面短语按大小写不敏感、空白宽松编译；Regex 模式原样编译
func compilePhrase(p entity.DetectorPattern) (*phraseMatcher, error) {
	if p.Regex {
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("detector %s: %w", p.ID, err)
		}
		return &phraseMatcher{re: re}, nil
	}

	phrase := normalize(p.Pattern)
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return nil, fmt.Errorf("detector %s: empty pattern", p.ID)
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile("(?i)" + strings.Join(quoted, `\s+`))
	if err != nil {
		return nil, fmt.Errorf("detector %s: %w", p.ID, err)
	}
	return &phraseMatcher{
		re:         re,
		startBound: isWordRune(firstRune(phrase)),
		endBound:   isWordRune(lastRune(phrase)),
	}, nil
}

// findAll 返回全部命中。边界不成立的候选从其下一个字符继续查找，不吞掉重叠的合法命中。
func (m *phraseMatcher) findAll(text string) []string {
	if !m.startBound && !m.endBound {
		return m.re.FindAllString(text, -1)
	}
	var out []string
	for off := 0; off <= len(text); {
		loc := m.re.FindStringIndex(text[off:])
		if loc == nil {
			break
		}
		start, end := off+loc[0], off+loc[1]
		if m.bounded(text, start, end) {
			out = append(out, text[start:end])
			if end > start {
				off = end
				continue
			}
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			break
		}
		off = start + size
	}
	return out
}

func (m *phraseMatcher) matches(text string) bool {
	if !m.startBound && !m.endBound {
		return m.re.MatchString(text)
	}
	return len(m.findAll(text)) > 0
}

func (m *phraseMatcher) bounded(text string, start, end int) bool {
	if m.startBound && start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
			return false
		}
	}
	if m.endBound && end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

type blacklistDetector struct {
	phrase *phraseMatcher
}

func (d *blacklistDetector) detect(text string) []match {
	spans := d.phrase.findAll(text)
	out := make([]match, 0, len(spans))
	for _, s := range spans {
		out = append(out, match{span: s})
	}
	return out
}

type requiredDetector struct {
	phrase *phraseMatcher
}

func (d *requiredDetector) detect(text string) []match {
	if d.phrase.matches(text) {
		return nil
	}
	return []match{{}}
}

// quoteRegexp 直引号或弯引号包围的片段
var quoteRegexp = regexp.MustCompile(`["“]([^"“”]+)["”]`)

type quoteLengthDetector struct {
	maxWords int
}

func (d *quoteLengthDetector) detect(text string) []match {
	var out []match
	for _, m := range quoteRegexp.FindAllStringSubmatch(text, -1) {
		if len(strings.Fields(m[1])) > d.maxWords {
			out = append(out, match{span: strings.TrimSpace(m[1])})
		}
	}
	return out
}

// normalize NFKC 规范化、全角折叠并去除零宽等格式字符，避免用变体字符绕过检测
func normalize(s string) string {
	t := transform.Chain(norm.NFKC, width.Fold, runes.Remove(runes.In(unicode.Cf)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}
