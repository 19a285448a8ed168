package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	wfmodel "lesson-forge-api/internal/workflow/model"
)

// ErrNoSections 模型输出中找不到任何章节
var ErrNoSections = errors.New("no sections found in model output")

type sectionsPayload struct {
	Title    string            `json:"title"`
	Sections []wfmodel.Section `json:"sections"`
}

// ParseSections 将模型输出解析为课程产物。优先按 JSON 解析，失败时退回按 Markdown 标题切分。
// plan 用于把 Markdown 标题映射到章节 ID。
func ParseSections(raw string, plan []string) (*wfmodel.Artifact, error) {
	if art, ok := parseJSONSections(raw); ok {
		return art, nil
	}
	art := parseMarkdownSections(raw, plan)
	if art == nil || len(art.Sections) == 0 {
		return nil, ErrNoSections
	}
	return art, nil
}

func parseJSONSections(raw string) (*wfmodel.Artifact, bool) {
	js := ExtractJSON(raw)
	if js == "" {
		return nil, false
	}

	var payload sectionsPayload
	if strings.HasPrefix(js, "[") {
		if err := json.Unmarshal([]byte(js), &payload.Sections); err != nil {
			return nil, false
		}
	} else if err := json.Unmarshal([]byte(js), &payload); err != nil {
		return nil, false
	}

	out := &wfmodel.Artifact{Title: strings.TrimSpace(payload.Title)}
	for _, s := range payload.Sections {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			continue
		}
		out.Sections = append(out.Sections, wfmodel.Section{
			ID:      id,
			Heading: strings.TrimSpace(s.Heading),
			Content: strings.TrimSpace(s.Content),
		})
	}
	if len(out.Sections) == 0 {
		return nil, false
	}
	return out, true
}

type headingMark struct {
	level     int
	text      string
	lineStart int
	lineEnd   int
}

var setextUnderline = regexp.MustCompile(`^\s*(=+|-+)\s*$`)

// parseMarkdownSections 以二级及以上标题切分；首个一级标题作为课程标题
func parseMarkdownSections(raw string, plan []string) *wfmodel.Artifact {
	src := []byte(raw)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var marks []headingMark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level > 2 || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		start := strings.LastIndexByte(raw[:seg.Start], '\n') + 1
		end := strings.IndexByte(raw[seg.Stop:], '\n')
		if end < 0 {
			end = len(raw)
		} else {
			end += seg.Stop + 1
		}
		marks = append(marks, headingMark{
			level:     h.Level,
			text:      strings.TrimSpace(headingText(h, src)),
			lineStart: start,
			lineEnd:   end,
		})
	}

	out := &wfmodel.Artifact{}
	idx := 0
	for i, m := range marks {
		bodyEnd := len(raw)
		if i+1 < len(marks) {
			bodyEnd = marks[i+1].lineStart
		}
		body := trimSetextUnderline(raw[m.lineEnd:bodyEnd])

		if m.level == 1 && out.Title == "" && len(out.Sections) == 0 {
			out.Title = m.text
			continue
		}
		id, heading := mapHeading(m.text, plan, idx)
		out.Sections = append(out.Sections, wfmodel.Section{
			ID:      id,
			Heading: heading,
			Content: strings.TrimSpace(body),
		})
		idx++
	}
	return out
}

func headingText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func trimSetextUnderline(body string) string {
	trimmed := strings.TrimLeft(body, "\r\n")
	first, rest, found := strings.Cut(trimmed, "\n")
	if setextUnderline.MatchString(first) {
		if !found {
			return ""
		}
		return rest
	}
	return body
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify 生成章节 ID 形式的短串
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalid.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// mapHeading 标题形如 "body-2: The Call" 或 "Opening" 时映射到规划中的 ID；否则按位置取规划 ID
func mapHeading(heading string, plan []string, idx int) (id string, title string) {
	title = heading
	label := heading
	if before, after, ok := strings.Cut(heading, ":"); ok {
		label = before
		if t := strings.TrimSpace(after); t != "" {
			title = t
		}
	}
	slug := Slugify(label)
	for _, p := range plan {
		if slug == p {
			return p, title
		}
	}
	full := Slugify(heading)
	for _, p := range plan {
		if strings.HasPrefix(full, p+"-") {
			return p, title
		}
	}
	if idx < len(plan) {
		return plan[idx], title
	}
	if slug == "" {
		return fmt.Sprintf("section-%d", idx+1), title
	}
	return slug, title
}
