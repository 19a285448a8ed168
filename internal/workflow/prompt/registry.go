// Package prompt 管理内嵌的提示词模板
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// PromptID 模板标识，对应 templates/<id>.system.txt 与 templates/<id>.user.txt
type PromptID string

const (
	PromptLessonGenV1    PromptID = "lesson_gen_v1"
	PromptLessonRepairV1 PromptID = "lesson_repair_v1"
)

var knownPrompts = []PromptID{PromptLessonGenV1, PromptLessonRepairV1}

// Registry 模板注册表，首次使用时一次性加载全部模板
type Registry struct {
	load func() (map[PromptID]einoprompt.ChatTemplate, error)
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{load: sync.OnceValues(loadAll)}
}

// ChatTemplate 返回 FString 格式的 system+user 模板
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	all, err := r.load()
	if err != nil {
		return nil, err
	}
	tpl, ok := all[id]
	if !ok {
		return nil, fmt.Errorf("unknown prompt id: %s", id)
	}
	return tpl, nil
}

func loadAll() (map[PromptID]einoprompt.ChatTemplate, error) {
	out := make(map[PromptID]einoprompt.ChatTemplate, len(knownPrompts))
	for _, id := range knownPrompts {
		system, err := readTemplate(id, "system")
		if err != nil {
			return nil, err
		}
		user, err := readTemplate(id, "user")
		if err != nil {
			return nil, err
		}
		out[id] = einoprompt.FromMessages(schema.FString,
			schema.SystemMessage(system),
			schema.UserMessage(user),
		)
	}
	return out, nil
}

func readTemplate(id PromptID, role string) (string, error) {
	b, err := templatesFS.ReadFile(fmt.Sprintf("templates/%s.%s.txt", id, role))
	if err != nil {
		return "", fmt.Errorf("prompt %s: %w", id, err)
	}
	return strings.TrimSpace(string(b)), nil
}
