package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"lesson-forge-api/internal/domain/entity"
	apperrors "lesson-forge-api/pkg/errors"
)

// FileSource 从 YAML 文件加载的只读规则集来源。单个文件可包含多个以 --- 分隔的文档。
type FileSource struct {
	// versions[category][key] 按版本号升序
	versions map[entity.RuleCategory]map[string][]*entity.RuleSet
	defaults map[entity.RuleCategory]string
}

// LoadFileSource 读取 fsys 中 dir 目录下全部 .yaml/.yml 文件并校验
func LoadFileSource(fsys fs.FS, dir string) (*FileSource, error) {
	rulesets, err := ReadRuleSets(fsys, dir)
	if err != nil {
		return nil, err
	}
	return NewFileSource(rulesets)
}

// ReadRuleSets 解析并逐个校验目录下的规则集文档
func ReadRuleSets(fsys fs.FS, dir string) ([]*entity.RuleSet, error) {
	if dir == "" {
		dir = "."
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule dir %s: %w", dir, err)
	}

	var out []*entity.RuleSet
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		file := path.Join(dir, name)
		docs, err := decodeRuleSetFile(fsys, file)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}

func decodeRuleSetFile(fsys fs.FS, file string) ([]*entity.RuleSet, error) {
	f, err := fsys.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var out []*entity.RuleSet
	for i := 0; ; i++ {
		var doc entity.RuleSetDocument
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, apperrors.ErrRuleSetInvalid.WithDetail(fmt.Sprintf("%s document %d", file, i)).WithError(err)
		}
		rs, err := doc.ToRuleSet()
		if err != nil {
			return nil, apperrors.ErrRuleSetInvalid.WithDetail(fmt.Sprintf("%s document %d", file, i)).WithError(err)
		}
		if err := Validate(rs); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		out = append(out, rs)
	}
	return out, nil
}

// NewFileSource 由已解析的规则集构建来源。
// 同一版本重复、同一类别多个默认 key 都视为配置错误。
func NewFileSource(rulesets []*entity.RuleSet) (*FileSource, error) {
	s := &FileSource{
		versions: make(map[entity.RuleCategory]map[string][]*entity.RuleSet),
		defaults: make(map[entity.RuleCategory]string),
	}
	for _, rs := range rulesets {
		byKey, ok := s.versions[rs.Category]
		if !ok {
			byKey = make(map[string][]*entity.RuleSet)
			s.versions[rs.Category] = byKey
		}
		for _, existing := range byKey[rs.Key] {
			if existing.Version == rs.Version {
				return nil, apperrors.ErrRuleSetInvalid.WithDetail(fmt.Sprintf("duplicate version %s", rs.Ref()))
			}
		}
		byKey[rs.Key] = append(byKey[rs.Key], rs)
	}

	for cat, byKey := range s.versions {
		for key, list := range byKey {
			sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })
			if !list[len(list)-1].IsDefault {
				continue
			}
			if prev, dup := s.defaults[cat]; dup {
				return nil, apperrors.ErrRuleSetInvalid.WithDetail(fmt.Sprintf("category %s has two default keys: %s, %s", cat, prev, key))
			}
			s.defaults[cat] = key
		}
	}
	return s, nil
}

// Load 见 Source
func (s *FileSource) Load(_ context.Context, category entity.RuleCategory, key string, version int) (*entity.RuleSet, error) {
	list, ok := s.versions[category][key]
	if !ok || len(list) == 0 {
		return nil, apperrors.ErrUnknownRuleKind.WithDetail(fmt.Sprintf("%s:%s", category, key))
	}
	if version == 0 {
		return list[len(list)-1], nil
	}
	for _, rs := range list {
		if rs.Version == version {
			return rs, nil
		}
	}
	return nil, apperrors.ErrVersionNotFound.WithDetail(fmt.Sprintf("%s:%s@%d", category, key, version))
}

// DefaultKey 见 Source
func (s *FileSource) DefaultKey(_ context.Context, category entity.RuleCategory) (string, error) {
	return s.defaults[category], nil
}

// All 返回全部规则集，按类别顺序、key、版本排序
func (s *FileSource) All() []*entity.RuleSet {
	var out []*entity.RuleSet
	for _, cat := range entity.RuleCategories() {
		byKey := s.versions[cat]
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, byKey[k]...)
		}
	}
	return out
}
