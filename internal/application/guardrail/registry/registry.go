// Package registry 提供规则集的版本化只读查询
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"lesson-forge-api/internal/domain/entity"
	apperrors "lesson-forge-api/pkg/errors"
)

// Source 规则集版本来源。version 为 0 表示最新版本。
// 找不到 key 返回 ErrUnknownRuleKind，key 存在但版本不存在返回 ErrVersionNotFound。
type Source interface {
	Load(ctx context.Context, category entity.RuleCategory, key string, version int) (*entity.RuleSet, error)
	DefaultKey(ctx context.Context, category entity.RuleCategory) (string, error)
}

// Registry 规则注册表。已解析的具体版本按引用缓存为不可变快照，并发读无需加锁。
type Registry struct {
	source    Source
	snapshots sync.Map // entity.RuleRef -> *entity.RuleSet
}

// New 创建注册表
func New(source Source) *Registry {
	return &Registry{source: source}
}

// Resolve 解析规则集。key 为空时取类别默认 key，version 为 0 时取最新版本。
func (r *Registry) Resolve(ctx context.Context, category entity.RuleCategory, key string, version int) (*entity.RuleSet, error) {
	if !category.Valid() {
		return nil, apperrors.ErrUnknownRuleKind.WithDetail(fmt.Sprintf("unknown category %q", category))
	}
	if version < 0 {
		return nil, apperrors.ErrVersionNotFound.WithDetail(fmt.Sprintf("%s:%s@%d", category, key, version))
	}

	key = strings.TrimSpace(key)
	if key == "" {
		k, err := r.DefaultKey(ctx, category)
		if err != nil {
			return nil, err
		}
		key = k
	}

	if version > 0 {
		ref := entity.RuleRef{Category: category, Key: key, Version: version}
		if v, ok := r.snapshots.Load(ref); ok {
			return v.(*entity.RuleSet), nil
		}
	}

	rs, err := r.source.Load(ctx, category, key, version)
	if err != nil {
		return nil, err
	}
	if rs.Category != category || rs.Key != key || (version > 0 && rs.Version != version) {
		return nil, apperrors.ErrRuleSetInvalid.WithDetail(fmt.Sprintf("source returned %s for %s:%s@%d", rs.Ref(), category, key, version))
	}

	actual, _ := r.snapshots.LoadOrStore(rs.Ref(), rs)
	return actual.(*entity.RuleSet), nil
}

// DefaultKey 返回类别的默认规则集 key
func (r *Registry) DefaultKey(ctx context.Context, category entity.RuleCategory) (string, error) {
	if !category.Valid() {
		return "", apperrors.ErrUnknownRuleKind.WithDetail(fmt.Sprintf("unknown category %q", category))
	}
	key, err := r.source.DefaultKey(ctx, category)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", apperrors.ErrUnknownRuleKind.WithDetail(fmt.Sprintf("no default rule set for %s", category))
	}
	return key, nil
}

// Default 解析类别默认规则集的最新版本
func (r *Registry) Default(ctx context.Context, category entity.RuleCategory) (*entity.RuleSet, error) {
	return r.Resolve(ctx, category, "", 0)
}

// ListDetectors 返回某个具体规则集版本的检测器。
// 不可校验类别返回空；quote_length 未设置 MaxWords 时取版权规则的 MaxQuoteWords。
func (r *Registry) ListDetectors(ctx context.Context, ref entity.RuleRef) ([]entity.DetectorPattern, error) {
	if !ref.Category.Verifiable() {
		return nil, nil
	}
	rs, err := r.Resolve(ctx, ref.Category, ref.Key, ref.Version)
	if err != nil {
		return nil, err
	}

	out := make([]entity.DetectorPattern, len(rs.Detectors))
	copy(out, rs.Detectors)
	if cr, ok := rs.Copyright(); ok {
		for i := range out {
			if out[i].Kind == entity.DetectorQuoteLength && out[i].MaxWords == 0 {
				out[i].MaxWords = cr.MaxQuoteWords
			}
		}
	}
	return out, nil
}
