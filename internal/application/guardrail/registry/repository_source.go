package registry

import (
	"context"
	"fmt"

	"lesson-forge-api/internal/domain/entity"
	"lesson-forge-api/internal/domain/repository"
	apperrors "lesson-forge-api/pkg/errors"
)

// RepositorySource 以数据库为准的规则集来源
type RepositorySource struct {
	repo repository.RuleSetRepository
}

// NewRepositorySource 创建数据库来源
func NewRepositorySource(repo repository.RuleSetRepository) *RepositorySource {
	return &RepositorySource{repo: repo}
}

// Load 见 Source
func (s *RepositorySource) Load(ctx context.Context, category entity.RuleCategory, key string, version int) (*entity.RuleSet, error) {
	var (
		row *entity.RuleSetVersion
		err error
	)
	if version == 0 {
		row, err = s.repo.GetLatest(ctx, category, key)
	} else {
		row, err = s.repo.GetVersion(ctx, category, key, version)
	}
	if err != nil {
		return nil, err
	}

	if row == nil {
		exists, err := s.repo.KeyExists(ctx, category, key)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperrors.ErrUnknownRuleKind.WithDetail(fmt.Sprintf("%s:%s", category, key))
		}
		return nil, apperrors.ErrVersionNotFound.WithDetail(fmt.Sprintf("%s:%s@%d", category, key, version))
	}

	rs, err := row.Decode()
	if err != nil {
		return nil, apperrors.ErrRuleSetInvalid.WithError(err)
	}
	if err := Validate(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// DefaultKey 见 Source
func (s *RepositorySource) DefaultKey(ctx context.Context, category entity.RuleCategory) (string, error) {
	return s.repo.GetDefaultKey(ctx, category)
}

// Publish 校验后追加新版本，版本号为当前最新加一
func Publish(ctx context.Context, repo repository.RuleSetRepository, rs *entity.RuleSet) (*entity.RuleSet, error) {
	latest, err := repo.GetLatestVersionNo(ctx, rs.Category, rs.Key)
	if err != nil {
		return nil, err
	}

	next := *rs
	next.Version = latest + 1
	if err := Validate(&next); err != nil {
		return nil, err
	}
	row, err := entity.NewRuleSetVersion(&next)
	if err != nil {
		return nil, err
	}
	if err := repo.CreateVersion(ctx, row); err != nil {
		return nil, err
	}
	next.PublishedAt = row.CreatedAt
	return &next, nil
}
