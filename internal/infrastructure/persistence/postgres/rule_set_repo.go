package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"lesson-forge-api/internal/domain/entity"
)

// RuleSetRepository 规则集版本仓储实现
type RuleSetRepository struct {
	client *Client
}

// NewRuleSetRepository 创建规则集版本仓储
func NewRuleSetRepository(client *Client) *RuleSetRepository {
	return &RuleSetRepository{client: client}
}

// GetVersion 获取指定版本
func (r *RuleSetRepository) GetVersion(ctx context.Context, category entity.RuleCategory, key string, version int) (*entity.RuleSetVersion, error) {
	ctx, span := tracer.Start(ctx, "postgres.RuleSetRepository.GetVersion")
	defer span.End()

	db := r.client.conn(ctx)
	var v entity.RuleSetVersion
	err := db.Where("category = ? AND key = ? AND version = ?", category, key, version).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get rule set version: %w", err)
	}
	return &v, nil
}

// GetLatest 获取最新版本
func (r *RuleSetRepository) GetLatest(ctx context.Context, category entity.RuleCategory, key string) (*entity.RuleSetVersion, error) {
	ctx, span := tracer.Start(ctx, "postgres.RuleSetRepository.GetLatest")
	defer span.End()

	db := r.client.conn(ctx)
	var v entity.RuleSetVersion
	err := db.Where("category = ? AND key = ?", category, key).Order("version DESC").First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get latest rule set: %w", err)
	}
	return &v, nil
}

// GetDefaultKey 最新版本标记为默认的 key
func (r *RuleSetRepository) GetDefaultKey(ctx context.Context, category entity.RuleCategory) (string, error) {
	ctx, span := tracer.Start(ctx, "postgres.RuleSetRepository.GetDefaultKey")
	defer span.End()

	db := r.client.conn(ctx)
	var keys []string
	err := db.Raw(`
		SELECT key FROM (
			SELECT DISTINCT ON (key) key, is_default
			FROM rule_set_versions
			WHERE category = ?
			ORDER BY key, version DESC
		) latest
		WHERE is_default
		ORDER BY key`, category).Scan(&keys).Error
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to get default rule set key: %w", err)
	}
	switch len(keys) {
	case 0:
		return "", nil
	case 1:
		return keys[0], nil
	default:
		return "", fmt.Errorf("category %s has %d default rule sets: %v", category, len(keys), keys)
	}
}

// KeyExists key 是否存在
func (r *RuleSetRepository) KeyExists(ctx context.Context, category entity.RuleCategory, key string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.RuleSetRepository.KeyExists")
	defer span.End()

	db := r.client.conn(ctx)
	var count int64
	if err := db.Model(&entity.RuleSetVersion{}).
		Where("category = ? AND key = ?", category, key).
		Count(&count).Error; err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check rule set key: %w", err)
	}
	return count > 0, nil
}

// GetLatestVersionNo 获取最新版本号
func (r *RuleSetRepository) GetLatestVersionNo(ctx context.Context, category entity.RuleCategory, key string) (int, error) {
	ctx, span := tracer.Start(ctx, "postgres.RuleSetRepository.GetLatestVersionNo")
	defer span.End()

	db := r.client.conn(ctx)
	var maxVersion int
	err := db.Model(&entity.RuleSetVersion{}).
		Where("category = ? AND key = ?", category, key).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get latest rule set version: %w", err)
	}
	return maxVersion, nil
}

// CreateVersion 追加新版本
func (r *RuleSetRepository) CreateVersion(ctx context.Context, v *entity.RuleSetVersion) error {
	ctx, span := tracer.Start(ctx, "postgres.RuleSetRepository.CreateVersion")
	defer span.End()

	db := r.client.conn(ctx)
	if err := db.Create(v).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create rule set version: %w", err)
	}
	return nil
}

// ListLatest 每个 key 的最新版本
func (r *RuleSetRepository) ListLatest(ctx context.Context, category entity.RuleCategory) ([]*entity.RuleSetVersion, error) {
	ctx, span := tracer.Start(ctx, "postgres.RuleSetRepository.ListLatest")
	defer span.End()

	db := r.client.conn(ctx)
	var out []*entity.RuleSetVersion
	err := db.Raw(`
		SELECT DISTINCT ON (key) *
		FROM rule_set_versions
		WHERE category = ?
		ORDER BY key, version DESC`, category).Scan(&out).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	return out, nil
}
