package repository

import (
	"context"

	"gorm.io/gorm"

	"degreefi/backend/internal/model"
)

// LegacyImportRepository 旧数据导入审计
type LegacyImportRepository interface {
	Create(ctx context.Context, imp *model.LegacyImport) error
	List(ctx context.Context) ([]model.LegacyImport, error)
}

type legacyImportRepo struct {
	db *gorm.DB
}

// NewLegacyImportRepo 创建 LegacyImportRepository 实例
func NewLegacyImportRepo(db *gorm.DB) LegacyImportRepository {
	return &legacyImportRepo{db: db}
}

func (r *legacyImportRepo) Create(ctx context.Context, imp *model.LegacyImport) error {
	return r.db.WithContext(ctx).Create(imp).Error
}

func (r *legacyImportRepo) List(ctx context.Context) ([]model.LegacyImport, error) {
	var list []model.LegacyImport
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&list).Error
	return list, err
}
