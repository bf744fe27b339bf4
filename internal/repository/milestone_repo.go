package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"degreefi/backend/internal/model"
	pkgerrors "degreefi/backend/pkg/errors"
)

// MilestoneRepository 毕业材料数据访问接口
type MilestoneRepository interface {
	CreateBatch(ctx context.Context, milestones []model.Milestone) error
	Get(ctx context.Context, studentID, category string) (*model.Milestone, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.Milestone, error)
	ListByStudents(ctx context.Context, studentIDs []string) ([]model.Milestone, error)
	// MarkPending 条件更新：仅 status=missing 且未人工放行时写入上传信息
	MarkPending(ctx context.Context, m *model.Milestone) error
	// Update 乐观锁更新状态、人工放行与文件字段
	Update(ctx context.Context, m *model.Milestone) error
}

type milestoneRepo struct {
	db *gorm.DB
}

// NewMilestoneRepo 创建 MilestoneRepository 实例
func NewMilestoneRepo(db *gorm.DB) MilestoneRepository {
	return &milestoneRepo{db: db}
}

func (r *milestoneRepo) CreateBatch(ctx context.Context, milestones []model.Milestone) error {
	if len(milestones) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&milestones).Error
}

func (r *milestoneRepo) Get(ctx context.Context, studentID, category string) (*model.Milestone, error) {
	var m model.Milestone
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND category = ?", studentID, category).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *milestoneRepo) ListByStudent(ctx context.Context, studentID string) ([]model.Milestone, error) {
	var ms []model.Milestone
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("category ASC").
		Find(&ms).Error
	return ms, err
}

func (r *milestoneRepo) ListByStudents(ctx context.Context, studentIDs []string) ([]model.Milestone, error) {
	var ms []model.Milestone
	if len(studentIDs) == 0 {
		return ms, nil
	}
	err := r.db.WithContext(ctx).
		Where("student_id IN ?", studentIDs).
		Find(&ms).Error
	return ms, err
}

func (r *milestoneRepo) MarkPending(ctx context.Context, m *model.Milestone) error {
	now := time.Now().UTC()
	if m.UploadDate == nil {
		m.UploadDate = &now
	}
	result := r.db.WithContext(ctx).
		Model(&model.Milestone{}).
		Where("student_id = ? AND category = ? AND status = ? AND manual_clearance = ?",
			m.StudentID, m.Category, "missing", false).
		Updates(map[string]interface{}{
			"status":            "pending",
			"file_path":         m.FilePath,
			"original_filename": m.OriginalFilename,
			"upload_date":       m.UploadDate,
			"updated_by":        m.UpdatedBy,
			"version":           gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrConditionNotMet
	}
	m.Status = "pending"
	return nil
}

func (r *milestoneRepo) Update(ctx context.Context, m *model.Milestone) error {
	oldVersion := m.Version
	result := r.db.WithContext(ctx).
		Model(&model.Milestone{}).
		Where("milestone_id = ? AND version = ?", m.MilestoneID, oldVersion).
		Updates(map[string]interface{}{
			"status":            m.Status,
			"manual_clearance":  m.ManualClearance,
			"file_path":         m.FilePath,
			"original_filename": m.OriginalFilename,
			"upload_date":       m.UploadDate,
			"verified_at":       m.VerifiedAt,
			"verified_by":       m.VerifiedBy,
			"updated_by":        m.UpdatedBy,
			"version":           oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	m.Version = oldVersion + 1
	return nil
}
