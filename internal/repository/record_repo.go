package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"degreefi/backend/internal/model"
)

// AcademicRecordRepository 成绩记录数据访问接口
type AcademicRecordRepository interface {
	// Upsert 按 (student_id, course_code) 插入或覆盖成绩，返回是否为覆盖
	Upsert(ctx context.Context, record *model.AcademicRecord) (bool, error)
	GetByID(ctx context.Context, id string) (*model.AcademicRecord, error)
	GetByStudentAndCode(ctx context.Context, studentID, code string) (*model.AcademicRecord, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.AcademicRecord, error)
	ListByStudents(ctx context.Context, studentIDs []string) ([]model.AcademicRecord, error)
	Delete(ctx context.Context, studentID, recordID string) error
}

type academicRecordRepo struct {
	db *gorm.DB
}

// NewAcademicRecordRepo 创建 AcademicRecordRepository 实例
func NewAcademicRecordRepo(db *gorm.DB) AcademicRecordRepository {
	return &academicRecordRepo{db: db}
}

func (r *academicRecordRepo) Upsert(ctx context.Context, record *model.AcademicRecord) (bool, error) {
	existing, err := r.GetByStudentAndCode(ctx, record.StudentID, record.CourseCode)
	if err != nil && err != gorm.ErrRecordNotFound {
		return false, err
	}
	updated := existing != nil

	if record.DateAdded.IsZero() {
		record.DateAdded = time.Now().UTC()
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "course_code"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"grade", "course_name", "date_added", "updated_at", "updated_by",
			}),
		}).
		Create(record).Error
	if err != nil {
		return false, err
	}

	// ON CONFLICT 分支不回填主键
	if updated && record.RecordID == "" {
		record.RecordID = existing.RecordID
	}
	return updated, nil
}

func (r *academicRecordRepo) GetByID(ctx context.Context, id string) (*model.AcademicRecord, error) {
	var rec model.AcademicRecord
	err := r.db.WithContext(ctx).Where("record_id = ?", id).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *academicRecordRepo) GetByStudentAndCode(ctx context.Context, studentID, code string) (*model.AcademicRecord, error) {
	var rec model.AcademicRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_code = ?", studentID, code).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *academicRecordRepo) ListByStudent(ctx context.Context, studentID string) ([]model.AcademicRecord, error) {
	var recs []model.AcademicRecord
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("date_added DESC").
		Find(&recs).Error
	return recs, err
}

func (r *academicRecordRepo) ListByStudents(ctx context.Context, studentIDs []string) ([]model.AcademicRecord, error) {
	var recs []model.AcademicRecord
	if len(studentIDs) == 0 {
		return recs, nil
	}
	err := r.db.WithContext(ctx).
		Where("student_id IN ?", studentIDs).
		Find(&recs).Error
	return recs, err
}

// Delete 仅删除属于该学生的记录
func (r *academicRecordRepo) Delete(ctx context.Context, studentID, recordID string) error {
	result := r.db.WithContext(ctx).
		Where("record_id = ? AND student_id = ?", recordID, studentID).
		Delete(&model.AcademicRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
