package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/eligibility"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
)

// ── 成绩记录模块业务错误 ──

var (
	ErrRecordNotFound = errors.New("成绩记录不存在")
)

// RecordService 成绩记录业务接口
type RecordService interface {
	// Add 录入成绩；同一课程重复提交时覆盖成绩与日期
	Add(ctx context.Context, studentID string, req *dto.AddRecordRequest, callerID string) (*dto.AddRecordResponse, error)
	List(ctx context.Context, studentID string) ([]dto.RecordResponse, error)
	Delete(ctx context.Context, studentID, recordID string) error
}

type recordService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewRecordService 创建 RecordService 实例
func NewRecordService(repo *repository.Repository, logger *zap.Logger) RecordService {
	return &recordService{repo: repo, logger: logger}
}

// ────────────────────── Add ──────────────────────

func (s *recordService) Add(ctx context.Context, studentID string, req *dto.AddRecordRequest, callerID string) (*dto.AddRecordResponse, error) {
	if req.Grade == nil {
		return nil, ErrInvalidGrade
	}
	if err := eligibility.ValidateGrade(*req.Grade); err != nil {
		return nil, err
	}

	if _, err := requireStudent(ctx, s.repo, s.logger, studentID); err != nil {
		return nil, err
	}

	code := eligibility.NormalizeCourseCode(req.CourseCode)
	course, err := s.repo.Course.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		s.logger.Error("查询课程失败", zap.String("code", code), zap.Error(err))
		return nil, err
	}

	rec := &model.AcademicRecord{
		StudentID:  studentID,
		CourseCode: course.Code,
		CourseName: course.Name,
		Grade:      *req.Grade,
		DateAdded:  time.Now().UTC(),
	}
	rec.CreatedBy = &callerID
	rec.UpdatedBy = &callerID

	updated, err := s.repo.Record.Upsert(ctx, rec)
	if err != nil {
		s.logger.Error("写入成绩失败",
			zap.String("student_id", studentID),
			zap.String("code", code),
			zap.Error(err),
		)
		return nil, err
	}

	return &dto.AddRecordResponse{
		Record:  toRecordResponse(rec, nil),
		Updated: updated,
	}, nil
}

// ────────────────────── List ──────────────────────

func (s *recordService) List(ctx context.Context, studentID string) ([]dto.RecordResponse, error) {
	recs, err := s.repo.Record.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询成绩失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	live, err := liveCourseCodes(ctx, s.repo)
	if err != nil {
		s.logger.Error("查询课程表失败", zap.Error(err))
		return nil, err
	}

	result := make([]dto.RecordResponse, 0, len(recs))
	for i := range recs {
		result = append(result, toRecordResponse(&recs[i], live))
	}
	return result, nil
}

// ────────────────────── Delete ──────────────────────

func (s *recordService) Delete(ctx context.Context, studentID, recordID string) error {
	if err := s.repo.Record.Delete(ctx, studentID, recordID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRecordNotFound
		}
		s.logger.Error("删除成绩失败", zap.String("record_id", recordID), zap.Error(err))
		return err
	}
	return nil
}

// liveCourseCodes 当前课程表中的全部课程代码
func liveCourseCodes(ctx context.Context, repo *repository.Repository) (map[string]bool, error) {
	courses, err := repo.Course.List(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(courses))
	for _, c := range courses {
		live[c.Code] = true
	}
	return live, nil
}
