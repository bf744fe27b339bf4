package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/eligibility"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
)

// ── 课程表模块业务错误 ──

var (
	ErrDuplicateCourse = errors.New("课程代码已存在于课程表")
	ErrCourseNotFound  = errors.New("课程不存在")
)

const (
	newCourseTitle   = "New Course Added"
	newCourseMessage = "Administrator has added %q to the curriculum. You can now add this course to your records."
)

// CurriculumService 课程表业务接口
type CurriculumService interface {
	List(ctx context.Context) ([]dto.CourseResponse, error)
	Add(ctx context.Context, req *dto.CreateCourseRequest, callerID string) (*dto.AddCourseResponse, error)
	// Remove 软删除；已有成绩记录保留为孤立记录
	Remove(ctx context.Context, courseID, callerID string) error
	// Available 学生尚未录入的课程
	Available(ctx context.Context, studentID string) ([]dto.CourseResponse, error)
	ParseImportFile(reader io.Reader) ([]ImportCourseRow, error)
	ImportCourses(ctx context.Context, rows []ImportCourseRow, callerID string) (*dto.ImportCoursesResponse, error)
}

// ImportCourseRow Excel 中的一行课程
type ImportCourseRow struct {
	Row  int
	Code string
	Name string
}

type curriculumService struct {
	repo   *repository.Repository
	notif  NotificationService
	logger *zap.Logger
}

// NewCurriculumService 创建 CurriculumService 实例
func NewCurriculumService(repo *repository.Repository, notif NotificationService, logger *zap.Logger) CurriculumService {
	return &curriculumService{repo: repo, notif: notif, logger: logger}
}

// ────────────────────── List ──────────────────────

func (s *curriculumService) List(ctx context.Context) ([]dto.CourseResponse, error) {
	courses, err := s.repo.Course.List(ctx)
	if err != nil {
		s.logger.Error("查询课程表失败", zap.Error(err))
		return nil, err
	}
	return toCourseResponses(courses), nil
}

// ────────────────────── Add ──────────────────────

func (s *curriculumService) Add(ctx context.Context, req *dto.CreateCourseRequest, callerID string) (*dto.AddCourseResponse, error) {
	course, err := s.create(ctx, req.Code, req.Name, callerID)
	if err != nil {
		return nil, err
	}

	resp := &dto.AddCourseResponse{Course: toCourseResponse(course)}

	cfg, err := loadSystemConfig(ctx, s.repo)
	if err != nil {
		// 课程已写入，通知失败不回滚
		s.logger.Warn("读取系统配置失败，跳过新课通知", zap.Error(err))
		return resp, nil
	}
	if !cfg.BroadcastOnCurriculumAdd || s.notif == nil {
		return resp, nil
	}

	full := course.Code + " " + course.Name
	result, err := s.notif.Broadcast(ctx, nil, newCourseTitle, fmt.Sprintf(newCourseMessage, full))
	if err != nil {
		s.logger.Warn("新课通知发送失败", zap.String("code", course.Code), zap.Error(err))
		return resp, nil
	}
	resp.Broadcast = result

	s.logger.Info("新课已加入课程表并通知学生",
		zap.String("code", course.Code),
		zap.Int("notified", result.Succeeded),
		zap.Int("failed", len(result.Failures)),
	)
	return resp, nil
}

func (s *curriculumService) create(ctx context.Context, code, name, callerID string) (*model.Course, error) {
	code = eligibility.NormalizeCourseCode(code)
	name = strings.TrimSpace(name)

	if _, err := s.repo.Course.GetByCode(ctx, code); err == nil {
		return nil, ErrDuplicateCourse
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询课程失败", zap.String("code", code), zap.Error(err))
		return nil, err
	}

	course := &model.Course{Code: code, Name: name}
	course.CreatedBy = &callerID
	course.UpdatedBy = &callerID

	if err := s.repo.Course.Create(ctx, course); err != nil {
		// 并发新增同一代码时由唯一索引兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateCourse
		}
		s.logger.Error("新增课程失败", zap.String("code", code), zap.Error(err))
		return nil, err
	}
	return course, nil
}

// ────────────────────── Remove ──────────────────────

func (s *curriculumService) Remove(ctx context.Context, courseID, callerID string) error {
	if err := s.repo.Course.Delete(ctx, courseID, callerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCourseNotFound
		}
		s.logger.Error("删除课程失败", zap.String("id", courseID), zap.Error(err))
		return err
	}
	s.logger.Info("课程已移出课程表", zap.String("id", courseID), zap.String("by", callerID))
	return nil
}

// ────────────────────── Available ──────────────────────

func (s *curriculumService) Available(ctx context.Context, studentID string) ([]dto.CourseResponse, error) {
	courses, err := s.repo.Course.ListNotRecordedBy(ctx, studentID)
	if err != nil {
		s.logger.Error("查询可选课程失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}
	return toCourseResponses(courses), nil
}

// ────────────────────── ParseImportFile ──────────────────────

const maxImportRows = 500

var (
	ErrImportNoData      = errors.New("Excel文件无数据行（第一行为表头）")
	ErrImportTooManyRows = fmt.Errorf("数据行数超过上限 %d 行", maxImportRows)
	ErrImportBadHeader   = errors.New("Excel表头缺少必要列（code/name）")
	ErrImportBadFile     = errors.New("无法解析Excel文件")
)

// ParseImportFile 解析课程导入 Excel：表头含 code/name（或 课程代码/课程名称），列序不限
func (s *curriculumService) ParseImportFile(reader io.Reader) ([]ImportCourseRow, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportBadFile, err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	excelRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("读取工作表失败: %w", err)
	}

	if len(excelRows) < 2 {
		return nil, ErrImportNoData
	}

	colIndex := parseCourseHeader(excelRows[0])
	if colIndex["code"] < 0 || colIndex["name"] < 0 {
		return nil, ErrImportBadHeader
	}

	var rows []ImportCourseRow
	for i := 1; i < len(excelRows); i++ {
		row := excelRows[i]
		item := ImportCourseRow{Row: i + 1}

		if idx := colIndex["code"]; idx < len(row) {
			item.Code = strings.TrimSpace(row[idx])
		}
		if idx := colIndex["name"]; idx < len(row) {
			item.Name = strings.TrimSpace(row[idx])
		}

		if item.Code == "" && item.Name == "" {
			continue
		}
		rows = append(rows, item)
	}

	if len(rows) == 0 {
		return nil, ErrImportNoData
	}
	if len(rows) > maxImportRows {
		return nil, ErrImportTooManyRows
	}
	return rows, nil
}

func parseCourseHeader(header []string) map[string]int {
	idx := map[string]int{"code": -1, "name": -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "code", "course code", "课程代码":
			idx["code"] = i
		case "name", "course name", "title", "课程名称":
			idx["name"] = i
		}
	}
	return idx
}

// ────────────────────── ImportCourses ──────────────────────

// ImportCourses 逐行新增，重复与非法行计入失败；批量导入不触发新课通知
func (s *curriculumService) ImportCourses(ctx context.Context, rows []ImportCourseRow, callerID string) (*dto.ImportCoursesResponse, error) {
	resp := &dto.ImportCoursesResponse{Total: len(rows)}

	for _, row := range rows {
		if row.Code == "" || row.Name == "" {
			resp.Failed++
			resp.Errors = append(resp.Errors, dto.ImportError{Row: row.Row, Reason: "课程代码或名称为空"})
			continue
		}

		if _, err := s.create(ctx, row.Code, row.Name, callerID); err != nil {
			if !errors.Is(err, ErrDuplicateCourse) {
				return nil, err
			}
			resp.Failed++
			resp.Errors = append(resp.Errors, dto.ImportError{
				Row:    row.Row,
				Reason: fmt.Sprintf("课程代码已存在: %s", eligibility.NormalizeCourseCode(row.Code)),
			})
			continue
		}
		resp.Success++
	}

	s.logger.Info("课程批量导入完成",
		zap.Int("total", resp.Total),
		zap.Int("success", resp.Success),
		zap.Int("failed", resp.Failed),
	)
	return resp, nil
}

func toCourseResponses(courses []model.Course) []dto.CourseResponse {
	result := make([]dto.CourseResponse, 0, len(courses))
	for i := range courses {
		result = append(result, toCourseResponse(&courses[i]))
	}
	return result
}
