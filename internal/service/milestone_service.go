package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/eligibility"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
	pkgerrors "degreefi/backend/pkg/errors"
	"degreefi/backend/pkg/filestorage"
)

// ── 毕业材料模块业务错误 ──

var (
	ErrCategoryAlreadyFilled = errors.New("该类别材料已上传，待审核或已通过")
	ErrCategoryCleared       = errors.New("该类别已由管理员人工放行，无需上传")
	ErrMilestoneVerified     = errors.New("材料已审核通过，不能撤回")
	ErrNoDocument            = errors.New("该类别尚未上传材料")
	ErrFileTypeNotAllowed    = errors.New("不支持的文件类型")
	ErrFileTooLarge          = errors.New("文件超过大小限制")
)

const (
	verifiedTitle          = "Document Verified"
	verifiedMessage        = "Your %s has been verified by the registrar."
	manualClearanceMessage = "Your %s requirement has been cleared by the registrar."
)

// MilestoneService 毕业材料业务接口
type MilestoneService interface {
	List(ctx context.Context, studentID string) ([]dto.MilestoneResponse, error)
	// UploadDocument 学生上传材料：missing → pending
	UploadDocument(ctx context.Context, studentID, category string, file io.Reader, filename string) (*dto.MilestoneResponse, error)
	// RemoveDocument 学生撤回待审核材料：pending → missing
	RemoveDocument(ctx context.Context, studentID, category string) error
	SetStatus(ctx context.Context, studentID string, req *dto.SetMilestoneStatusRequest, callerID string) (*dto.MilestoneResponse, error)
	ToggleManualClearance(ctx context.Context, studentID string, req *dto.ToggleManualClearanceRequest, callerID string) (*dto.MilestoneResponse, error)
	// DocumentPath 返回已上传文件的磁盘路径与原始文件名
	DocumentPath(ctx context.Context, studentID, category string) (string, string, error)
}

type milestoneService struct {
	repo        *repository.Repository
	storage     filestorage.Storage
	notif       NotificationService
	allowedExts map[string]bool
	logger      *zap.Logger
}

// NewMilestoneService 创建 MilestoneService 实例；allowedExts 为空表示不限制扩展名
func NewMilestoneService(
	repo *repository.Repository,
	storage filestorage.Storage,
	notif NotificationService,
	allowedExts []string,
	logger *zap.Logger,
) MilestoneService {
	exts := make(map[string]bool, len(allowedExts))
	for _, e := range allowedExts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	return &milestoneService{
		repo:        repo,
		storage:     storage,
		notif:       notif,
		allowedExts: exts,
		logger:      logger,
	}
}

// ────────────────────── List ──────────────────────

func (s *milestoneService) List(ctx context.Context, studentID string) ([]dto.MilestoneResponse, error) {
	ms, err := s.repo.Milestone.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询材料失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	ordered := orderedMilestones(studentID, ms)
	result := make([]dto.MilestoneResponse, 0, len(ordered))
	for i := range ordered {
		result = append(result, toMilestoneResponse(&ordered[i]))
	}
	return result, nil
}

// ═══════════════════════════════════════════════════════════
// UploadDocument
// ═══════════════════════════════════════════════════════════
//
// 先落盘再条件更新（WHERE status='missing'）；并发上传时落败方删除自己写入的文件。

func (s *milestoneService) UploadDocument(ctx context.Context, studentID, category string, file io.Reader, filename string) (*dto.MilestoneResponse, error) {
	cat, err := eligibility.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	if len(s.allowedExts) > 0 && !s.allowedExts[strings.ToLower(filepath.Ext(filename))] {
		return nil, ErrFileTypeNotAllowed
	}

	m, err := s.get(ctx, studentID, cat)
	if err != nil {
		return nil, err
	}
	if m.ManualClearance {
		return nil, ErrCategoryCleared
	}
	if eligibility.Status(m.Status) != eligibility.StatusMissing {
		return nil, ErrCategoryAlreadyFilled
	}

	rel, err := s.storage.Save(file, filename, studentID)
	if err != nil {
		if errors.Is(err, filestorage.ErrTooLarge) {
			return nil, ErrFileTooLarge
		}
		s.logger.Error("保存材料文件失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	now := time.Now().UTC()
	original := filepath.Base(filename)
	m.FilePath = &rel
	m.OriginalFilename = &original
	m.UploadDate = &now
	m.UpdatedBy = &studentID

	if err := s.repo.Milestone.MarkPending(ctx, m); err != nil {
		s.discardFile(rel)
		if errors.Is(err, pkgerrors.ErrConditionNotMet) {
			return nil, ErrCategoryAlreadyFilled
		}
		s.logger.Error("更新材料状态失败",
			zap.String("student_id", studentID),
			zap.String("category", string(cat)),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("材料已上传",
		zap.String("student_id", studentID),
		zap.String("category", string(cat)),
		zap.String("path", rel),
	)
	resp := toMilestoneResponse(m)
	return &resp, nil
}

// ────────────────────── RemoveDocument ──────────────────────

func (s *milestoneService) RemoveDocument(ctx context.Context, studentID, category string) error {
	cat, err := eligibility.ParseCategory(category)
	if err != nil {
		return err
	}

	m, err := s.get(ctx, studentID, cat)
	if err != nil {
		return err
	}

	status := eligibility.Status(m.Status)
	if status == eligibility.StatusVerified {
		return ErrMilestoneVerified
	}
	if !eligibility.CanWithdraw(status) {
		return ErrNoDocument
	}

	oldPath := derefString(m.FilePath)
	m.Status = string(eligibility.StatusMissing)
	m.FilePath = nil
	m.OriginalFilename = nil
	m.UploadDate = nil
	m.UpdatedBy = &studentID

	if err := s.repo.Milestone.Update(ctx, m); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("撤回材料失败", zap.String("student_id", studentID), zap.Error(err))
		}
		return err
	}

	s.discardFile(oldPath)
	return nil
}

// ────────────────────── SetStatus ──────────────────────

func (s *milestoneService) SetStatus(ctx context.Context, studentID string, req *dto.SetMilestoneStatusRequest, callerID string) (*dto.MilestoneResponse, error) {
	cat, err := eligibility.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	to, err := eligibility.ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	// 管理员只能审核通过；missing → pending 只能由学生上传触发
	if to != eligibility.StatusVerified {
		return nil, ErrInvalidTransition
	}

	m, err := s.get(ctx, studentID, cat)
	if err != nil {
		return nil, err
	}

	from := eligibility.Status(m.Status)
	if _, err := eligibility.Transition(from, to); err != nil {
		return nil, err
	}
	if from == to {
		resp := toMilestoneResponse(m)
		return &resp, nil
	}

	wasCleared := toEligibilityMilestone(m).Cleared()

	m.Status = string(to)
	if to == eligibility.StatusVerified {
		now := time.Now().UTC()
		m.VerifiedAt = &now
		m.VerifiedBy = &callerID
	}
	m.UpdatedBy = &callerID

	if err := s.repo.Milestone.Update(ctx, m); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("更新材料状态失败", zap.String("student_id", studentID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("材料状态已更新",
		zap.String("student_id", studentID),
		zap.String("category", string(cat)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("by", callerID),
	)

	if !wasCleared && toEligibilityMilestone(m).Cleared() {
		s.notifyCleared(ctx, studentID, fmt.Sprintf(verifiedMessage, cat))
	}

	resp := toMilestoneResponse(m)
	return &resp, nil
}

// ────────────────────── ToggleManualClearance ──────────────────────

func (s *milestoneService) ToggleManualClearance(ctx context.Context, studentID string, req *dto.ToggleManualClearanceRequest, callerID string) (*dto.MilestoneResponse, error) {
	cat, err := eligibility.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	if req.Enabled == nil {
		return nil, ErrInvalidTransition
	}

	m, err := s.get(ctx, studentID, cat)
	if err != nil {
		return nil, err
	}
	if m.ManualClearance == *req.Enabled {
		resp := toMilestoneResponse(m)
		return &resp, nil
	}

	wasCleared := toEligibilityMilestone(m).Cleared()

	m.ManualClearance = *req.Enabled
	m.UpdatedBy = &callerID

	if err := s.repo.Milestone.Update(ctx, m); err != nil {
		if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("更新人工放行失败", zap.String("student_id", studentID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("人工放行已切换",
		zap.String("student_id", studentID),
		zap.String("category", string(cat)),
		zap.Bool("enabled", m.ManualClearance),
		zap.String("by", callerID),
	)

	if !wasCleared && toEligibilityMilestone(m).Cleared() {
		s.notifyCleared(ctx, studentID, fmt.Sprintf(manualClearanceMessage, cat))
	}

	resp := toMilestoneResponse(m)
	return &resp, nil
}

// ────────────────────── DocumentPath ──────────────────────

func (s *milestoneService) DocumentPath(ctx context.Context, studentID, category string) (string, string, error) {
	cat, err := eligibility.ParseCategory(category)
	if err != nil {
		return "", "", err
	}
	m, err := s.get(ctx, studentID, cat)
	if err != nil {
		return "", "", err
	}
	if m.FilePath == nil || *m.FilePath == "" {
		return "", "", ErrNoDocument
	}

	full, err := s.storage.FullPath(*m.FilePath)
	if err != nil {
		s.logger.Error("解析材料路径失败", zap.String("path", *m.FilePath), zap.Error(err))
		return "", "", err
	}

	name := derefString(m.OriginalFilename)
	if name == "" {
		name = string(cat) + filepath.Ext(full)
	}
	return full, name, nil
}

// ── 辅助函数 ──

func (s *milestoneService) get(ctx context.Context, studentID string, cat eligibility.Category) (*model.Milestone, error) {
	m, err := s.repo.Milestone.Get(ctx, studentID, string(cat))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		s.logger.Error("查询材料失败",
			zap.String("student_id", studentID),
			zap.String("category", string(cat)),
			zap.Error(err),
		)
		return nil, err
	}
	return m, nil
}

// notifyCleared 材料生效为已通过时通知学生；失败不影响审核结果
func (s *milestoneService) notifyCleared(ctx context.Context, studentID, message string) {
	if s.notif == nil {
		return
	}
	cfg, err := loadSystemConfig(ctx, s.repo)
	if err != nil {
		s.logger.Warn("读取系统配置失败，跳过审核通知", zap.Error(err))
		return
	}
	if !cfg.NotifyOnVerification {
		return
	}
	if _, err := s.notif.Append(ctx, studentID, verifiedTitle, message); err != nil {
		s.logger.Warn("发送审核通知失败", zap.String("student_id", studentID), zap.Error(err))
	}
}

func (s *milestoneService) discardFile(rel string) {
	if rel == "" {
		return
	}
	if err := s.storage.Delete(rel); err != nil {
		s.logger.Warn("清理材料文件失败", zap.String("path", rel), zap.Error(err))
	}
}
