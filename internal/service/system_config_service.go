package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/eligibility"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
)

// ── 系统配置模块业务错误 ──

var (
	ErrInvalidDeadline = errors.New("截止日期格式应为 YYYY-MM-DD")
)

// SystemConfigService 系统配置业务接口
type SystemConfigService interface {
	Get(ctx context.Context) (*dto.SystemConfigResponse, error)
	Update(ctx context.Context, req *dto.UpdateSystemConfigRequest, callerID string) (*dto.SystemConfigResponse, error)
	// Policy 所有进度计算共用的统计口径
	Policy(ctx context.Context) (eligibility.Policy, error)
}

type systemConfigService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewSystemConfigService 创建 SystemConfigService 实例
func NewSystemConfigService(repo *repository.Repository, logger *zap.Logger) SystemConfigService {
	return &systemConfigService{repo: repo, logger: logger}
}

// ────────────────────── Get ──────────────────────

func (s *systemConfigService) Get(ctx context.Context) (*dto.SystemConfigResponse, error) {
	cfg, err := loadSystemConfig(ctx, s.repo)
	if err != nil {
		s.logger.Error("查询系统配置失败", zap.Error(err))
		return nil, err
	}
	return toSystemConfigResponse(cfg), nil
}

// ────────────────────── Update ──────────────────────

func (s *systemConfigService) Update(ctx context.Context, req *dto.UpdateSystemConfigRequest, callerID string) (*dto.SystemConfigResponse, error) {
	cfg, err := loadSystemConfig(ctx, s.repo)
	if err != nil {
		s.logger.Error("查询系统配置失败", zap.Error(err))
		return nil, err
	}

	if req.CountFailingGradesAsCompleted != nil {
		cfg.CountFailingGradesAsCompleted = *req.CountFailingGradesAsCompleted
	}
	if req.NotifyOnVerification != nil {
		cfg.NotifyOnVerification = *req.NotifyOnVerification
	}
	if req.BroadcastOnCurriculumAdd != nil {
		cfg.BroadcastOnCurriculumAdd = *req.BroadcastOnCurriculumAdd
	}
	switch {
	case req.ClearClearanceDeadline:
		cfg.ClearanceDeadline = nil
	case req.ClearanceDeadline != nil:
		d, err := time.Parse("2006-01-02", *req.ClearanceDeadline)
		if err != nil {
			return nil, ErrInvalidDeadline
		}
		cfg.ClearanceDeadline = &d
	}

	cfg.UpdatedBy = &callerID
	cfg.UpdatedAt = time.Now().UTC()

	if err := s.repo.SystemConfig.Update(ctx, cfg); err != nil {
		s.logger.Error("更新系统配置失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("系统配置已更新",
		zap.String("by", callerID),
		zap.Bool("count_failing_grades_as_completed", cfg.CountFailingGradesAsCompleted),
		zap.Bool("notify_on_verification", cfg.NotifyOnVerification),
		zap.Bool("broadcast_on_curriculum_add", cfg.BroadcastOnCurriculumAdd),
	)
	return toSystemConfigResponse(cfg), nil
}

// ────────────────────── Policy ──────────────────────

func (s *systemConfigService) Policy(ctx context.Context) (eligibility.Policy, error) {
	cfg, err := loadSystemConfig(ctx, s.repo)
	if err != nil {
		s.logger.Error("查询系统配置失败", zap.Error(err))
		return eligibility.Policy{}, err
	}
	return policyOf(cfg), nil
}

func toSystemConfigResponse(cfg *model.SystemConfig) *dto.SystemConfigResponse {
	resp := &dto.SystemConfigResponse{
		CountFailingGradesAsCompleted: cfg.CountFailingGradesAsCompleted,
		NotifyOnVerification:          cfg.NotifyOnVerification,
		BroadcastOnCurriculumAdd:      cfg.BroadcastOnCurriculumAdd,
	}
	if cfg.ClearanceDeadline != nil {
		resp.ClearanceDeadline = cfg.ClearanceDeadline.Format("2006-01-02")
	}
	if !cfg.UpdatedAt.IsZero() {
		resp.UpdatedAt = formatTime(cfg.UpdatedAt)
	}
	return resp
}
