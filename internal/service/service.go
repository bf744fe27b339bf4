package service

import (
	"context"

	"go.uber.org/zap"

	"degreefi/backend/config"
	"degreefi/backend/internal/repository"
	"degreefi/backend/pkg/filestorage"
	"degreefi/backend/pkg/jwt"
	"degreefi/backend/pkg/mailer"
	"degreefi/backend/pkg/redis"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth         AuthService
	SystemConfig SystemConfigService
	Notification NotificationService
	Curriculum   CurriculumService
	Record       RecordService
	Milestone    MilestoneService
	Student      StudentService
	Export       ExportService
	Import       ImportService
}

// NewService 创建 Service 聚合；rdb 可为 nil（Redis 不可用时退化为无黑名单）
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	rdb *redis.Client,
	storage filestorage.Storage,
	mail mailer.Mailer,
	logger *zap.Logger,
) *Service {
	var blacklist TokenBlacklist
	if rdb != nil {
		blacklist = rdb
	}

	sysCfg := NewSystemConfigService(repo, logger)
	notif := NewNotificationService(repo, mail, NotificationOptions{
		EmailEnabled: cfg.Feature.EmailNotifications,
		Concurrency:  cfg.Feature.BroadcastConcurrency,
	}, logger)

	return &Service{
		Auth:         NewAuthService(cfg, repo, jwtMgr, blacklist, logger),
		SystemConfig: sysCfg,
		Notification: notif,
		Curriculum:   NewCurriculumService(repo, notif, logger),
		Record:       NewRecordService(repo, logger),
		Milestone:    NewMilestoneService(repo, storage, notif, cfg.Storage.AllowedExts, logger),
		Student:      NewStudentService(repo, storage, notif, cfg.Feature.BroadcastConcurrency, logger),
		Export:       NewExportService(repo, logger),
		Import:       NewImportService(repo, storage, logger),
	}
}

// Close 释放后台任务（进行中的邮件抄送）
func (s *Service) Close(ctx context.Context) error {
	return s.Notification.Close(ctx)
}
