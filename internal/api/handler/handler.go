package handler

import (
	"degreefi/backend/config"
	"degreefi/backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth         *AuthHandler
	Curriculum   *CurriculumHandler
	Record       *RecordHandler
	Milestone    *MilestoneHandler
	Notification *NotificationHandler
	Student      *StudentHandler
	Export       *ExportHandler
	Import       *ImportHandler
	SystemConfig *SystemConfigHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(cfg *config.Config, svc *service.Service) *Handler {
	return &Handler{
		Auth:         NewAuthHandler(svc.Auth, &cfg.Auth),
		Curriculum:   NewCurriculumHandler(svc.Curriculum),
		Record:       NewRecordHandler(svc.Record),
		Milestone:    NewMilestoneHandler(svc.Milestone),
		Notification: NewNotificationHandler(svc.Notification),
		Student:      NewStudentHandler(svc.Student),
		Export:       NewExportHandler(svc.Export),
		Import:       NewImportHandler(svc.Import),
		SystemConfig: NewSystemConfigHandler(svc.SystemConfig),
	}
}
