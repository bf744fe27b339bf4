package dto

// ── 系统配置模块 DTO ──

// UpdateSystemConfigRequest 更新系统配置请求（部分更新）
type UpdateSystemConfigRequest struct {
	CountFailingGradesAsCompleted *bool   `json:"count_failing_grades_as_completed"`
	NotifyOnVerification          *bool   `json:"notify_on_verification"`
	BroadcastOnCurriculumAdd      *bool   `json:"broadcast_on_curriculum_add"`
	ClearanceDeadline             *string `json:"clearance_deadline" binding:"omitempty,datetime=2006-01-02"`
	ClearClearanceDeadline        bool    `json:"clear_clearance_deadline"`
}

// SystemConfigResponse 系统配置响应
type SystemConfigResponse struct {
	CountFailingGradesAsCompleted bool   `json:"count_failing_grades_as_completed"`
	NotifyOnVerification          bool   `json:"notify_on_verification"`
	BroadcastOnCurriculumAdd      bool   `json:"broadcast_on_curriculum_add"`
	ClearanceDeadline             string `json:"clearance_deadline,omitempty"`
	UpdatedAt                     string `json:"updated_at"`
}
