package dto

import "degreefi/backend/internal/eligibility"

// ── 学生管理模块 DTO ──

// StudentListRequest 学生列表查询参数
type StudentListRequest struct {
	PaginationRequest
	Keyword string `form:"keyword" binding:"omitempty,max=50"`
}

// StudentSummaryResponse 管理端学生列表行
type StudentSummaryResponse struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Email      string               `json:"email"`
	RegNumber  string               `json:"reg_number,omitempty"`
	Phone      string               `json:"phone,omitempty"`
	DateJoined string               `json:"date_joined"`
	Progress   eligibility.Progress `json:"progress"`
	Status     string               `json:"status"` // QUALIFIED | PROVISIONAL
}

// StudentDetailResponse 学生详情（管理端详情页与学生首页共用）
type StudentDetailResponse struct {
	StudentSummaryResponse
	Records    []RecordResponse    `json:"records"`
	Milestones []MilestoneResponse `json:"milestones"`
}

// ReminderResponse 状态提醒发送结果
type ReminderResponse struct {
	Template     string               `json:"template"` // missing_documents | pending_credits | cleared
	Notification NotificationResponse `json:"notification"`
}

// StatusReportRequest 批量进度报告；StudentIDs 为空表示全体学生
type StatusReportRequest struct {
	StudentIDs []string `json:"student_ids" binding:"omitempty,dive,uuid"`
}
