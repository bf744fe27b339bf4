package dto

// ── 通知模块 DTO ──

// NotificationListRequest 通知列表查询参数
type NotificationListRequest struct {
	PaginationRequest
}

// NotificationResponse 通知响应
type NotificationResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

// SendNotificationRequest 管理员向单个学生发送通知
type SendNotificationRequest struct {
	StudentID string `json:"student_id" binding:"required,uuid"`
	Title     string `json:"title"      binding:"required,max=200"`
	Message   string `json:"message"    binding:"required,max=5000"`
}

// BroadcastRequest 批量通知；StudentIDs 为空表示全体学生
type BroadcastRequest struct {
	StudentIDs []string `json:"student_ids" binding:"omitempty,dive,uuid"`
	Title      string   `json:"title"       binding:"required,max=200"`
	Message    string   `json:"message"     binding:"required,max=5000"`
}

// BroadcastResult 批量通知结果，单个学生失败不影响其余
type BroadcastResult struct {
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failures  []BroadcastFailure `json:"failures,omitempty"`
}

// BroadcastFailure 单个学生的失败原因
type BroadcastFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// UnreadCountResponse 未读数
type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}

// MarkAllReadResponse 全部已读结果
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}
