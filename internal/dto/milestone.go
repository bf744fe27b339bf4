package dto

// ── 毕业材料模块 DTO ──

// MilestoneResponse 单项材料状态
type MilestoneResponse struct {
	Category         string `json:"category"`
	Status           string `json:"status"`           // 上传状态
	EffectiveStatus  string `json:"effective_status"` // 计入人工放行后的状态
	ManualClearance  bool   `json:"manual_clearance"`
	OriginalFilename string `json:"original_filename,omitempty"`
	UploadDate       string `json:"upload_date,omitempty"`
	VerifiedAt       string `json:"verified_at,omitempty"`
	HasDocument      bool   `json:"has_document"`
}

// UploadDocumentRequest 上传材料的表单字段（文件本身为 multipart file）
type UploadDocumentRequest struct {
	Category string `form:"category" binding:"required"`
}

// SetMilestoneStatusRequest 管理员审核请求
type SetMilestoneStatusRequest struct {
	Category string `json:"category" binding:"required"`
	Status   string `json:"status"   binding:"required,oneof=verified"`
}

// ToggleManualClearanceRequest 人工放行开关
type ToggleManualClearanceRequest struct {
	Category string `json:"category" binding:"required"`
	Enabled  *bool  `json:"enabled"  binding:"required"`
}
