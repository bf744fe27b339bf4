package dto

// ── 成绩记录模块 DTO ──

// AddRecordRequest 录入成绩请求；Grade 为 0-4 的整数档
type AddRecordRequest struct {
	CourseCode string   `json:"course_code" binding:"required,max=30"`
	Grade      *float64 `json:"grade"       binding:"required,grade"`
}

// RecordResponse 成绩记录响应
type RecordResponse struct {
	ID         string  `json:"id"`
	CourseCode string  `json:"course_code"`
	CourseName string  `json:"course_name"`
	Grade      float64 `json:"grade"`
	DateAdded  string  `json:"date_added"`
	Orphaned   bool    `json:"orphaned"` // 课程已从课程表移除
}

// AddRecordResponse 录入结果；Updated 表示覆盖了已有记录
type AddRecordResponse struct {
	Record  RecordResponse `json:"record"`
	Updated bool           `json:"updated"`
}
