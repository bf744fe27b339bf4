package dto

// ── 课程表模块 DTO ──

// CreateCourseRequest 新增课程请求
type CreateCourseRequest struct {
	Code string `json:"code" binding:"required,min=2,max=30"`
	Name string `json:"name" binding:"required,min=2,max=200"`
}

// CourseResponse 课程响应
type CourseResponse struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// AddCourseResponse 新增课程结果；Broadcast 为空表示未开启新课通知
type AddCourseResponse struct {
	Course    CourseResponse   `json:"course"`
	Broadcast *BroadcastResult `json:"broadcast,omitempty"`
}

// ImportCoursesResponse Excel 批量导入课程结果
type ImportCoursesResponse struct {
	Total   int           `json:"total"`
	Success int           `json:"success"`
	Failed  int           `json:"failed"`
	Errors  []ImportError `json:"errors,omitempty"`
}

// ImportError 导入错误详情
type ImportError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}
