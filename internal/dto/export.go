package dto

// ExportStudentsRequest 导出学生审计表；StudentIDs 为空表示全部学生
type ExportStudentsRequest struct {
	StudentIDs []string `json:"student_ids" binding:"omitempty,dive,uuid"`
}

// LegacyImportResponse 旧数据导入结果
type LegacyImportResponse struct {
	ImportID         string   `json:"import_id"`
	SourceVersion    int      `json:"source_version"`
	StudentsImported int      `json:"students_imported"`
	CoursesImported  int      `json:"courses_imported"`
	RecordsImported  int      `json:"records_imported"`
	Skipped          []string `json:"skipped,omitempty"` // 已存在等原因跳过的账号邮箱
	SkippedCourses   []string `json:"skipped_courses,omitempty"` // 课程代码超长而跳过的课程表条目
	SkippedRecords   []string `json:"skipped_records,omitempty"` // "邮箱: 课程" 形式，代码超长而跳过的成绩
}
