package model

import "time"

// AcademicRecord 成绩记录，对应 academic_records
// (student_id, course_code) 唯一；CourseName 为录入时的课程名快照，课程被移除后仍可展示
type AcademicRecord struct {
	RecordID   string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"record_id"`
	StudentID  string    `gorm:"type:uuid;not null"                             json:"student_id"`
	CourseCode string    `gorm:"type:varchar(100);not null"                     json:"course_code"`
	CourseName string    `gorm:"type:varchar(200);not null;default:''"          json:"course_name"`
	Grade      float64   `gorm:"type:numeric(4,2);not null"                     json:"grade"`
	DateAdded  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"date_added"`
	BaseModel
}

// TableName 指定表名
func (AcademicRecord) TableName() string { return "academic_records" }
