package model

// Course 课程表条目，对应 courses
// Code 统一存储为大写；Seq 为插入顺序，列表按其升序展示
type Course struct {
	CourseID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"course_id"`
	Code     string `gorm:"type:varchar(30);not null"                      json:"code"`
	Name     string `gorm:"type:varchar(200);not null"                     json:"name"`
	Seq      int64  `gorm:"autoIncrement;->"                               json:"seq"`
	SoftDeleteModel
}

// TableName 指定表名
func (Course) TableName() string { return "courses" }
