package model

import "time"

// Milestone 毕业材料，对应 milestones（每名学生固定 5 行）
type Milestone struct {
	MilestoneID      string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"milestone_id"`
	StudentID        string     `gorm:"type:uuid;not null"                             json:"student_id"`
	Category         string     `gorm:"type:varchar(40);not null"                      json:"category"`
	Status           string     `gorm:"type:varchar(20);not null;default:'missing'"    json:"status"` // missing | pending | verified
	ManualClearance  bool       `gorm:"not null;default:false"                         json:"manual_clearance"`
	FilePath         *string    `gorm:"type:varchar(500)"                              json:"-"`
	OriginalFilename *string    `gorm:"type:varchar(255)"                              json:"original_filename,omitempty"`
	UploadDate       *time.Time `                                                      json:"upload_date,omitempty"`
	VerifiedAt       *time.Time `                                                      json:"verified_at,omitempty"`
	VerifiedBy       *string    `gorm:"type:uuid"                                      json:"verified_by,omitempty"`
	VersionedModel
}

// TableName 指定表名
func (Milestone) TableName() string { return "milestones" }
