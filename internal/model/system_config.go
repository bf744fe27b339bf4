package model

import "time"

// SystemConfig 系统配置表，对应 system_config（单行强类型）
type SystemConfig struct {
	Singleton                     bool       `gorm:"primaryKey;default:true" json:"-"`
	CountFailingGradesAsCompleted bool       `gorm:"not null;default:false"  json:"count_failing_grades_as_completed"`
	NotifyOnVerification          bool       `gorm:"not null;default:true"   json:"notify_on_verification"`
	BroadcastOnCurriculumAdd      bool       `gorm:"not null;default:true"   json:"broadcast_on_curriculum_add"`
	ClearanceDeadline             *time.Time `gorm:"type:date"               json:"clearance_deadline,omitempty"`
	BaseModel
}

// TableName 指定表名
func (SystemConfig) TableName() string { return "system_config" }
