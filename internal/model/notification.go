package model

// Notification 站内通知，对应 notifications（只追加；按 seq 倒序展示）
type Notification struct {
	NotificationID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"notification_id"`
	UserID         string `gorm:"type:uuid;not null"                             json:"user_id"`
	Title          string `gorm:"type:varchar(200);not null"                     json:"title"`
	Message        string `gorm:"type:text;not null"                             json:"message"`
	IsRead         bool   `gorm:"not null;default:false"                         json:"is_read"`
	Seq            int64  `gorm:"autoIncrement;->"                               json:"-"`
	BaseModel
}

// TableName 指定表名
func (Notification) TableName() string { return "notifications" }
