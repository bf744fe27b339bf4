package model

import "gorm.io/datatypes"

// LegacyImport 旧版本地存储数据的导入审计，对应 legacy_imports
type LegacyImport struct {
	ImportID         string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"import_id"`
	SourceVersion    int            `gorm:"not null"                                       json:"source_version"`
	RawPayload       datatypes.JSON `gorm:"type:jsonb;not null"                            json:"-"`
	StudentsImported int            `gorm:"not null;default:0"                             json:"students_imported"`
	CoursesImported  int            `gorm:"not null;default:0"                             json:"courses_imported"`
	RecordsImported  int            `gorm:"not null;default:0"                             json:"records_imported"`
	BaseModel
}

// TableName 指定表名
func (LegacyImport) TableName() string { return "legacy_imports" }
