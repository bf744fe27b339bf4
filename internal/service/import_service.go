package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/eligibility"
	"degreefi/backend/internal/legacy"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
	"degreefi/backend/pkg/filestorage"
)

// 与 courses / academic_records 列宽一致
const (
	maxCourseCodeLen = 30
	maxRecordCodeLen = 100
	maxCourseNameLen = 200
)

var (
	ErrLegacyMalformed = legacy.ErrMalformed
	ErrLegacyNoUsers   = legacy.ErrNoUsers
)

// ImportService 旧版本地存储数据的一次性导入
type ImportService interface {
	// Import 升级并写入旧数据；已存在的邮箱跳过，不覆盖
	Import(ctx context.Context, raw []byte, callerID string) (*dto.LegacyImportResponse, error)
}

type importService struct {
	repo    *repository.Repository
	storage filestorage.Storage
	logger  *zap.Logger
}

// NewImportService 创建 ImportService 实例
func NewImportService(repo *repository.Repository, storage filestorage.Storage, logger *zap.Logger) ImportService {
	return &importService{repo: repo, storage: storage, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// Import
// ═══════════════════════════════════════════════════════════
//
// 全部写入在一个事务内完成；事务失败时删除已落盘的材料文件。

func (s *importService) Import(ctx context.Context, raw []byte, callerID string) (*dto.LegacyImportResponse, error) {
	snap, err := legacy.Upgrade(raw, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	resp := &dto.LegacyImportResponse{SourceVersion: snap.SourceVersion}
	var saved []string

	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		for _, c := range snap.Curriculum {
			if utf8.RuneCountInString(c.Code) > maxCourseCodeLen {
				resp.SkippedCourses = append(resp.SkippedCourses, c.Code)
				continue
			}
			created, err := s.importCourse(ctx, txRepo, c, callerID)
			if err != nil {
				return err
			}
			if created {
				resp.CoursesImported++
			}
		}

		for i := range snap.Users {
			u := &snap.Users[i]
			if _, err := txRepo.User.GetByEmail(ctx, u.Email); err == nil {
				resp.Skipped = append(resp.Skipped, u.Email)
				continue
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			n, paths, err := s.importUser(ctx, txRepo, u, callerID, resp)
			saved = append(saved, paths...)
			if err != nil {
				return err
			}
			if u.Role == model.RoleStudent {
				resp.StudentsImported++
			}
			resp.RecordsImported += n
		}

		audit := &model.LegacyImport{
			SourceVersion:    snap.SourceVersion,
			RawPayload:       datatypes.JSON(raw),
			StudentsImported: resp.StudentsImported,
			CoursesImported:  resp.CoursesImported,
			RecordsImported:  resp.RecordsImported,
		}
		audit.CreatedBy = &callerID
		if err := txRepo.LegacyImport.Create(ctx, audit); err != nil {
			return err
		}
		resp.ImportID = audit.ImportID
		return nil
	})
	if err != nil {
		for _, p := range saved {
			_ = s.storage.Delete(p)
		}
		s.logger.Error("旧数据导入失败", zap.Int("source_version", snap.SourceVersion), zap.Error(err))
		return nil, err
	}

	s.logger.Info("旧数据导入完成",
		zap.String("import_id", resp.ImportID),
		zap.Int("source_version", resp.SourceVersion),
		zap.Int("students", resp.StudentsImported),
		zap.Int("courses", resp.CoursesImported),
		zap.Int("records", resp.RecordsImported),
		zap.Int("skipped", len(resp.Skipped)),
		zap.Int("skipped_records", len(resp.SkippedRecords)),
	)
	return resp, nil
}

func (s *importService) importCourse(ctx context.Context, txRepo *repository.Repository, c legacy.Course, callerID string) (bool, error) {
	if _, err := txRepo.Course.GetByCode(ctx, c.Code); err == nil {
		return false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	course := &model.Course{Code: c.Code, Name: truncateRunes(c.Name, maxCourseNameLen)}
	course.CreatedBy = &callerID
	if err := txRepo.Course.Create(ctx, course); err != nil {
		return false, err
	}
	return true, nil
}

// importUser 写入账号、材料、成绩与通知，返回成绩条数与已落盘文件
func (s *importService) importUser(ctx context.Context, txRepo *repository.Repository, u *legacy.User, callerID string, resp *dto.LegacyImportResponse) (int, []string, error) {
	password := u.Password
	if password == "" {
		// 无密码的旧账号需通过重置流程登录
		password = uuid.NewString()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, nil, err
	}

	user := &model.User{
		Name:         u.Name,
		Email:        u.Email,
		RegNumber:    optionalString(u.RegNumber),
		Phone:        optionalString(u.Phone),
		PasswordHash: string(hash),
		Role:         u.Role,
	}
	user.Version = 1
	user.CreatedBy = &callerID
	if err := txRepo.User.Create(ctx, user); err != nil {
		return 0, nil, err
	}
	if user.Role != model.RoleStudent {
		return 0, nil, nil
	}

	ms, saved, err := s.buildMilestones(user.UserID, u)
	if err != nil {
		return 0, saved, err
	}
	if err := txRepo.Milestone.CreateBatch(ctx, ms); err != nil {
		return 0, saved, err
	}

	imported := 0
	for _, r := range u.Records {
		// 无法拆出代码的超长课程名整串作代码时会超出列宽
		if utf8.RuneCountInString(r.CourseCode) > maxRecordCodeLen {
			resp.SkippedRecords = append(resp.SkippedRecords, fmt.Sprintf("%s: %s", u.Email, truncateRunes(r.CourseCode, 60)))
			continue
		}
		rec := &model.AcademicRecord{
			StudentID:  user.UserID,
			CourseCode: r.CourseCode,
			CourseName: truncateRunes(r.CourseName, maxCourseNameLen),
			Grade:      r.Grade,
			DateAdded:  r.DateAdded,
		}
		rec.CreatedBy = &callerID
		if _, err := txRepo.Record.Upsert(ctx, rec); err != nil {
			return 0, saved, err
		}
		imported++
	}

	// 按原顺序写入，seq 保持先后
	for _, n := range u.Notifications {
		note := &model.Notification{
			UserID:  user.UserID,
			Title:   n.Title,
			Message: n.Message,
			IsRead:  n.Read,
		}
		note.CreatedAt = n.CreatedAt
		if err := txRepo.Notification.Create(ctx, note); err != nil {
			return 0, saved, err
		}
	}

	return imported, saved, nil
}

func (s *importService) buildMilestones(studentID string, u *legacy.User) ([]model.Milestone, []string, error) {
	ms := newMilestoneSet(studentID)
	docs := make(map[eligibility.Category]legacy.Document, len(u.Documents))
	for _, d := range u.Documents {
		docs[d.Category] = d
	}

	var saved []string
	for i := range ms {
		m := &ms[i]
		cat := eligibility.Category(m.Category)
		m.ManualClearance = u.ManualClearance[cat]

		d, ok := docs[cat]
		if !ok {
			continue
		}
		m.Status = string(d.Status)
		upload := d.UploadDate
		m.UploadDate = &upload
		name := d.Filename
		m.OriginalFilename = &name
		if d.Status == eligibility.StatusVerified {
			m.VerifiedAt = &upload
		}

		if len(d.Content) > 0 && s.storage != nil {
			rel, err := s.storage.Save(bytes.NewReader(d.Content), d.Filename, studentID)
			if err != nil {
				return nil, saved, err
			}
			saved = append(saved, rel)
			m.FilePath = &rel
		}
	}
	return ms, saved, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
