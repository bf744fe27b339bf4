package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/eligibility"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
)

// ── 跨模块共用的业务错误 ──

var (
	ErrStudentNotFound = errors.New("学生不存在")

	// 纯计算层错误在服务层同名导出，Handler 只依赖 service 包
	ErrInvalidGrade      = eligibility.ErrInvalidGrade
	ErrUnknownCategory   = eligibility.ErrUnknownCategory
	ErrUnknownStatus     = eligibility.ErrUnknownStatus
	ErrInvalidTransition = eligibility.ErrInvalidTransition
)

const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// requireStudent 查询用户并确认其为学生账号
func requireStudent(ctx context.Context, repo *repository.Repository, logger *zap.Logger, id string) (*model.User, error) {
	user, err := repo.User.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		logger.Error("查询学生失败", zap.String("student_id", id), zap.Error(err))
		return nil, err
	}
	if !user.IsStudent() {
		return nil, ErrStudentNotFound
	}
	return user, nil
}

// loadSystemConfig 读取单行配置；尚未初始化时返回默认值
func loadSystemConfig(ctx context.Context, repo *repository.Repository) (*model.SystemConfig, error) {
	cfg, err := repo.SystemConfig.Get(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultSystemConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func defaultSystemConfig() *model.SystemConfig {
	return &model.SystemConfig{
		Singleton:                     true,
		CountFailingGradesAsCompleted: false,
		NotifyOnVerification:          true,
		BroadcastOnCurriculumAdd:      true,
	}
}

func policyOf(cfg *model.SystemConfig) eligibility.Policy {
	return eligibility.Policy{CountFailingGradesAsCompleted: cfg.CountFailingGradesAsCompleted}
}

// ── 模型 → 计算层 ──

func toEligibilityRecords(recs []model.AcademicRecord) []eligibility.Record {
	out := make([]eligibility.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, eligibility.Record{CourseCode: r.CourseCode, Grade: r.Grade})
	}
	return out
}

func toEligibilityMilestones(ms []model.Milestone) []eligibility.Milestone {
	out := make([]eligibility.Milestone, 0, len(ms))
	for _, m := range ms {
		out = append(out, toEligibilityMilestone(&m))
	}
	return out
}

func toEligibilityMilestone(m *model.Milestone) eligibility.Milestone {
	return eligibility.Milestone{
		Category:        eligibility.Category(m.Category),
		Status:          eligibility.Status(m.Status),
		ManualClearance: m.ManualClearance,
	}
}

// qualificationStatus 管理端列表展示用
func qualificationStatus(p eligibility.Progress) string {
	if p.Eligible {
		return "QUALIFIED"
	}
	return "PROVISIONAL"
}

// ── 模型 → DTO ──

func toUserResponse(u *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		RegNumber: derefString(u.RegNumber),
		Phone:     derefString(u.Phone),
		Role:      u.Role,
	}
}

func toCourseResponse(c *model.Course) dto.CourseResponse {
	return dto.CourseResponse{ID: c.CourseID, Code: c.Code, Name: c.Name}
}

func toRecordResponse(r *model.AcademicRecord, live map[string]bool) dto.RecordResponse {
	resp := dto.RecordResponse{
		ID:         r.RecordID,
		CourseCode: r.CourseCode,
		CourseName: r.CourseName,
		Grade:      r.Grade,
		DateAdded:  formatTime(r.DateAdded),
	}
	if live != nil {
		resp.Orphaned = !live[r.CourseCode]
	}
	return resp
}

func toNotificationResponse(n *model.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:        n.NotificationID,
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: formatTime(n.CreatedAt),
	}
}

func toMilestoneResponse(m *model.Milestone) dto.MilestoneResponse {
	em := toEligibilityMilestone(m)
	return dto.MilestoneResponse{
		Category:         m.Category,
		Status:           m.Status,
		EffectiveStatus:  string(em.EffectiveStatus()),
		ManualClearance:  m.ManualClearance,
		OriginalFilename: derefString(m.OriginalFilename),
		UploadDate:       formatTimePtr(m.UploadDate),
		VerifiedAt:       formatTimePtr(m.VerifiedAt),
		HasDocument:      m.FilePath != nil && *m.FilePath != "",
	}
}

// orderedMilestones 按固定类别顺序输出；缺失的类别补一条 missing
func orderedMilestones(studentID string, ms []model.Milestone) []model.Milestone {
	byCat := make(map[string]model.Milestone, len(ms))
	for _, m := range ms {
		byCat[m.Category] = m
	}
	out := make([]model.Milestone, 0, eligibility.MilestoneCount)
	for _, c := range eligibility.Categories() {
		if m, ok := byCat[string(c)]; ok {
			out = append(out, m)
			continue
		}
		out = append(out, model.Milestone{StudentID: studentID, Category: string(c), Status: string(eligibility.StatusMissing)})
	}
	return out
}

// newMilestoneSet 新学生的 5 项空材料
func newMilestoneSet(studentID string) []model.Milestone {
	ms := make([]model.Milestone, 0, eligibility.MilestoneCount)
	for _, c := range eligibility.Categories() {
		m := model.Milestone{
			StudentID: studentID,
			Category:  string(c),
			Status:    string(eligibility.StatusMissing),
		}
		m.Version = 1
		ms = append(ms, m)
	}
	return ms
}

// studentData 一名学生参与计算与展示的数据
type studentData struct {
	Records    []model.AcademicRecord
	Milestones []model.Milestone // 固定类别顺序
	Progress   eligibility.Progress
}

// loadStudentData 批量加载多名学生的成绩与材料并计算进度
func loadStudentData(ctx context.Context, repo *repository.Repository, ids []string) (map[string]*studentData, error) {
	recs, err := repo.Record.ListByStudents(ctx, ids)
	if err != nil {
		return nil, err
	}
	ms, err := repo.Milestone.ListByStudents(ctx, ids)
	if err != nil {
		return nil, err
	}
	n, err := repo.Course.Count(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := loadSystemConfig(ctx, repo)
	if err != nil {
		return nil, err
	}
	policy := policyOf(cfg)

	out := make(map[string]*studentData, len(ids))
	for _, id := range ids {
		out[id] = &studentData{}
	}
	for _, r := range recs {
		if d, ok := out[r.StudentID]; ok {
			d.Records = append(d.Records, r)
		}
	}
	rawMs := make(map[string][]model.Milestone, len(ids))
	for _, m := range ms {
		rawMs[m.StudentID] = append(rawMs[m.StudentID], m)
	}
	for id, d := range out {
		d.Milestones = orderedMilestones(id, rawMs[id])
		d.Progress = eligibility.ComputeProgress(int(n),
			toEligibilityRecords(d.Records),
			toEligibilityMilestones(d.Milestones),
			policy,
		)
	}
	return out, nil
}
