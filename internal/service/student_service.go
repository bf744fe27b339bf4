package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/eligibility"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
	"degreefi/backend/pkg/filestorage"
)

// 状态提醒模板
const (
	ReminderMissingDocuments = "missing_documents"
	ReminderPendingCredits   = "pending_credits"
	ReminderCleared          = "cleared"
)

const (
	missingDocsTitle   = "Action Required: Missing Documents"
	missingDocsMessage = "Attention: We've identified that your profile is missing the following required documents: %s. " +
		"Please log in and upload these immediately to ensure you do not miss out on the upcoming graduation."

	pendingCreditsTitle   = "Progress Update: Requirements Pending"
	pendingCreditsMessage = "Notification Sent: Your documents are in order, but you still have pending credit requirements. " +
		"Keep up the good work and finish your remaining courses to qualify for graduation!"

	clearedTitle   = "Graduation Discovery: Officially Cleared"
	clearedMessage = "Congratulations! All your documents are verified and you have met all credit requirements. " +
		"You are officially cleared for graduation!"

	statusReportTitle   = "Status Report"
	statusReportMessage = "Your current graduation progress is at %d%%. Keep it up!"
)

// StudentService 学生管理业务接口
type StudentService interface {
	List(ctx context.Context, req *dto.StudentListRequest) ([]dto.StudentSummaryResponse, int64, error)
	GetDetail(ctx context.Context, studentID string) (*dto.StudentDetailResponse, error)
	// GetMyProgress 学生首页，结构与管理端详情相同
	GetMyProgress(ctx context.Context, studentID string) (*dto.StudentDetailResponse, error)
	// Delete 删除学生及其成绩、材料、通知，并清理已上传文件
	Delete(ctx context.Context, studentID, callerID string) error
	// SendStatusReminder 按当前进度选择提醒模板并发送
	SendStatusReminder(ctx context.Context, studentID string) (*dto.ReminderResponse, error)
	// SendStatusReports 批量发送进度百分比报告；studentIDs 为空表示全体学生
	SendStatusReports(ctx context.Context, studentIDs []string) (*dto.BroadcastResult, error)
}

type studentService struct {
	repo        *repository.Repository
	storage     filestorage.Storage
	notif       NotificationService
	concurrency int
	logger      *zap.Logger
}

// NewStudentService 创建 StudentService 实例
func NewStudentService(
	repo *repository.Repository,
	storage filestorage.Storage,
	notif NotificationService,
	concurrency int,
	logger *zap.Logger,
) StudentService {
	return &studentService{
		repo:        repo,
		storage:     storage,
		notif:       notif,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ────────────────────── List ──────────────────────

func (s *studentService) List(ctx context.Context, req *dto.StudentListRequest) ([]dto.StudentSummaryResponse, int64, error) {
	users, total, err := s.repo.User.ListStudents(ctx,
		repository.StudentFilter{Keyword: req.Keyword},
		req.GetOffset(), req.GetPageSize(),
	)
	if err != nil {
		s.logger.Error("查询学生列表失败", zap.Error(err))
		return nil, 0, err
	}
	if len(users) == 0 {
		return []dto.StudentSummaryResponse{}, total, nil
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}

	data, err := loadStudentData(ctx, s.repo, ids)
	if err != nil {
		s.logger.Error("计算学生进度失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.StudentSummaryResponse, 0, len(users))
	for i := range users {
		u := &users[i]
		result = append(result, toStudentSummary(u, data[u.UserID].Progress))
	}
	return result, total, nil
}

// ────────────────────── GetDetail ──────────────────────

func (s *studentService) GetDetail(ctx context.Context, studentID string) (*dto.StudentDetailResponse, error) {
	user, err := requireStudent(ctx, s.repo, s.logger, studentID)
	if err != nil {
		return nil, err
	}

	recs, ms, p, err := s.progress(ctx, studentID)
	if err != nil {
		return nil, err
	}

	live, err := liveCourseCodes(ctx, s.repo)
	if err != nil {
		s.logger.Error("查询课程表失败", zap.Error(err))
		return nil, err
	}

	resp := &dto.StudentDetailResponse{
		StudentSummaryResponse: toStudentSummary(user, p),
		Records:                make([]dto.RecordResponse, 0, len(recs)),
		Milestones:             make([]dto.MilestoneResponse, 0, len(ms)),
	}
	for i := range recs {
		resp.Records = append(resp.Records, toRecordResponse(&recs[i], live))
	}
	for i := range ms {
		resp.Milestones = append(resp.Milestones, toMilestoneResponse(&ms[i]))
	}
	return resp, nil
}

func (s *studentService) GetMyProgress(ctx context.Context, studentID string) (*dto.StudentDetailResponse, error) {
	return s.GetDetail(ctx, studentID)
}

// ────────────────────── Delete ──────────────────────

func (s *studentService) Delete(ctx context.Context, studentID, callerID string) error {
	if _, err := requireStudent(ctx, s.repo, s.logger, studentID); err != nil {
		return err
	}

	ms, err := s.repo.Milestone.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询材料失败", zap.String("student_id", studentID), zap.Error(err))
		return err
	}
	var files []string
	for _, m := range ms {
		if p := derefString(m.FilePath); p != "" {
			files = append(files, p)
		}
	}

	// 成绩、材料、通知由外键 ON DELETE CASCADE 在同一事务内删除
	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		return txRepo.User.Delete(ctx, studentID)
	})
	if err != nil {
		s.logger.Error("删除学生失败", zap.String("student_id", studentID), zap.Error(err))
		return err
	}

	for _, f := range files {
		if err := s.storage.Delete(f); err != nil {
			s.logger.Warn("清理学生文件失败", zap.String("path", f), zap.Error(err))
		}
	}

	s.logger.Info("学生已删除",
		zap.String("student_id", studentID),
		zap.String("by", callerID),
		zap.Int("files", len(files)),
	)
	return nil
}

// ────────────────────── SendStatusReminder ──────────────────────

func (s *studentService) SendStatusReminder(ctx context.Context, studentID string) (*dto.ReminderResponse, error) {
	if _, err := requireStudent(ctx, s.repo, s.logger, studentID); err != nil {
		return nil, err
	}

	_, ms, p, err := s.progress(ctx, studentID)
	if err != nil {
		return nil, err
	}

	template, title, message := pickReminder(ms, p)
	n, err := s.notif.Append(ctx, studentID, title, message)
	if err != nil {
		return nil, err
	}

	s.logger.Info("状态提醒已发送", zap.String("student_id", studentID), zap.String("template", template))
	return &dto.ReminderResponse{Template: template, Notification: *n}, nil
}

// pickReminder 未上传材料优先提醒；材料齐全但未达标提醒学分；否则发送放行通知
func pickReminder(ms []model.Milestone, p eligibility.Progress) (template, title, message string) {
	var missing []string
	for _, m := range ms {
		if m.ManualClearance {
			continue
		}
		if eligibility.Status(m.Status) == eligibility.StatusMissing {
			missing = append(missing, m.Category)
		}
	}

	switch {
	case len(missing) > 0:
		return ReminderMissingDocuments, missingDocsTitle,
			fmt.Sprintf(missingDocsMessage, strings.Join(missing, ", "))
	case !p.Eligible:
		return ReminderPendingCredits, pendingCreditsTitle, pendingCreditsMessage
	default:
		return ReminderCleared, clearedTitle, clearedMessage
	}
}

// ────────────────────── SendStatusReports ──────────────────────

func (s *studentService) SendStatusReports(ctx context.Context, studentIDs []string) (*dto.BroadcastResult, error) {
	ids := dedupe(studentIDs)
	if len(ids) == 0 {
		all, err := s.repo.User.ListStudentIDs(ctx)
		if err != nil {
			s.logger.Error("查询学生列表失败", zap.Error(err))
			return nil, err
		}
		ids = all
	}

	result := fanOut(ctx, ids, s.concurrency, func(ctx context.Context, id string) error {
		if _, err := requireStudent(ctx, s.repo, s.logger, id); err != nil {
			return err
		}
		_, _, p, err := s.progress(ctx, id)
		if err != nil {
			return err
		}
		_, err = s.notif.Append(ctx, id, statusReportTitle, fmt.Sprintf(statusReportMessage, p.Percent))
		return err
	})

	s.logger.Info("批量进度报告发送完成",
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// ── 辅助函数 ──

// progress 加载单个学生的成绩与材料并计算进度；材料按固定类别顺序返回
func (s *studentService) progress(ctx context.Context, studentID string) ([]model.AcademicRecord, []model.Milestone, eligibility.Progress, error) {
	recs, err := s.repo.Record.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询成绩失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, nil, eligibility.Progress{}, err
	}
	raw, err := s.repo.Milestone.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询材料失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, nil, eligibility.Progress{}, err
	}
	ms := orderedMilestones(studentID, raw)

	curriculumSize, policy, err := s.calcInputs(ctx)
	if err != nil {
		return nil, nil, eligibility.Progress{}, err
	}

	p := eligibility.ComputeProgress(curriculumSize, toEligibilityRecords(recs), toEligibilityMilestones(ms), policy)
	return recs, ms, p, nil
}

func (s *studentService) calcInputs(ctx context.Context) (int, eligibility.Policy, error) {
	n, err := s.repo.Course.Count(ctx)
	if err != nil {
		s.logger.Error("统计课程表失败", zap.Error(err))
		return 0, eligibility.Policy{}, err
	}
	cfg, err := loadSystemConfig(ctx, s.repo)
	if err != nil {
		s.logger.Error("查询系统配置失败", zap.Error(err))
		return 0, eligibility.Policy{}, err
	}
	return int(n), policyOf(cfg), nil
}

func toStudentSummary(u *model.User, p eligibility.Progress) dto.StudentSummaryResponse {
	return dto.StudentSummaryResponse{
		ID:         u.UserID,
		Name:       u.Name,
		Email:      u.Email,
		RegNumber:  derefString(u.RegNumber),
		Phone:      derefString(u.Phone),
		DateJoined: formatTime(u.CreatedAt),
		Progress:   p,
		Status:     qualificationStatus(p),
	}
}
