package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"degreefi/backend/internal/eligibility"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoStudents    = errors.New("没有可导出的学生")
	ErrExportGenerateFail  = errors.New("生成 Excel 文件失败")
	ErrNoClearanceDeadline = errors.New("尚未设置材料提交截止日期")
)

const (
	summarySheet   = "Summary"
	calendarProdID = "-//Degreefi//Clearance Calendar//EN"
	deadlineHour   = 9 // 截止日当天 09:00 UTC
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer / []byte 返回，由 Handler 层设置 HTTP 响应头后写入 Response。
type ExportService interface {
	// ExportStudents 学生审计表：Summary 汇总页 + 每名学生一页明细
	ExportStudents(ctx context.Context, studentIDs []string) (*bytes.Buffer, string, error)
	// ClearanceCalendar 未完成材料的截止日历（.ics）
	ClearanceCalendar(ctx context.Context, studentID string) ([]byte, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportStudents: 学生审计表
// ═══════════════════════════════════════════════════════════
//
// Summary 页列：姓名 | 注册号 | 邮箱 | 已完成课程 | GPA | 已清算材料 | 进度 | 状态 | 是否合格
// 明细页：成绩表 + 材料表

func (s *exportService) ExportStudents(ctx context.Context, studentIDs []string) (*bytes.Buffer, string, error) {
	ids := dedupe(studentIDs)
	if len(ids) == 0 {
		all, err := s.repo.User.ListStudentIDs(ctx)
		if err != nil {
			s.logger.Error("查询学生列表失败", zap.Error(err))
			return nil, "", err
		}
		ids = all
	}

	users, err := s.repo.User.ListStudentsByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("查询学生失败", zap.Error(err))
		return nil, "", err
	}
	if len(users) == 0 {
		return nil, "", ErrExportNoStudents
	}

	data, err := loadStudentData(ctx, s.repo, ids)
	if err != nil {
		s.logger.Error("计算学生进度失败", zap.Error(err))
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, _ := f.NewSheet(summarySheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	s.writeSummary(f, users, data, headerStyle)

	used := map[string]bool{summarySheet: true}
	for i := range users {
		u := &users[i]
		name := uniqueSheetName(u.Name, used)
		s.writeStudentSheet(f, name, u, data[u.UserID], headerStyle)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("degreefi_audit_%s.xlsx", time.Now().UTC().Format("20060102"))
	return buf, filename, nil
}

func (s *exportService) writeSummary(f *excelize.File, users []model.User, data map[string]*studentData, headerStyle int) {
	headers := []string{"Name", "Reg Number", "Email", "Completed Subjects", "GPA", "Cleared Documents", "Progress", "Status", "Eligible"}
	widths := []float64{24, 16, 28, 18, 8, 18, 10, 14, 10}
	for i, h := range headers {
		col := colName(i)
		f.SetColWidth(summarySheet, col, col, widths[i])
		f.SetCellValue(summarySheet, cell(col, 1), h)
	}
	f.SetCellStyle(summarySheet, "A1", cell(colName(len(headers)-1), 1), headerStyle)

	row := 2
	for i := range users {
		u := &users[i]
		p := data[u.UserID].Progress
		f.SetCellValue(summarySheet, cell("A", row), u.Name)
		f.SetCellValue(summarySheet, cell("B", row), derefString(u.RegNumber))
		f.SetCellValue(summarySheet, cell("C", row), u.Email)
		f.SetCellValue(summarySheet, cell("D", row), fmt.Sprintf("%d/%d", p.CompletedSubjects, p.CurriculumSize))
		f.SetCellValue(summarySheet, cell("E", row), p.GPADisplay)
		f.SetCellValue(summarySheet, cell("F", row), fmt.Sprintf("%d/%d", p.ClearedMilestones, p.TotalMilestones))
		f.SetCellValue(summarySheet, cell("G", row), fmt.Sprintf("%d%%", p.Percent))
		f.SetCellValue(summarySheet, cell("H", row), qualificationStatus(p))
		f.SetCellValue(summarySheet, cell("I", row), yesNo(p.Eligible))
		row++
	}
}

func (s *exportService) writeStudentSheet(f *excelize.File, sheet string, u *model.User, d *studentData, headerStyle int) {
	f.NewSheet(sheet)
	f.SetColWidth(sheet, "A", "A", 22)
	f.SetColWidth(sheet, "B", "B", 36)
	f.SetColWidth(sheet, "C", "E", 16)

	f.SetCellValue(sheet, "A1", fmt.Sprintf("%s (%s)", u.Name, derefString(u.RegNumber)))
	f.MergeCell(sheet, "A1", "E1")
	f.SetCellStyle(sheet, "A1", "E1", headerStyle)

	row := 3
	for i, h := range []string{"Course Code", "Course Name", "Grade", "Date Added"} {
		f.SetCellValue(sheet, cell(colName(i), row), h)
	}
	f.SetCellStyle(sheet, cell("A", row), cell("D", row), headerStyle)
	row++
	for _, r := range d.Records {
		f.SetCellValue(sheet, cell("A", row), r.CourseCode)
		f.SetCellValue(sheet, cell("B", row), r.CourseName)
		f.SetCellValue(sheet, cell("C", row), r.Grade)
		f.SetCellValue(sheet, cell("D", row), r.DateAdded.Format("2006-01-02"))
		row++
	}

	row++
	for i, h := range []string{"Document", "Upload Status", "Manual Clearance", "Effective", "Uploaded"} {
		f.SetCellValue(sheet, cell(colName(i), row), h)
	}
	f.SetCellStyle(sheet, cell("A", row), cell("E", row), headerStyle)
	row++
	for i := range d.Milestones {
		m := &d.Milestones[i]
		f.SetCellValue(sheet, cell("A", row), m.Category)
		f.SetCellValue(sheet, cell("B", row), m.Status)
		f.SetCellValue(sheet, cell("C", row), yesNo(m.ManualClearance))
		f.SetCellValue(sheet, cell("D", row), string(toEligibilityMilestone(m).EffectiveStatus()))
		if m.UploadDate != nil {
			f.SetCellValue(sheet, cell("E", row), m.UploadDate.Format("2006-01-02"))
		}
		row++
	}
}

// ═══════════════════════════════════════════════════════════
// ClearanceCalendar: 材料截止日历
// ═══════════════════════════════════════════════════════════

func (s *exportService) ClearanceCalendar(ctx context.Context, studentID string) ([]byte, string, error) {
	user, err := requireStudent(ctx, s.repo, s.logger, studentID)
	if err != nil {
		return nil, "", err
	}

	cfg, err := loadSystemConfig(ctx, s.repo)
	if err != nil {
		s.logger.Error("查询系统配置失败", zap.Error(err))
		return nil, "", err
	}
	if cfg.ClearanceDeadline == nil {
		return nil, "", ErrNoClearanceDeadline
	}

	raw, err := s.repo.Milestone.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("查询材料失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, "", err
	}

	d := cfg.ClearanceDeadline.UTC()
	due := time.Date(d.Year(), d.Month(), d.Day(), deadlineHour, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProdID)

	for _, m := range orderedMilestones(studentID, raw) {
		em := toEligibilityMilestone(&m)
		if em.Cleared() {
			continue
		}

		e := cal.AddEvent(fmt.Sprintf("%s-%s@degreefi", studentID, slug(m.Category)))
		e.SetDtStampTime(now)
		e.SetStartAt(due)
		e.SetEndAt(due.Add(time.Hour))
		e.SetSummary(fmt.Sprintf("Degreefi: %s due", m.Category))
		e.SetDescription(calendarDescription(em))
	}

	filename := fmt.Sprintf("clearance_%s.ics", slug(derefString(user.RegNumber)))
	return []byte(cal.Serialize()), filename, nil
}

func calendarDescription(m eligibility.Milestone) string {
	if m.EffectiveStatus() == eligibility.StatusPending {
		return fmt.Sprintf("%s has been uploaded and is awaiting registrar review.", m.Category)
	}
	return fmt.Sprintf("%s has not been uploaded yet. Upload it before the clearance deadline.", m.Category)
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

// uniqueSheetName 工作表名最长 31 字符且不能含 []:*?/\
func uniqueSheetName(name string, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = "Student"
	}
	clean = truncateRunes(clean, 31)

	candidate := clean
	for n := 2; used[candidate]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncateRunes(clean, 31-len(suffix)) + suffix
	}
	used[candidate] = true
	return candidate
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "student"
	}
	return out
}
