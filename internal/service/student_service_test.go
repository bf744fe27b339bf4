package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/eligibility"
)

func setupStudentService() (StudentService, *testRepos, *mockStorage) {
	repos := newTestRepos()
	storage := newMockStorage()
	notif := NewNotificationService(repos.repo, nil, NotificationOptions{}, zap.NewNop())
	return NewStudentService(repos.repo, storage, notif, 4, zap.NewNop()), repos, storage
}

// clearAll 将学生的全部材料置为已通过
func clearAll(repos *testRepos, studentID string) {
	for _, c := range eligibility.Categories() {
		repos.milestones.set(studentID, string(c), "verified", false)
	}
}

func TestStudentService_List_ComputesProgress(t *testing.T) {
	svc, repos, _ := setupStudentService()
	ctx := context.Background()
	repos.addCourses(2)
	repos.addStudent("s1", "Alice")
	repos.addStudent("s2", "Bob")

	_, _ = repos.records.Upsert(ctx, recordFor("s1", "C001", 4))
	_, _ = repos.records.Upsert(ctx, recordFor("s1", "C002", 3))
	clearAll(repos, "s1")
	_, _ = repos.records.Upsert(ctx, recordFor("s2", "C001", 0))

	list, total, err := svc.List(ctx, &dto.StudentListRequest{})
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("期望 2 名学生，实际 total=%d len=%d", total, len(list))
	}

	alice, bob := list[0], list[1]
	if alice.Progress.Percent != 100 || !alice.Progress.Eligible || alice.Status != "QUALIFIED" {
		t.Errorf("Alice 应具备资格: %+v", alice.Progress)
	}
	if alice.Progress.GPADisplay != "3.50" {
		t.Errorf("GPA 期望 3.50，实际=%s", alice.Progress.GPADisplay)
	}
	if bob.Progress.CompletedSubjects != 0 || bob.Progress.Percent != 0 || bob.Status != "PROVISIONAL" {
		t.Errorf("Bob 0 分课程不计入完成: %+v", bob.Progress)
	}

	list, total, _ = svc.List(ctx, &dto.StudentListRequest{Keyword: "bob"})
	if total != 1 || list[0].ID != "s2" {
		t.Errorf("关键字过滤失败: total=%d", total)
	}
}

func TestStudentService_List_FailingGradesPolicy(t *testing.T) {
	svc, repos, _ := setupStudentService()
	ctx := context.Background()
	repos.addCourses(1)
	repos.addStudent("s1", "Alice")
	_, _ = repos.records.Upsert(ctx, recordFor("s1", "C001", 0))
	repos.sysCfg.cfg.CountFailingGradesAsCompleted = true

	list, _, err := svc.List(ctx, &dto.StudentListRequest{})
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if list[0].Progress.CompletedSubjects != 1 {
		t.Errorf("开启策略后 0 分课程应计入完成，实际=%d", list[0].Progress.CompletedSubjects)
	}
}

func TestStudentService_GetDetail(t *testing.T) {
	svc, repos, _ := setupStudentService()
	ctx := context.Background()
	repos.addCourses(1)
	repos.addStudent("s1", "Alice")
	_, _ = repos.records.Upsert(ctx, recordFor("s1", "GONE 101", 2))

	detail, err := svc.GetDetail(ctx, "s1")
	if err != nil {
		t.Fatalf("GetDetail 应成功: %v", err)
	}
	if len(detail.Milestones) != eligibility.MilestoneCount {
		t.Errorf("应返回 %d 项材料，实际=%d", eligibility.MilestoneCount, len(detail.Milestones))
	}
	if len(detail.Records) != 1 || !detail.Records[0].Orphaned {
		t.Errorf("不在课程表中的记录应标记为孤立: %+v", detail.Records)
	}
	if detail.Progress.CompletedSubjects != 1 || detail.Progress.Percent != 0 {
		t.Errorf("孤立记录不应推高进度: %+v", detail.Progress)
	}

	if _, err := svc.GetDetail(ctx, "ghost"); !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("期望 ErrStudentNotFound，实际: %v", err)
	}
}

func TestStudentService_SendStatusReminder(t *testing.T) {
	svc, repos, _ := setupStudentService()
	ctx := context.Background()
	repos.addCourses(1)
	repos.addStudent("s1", "Alice")

	// 1. 材料缺失
	repos.milestones.set("s1", string(eligibility.CategoryFinancialClearance), "verified", false)
	repos.milestones.set("s1", string(eligibility.CategoryLibraryClearance), "missing", true)
	repos.milestones.set("s1", string(eligibility.CategoryTranscript), "pending", false)
	resp, err := svc.SendStatusReminder(ctx, "s1")
	if err != nil {
		t.Fatalf("SendStatusReminder 应成功: %v", err)
	}
	if resp.Template != ReminderMissingDocuments {
		t.Fatalf("期望 missing_documents，实际=%s", resp.Template)
	}
	if !strings.Contains(resp.Notification.Message, "Academic Internship, Project Defense.") {
		t.Errorf("应列出缺失材料（不含已放行项）: %s", resp.Notification.Message)
	}

	// 2. 材料齐全但学分不足
	clearAll(repos, "s1")
	resp, err = svc.SendStatusReminder(ctx, "s1")
	if err != nil {
		t.Fatalf("SendStatusReminder 应成功: %v", err)
	}
	if resp.Template != ReminderPendingCredits {
		t.Errorf("期望 pending_credits，实际=%s", resp.Template)
	}

	// 3. 全部完成
	_, _ = repos.records.Upsert(ctx, recordFor("s1", "C001", 3))
	resp, err = svc.SendStatusReminder(ctx, "s1")
	if err != nil {
		t.Fatalf("SendStatusReminder 应成功: %v", err)
	}
	if resp.Template != ReminderCleared || resp.Notification.Title != "Graduation Discovery: Officially Cleared" {
		t.Errorf("期望 cleared 模板: %+v", resp)
	}

	if n := len(repos.notifs.forUser("s1")); n != 3 {
		t.Errorf("应累计 3 条通知，实际=%d", n)
	}
}

func TestStudentService_SendStatusReports(t *testing.T) {
	svc, repos, _ := setupStudentService()
	ctx := context.Background()
	repos.addCourses(5)
	repos.addStudent("s1", "Alice")
	repos.addStudent("s2", "Bob")
	clearAll(repos, "s1")

	res, err := svc.SendStatusReports(ctx, nil)
	if err != nil {
		t.Fatalf("SendStatusReports 应成功: %v", err)
	}
	if res.Total != 2 || res.Succeeded != 2 {
		t.Errorf("应发送给全部学生: %+v", res)
	}
	got := repos.notifs.forUser("s1")
	if len(got) != 1 || got[0].Message != "Your current graduation progress is at 50%. Keep it up!" {
		t.Errorf("进度报告内容不正确: %+v", got)
	}

	res, _ = svc.SendStatusReports(ctx, []string{"s2", "ghost"})
	if res.Succeeded != 1 || len(res.Failures) != 1 || res.Failures[0].StudentID != "ghost" {
		t.Errorf("不存在的学生应计入失败: %+v", res)
	}
}

func TestStudentService_Delete(t *testing.T) {
	svc, repos, storage := setupStudentService()
	ctx := context.Background()
	repos.addStudent("s1", "Alice")

	rel, _ := storage.Save(strings.NewReader("%PDF"), "fees.pdf", "s1")
	m, _ := repos.milestones.Get(ctx, "s1", string(eligibility.CategoryFinancialClearance))
	m.FilePath = &rel
	_ = repos.milestones.Update(ctx, m)

	if err := svc.Delete(ctx, "s1", "admin-1"); err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}
	if _, err := repos.users.GetByID(ctx, "s1"); err == nil {
		t.Error("学生应被删除")
	}
	if storage.count() != 0 {
		t.Error("学生上传的文件应被清理")
	}
	if err := svc.Delete(ctx, "s1", "admin-1"); !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("重复删除期望 ErrStudentNotFound，实际: %v", err)
	}
}
