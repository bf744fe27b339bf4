package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/eligibility"
	"degreefi/backend/pkg/filestorage"
)

const fin = string(eligibility.CategoryFinancialClearance)

func setupMilestoneService(t *testing.T) (MilestoneService, *testRepos, *mockStorage) {
	t.Helper()
	repos := newTestRepos()
	repos.addStudent("s1", "Jane")
	storage := newMockStorage()
	notif := NewNotificationService(repos.repo, nil, NotificationOptions{}, zap.NewNop())
	svc := NewMilestoneService(repos.repo, storage, notif, []string{"pdf", ".JPG", "png"}, zap.NewNop())
	return svc, repos, storage
}

func upload(svc MilestoneService, category, filename string) (*dto.MilestoneResponse, error) {
	return svc.UploadDocument(context.Background(), "s1", category, strings.NewReader("%PDF"), filename)
}

func TestMilestoneService_List_FixedOrder(t *testing.T) {
	svc, _, _ := setupMilestoneService(t)
	list, err := svc.List(context.Background(), "s1")
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	cats := eligibility.Categories()
	if len(list) != len(cats) {
		t.Fatalf("期望 %d 项，实际=%d", len(cats), len(list))
	}
	for i, c := range cats {
		if list[i].Category != string(c) {
			t.Errorf("第 %d 项期望 %s，实际=%s", i, c, list[i].Category)
		}
	}
}

func TestMilestoneService_Upload(t *testing.T) {
	svc, repos, storage := setupMilestoneService(t)

	resp, err := upload(svc, "financial clearance", "fees.PDF")
	if err != nil {
		t.Fatalf("UploadDocument 应成功: %v", err)
	}
	if resp.Status != "pending" || !resp.HasDocument || resp.OriginalFilename != "fees.PDF" {
		t.Errorf("上传后应为 pending 且有文件: %+v", resp)
	}
	if storage.count() != 1 {
		t.Errorf("应保存 1 个文件，实际=%d", storage.count())
	}

	if _, err := upload(svc, fin, "again.pdf"); !errors.Is(err, ErrCategoryAlreadyFilled) {
		t.Errorf("重复上传期望 ErrCategoryAlreadyFilled，实际: %v", err)
	}
	if storage.count() != 1 {
		t.Error("被拒绝的上传不应留下文件")
	}

	repos.milestones.set("s1", string(eligibility.CategoryTranscript), "missing", true)
	if _, err := upload(svc, string(eligibility.CategoryTranscript), "t.pdf"); !errors.Is(err, ErrCategoryCleared) {
		t.Errorf("人工放行后上传期望 ErrCategoryCleared，实际: %v", err)
	}
}

func TestMilestoneService_Upload_Rejects(t *testing.T) {
	svc, _, storage := setupMilestoneService(t)

	if _, err := upload(svc, "Gym Membership", "a.pdf"); !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("期望 ErrUnknownCategory，实际: %v", err)
	}
	if _, err := upload(svc, fin, "virus.exe"); !errors.Is(err, ErrFileTypeNotAllowed) {
		t.Errorf("期望 ErrFileTypeNotAllowed，实际: %v", err)
	}
	if _, err := svc.UploadDocument(context.Background(), "ghost", fin, strings.NewReader("x"), "a.pdf"); !errors.Is(err, ErrStudentNotFound) {
		t.Errorf("期望 ErrStudentNotFound，实际: %v", err)
	}

	storage.saveErr = filestorage.ErrTooLarge
	if _, err := upload(svc, fin, "big.pdf"); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("期望 ErrFileTooLarge，实际: %v", err)
	}
}

func TestMilestoneService_Upload_ConcurrentOnlyOneWins(t *testing.T) {
	svc, _, storage := setupMilestoneService(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = upload(svc, fin, "fees.pdf")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrCategoryAlreadyFilled):
			t.Errorf("落败方期望 ErrCategoryAlreadyFilled，实际: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("只能有 1 个上传成功，实际=%d", ok)
	}
	if storage.count() != 1 {
		t.Errorf("落败方文件应被清理，剩余=%d", storage.count())
	}
}

func TestMilestoneService_RemoveDocument(t *testing.T) {
	svc, repos, storage := setupMilestoneService(t)
	ctx := context.Background()

	if err := svc.RemoveDocument(ctx, "s1", fin); !errors.Is(err, ErrNoDocument) {
		t.Errorf("未上传时撤回期望 ErrNoDocument，实际: %v", err)
	}

	if _, err := upload(svc, fin, "fees.pdf"); err != nil {
		t.Fatalf("上传失败: %v", err)
	}
	if err := svc.RemoveDocument(ctx, "s1", fin); err != nil {
		t.Fatalf("RemoveDocument 应成功: %v", err)
	}
	m, _ := repos.milestones.Get(ctx, "s1", fin)
	if m.Status != "missing" || m.FilePath != nil {
		t.Errorf("撤回后应回到 missing 且清空文件: %+v", m)
	}
	if storage.count() != 0 {
		t.Error("撤回后文件应被删除")
	}

	repos.milestones.set("s1", fin, "verified", false)
	if err := svc.RemoveDocument(ctx, "s1", fin); !errors.Is(err, ErrMilestoneVerified) {
		t.Errorf("已通过材料撤回期望 ErrMilestoneVerified，实际: %v", err)
	}
}

func TestMilestoneService_SetStatus(t *testing.T) {
	svc, repos, _ := setupMilestoneService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		from   string
		to     string
		want   error
		notify bool
	}{
		{"管理员不能置为 pending", "missing", "pending", ErrInvalidTransition, false},
		{"pending → verified", "pending", "verified", nil, true},
		{"missing → verified", "missing", "verified", nil, true},
		{"verified → pending 不允许", "verified", "pending", ErrInvalidTransition, false},
		{"pending → missing 不允许", "pending", "missing", ErrInvalidTransition, false},
		{"相同状态为空操作", "verified", "verified", nil, false},
		{"未知状态", "pending", "approved", ErrUnknownStatus, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos.milestones.set("s1", fin, tt.from, false)
			before := len(repos.notifs.forUser("s1"))

			resp, err := svc.SetStatus(ctx, "s1", &dto.SetMilestoneStatusRequest{Category: fin, Status: tt.to}, "admin-1")
			if !errors.Is(err, tt.want) {
				t.Fatalf("期望 %v，实际: %v", tt.want, err)
			}
			if err == nil && resp.Status != tt.to {
				t.Errorf("状态期望 %s，实际=%s", tt.to, resp.Status)
			}
			got := len(repos.notifs.forUser("s1")) - before
			if tt.notify && got != 1 {
				t.Errorf("审核通过应发送 1 条通知，实际=%d", got)
			}
			if !tt.notify && got != 0 {
				t.Errorf("不应发送通知，实际=%d", got)
			}
		})
	}
}

func TestMilestoneService_SetStatus_PendingKeepsUploadOpen(t *testing.T) {
	svc, repos, _ := setupMilestoneService(t)
	ctx := context.Background()
	repos.milestones.set("s1", fin, "missing", false)

	_, err := svc.SetStatus(ctx, "s1", &dto.SetMilestoneStatusRequest{Category: fin, Status: "pending"}, "admin-1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("管理员置为 pending 应被拒绝，实际: %v", err)
	}

	resp, err := svc.UploadDocument(ctx, "s1", fin, strings.NewReader("%PDF-1.4 data"), "proof.pdf")
	if err != nil {
		t.Fatalf("学生随后上传应成功: %v", err)
	}
	if resp.Status != "pending" || !resp.HasDocument {
		t.Errorf("上传后应为 pending 且有文件，实际=%+v", resp)
	}
}

func TestMilestoneService_SetStatus_VerifiedNotification(t *testing.T) {
	svc, repos, _ := setupMilestoneService(t)
	ctx := context.Background()
	repos.milestones.set("s1", fin, "pending", false)

	resp, err := svc.SetStatus(ctx, "s1", &dto.SetMilestoneStatusRequest{Category: fin, Status: "verified"}, "admin-1")
	if err != nil {
		t.Fatalf("SetStatus 应成功: %v", err)
	}
	if resp.VerifiedAt == "" {
		t.Error("审核通过应记录时间")
	}
	got := repos.notifs.forUser("s1")
	if len(got) != 1 || got[0].Title != "Document Verified" || got[0].Message != "Your Financial Clearance has been verified by the registrar." {
		t.Errorf("通知内容不正确: %+v", got)
	}
}

func TestMilestoneService_SetStatus_NotificationDisabled(t *testing.T) {
	svc, repos, _ := setupMilestoneService(t)
	repos.sysCfg.cfg.NotifyOnVerification = false
	repos.milestones.set("s1", fin, "pending", false)

	if _, err := svc.SetStatus(context.Background(), "s1", &dto.SetMilestoneStatusRequest{Category: fin, Status: "verified"}, "admin-1"); err != nil {
		t.Fatalf("SetStatus 应成功: %v", err)
	}
	if n := len(repos.notifs.forUser("s1")); n != 0 {
		t.Errorf("关闭审核通知后不应发送，实际=%d", n)
	}
}

func TestMilestoneService_ToggleManualClearance(t *testing.T) {
	svc, repos, _ := setupMilestoneService(t)
	ctx := context.Background()
	lib := string(eligibility.CategoryLibraryClearance)

	resp, err := svc.ToggleManualClearance(ctx, "s1", &dto.ToggleManualClearanceRequest{Category: lib, Enabled: boolPtr(true)}, "admin-1")
	if err != nil {
		t.Fatalf("ToggleManualClearance 应成功: %v", err)
	}
	if resp.Status != "missing" || resp.EffectiveStatus != "verified" {
		t.Errorf("人工放行不改底层状态，生效状态应为 verified: %+v", resp)
	}
	got := repos.notifs.forUser("s1")
	if len(got) != 1 || got[0].Message != "Your Library Clearance requirement has been cleared by the registrar." {
		t.Errorf("放行通知不正确: %+v", got)
	}

	// 重复开启为空操作
	if _, err := svc.ToggleManualClearance(ctx, "s1", &dto.ToggleManualClearanceRequest{Category: lib, Enabled: boolPtr(true)}, "admin-1"); err != nil {
		t.Fatalf("重复开启应成功: %v", err)
	}
	if len(repos.notifs.forUser("s1")) != 1 {
		t.Error("重复开启不应再次通知")
	}

	resp, err = svc.ToggleManualClearance(ctx, "s1", &dto.ToggleManualClearanceRequest{Category: lib, Enabled: boolPtr(false)}, "admin-1")
	if err != nil {
		t.Fatalf("关闭人工放行应成功: %v", err)
	}
	if resp.EffectiveStatus != "missing" {
		t.Errorf("关闭后应回到底层状态，实际=%s", resp.EffectiveStatus)
	}
}

func TestMilestoneService_DocumentPath(t *testing.T) {
	svc, _, _ := setupMilestoneService(t)
	ctx := context.Background()

	if _, _, err := svc.DocumentPath(ctx, "s1", fin); !errors.Is(err, ErrNoDocument) {
		t.Errorf("期望 ErrNoDocument，实际: %v", err)
	}
	if _, err := upload(svc, fin, "fees.pdf"); err != nil {
		t.Fatalf("上传失败: %v", err)
	}
	full, name, err := svc.DocumentPath(ctx, "s1", fin)
	if err != nil {
		t.Fatalf("DocumentPath 应成功: %v", err)
	}
	if !strings.HasPrefix(full, "/mock/s1/") || name != "fees.pdf" {
		t.Errorf("路径或文件名不正确: %s %s", full, name)
	}
}
