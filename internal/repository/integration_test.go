//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	pkgerrors "degreefi/backend/pkg/errors"

	"degreefi/backend/internal/eligibility"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
	"degreefi/backend/pkg/database"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=degreefi password=degreefi_password dbname=degreefi_test sslmode=disable TimeZone=UTC"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	// 使用正式迁移脚本建表，保证约束与生产一致
	sqlDB, err := testDB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 sql.DB 失败: %v\n", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "执行迁移失败: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Exit(code)
}

// setupStudent 创建一名带 5 项材料的学生并返回清理函数
func setupStudent(t *testing.T) (user *model.User, cleanup func()) {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewRepository(testDB)

	reg := fmt.Sprintf("BIT/%d/T", time.Now().UnixNano())
	user = &model.User{
		Name:         "Test Student",
		Email:        fmt.Sprintf("student%d@students.edu", time.Now().UnixNano()),
		RegNumber:    &reg,
		PasswordHash: "$2a$10$placeholder",
		Role:         model.RoleStudent,
	}
	if err := repo.User.Create(ctx, user); err != nil {
		t.Fatalf("创建学生失败: %v", err)
	}

	var ms []model.Milestone
	for _, c := range eligibility.Categories() {
		ms = append(ms, model.Milestone{StudentID: user.UserID, Category: string(c), Status: "missing"})
	}
	if err := repo.Milestone.CreateBatch(ctx, ms); err != nil {
		t.Fatalf("创建材料失败: %v", err)
	}

	cleanup = func() {
		testDB.Where("user_id = ?", user.UserID).Delete(&model.User{})
	}
	return
}

// ═══════════════════════════════════════════════════════════
// Test: Transaction
// ═══════════════════════════════════════════════════════════

func TestTransaction_Rollback(t *testing.T) {
	student, cleanup := setupStudent(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	tx, err := repo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx 失败: %v", err)
	}
	txRepo := repo.WithTx(tx)

	n := &model.Notification{UserID: student.UserID, Title: "t", Message: "m"}
	if err := txRepo.Notification.Create(ctx, n); err != nil {
		tx.Rollback()
		t.Fatalf("事务内创建通知失败: %v", err)
	}

	tx.Rollback()

	if _, err := repo.Notification.GetByID(ctx, n.NotificationID); err == nil {
		t.Fatal("期望回滚后查不到通知，但实际查到了")
	}
}

func TestTransaction_HelperCommit(t *testing.T) {
	student, cleanup := setupStudent(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	var created *model.Notification
	err := repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		created = &model.Notification{UserID: student.UserID, Title: "t", Message: "m"}
		return txRepo.Notification.Create(ctx, created)
	})
	if err != nil {
		t.Fatalf("Transaction 失败: %v", err)
	}

	found, err := repo.Notification.GetByID(ctx, created.NotificationID)
	if err != nil {
		t.Fatalf("提交后查询通知失败: %v", err)
	}
	if found.Title != "t" {
		t.Errorf("标题不匹配: %s", found.Title)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Academic Records
// ═══════════════════════════════════════════════════════════

func TestRecord_UpsertKeepsOneRowPerCourse(t *testing.T) {
	student, cleanup := setupStudent(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	first := &model.AcademicRecord{StudentID: student.UserID, CourseCode: "BIT 1101", CourseName: "Computer Architecture", Grade: 2}
	updated, err := repo.Record.Upsert(ctx, first)
	if err != nil || updated {
		t.Fatalf("首次录入: updated=%v err=%v", updated, err)
	}

	second := &model.AcademicRecord{StudentID: student.UserID, CourseCode: "BIT 1101", CourseName: "Computer Architecture", Grade: 4}
	updated, err = repo.Record.Upsert(ctx, second)
	if err != nil || !updated {
		t.Fatalf("重复录入应覆盖: updated=%v err=%v", updated, err)
	}

	recs, err := repo.Record.ListByStudent(ctx, student.UserID)
	if err != nil {
		t.Fatalf("查询成绩失败: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("期望 1 条记录，实际=%d", len(recs))
	}
	if recs[0].Grade != 4 {
		t.Errorf("期望成绩被覆盖为 4，实际=%v", recs[0].Grade)
	}
}

func TestRecord_DeleteScopedToStudent(t *testing.T) {
	student, cleanup := setupStudent(t)
	defer cleanup()
	other, cleanupOther := setupStudent(t)
	defer cleanupOther()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	rec := &model.AcademicRecord{StudentID: student.UserID, CourseCode: "BIT 1102", CourseName: "Intro", Grade: 3}
	if _, err := repo.Record.Upsert(ctx, rec); err != nil {
		t.Fatalf("录入失败: %v", err)
	}

	if err := repo.Record.Delete(ctx, other.UserID, rec.RecordID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("删除他人记录应返回 ErrRecordNotFound，实际: %v", err)
	}
	if err := repo.Record.Delete(ctx, student.UserID, rec.RecordID); err != nil {
		t.Fatalf("删除本人记录失败: %v", err)
	}
}

func TestUser_DeleteCascades(t *testing.T) {
	student, cleanup := setupStudent(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	rec := &model.AcademicRecord{StudentID: student.UserID, CourseCode: "BIT 1103", CourseName: "X", Grade: 1}
	if _, err := repo.Record.Upsert(ctx, rec); err != nil {
		t.Fatalf("录入失败: %v", err)
	}

	if err := repo.User.Delete(ctx, student.UserID); err != nil {
		t.Fatalf("删除学生失败: %v", err)
	}

	recs, _ := repo.Record.ListByStudent(ctx, student.UserID)
	ms, _ := repo.Milestone.ListByStudent(ctx, student.UserID)
	if len(recs) != 0 || len(ms) != 0 {
		t.Errorf("期望级联删除，实际剩余 records=%d milestones=%d", len(recs), len(ms))
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Milestone conditional update & optimistic lock
// ═══════════════════════════════════════════════════════════

func TestMilestone_MarkPendingOnlyOnce(t *testing.T) {
	student, cleanup := setupStudent(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	const workers = 5
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("%s/%d.pdf", student.UserID, i)
			errs[i] = repo.Milestone.MarkPending(ctx, &model.Milestone{
				StudentID: student.UserID,
				Category:  string(eligibility.CategoryFinancialClearance),
				FilePath:  &path,
			})
		}(i)
	}
	wg.Wait()

	success := 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, pkgerrors.ErrConditionNotMet):
		default:
			t.Errorf("非预期错误: %v", err)
		}
	}
	if success != 1 {
		t.Errorf("期望恰好 1 次上传成功，实际=%d", success)
	}

	m, err := repo.Milestone.Get(ctx, student.UserID, string(eligibility.CategoryFinancialClearance))
	if err != nil {
		t.Fatalf("查询材料失败: %v", err)
	}
	if m.Status != "pending" || m.Version != 2 {
		t.Errorf("期望 pending/version=2，实际 %s/%d", m.Status, m.Version)
	}
}

func TestMilestone_MarkPendingRejectedUnderManualClearance(t *testing.T) {
	student, cleanup := setupStudent(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	cat := string(eligibility.CategoryLibraryClearance)
	m, err := repo.Milestone.Get(ctx, student.UserID, cat)
	if err != nil {
		t.Fatalf("查询材料失败: %v", err)
	}
	m.ManualClearance = true
	if err := repo.Milestone.Update(ctx, m); err != nil {
		t.Fatalf("开启人工放行失败: %v", err)
	}

	err = repo.Milestone.MarkPending(ctx, &model.Milestone{StudentID: student.UserID, Category: cat})
	if !errors.Is(err, pkgerrors.ErrConditionNotMet) {
		t.Errorf("人工放行中上传应被拒绝，实际: %v", err)
	}
}

func TestMilestone_OptimisticLockConflict(t *testing.T) {
	student, cleanup := setupStudent(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	cat := string(eligibility.CategoryTranscript)
	a, _ := repo.Milestone.Get(ctx, student.UserID, cat)
	b, _ := repo.Milestone.Get(ctx, student.UserID, cat)

	a.Status = "verified"
	if err := repo.Milestone.Update(ctx, a); err != nil {
		t.Fatalf("第一次更新应成功: %v", err)
	}

	b.ManualClearance = true
	if err := repo.Milestone.Update(ctx, b); !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("期望 ErrOptimisticLock，实际: %v", err)
	}
}

func TestUser_OptimisticLockConflict(t *testing.T) {
	student, cleanup := setupStudent(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	u1, _ := repo.User.GetByID(ctx, student.UserID)
	u2, _ := repo.User.GetByID(ctx, student.UserID)

	u1.Name = "Renamed Once"
	if err := repo.User.Update(ctx, u1); err != nil {
		t.Fatalf("第一次更新应成功: %v", err)
	}
	u2.Name = "Renamed Twice"
	if err := repo.User.Update(ctx, u2); !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("期望 ErrOptimisticLock，实际: %v", err)
	}
}

func TestUser_EmailUniqueCaseInsensitive(t *testing.T) {
	student, cleanup := setupStudent(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	dup := &model.User{
		Name:         "Dup",
		Email:        strings.ToUpper(student.Email),
		PasswordHash: "x",
		Role:         model.RoleStudent,
	}
	err := repo.User.Create(ctx, dup)
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		if err == nil {
			testDB.Where("user_id = ?", dup.UserID).Delete(&model.User{})
		}
		t.Errorf("期望大小写不同的重复邮箱被拒绝，实际: %v", err)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Curriculum
// ═══════════════════════════════════════════════════════════

func TestCourse_ListNotRecordedBy(t *testing.T) {
	student, cleanup := setupStudent(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	all, err := repo.Course.List(ctx)
	if err != nil || len(all) == 0 {
		t.Fatalf("课程表为空或查询失败: %v", err)
	}

	rec := &model.AcademicRecord{StudentID: student.UserID, CourseCode: all[0].Code, CourseName: all[0].Name, Grade: 3}
	if _, err := repo.Record.Upsert(ctx, rec); err != nil {
		t.Fatalf("录入失败: %v", err)
	}

	avail, err := repo.Course.ListNotRecordedBy(ctx, student.UserID)
	if err != nil {
		t.Fatalf("查询可选课程失败: %v", err)
	}
	if len(avail) != len(all)-1 {
		t.Errorf("期望 %d 门可选课程，实际=%d", len(all)-1, len(avail))
	}
	for _, c := range avail {
		if c.Code == all[0].Code {
			t.Errorf("已录入课程 %s 不应出现在可选列表", c.Code)
		}
	}
}
