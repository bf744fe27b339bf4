package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"gorm.io/gorm"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/service"
)

// ── fakes ──

type fakeAuth struct {
	service.AuthService
	gotName, gotEmail, gotPwd string
	err                       error
}

func (f *fakeAuth) CreateAdmin(_ context.Context, name, email, password string) (*dto.UserResponse, error) {
	f.gotName, f.gotEmail, f.gotPwd = name, email, password
	if f.err != nil {
		return nil, f.err
	}
	return &dto.UserResponse{ID: "admin-1", Name: name, Email: email, Role: model.RoleAdmin}, nil
}

type fakeCurriculum struct {
	service.CurriculumService
	parsed   string
	callerID string
}

func (f *fakeCurriculum) ParseImportFile(r io.Reader) ([]service.ImportCourseRow, error) {
	b, _ := io.ReadAll(r)
	f.parsed = string(b)
	return []service.ImportCourseRow{{Row: 2, Code: "BIT 2201", Name: "Computer Programming Methodology"}}, nil
}

func (f *fakeCurriculum) ImportCourses(_ context.Context, rows []service.ImportCourseRow, callerID string) (*dto.ImportCoursesResponse, error) {
	f.callerID = callerID
	return &dto.ImportCoursesResponse{Total: len(rows), Success: len(rows)}, nil
}

type fakeImporter struct {
	raw      []byte
	callerID string
}

func (f *fakeImporter) Import(_ context.Context, raw []byte, callerID string) (*dto.LegacyImportResponse, error) {
	f.raw, f.callerID = raw, callerID
	return &dto.LegacyImportResponse{SourceVersion: 2, StudentsImported: 1, Skipped: []string{"old@students.edu"}}, nil
}

type fakeUsers map[string]*model.User

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if u, ok := f[email]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type cliTest struct {
	name    string
	args    []string // 不含程序名
	wantErr error
	pwd     string
}

func setup() (*commandLine, *fakeAuth, *fakeCurriculum, *fakeImporter, *[]string, *bytes.Buffer) {
	var migrated []string
	auth := &fakeAuth{}
	curr := &fakeCurriculum{}
	imp := &fakeImporter{}
	out := &bytes.Buffer{}

	cli := &commandLine{
		migrate: func(command string, args ...string) error {
			migrated = append(migrated, strings.Join(append([]string{command}, args...), " "))
			return nil
		},
		auth:       auth,
		curriculum: curr,
		importer:   imp,
		users: fakeUsers{
			"registrar@degreefi.edu": {UserID: "admin-uuid", Role: model.RoleAdmin},
			"jane@students.edu":      {UserID: "student-uuid", Role: model.RoleStudent},
		},
		out: out,
	}
	return cli, auth, curr, imp, &migrated, out
}

func runCases(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			readPasswordFunc = func(int) ([]byte, error) { return []byte(tt.pwd), nil }
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("cli.run() 意外错误: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("cli.run() error = %v, 期望 %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _, _, _, _, out := setup()
	runCases(t, cli, []cliTest{
		{name: "无子命令", wantErr: errHelp},
		{name: "未知子命令", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate 缺参数", args: []string{"migrate"}, wantErr: errHelp},
	})
	if !strings.Contains(out.String(), "create-admin") {
		t.Error("用法说明应列出 create-admin")
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _, _, migrated, _ := setup()
	runCases(t, cli, []cliTest{
		{name: "up", args: []string{"migrate", "up"}},
		{name: "steps", args: []string{"migrate", "steps", "-1"}},
	})
	want := []string{"up", "steps -1"}
	if strings.Join(*migrated, "|") != strings.Join(want, "|") {
		t.Errorf("迁移调用 = %v, 期望 %v", *migrated, want)
	}
}

func Test_commandLine_createAdmin(t *testing.T) {
	cli, auth, _, _, _, out := setup()
	runCases(t, cli, []cliTest{
		{name: "缺少邮箱", args: []string{"create-admin", "-name", "Registrar"}, wantErr: errHelp},
		{name: "空密码", args: []string{"create-admin", "-name", "Registrar", "-email", "r@degreefi.edu"}, wantErr: errHelp},
		{name: "创建成功", args: []string{"create-admin", "-name", "Registrar", "-email", "r@degreefi.edu"}, pwd: "S3cret!pass"},
	})
	if auth.gotPwd != "S3cret!pass" || auth.gotEmail != "r@degreefi.edu" {
		t.Errorf("CreateAdmin 参数错误: %q %q", auth.gotEmail, auth.gotPwd)
	}
	if !strings.Contains(out.String(), "管理员已创建") {
		t.Errorf("缺少成功提示: %s", out.String())
	}

	auth.err = service.ErrEmailTaken
	runCases(t, cli, []cliTest{
		{name: "邮箱已存在", args: []string{"create-admin", "-name", "Registrar", "-email", "r@degreefi.edu"}, pwd: "x", wantErr: service.ErrEmailTaken},
	})
}

func Test_commandLine_seedCurriculum(t *testing.T) {
	cli, _, curr, _, _, out := setup()
	openFileFunc = func(name string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("xlsx:" + name)), nil
	}

	runCases(t, cli, []cliTest{
		{name: "缺少文件", args: []string{"seed-curriculum", "-admin", "registrar@degreefi.edu"}, wantErr: errHelp},
		{name: "非管理员", args: []string{"seed-curriculum", "-file", "c.xlsx", "-admin", "jane@students.edu"}, wantErr: errNotAnAdmin},
		{name: "管理员不存在", args: []string{"seed-curriculum", "-file", "c.xlsx", "-admin", "ghost@degreefi.edu"}, wantErr: gorm.ErrRecordNotFound},
		{name: "导入成功", args: []string{"seed-curriculum", "-file", "c.xlsx", "-admin", "Registrar@Degreefi.edu"}},
	})
	if curr.parsed != "xlsx:c.xlsx" {
		t.Errorf("未读取指定文件: %q", curr.parsed)
	}
	if curr.callerID != "admin-uuid" {
		t.Errorf("操作人应为管理员 ID, got %q", curr.callerID)
	}
	if !strings.Contains(out.String(), "成功 1") {
		t.Errorf("缺少导入统计: %s", out.String())
	}
}

func Test_commandLine_importLegacy(t *testing.T) {
	cli, _, _, imp, _, out := setup()
	readFileFunc = func(string) ([]byte, error) { return []byte(`{"version":2}`), nil }

	runCases(t, cli, []cliTest{
		{name: "缺少管理员", args: []string{"import-legacy", "-file", "b.json"}, wantErr: errHelp},
		{name: "导入成功", args: []string{"import-legacy", "-file", "b.json", "-admin", "registrar@degreefi.edu"}},
	})
	if string(imp.raw) != `{"version":2}` || imp.callerID != "admin-uuid" {
		t.Errorf("Import 参数错误: %s %q", imp.raw, imp.callerID)
	}
	if !strings.Contains(out.String(), "old@students.edu") {
		t.Errorf("应列出跳过的账号: %s", out.String())
	}
}
