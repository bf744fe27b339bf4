package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"degreefi/backend/internal/model"
	"degreefi/backend/internal/service"
)

var (
	readPasswordFunc = term.ReadPassword // 测试中替换
	readFileFunc     = os.ReadFile
	openFileFunc     = func(name string) (io.ReadCloser, error) { return os.Open(name) }

	errHelp       = errors.New("help provided")
	errNotAnAdmin = errors.New("该账号不是管理员")
)

// userFinder 按邮箱查找操作人，repository.UserRepository 满足
type userFinder interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type commandLine struct {
	migrate    func(command string, args ...string) error
	auth       service.AuthService
	curriculum service.CurriculumService
	importer   service.ImportService
	users      userFinder
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate up|down|version|steps N|force N           - 数据库迁移")
	fmt.Fprintln(cli.out, "  create-admin -name NAME -email EMAIL               - 创建管理员（随后输入密码）")
	fmt.Fprintln(cli.out, "  seed-curriculum -file courses.xlsx -admin EMAIL    - 从 Excel 导入课程表")
	fmt.Fprintln(cli.out, "  import-legacy -file backup.json -admin EMAIL       - 导入旧版 JSON 数据")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)

	case "create-admin":
		fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
		fs.SetOutput(cli.out)
		name := fs.String("name", "", "管理员姓名")
		email := fs.String("email", "", "登录邮箱；密码随后提示输入")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *name == "" || *email == "" {
			fs.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			fs.Usage()
			return errHelp
		}
		user, err := cli.auth.CreateAdmin(ctx, *name, *email, string(pwd))
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "管理员已创建: %s <%s>\n", user.Name, user.Email)
		return nil

	case "seed-curriculum":
		fs := flag.NewFlagSet("seed-curriculum", flag.ContinueOnError)
		fs.SetOutput(cli.out)
		file := fs.String("file", "", "课程表 Excel（表头含 code、name 列）")
		admin := fs.String("admin", "", "记录为操作人的管理员邮箱")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *file == "" || *admin == "" {
			fs.Usage()
			return errHelp
		}
		return cli.seedCurriculum(ctx, *file, *admin)

	case "import-legacy":
		fs := flag.NewFlagSet("import-legacy", flag.ContinueOnError)
		fs.SetOutput(cli.out)
		file := fs.String("file", "", "旧版导出的 JSON 文件")
		admin := fs.String("admin", "", "记录为操作人的管理员邮箱")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *file == "" || *admin == "" {
			fs.Usage()
			return errHelp
		}
		return cli.importLegacy(ctx, *file, *admin)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) resolveAdmin(ctx context.Context, email string) (string, error) {
	user, err := cli.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", fmt.Errorf("查找管理员 %s 失败: %w", email, err)
	}
	if user.Role != model.RoleAdmin {
		return "", errNotAnAdmin
	}
	return user.UserID, nil
}

func (cli *commandLine) seedCurriculum(ctx context.Context, path, adminEmail string) error {
	callerID, err := cli.resolveAdmin(ctx, adminEmail)
	if err != nil {
		return err
	}

	f, err := openFileFunc(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := cli.curriculum.ParseImportFile(f)
	if err != nil {
		return err
	}
	result, err := cli.curriculum.ImportCourses(ctx, rows, callerID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "课程导入完成: 共 %d 行，成功 %d，失败 %d\n", result.Total, result.Success, result.Failed)
	for _, e := range result.Errors {
		fmt.Fprintf(cli.out, "  第 %d 行: %s\n", e.Row, e.Reason)
	}
	return nil
}

func (cli *commandLine) importLegacy(ctx context.Context, path, adminEmail string) error {
	callerID, err := cli.resolveAdmin(ctx, adminEmail)
	if err != nil {
		return err
	}

	raw, err := readFileFunc(path)
	if err != nil {
		return err
	}
	result, err := cli.importer.Import(ctx, raw, callerID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "旧数据导入完成 (v%d): 学生 %d，课程 %d，成绩 %d\n",
		result.SourceVersion, result.StudentsImported, result.CoursesImported, result.RecordsImported)
	if len(result.Skipped) > 0 {
		fmt.Fprintf(cli.out, "已存在而跳过: %s\n", strings.Join(result.Skipped, ", "))
	}
	return nil
}
