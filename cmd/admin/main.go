// Command admin 运维命令行：数据库迁移、创建管理员、课程表与旧数据导入。
package main

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"degreefi/backend/config"
	"degreefi/backend/internal/repository"
	"degreefi/backend/internal/service"
	"degreefi/backend/pkg/database"
	"degreefi/backend/pkg/filestorage"
	"degreefi/backend/pkg/jwt"
	applogger "degreefi/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("DEGREEFI_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	defer sqlDB.Close()

	storage, err := filestorage.NewLocalStorage(cfg.Storage.UploadDir, cfg.Storage.MaxUploadBytes, logger)
	if err != nil {
		logger.Fatal("初始化材料存储失败", zap.Error(err))
	}

	// 命令行不需要 Redis 与邮件
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, jwt.NewManager(&cfg.Auth), nil, storage, nil, logger)

	cli := &commandLine{
		migrate: func(command string, args ...string) error {
			return database.Migrate(sqlDB, logger, command, args...)
		},
		auth:       svc.Auth,
		curriculum: svc.Curriculum,
		importer:   svc.Import,
		users:      repo.User,
		out:        os.Stdout,
	}

	if err := cli.run(os.Args); err != nil {
		if !errors.Is(err, errHelp) {
			fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		}
		os.Exit(1)
	}
}
