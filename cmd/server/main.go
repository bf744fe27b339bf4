package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"degreefi/backend/config"
	"degreefi/backend/internal/api/handler"
	"degreefi/backend/internal/api/router"
	"degreefi/backend/internal/repository"
	"degreefi/backend/internal/service"
	"degreefi/backend/pkg/database"
	"degreefi/backend/pkg/filestorage"
	"degreefi/backend/pkg/jwt"
	applogger "degreefi/backend/pkg/logger"
	"degreefi/backend/pkg/mailer"
	"degreefi/backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

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

	if err := run(cfg, logger); err != nil {
		logger.Error("服务异常退出", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Degreefi 启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("self_register", cfg.Feature.AllowSelfRegister),
	)

	// ── 基础设施 ──
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, logger); err != nil {
		return err
	}

	// Redis 可选：不可用时关闭登出黑名单与限流
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 不可用，登出黑名单与接口限流将关闭", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
	}

	storage, err := filestorage.NewLocalStorage(cfg.Storage.UploadDir, cfg.Storage.MaxUploadBytes, logger)
	if err != nil {
		return err
	}

	var mail mailer.Mailer
	if cfg.Feature.EmailNotifications {
		mail = mailer.New(&cfg.Mail, logger)
		logger.Info("通知邮件抄送已开启", zap.String("provider", cfg.Mail.Provider))
	}

	// ── 依赖注入: Repository → Service → Handler ──
	jwtMgr := jwt.NewManager(&cfg.Auth)
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, jwtMgr, rdb, storage, mail, logger)
	h := handler.NewHandler(cfg, svc)
	engine := router.Setup(cfg, h, jwtMgr, rdb, db, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second, // 材料上传
		WriteTimeout:      60 * time.Second, // 审计表导出
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		logger.Info("收到关闭信号，开始优雅关闭...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭异常: %w", err)
	}
	if err := svc.Close(shutdownCtx); err != nil {
		logger.Warn("等待邮件抄送超时，部分邮件可能未发出", zap.Error(err))
	}

	logger.Info("服务器已关闭")
	return nil
}
