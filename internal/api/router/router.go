package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"degreefi/backend/config"
	"degreefi/backend/internal/api/handler"
	"degreefi/backend/internal/api/middleware"
	"degreefi/backend/internal/model"
	"degreefi/backend/pkg/jwt"
	"degreefi/backend/pkg/redis"
)

// 旧数据导出含 base64 材料，单独放宽
const legacyImportMaxBytes = 64 << 20

// Setup 初始化并返回 Gin 路由引擎；rdb、db 可为 nil
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	handler.RegisterValidators()

	// 避免 nil *redis.Client 被包装成非 nil 接口
	var (
		blacklist middleware.Blacklist
		limiter   middleware.Limiter
	)
	if rdb != nil {
		blacklist = rdb
		limiter = rdb
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders(cfg.Auth.Cookie.Secure))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes, map[string]int64{
		"/api/v1/student/milestones/upload": cfg.Storage.MaxUploadBytes + 1<<20,
		"/api/v1/curriculum/import":         cfg.Storage.MaxUploadBytes + 1<<20,
		"/api/v1/admin/import/legacy":       legacyImportMaxBytes,
	}))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			sqlDB, err := db.DB()
			if err != nil || sqlDB.PingContext(ctx) != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "redis": rdb != nil})
	})

	authLimit := middleware.RateLimit(limiter, cfg.RateLimit.AuthLimit, cfg.RateLimit.AuthWindow)
	adminOnly := middleware.RoleAuth(model.RoleAdmin)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth", authLimit)
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/register", h.Auth.Register)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, blacklist))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)
			authorized.PUT("/auth/password", h.Auth.ChangePassword)

			// 课程表
			curriculum := authorized.Group("/curriculum")
			{
				curriculum.GET("", h.Curriculum.ListCourses)
				curriculum.POST("", adminOnly, h.Curriculum.AddCourse)
				curriculum.POST("/import", adminOnly, h.Curriculum.ImportCourses)
				curriculum.DELETE("/:id", adminOnly, h.Curriculum.RemoveCourse)
			}

			// 系统配置
			systemConfig := authorized.Group("/system-config")
			{
				systemConfig.GET("", h.SystemConfig.GetConfig)
				systemConfig.PUT("", adminOnly, h.SystemConfig.UpdateConfig)
			}

			// 学生端
			student := authorized.Group("/student", middleware.RoleAuth(model.RoleStudent))
			{
				student.GET("/progress", h.Student.GetMyProgress)
				student.GET("/curriculum/available", h.Curriculum.AvailableCourses)
				student.GET("/calendar.ics", h.Export.MyClearanceCalendar)

				student.GET("/records", h.Record.ListMyRecords)
				student.POST("/records", h.Record.AddMyRecord)
				student.DELETE("/records/:id", h.Record.DeleteMyRecord)

				student.GET("/milestones", h.Milestone.ListMyMilestones)
				student.POST("/milestones/upload", h.Milestone.UploadDocument)
				student.DELETE("/milestones/:category", h.Milestone.RemoveDocument)
				student.GET("/milestones/:category/document", h.Milestone.DownloadMyDocument)

				student.GET("/notifications", h.Notification.ListMine)
				student.GET("/notifications/unread-count", h.Notification.UnreadCount)
				student.PUT("/notifications/read-all", h.Notification.MarkAllRead)
				student.PUT("/notifications/:id/read", h.Notification.MarkRead)
			}

			// 管理端
			admin := authorized.Group("/admin", adminOnly)
			{
				admin.GET("/students", h.Student.ListStudents)
				admin.POST("/students/status-report", h.Student.SendStatusReports)
				admin.GET("/students/:id", h.Student.GetStudent)
				admin.DELETE("/students/:id", h.Student.DeleteStudent)
				admin.POST("/students/:id/reminder", h.Student.SendReminder)
				admin.GET("/students/:id/calendar.ics", h.Export.StudentClearanceCalendar)
				admin.DELETE("/students/:id/records/:recordId", h.Record.DeleteStudentRecord)
				admin.PUT("/students/:id/milestones/status", h.Milestone.SetStatus)
				admin.PUT("/students/:id/milestones/manual", h.Milestone.ToggleManualClearance)
				admin.GET("/students/:id/milestones/:category/document", h.Milestone.DownloadStudentDocument)

				admin.POST("/notifications", h.Notification.Send)
				admin.POST("/notifications/broadcast", h.Notification.Broadcast)

				admin.POST("/export/students", h.Export.ExportStudents)
				admin.POST("/import/legacy", h.Import.ImportLegacy)
			}
		}
	}

	return r
}
