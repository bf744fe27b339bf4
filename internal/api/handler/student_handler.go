package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/service"
	"degreefi/backend/pkg/response"
)

// StudentHandler 学生管理模块 HTTP 处理器
type StudentHandler struct {
	studentSvc service.StudentService
}

// NewStudentHandler 创建 StudentHandler
func NewStudentHandler(studentSvc service.StudentService) *StudentHandler {
	return &StudentHandler{studentSvc: studentSvc}
}

// ListStudents 学生列表（含进度）
// GET /api/v1/admin/students
func (h *StudentHandler) ListStudents(c *gin.Context) {
	var req dto.StudentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.studentSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetStudent 学生详情
// GET /api/v1/admin/students/:id
func (h *StudentHandler) GetStudent(c *gin.Context) {
	detail, err := h.studentSvc.GetDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OK(c, detail)
}

// GetMyProgress 学生首页进度
// GET /api/v1/student/progress
func (h *StudentHandler) GetMyProgress(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	detail, err := h.studentSvc.GetMyProgress(c.Request.Context(), userID)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OK(c, detail)
}

// DeleteStudent 删除学生
// DELETE /api/v1/admin/students/:id
func (h *StudentHandler) DeleteStudent(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.studentSvc.Delete(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OK(c, nil)
}

// SendReminder 按当前进度发送状态提醒
// POST /api/v1/admin/students/:id/reminder
func (h *StudentHandler) SendReminder(c *gin.Context) {
	result, err := h.studentSvc.SendStatusReminder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OK(c, result)
}

// SendStatusReports 批量发送进度报告
// POST /api/v1/admin/students/status-report
func (h *StudentHandler) SendStatusReports(c *gin.Context) {
	var req dto.StatusReportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	result, err := h.studentSvc.SendStatusReports(c.Request.Context(), req.StudentIDs)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OK(c, result)
}

// handleStudentError 统一处理学生管理模块业务错误
func (h *StudentHandler) handleStudentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrStudentNotFound):
		response.NotFound(c, 18001, "学生不存在")
	default:
		response.InternalError(c)
	}
}
