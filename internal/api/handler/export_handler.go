package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/service"
	"degreefi/backend/pkg/response"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	icsContentType  = "text/calendar; charset=utf-8"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportStudents 导出学生审计表
// POST /api/v1/admin/export/students
func (h *ExportHandler) ExportStudents(c *gin.Context) {
	var req dto.ExportStudentsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	buf, filename, err := h.exportSvc.ExportStudents(c.Request.Context(), req.StudentIDs)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	response.Attachment(c, filename, xlsxContentType, buf.Bytes())
}

// MyClearanceCalendar 学生下载材料截止日历
// GET /api/v1/student/calendar.ics
func (h *ExportHandler) MyClearanceCalendar(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	h.calendar(c, userID)
}

// StudentClearanceCalendar 管理员下载某学生的截止日历
// GET /api/v1/admin/students/:id/calendar.ics
func (h *ExportHandler) StudentClearanceCalendar(c *gin.Context) {
	h.calendar(c, c.Param("id"))
}

func (h *ExportHandler) calendar(c *gin.Context, studentID string) {
	data, filename, err := h.exportSvc.ClearanceCalendar(c.Request.Context(), studentID)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	response.Attachment(c, filename, icsContentType, data)
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExportNoStudents):
		response.NotFound(c, 16001, "没有可导出的学生")
	case errors.Is(err, service.ErrNoClearanceDeadline):
		response.NotFound(c, 16002, "尚未设置材料提交截止日期")
	case errors.Is(err, service.ErrStudentNotFound):
		response.NotFound(c, 18001, "学生不存在")
	case errors.Is(err, service.ErrExportGenerateFail):
		response.InternalError(c)
	default:
		response.InternalError(c)
	}
}
