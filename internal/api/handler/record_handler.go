package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/service"
	"degreefi/backend/pkg/response"
)

// RecordHandler 成绩记录模块 HTTP 处理器
type RecordHandler struct {
	recordSvc service.RecordService
}

// NewRecordHandler 创建 RecordHandler
func NewRecordHandler(recordSvc service.RecordService) *RecordHandler {
	return &RecordHandler{recordSvc: recordSvc}
}

// AddMyRecord 学生录入成绩
// POST /api/v1/student/records
func (h *RecordHandler) AddMyRecord(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.AddRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.recordSvc.Add(c.Request.Context(), userID, &req, userID)
	if err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.OK(c, result)
}

// ListMyRecords 学生成绩列表
// GET /api/v1/student/records
func (h *RecordHandler) ListMyRecords(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.recordSvc.List(c.Request.Context(), userID)
	if err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// DeleteMyRecord 学生删除自己的成绩
// DELETE /api/v1/student/records/:id
func (h *RecordHandler) DeleteMyRecord(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.recordSvc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.OK(c, nil)
}

// DeleteStudentRecord 管理员删除学生成绩
// DELETE /api/v1/admin/students/:id/records/:recordId
func (h *RecordHandler) DeleteStudentRecord(c *gin.Context) {
	if err := h.recordSvc.Delete(c.Request.Context(), c.Param("id"), c.Param("recordId")); err != nil {
		h.handleRecordError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleRecordError 统一处理成绩模块业务错误
func (h *RecordHandler) handleRecordError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidGrade):
		response.BadRequest(c, 13001, "成绩必须为 0-4 的整数档")
	case errors.Is(err, service.ErrCourseNotFound):
		response.NotFound(c, 13002, "课程不在课程表中")
	case errors.Is(err, service.ErrRecordNotFound):
		response.NotFound(c, 13003, "成绩记录不存在")
	case errors.Is(err, service.ErrStudentNotFound):
		response.NotFound(c, 18001, "学生不存在")
	default:
		response.InternalError(c)
	}
}
