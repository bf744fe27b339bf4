package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/service"
	"degreefi/backend/pkg/response"
)

// CurriculumHandler 课程表模块 HTTP 处理器
type CurriculumHandler struct {
	curriculumSvc service.CurriculumService
}

// NewCurriculumHandler 创建 CurriculumHandler
func NewCurriculumHandler(curriculumSvc service.CurriculumService) *CurriculumHandler {
	return &CurriculumHandler{curriculumSvc: curriculumSvc}
}

// ListCourses 课程表
// GET /api/v1/curriculum
func (h *CurriculumHandler) ListCourses(c *gin.Context) {
	list, err := h.curriculumSvc.List(c.Request.Context())
	if err != nil {
		h.handleCurriculumError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// AddCourse 新增课程（并按配置通知全体学生）
// POST /api/v1/curriculum
func (h *CurriculumHandler) AddCourse(c *gin.Context) {
	var req dto.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.curriculumSvc.Add(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleCurriculumError(c, err)
		return
	}

	response.Created(c, result)
}

// RemoveCourse 移除课程
// DELETE /api/v1/curriculum/:id
func (h *CurriculumHandler) RemoveCourse(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.curriculumSvc.Remove(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleCurriculumError(c, err)
		return
	}

	response.OK(c, nil)
}

// AvailableCourses 当前学生尚未录入的课程
// GET /api/v1/student/curriculum/available
func (h *CurriculumHandler) AvailableCourses(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.curriculumSvc.Available(c.Request.Context(), userID)
	if err != nil {
		h.handleCurriculumError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// ImportCourses Excel 批量导入课程
// POST /api/v1/curriculum/import
func (h *CurriculumHandler) ImportCourses(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, 10001, "请上传 Excel 文件")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, 10001, "无法读取上传文件")
		return
	}
	defer f.Close()

	rows, err := h.curriculumSvc.ParseImportFile(f)
	if err != nil {
		h.handleCurriculumError(c, err)
		return
	}

	result, err := h.curriculumSvc.ImportCourses(c.Request.Context(), rows, callerID)
	if err != nil {
		h.handleCurriculumError(c, err)
		return
	}

	response.OK(c, result)
}

// handleCurriculumError 统一处理课程表模块业务错误
func (h *CurriculumHandler) handleCurriculumError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDuplicateCourse):
		response.Conflict(c, 12001, "课程代码已存在于课程表")
	case errors.Is(err, service.ErrCourseNotFound):
		response.NotFound(c, 12002, "课程不存在")
	case errors.Is(err, service.ErrImportNoData):
		response.BadRequest(c, 12003, "Excel文件无数据行")
	case errors.Is(err, service.ErrImportTooManyRows):
		response.BadRequest(c, 12004, err.Error())
	case errors.Is(err, service.ErrImportBadFile):
		response.BadRequest(c, 12006, "无法解析Excel文件")
	case errors.Is(err, service.ErrImportBadHeader):
		response.BadRequest(c, 12005, "Excel表头缺少 code/name 列")
	default:
		response.InternalError(c)
	}
}
