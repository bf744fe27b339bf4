package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/service"
	"degreefi/backend/pkg/response"
)

// MilestoneHandler 毕业材料模块 HTTP 处理器
type MilestoneHandler struct {
	milestoneSvc service.MilestoneService
}

// NewMilestoneHandler 创建 MilestoneHandler
func NewMilestoneHandler(milestoneSvc service.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{milestoneSvc: milestoneSvc}
}

// ListMyMilestones 学生的 5 项材料
// GET /api/v1/student/milestones
func (h *MilestoneHandler) ListMyMilestones(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.milestoneSvc.List(c.Request.Context(), userID)
	if err != nil {
		h.handleMilestoneError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// UploadDocument 上传材料（multipart: category + file）
// POST /api/v1/student/milestones/upload
func (h *MilestoneHandler) UploadDocument(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UploadDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, 10001, "请选择要上传的文件")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, 10001, "无法读取上传文件")
		return
	}
	defer f.Close()

	result, err := h.milestoneSvc.UploadDocument(c.Request.Context(), userID, req.Category, f, fh.Filename)
	if err != nil {
		h.handleMilestoneError(c, err)
		return
	}

	response.OK(c, result)
}

// RemoveDocument 撤回待审核材料
// DELETE /api/v1/student/milestones/:category
func (h *MilestoneHandler) RemoveDocument(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.milestoneSvc.RemoveDocument(c.Request.Context(), userID, c.Param("category")); err != nil {
		h.handleMilestoneError(c, err)
		return
	}

	response.OK(c, nil)
}

// DownloadMyDocument 学生下载自己上传的材料
// GET /api/v1/student/milestones/:category/document
func (h *MilestoneHandler) DownloadMyDocument(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	h.download(c, userID)
}

// DownloadStudentDocument 管理员查看学生材料
// GET /api/v1/admin/students/:id/milestones/:category/document
func (h *MilestoneHandler) DownloadStudentDocument(c *gin.Context) {
	h.download(c, c.Param("id"))
}

func (h *MilestoneHandler) download(c *gin.Context, studentID string) {
	full, name, err := h.milestoneSvc.DocumentPath(c.Request.Context(), studentID, c.Param("category"))
	if err != nil {
		h.handleMilestoneError(c, err)
		return
	}
	c.FileAttachment(full, name)
}

// SetStatus 管理员审核材料
// PUT /api/v1/admin/students/:id/milestones/status
func (h *MilestoneHandler) SetStatus(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.SetMilestoneStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.milestoneSvc.SetStatus(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleMilestoneError(c, err)
		return
	}

	response.OK(c, result)
}

// ToggleManualClearance 管理员人工放行
// PUT /api/v1/admin/students/:id/milestones/manual
func (h *MilestoneHandler) ToggleManualClearance(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.ToggleManualClearanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.milestoneSvc.ToggleManualClearance(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleMilestoneError(c, err)
		return
	}

	response.OK(c, result)
}

// handleMilestoneError 统一处理材料模块业务错误
func (h *MilestoneHandler) handleMilestoneError(c *gin.Context, err error) {
	if handleCommonError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrUnknownCategory):
		response.BadRequest(c, 14001, "未知的材料类别")
	case errors.Is(err, service.ErrUnknownStatus):
		response.BadRequest(c, 14002, "未知的材料状态")
	case errors.Is(err, service.ErrInvalidTransition):
		response.Conflict(c, 14003, "不允许的材料状态流转")
	case errors.Is(err, service.ErrCategoryAlreadyFilled):
		response.Conflict(c, 14004, "该类别材料已上传")
	case errors.Is(err, service.ErrCategoryCleared):
		response.Conflict(c, 14005, "该类别已人工放行，无需上传")
	case errors.Is(err, service.ErrMilestoneVerified):
		response.Conflict(c, 14006, "材料已审核通过，不能撤回")
	case errors.Is(err, service.ErrNoDocument):
		response.NotFound(c, 14007, "该类别尚未上传材料")
	case errors.Is(err, service.ErrFileTypeNotAllowed):
		response.BadRequest(c, 14008, "不支持的文件类型")
	case errors.Is(err, service.ErrFileTooLarge):
		response.BadRequest(c, 14009, "文件超过大小限制")
	case errors.Is(err, service.ErrStudentNotFound):
		response.NotFound(c, 18001, "学生不存在")
	default:
		response.InternalError(c)
	}
}
