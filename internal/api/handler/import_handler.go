package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"degreefi/backend/internal/service"
	"degreefi/backend/pkg/response"
)

// maxLegacyPayload 旧数据 JSON 上限，含 data URL 形式的材料
const maxLegacyPayload = 64 << 20

// ImportHandler 旧数据导入 HTTP 处理器
type ImportHandler struct {
	importSvc service.ImportService
}

// NewImportHandler 创建 ImportHandler
func NewImportHandler(importSvc service.ImportService) *ImportHandler {
	return &ImportHandler{importSvc: importSvc}
}

// ImportLegacy 导入旧版 JSON 数据；支持原始请求体或 multipart 的 file 字段
// POST /api/v1/admin/import/legacy
func (h *ImportHandler) ImportLegacy(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	raw, err := readLegacyPayload(c)
	if err != nil || len(raw) == 0 {
		response.BadRequest(c, 10001, "请上传旧版导出的 JSON 文件")
		return
	}

	result, err := h.importSvc.Import(c.Request.Context(), raw, callerID)
	if err != nil {
		h.handleImportError(c, err)
		return
	}

	response.OK(c, result)
}

func readLegacyPayload(c *gin.Context) ([]byte, error) {
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxLegacyPayload))
	}
	return io.ReadAll(io.LimitReader(c.Request.Body, maxLegacyPayload))
}

func (h *ImportHandler) handleImportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrLegacyMalformed):
		response.BadRequest(c, 16101, "旧数据格式无法识别")
	case errors.Is(err, service.ErrLegacyNoUsers):
		response.BadRequest(c, 16102, "旧数据中没有用户")
	default:
		response.InternalError(c)
	}
}
