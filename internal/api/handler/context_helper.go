package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	pkgerrors "degreefi/backend/pkg/errors"
	"degreefi/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// tokenInfo 当前 Access Token 的 jti 与过期时间（登出拉黑用）
func tokenInfo(c *gin.Context) (string, time.Time) {
	jti := c.GetString("token_jti")
	exp, _ := c.Get("token_exp")
	t, _ := exp.(time.Time)
	return jti, t
}

// handleCommonError 处理跨模块的通用错误，已写响应时返回 true
func handleCommonError(c *gin.Context, err error) bool {
	if errors.Is(err, pkgerrors.ErrOptimisticLock) {
		response.Conflict(c, 10005, "数据已被修改，请刷新后重试")
		return true
	}
	return false
}
