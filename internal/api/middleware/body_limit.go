package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"degreefi/backend/pkg/response"
)

// BodyLimit 请求体大小限制中间件
// defaultMax 适用于普通 JSON 接口；overrides 按路由模板（c.FullPath）放宽上传类接口
func BodyLimit(defaultMax int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultMax
		if v, ok := overrides[c.FullPath()]; ok {
			limit = v
		}

		if c.Request.ContentLength > limit {
			response.Error(c, http.StatusRequestEntityTooLarge, 10006, "请求体过大")
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}

		c.Next()
	}
}
