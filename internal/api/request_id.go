package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mautops/results-gin/internal/service"
)

const requestIDMaxLen = 64

// RequestIDMiddleware 读取或生成 X-Request-ID,并把请求元信息写入 context 供审计使用
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" || len(rid) > requestIDMaxLen {
			rid = uuid.New().String()
		}

		c.Set("request_id", rid)
		c.Header("X-Request-ID", rid)

		ctx := service.WithRequestMeta(c.Request.Context(), service.RequestMeta{
			RequestID: rid,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
