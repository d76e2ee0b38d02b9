package httpmiddleware

import (
	"net/http"

	"SoraStudio/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RateLimit 返回一个 gin 中间件，对路由应用进程级限流。
// studio 服务把它挂在任务创建路由上，限制对 provider 的提交速率。
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
