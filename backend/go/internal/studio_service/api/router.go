package api

import (
	"SoraStudio/backend/go/pkg/httpmiddleware"
	"SoraStudio/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册 studio 服务的全部路由。
// 业务路由都在 JWT 认证之后；任务创建路由额外套一层限流，
// 控制对 provider 的提交速率。健康检查不需要认证。
func RegisterRoutes(r *gin.Engine, a *API, jwtSecret string, createLimiter ratelimiter.RateLimiter) {
	r.GET("/healthz", a.Health)

	studio := r.Group("/api/v1/studio")
	studio.Use(AuthMiddleware(jwtSecret))
	{
		create := studio.Group("/")
		create.Use(httpmiddleware.RateLimit(createLimiter))
		{
			create.POST("/generations", a.GenerateVideo)
			create.POST("/characters/upload", a.UploadCharacter)
			create.POST("/characters/create", a.CreateCharacter)
		}

		studio.GET("/tasks", a.ListTasks)
		studio.GET("/tasks/active", a.ActiveTasks)
		studio.GET("/tasks/:id", a.GetTask)
		studio.GET("/characters", a.Characters)

		studio.POST("/videos/finalize", a.FinalizeVideo)
		studio.GET("/videos", a.ListVideos)
		studio.POST("/videos/delete", a.DeleteVideo)

		studio.GET("/credits", a.Credits)
		studio.POST("/model-status", a.ModelStatus)
	}
}
