package api

import (
	"errors"
	"net/http"
	"strconv"

	"SoraStudio/backend/go/internal/database/mysql"
	"SoraStudio/backend/go/internal/database/redis"
	"SoraStudio/backend/go/internal/models"
	"SoraStudio/backend/go/internal/provider"
	"SoraStudio/backend/go/internal/studio_service/library"
	"SoraStudio/backend/go/internal/studio_service/service"
	"SoraStudio/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

// API provides handlers for the studio service.
type API struct {
	service *service.StudioService
	library *library.VideoLibrary
	logger  *logger.Logger
}

// NewAPI creates a new API handler.
func NewAPI(service *service.StudioService, library *library.VideoLibrary, logger *logger.Logger) *API {
	return &API{service: service, library: library, logger: logger}
}

// username 取出认证中间件写入的调用者身份。
func username(c *gin.Context) string {
	v, _ := c.Get("username")
	name, _ := v.(string)
	return name
}

// statusFromError 把错误分类映射为 HTTP 状态码。
func statusFromError(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTaskNotFound), errors.Is(err, models.ErrVideoNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrProviderUnavailable), errors.Is(err, models.ErrProviderRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) abortWithError(c *gin.Context, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		a.logger.WithError(models.ErrorInfo{Message: err.Error(), StatusCode: status}).
			WithRequest(models.RequestInfo{Method: c.Request.Method, Path: c.FullPath()}).
			Error("请求处理失败")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// --- 任务创建 ---

// GenerateVideoRequest 定义了视频生成请求的 JSON 结构。
type GenerateVideoRequest struct {
	Prompt        string `json:"prompt" binding:"required"`
	Model         string `json:"model"`
	URL           string `json:"url"`
	AspectRatio   string `json:"aspectRatio"`
	Duration      int    `json:"duration"`
	RemixTargetID string `json:"remixTargetId"`
	Size          string `json:"size"`
}

// GenerateVideo 提交一个视频生成任务。
func (a *API) GenerateVideo(c *gin.Context) {
	var req GenerateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Duration <= 0 {
		req.Duration = 10
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "9:16"
	}

	task, err := a.service.CreateTask(c.Request.Context(), username(c), models.TaskKindGenerateVideo, provider.GenerateParams{
		Prompt:        req.Prompt,
		Model:         req.Model,
		URL:           req.URL,
		AspectRatio:   req.AspectRatio,
		Duration:      req.Duration,
		RemixTargetID: req.RemixTargetID,
		Size:          req.Size,
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID, "status": task.Status})
}

// UploadCharacterRequest 定义了角色上传请求的 JSON 结构。
type UploadCharacterRequest struct {
	URL        string `json:"url" binding:"required"`
	Timestamps string `json:"timestamps"`
}

// UploadCharacter 提交一个角色上传任务。
func (a *API) UploadCharacter(c *gin.Context) {
	var req UploadCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := a.service.CreateTask(c.Request.Context(), username(c), models.TaskKindUploadCharacter, provider.UploadCharacterParams{
		URL:        req.URL,
		Timestamps: req.Timestamps,
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID, "status": task.Status})
}

// CreateCharacterRequest 定义了从已有视频创建角色请求的 JSON 结构。
type CreateCharacterRequest struct {
	Pid        string `json:"pid" binding:"required"`
	Timestamps string `json:"timestamps"`
}

// CreateCharacter 提交一个从已有视频创建角色的任务。
func (a *API) CreateCharacter(c *gin.Context) {
	var req CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := a.service.CreateTask(c.Request.Context(), username(c), models.TaskKindCreateCharacter, provider.CreateCharacterParams{
		Pid:        req.Pid,
		Timestamps: req.Timestamps,
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"task_id": task.ID, "status": task.Status})
}

// --- 任务查询 ---

// GetTask 返回单个任务，未到终态时顺带向 provider 对账一次。
func (a *API) GetTask(c *gin.Context) {
	task, err := a.service.GetTask(c.Request.Context(), c.Param("id"), username(c))
	if err != nil {
		a.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// ListTasks 返回用户的任务列表。
func (a *API) ListTasks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	kind := c.Query("kind")

	tasks, total, err := a.service.ListTasks(c.Request.Context(), username(c), page, limit, kind)
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// ActiveTasks 返回用户当前进行中的任务。
func (a *API) ActiveTasks(c *gin.Context) {
	tasks, err := a.service.ActiveTasks(c.Request.Context(), username(c))
	if err != nil {
		a.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// Characters 返回用户的角色列表。
func (a *API) Characters(c *gin.Context) {
	characters, err := a.service.Characters(c.Request.Context(), username(c))
	if err != nil {
		a.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": characters})
}

// --- 视频库 ---

// FinalizeVideoRequest 定义了视频归档请求的 JSON 结构。
type FinalizeVideoRequest struct {
	TaskID string `json:"task_id" binding:"required"`
}

// FinalizeVideo 把成功任务的产物归档到视频库。
// 任务尚未完成时返回当前状态，不算错误。
func (a *API) FinalizeVideo(c *gin.Context) {
	var req FinalizeVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := a.service.GetTask(c.Request.Context(), req.TaskID, username(c))
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	if task.Status != models.TaskStatusSucceeded {
		c.JSON(http.StatusOK, gin.H{
			"task_id":  task.ID,
			"status":   task.Status,
			"progress": task.Progress,
			"error":    task.Error,
		})
		return
	}

	object, err := a.library.SaveFromTask(c.Request.Context(), task)
	if err != nil {
		a.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, object)
}

// ListVideos 返回用户视频库中的全部视频。
func (a *API) ListVideos(c *gin.Context) {
	videos, err := a.library.List(c.Request.Context(), username(c))
	if err != nil {
		a.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

// DeleteVideoRequest 定义了视频删除请求的 JSON 结构。
type DeleteVideoRequest struct {
	Name string `json:"name" binding:"required"`
}

// DeleteVideo 删除用户视频库中的一个视频。
func (a *API) DeleteVideo(c *gin.Context) {
	var req DeleteVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.library.Delete(c.Request.Context(), username(c), req.Name); err != nil {
		a.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// --- provider 账户 ---

// Credits 查询 provider 账户余额。
func (a *API) Credits(c *gin.Context) {
	data, err := a.service.Credits(c.Request.Context())
	if err != nil {
		a.abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// ModelStatusRequest 定义了模型状态查询请求的 JSON 结构。
type ModelStatusRequest struct {
	Model string `json:"model" binding:"required"`
}

// ModelStatus 查询 provider 模型可用状态。
func (a *API) ModelStatus(c *gin.Context) {
	var req ModelStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := a.service.ModelStatus(c.Request.Context(), req.Model)
	if err != nil {
		a.abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// Health 检查依赖的存储是否可达。
func (a *API) Health(c *gin.Context) {
	ctx := c.Request.Context()
	if err := mysql.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "mysql": err.Error()})
		return
	}
	if err := redis.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
