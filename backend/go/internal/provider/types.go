package provider

import (
	"encoding/json"

	"SoraStudio/backend/go/internal/models"
)

// Config 是 provider 客户端的全部外部依赖配置。
// 显式注入，便于在测试中指向 mock 端点。
type Config struct {
	HostMode    string // "auto", "domestic", "overseas"
	OverseasURL string
	DomesticURL string
	APIKey      string // Bearer API Key
	Token       string // openapi 接口使用的账户 token
	MaxRetries  int    // 连接错误时每条线路的重试次数
}

// GenerateParams 是 generate_video 任务的提交参数。
type GenerateParams struct {
	Prompt        string `json:"prompt"`
	Model         string `json:"model,omitempty"`
	URL           string `json:"url,omitempty"`
	AspectRatio   string `json:"aspectRatio,omitempty"`
	Duration      int    `json:"duration,omitempty"`
	RemixTargetID string `json:"remixTargetId,omitempty"`
	Size          string `json:"size,omitempty"`
}

// UploadCharacterParams 是 upload_character 任务的提交参数。
type UploadCharacterParams struct {
	URL        string `json:"url"`
	Timestamps string `json:"timestamps,omitempty"`
}

// CreateCharacterParams 是 create_character 任务的提交参数。
type CreateCharacterParams struct {
	Pid        string `json:"pid"`
	Timestamps string `json:"timestamps,omitempty"`
}

// JobResult 是 provider 返回的单个产物。
type JobResult struct {
	URL             string `json:"url"`
	Pid             string `json:"pid"`
	CharacterID     string `json:"character_id"`
	RemoveWatermark bool   `json:"removeWatermark"`
}

// JobStatus 是 provider 任务状态的规范化表示。
// Status 已被映射为本地的四种状态。
type JobStatus struct {
	Status        models.TaskStatus
	Progress      int
	Results       []JobResult
	FailureReason string
	Error         string
}

// envelope 是 provider 所有接口共用的响应外壳。
// code != 0 表示应用层错误，与 HTTP 层失败区分开。
type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// resultData 是 /v1/draw/result 接口 data 字段的原始形态。
type resultData struct {
	ID            string      `json:"id"`
	Status        string      `json:"status"`
	Progress      int         `json:"progress"`
	Results       []JobResult `json:"results"`
	FailureReason string      `json:"failure_reason"`
	Error         string      `json:"error"`
}

// submitData 是提交类接口 data 字段的原始形态。
type submitData struct {
	ID string `json:"id"`
}

// normalizeStatus 把 provider 的状态词汇映射为本地状态。
// 未知或缺失的状态一律按 running 处理：解析缺口不应被误判为失败。
func normalizeStatus(s string) models.TaskStatus {
	switch s {
	case "queued", "waiting", "pending":
		return models.TaskStatusPending
	case "succeeded", "success":
		return models.TaskStatusSucceeded
	case "failed", "error":
		return models.TaskStatusFailed
	case "in_progress", "running", "processing":
		return models.TaskStatusRunning
	default:
		return models.TaskStatusRunning
	}
}
