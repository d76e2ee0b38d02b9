package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"SoraStudio/backend/go/internal/models"
	pkghttp "SoraStudio/backend/go/pkg/http"
	"SoraStudio/backend/go/pkg/logger"
)

// provider 接口路径。
const (
	endpointGenerate        = "/v1/video/sora-video"
	endpointUploadCharacter = "/v1/video/sora-upload-character"
	endpointCreateCharacter = "/v1/video/sora-create-character"
	endpointResult          = "/v1/draw/result"
	endpointCredits         = "/client/openapi/getCredits"
	endpointModelStatus     = "/client/common/getModelStatus"
)

// retryBackoff 是连接错误重试之间的等待时间。
const retryBackoff = 2 * time.Second

// Client 封装了远端视频生成 API 的 HTTP 调用，
// 负责把本地任务请求翻译为 provider 请求，并把 provider
// 响应规范化为本地状态形态。只发起出站网络调用，不做任何持久化。
type Client struct {
	cfg    Config
	http   *pkghttp.Client
	logger *logger.Logger
}

// NewClient 创建一个 provider 客户端。所有出站请求经过带熔断的 HTTP 客户端。
func NewClient(cfg Config, httpClient *pkghttp.Client, log *logger.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Client{cfg: cfg, http: httpClient, logger: log}
}

// hosts 根据线路配置返回要尝试的 base URL 列表。
// auto 模式下先国内后海外，单线路模式只返回对应地址。
func (c *Client) hosts() []string {
	switch c.cfg.HostMode {
	case "domestic":
		return []string{c.cfg.DomesticURL}
	case "overseas":
		return []string{c.cfg.OverseasURL}
	default:
		return []string{c.cfg.DomesticURL, c.cfg.OverseasURL}
	}
}

// SubmitGenerate 提交一个视频生成任务，返回 provider 分配的任务 ID。
func (c *Client) SubmitGenerate(ctx context.Context, p GenerateParams) (string, error) {
	model := p.Model
	if model == "" {
		model = "sora-2"
	}
	payload := map[string]interface{}{
		"model":    model,
		"prompt":   p.Prompt,
		"duration": p.Duration,
		// 平台始终使用轮询模式，webHook "-1" 表示提交后立即返回任务 ID。
		"webHook":      "-1",
		"shutProgress": false,
	}
	if p.URL != "" {
		payload["url"] = p.URL
	}
	if p.AspectRatio != "" {
		payload["aspectRatio"] = p.AspectRatio
	}
	if p.Size != "" {
		payload["size"] = p.Size
	}
	if p.RemixTargetID != "" {
		payload["remixTargetId"] = p.RemixTargetID
	}
	return c.submit(ctx, endpointGenerate, payload)
}

// SubmitUploadCharacter 提交一个角色上传任务。
func (c *Client) SubmitUploadCharacter(ctx context.Context, p UploadCharacterParams) (string, error) {
	timestamps := p.Timestamps
	if timestamps == "" {
		timestamps = "0,3"
	}
	payload := map[string]interface{}{
		"url":          p.URL,
		"timestamps":   timestamps,
		"webHook":      "-1",
		"shutProgress": false,
	}
	return c.submit(ctx, endpointUploadCharacter, payload)
}

// SubmitCreateCharacter 提交一个从已有视频创建角色的任务。
func (c *Client) SubmitCreateCharacter(ctx context.Context, p CreateCharacterParams) (string, error) {
	timestamps := p.Timestamps
	if timestamps == "" {
		timestamps = "0,3"
	}
	payload := map[string]interface{}{
		"pid":          p.Pid,
		"timestamps":   timestamps,
		"webHook":      "-1",
		"shutProgress": false,
	}
	return c.submit(ctx, endpointCreateCharacter, payload)
}

// submit 发送提交请求并取出 provider 任务 ID。
func (c *Client) submit(ctx context.Context, endpoint string, payload map[string]interface{}) (string, error) {
	data, err := c.postJSON(ctx, endpoint, payload)
	if err != nil {
		return "", err
	}
	var sd submitData
	if err := json.Unmarshal(data, &sd); err != nil || sd.ID == "" {
		return "", fmt.Errorf("%w: missing task id in response", models.ErrProviderRejected)
	}
	return sd.ID, nil
}

// FetchStatus 查询 provider 任务状态，并把 provider 的状态词汇
// 规范化为本地的四种状态。传输层失败返回 ErrProviderUnavailable。
func (c *Client) FetchStatus(ctx context.Context, providerJobID string) (*JobStatus, error) {
	data, err := c.postJSON(ctx, endpointResult, map[string]interface{}{"id": providerJobID})
	if err != nil {
		return nil, err
	}
	var rd resultData
	if err := json.Unmarshal(data, &rd); err != nil {
		// 响应解析失败按 running 处理，不把解析缺口误判为任务失败。
		c.logger.WithPayload(map[string]interface{}{"provider_job_id": providerJobID}).
			Warn("provider 状态响应解析失败，保守视为 running")
		return &JobStatus{Status: models.TaskStatusRunning}, nil
	}
	return &JobStatus{
		Status:        normalizeStatus(rd.Status),
		Progress:      rd.Progress,
		Results:       rd.Results,
		FailureReason: rd.FailureReason,
		Error:         rd.Error,
	}, nil
}

// GetCredits 查询账户余额（openapi 接口，使用账户 token）。
func (c *Client) GetCredits(ctx context.Context) (json.RawMessage, error) {
	if c.cfg.Token == "" {
		return nil, fmt.Errorf("%w: missing provider token", models.ErrInvalidInput)
	}
	return c.postJSON(ctx, endpointCredits, map[string]interface{}{"token": c.cfg.Token})
}

// GetModelStatus 查询指定模型的可用状态。
func (c *Client) GetModelStatus(ctx context.Context, model string) (json.RawMessage, error) {
	return c.getJSON(ctx, endpointModelStatus, url.Values{"model": []string{model}})
}

// postJSON 依次尝试配置的线路，对连接错误做有限次重试，
// 并解包 provider 的响应外壳。返回外壳中的 data 字段。
func (c *Client) postJSON(ctx context.Context, endpoint string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", models.ErrProviderRejected, err)
	}

	var lastErr error
	for _, host := range c.hosts() {
		for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+endpoint, bytes.NewReader(body))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
			}
			req.Header.Set("Content-Type", "application/json")
			if c.cfg.APIKey != "" {
				req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
			}

			data, retryable, err := c.execute(req)
			if err == nil {
				return data, nil
			}
			if !retryable {
				return nil, err
			}
			lastErr = err
			// 连接层错误：稍候再试同一线路，避免瞬断造成的误切换。
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, ctx.Err())
			case <-time.After(retryBackoff):
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no provider host configured", models.ErrProviderUnavailable)
	}
	return nil, lastErr
}

// getJSON 与 postJSON 相同的线路策略，用于 GET 形式的接口。
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	var lastErr error
	for _, host := range c.hosts() {
		for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+endpoint+"?"+params.Encode(), nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
			}
			if c.cfg.APIKey != "" {
				req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
			}

			data, retryable, err := c.execute(req)
			if err == nil {
				return data, nil
			}
			if !retryable {
				return nil, err
			}
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, ctx.Err())
			case <-time.After(retryBackoff):
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no provider host configured", models.ErrProviderUnavailable)
	}
	return nil, lastErr
}

// execute 执行单次请求。返回值 retryable 指示该错误是否值得在同一线路上重试
//（只有连接层错误重试；HTTP 错误状态与应用层拒绝不重试）。
func (c *Client) execute(req *http.Request) (json.RawMessage, bool, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("%w: unexpected status %d", models.ErrProviderUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read response: %v", models.ErrProviderUnavailable, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("%w: malformed response", models.ErrProviderUnavailable)
	}
	// code 缺失或为 0 都视为成功；其余为应用层拒绝。
	if env.Code != nil && *env.Code != 0 {
		msg := env.Msg
		if msg == "" {
			msg = "API error"
		}
		return nil, false, fmt.Errorf("%w: %s (code %d)", models.ErrProviderRejected, msg, *env.Code)
	}
	if len(env.Data) > 0 {
		return env.Data, false, nil
	}
	return raw, false, nil
}
