package models

import "errors"

// 任务子系统的错误分类。各层通过 errors.Is 判断类别，
// API 层负责把它们映射为相应的 HTTP 状态码。
var (
	// ErrUnauthorized 表示请求没有可解析的调用者身份。
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput 表示创建请求缺少必填字段或字段非法。
	ErrInvalidInput = errors.New("invalid input")

	// ErrTaskNotFound 表示任务不存在，或存在但属于其他用户。
	// 两种情况对调用者不可区分，避免泄露任务的存在性。
	ErrTaskNotFound = errors.New("task not found")

	// ErrVideoNotFound 表示视频库中不存在请求的对象。
	ErrVideoNotFound = errors.New("video not found")

	// ErrProviderUnavailable 表示与 provider 的传输层失败或超时。
	// 创建路径上致命；对账路径上降级为返回本地快照。
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderRejected 表示 provider 接受了连接但在应用层拒绝了请求。
	ErrProviderRejected = errors.New("provider rejected request")

	// ErrStoreUnavailable 表示本地持久层不可用。
	ErrStoreUnavailable = errors.New("task store unavailable")
)
