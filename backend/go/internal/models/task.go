package models

import (
	"time"

	"gorm.io/datatypes"
)

// TaskStatus 定义了视频任务的几种可能状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal 报告该状态是否为终态。终态任务不再被轮询，也不允许任何后续状态写入。
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// 任务类别。每种类别对应 provider 的一个提交接口。
const (
	TaskKindGenerateVideo   = "generate_video"
	TaskKindUploadCharacter = "upload_character"
	TaskKindCreateCharacter = "create_character"
)

// VideoTask 代表一次提交给外部生成服务的异步任务记录。
// ProviderJobID 在创建时写入一次，之后不再变更，是查询 provider 的唯一凭据。
type VideoTask struct {
	ID            string         `gorm:"primaryKey;size:64" json:"id"`
	Username      string         `gorm:"size:64;index:idx_owner_created,priority:1;not null" json:"username"`
	Kind          string         `gorm:"size:32;index;not null" json:"kind"`
	ProviderJobID string         `gorm:"size:128;index" json:"provider_job_id"`
	Status        TaskStatus     `gorm:"size:16;not null" json:"status"`
	Progress      int            `gorm:"not null;default:0" json:"progress"`
	Parameters    datatypes.JSON `json:"parameters,omitempty"`
	Result        datatypes.JSON `json:"result,omitempty"`
	Error         string         `gorm:"type:text" json:"error,omitempty"`
	Results       []VideoResult  `gorm:"foreignKey:TaskID" json:"results,omitempty"`
	CreatedAt     time.Time      `gorm:"index:idx_owner_created,priority:2" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// VideoResult 是任务成功后 provider 返回的单个产物。
type VideoResult struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	TaskID          string    `gorm:"size:64;index;not null" json:"-"`
	URL             string    `gorm:"type:text" json:"url"`
	Pid             string    `gorm:"size:128" json:"pid,omitempty"`
	CharacterID     string    `gorm:"size:128" json:"character_id,omitempty"`
	RemoveWatermark bool      `json:"remove_watermark"`
	CreatedAt       time.Time `json:"-"`
}

// Character 是用户通过 upload_character / create_character 任务得到的可复用角色。
type Character struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	Username     string    `gorm:"size:64;index;not null" json:"username"`
	CharacterID  string    `gorm:"size:128;not null" json:"character_id"`
	Name         string    `gorm:"size:128" json:"name,omitempty"`
	SourceTaskID string    `gorm:"size:64" json:"source_task_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActiveTask 是活跃任务追踪器里的一条记录（Redis 存储，非持久层）。
type ActiveTask struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt,omitempty"`
	StartTime int64  `json:"start_time"`
}
