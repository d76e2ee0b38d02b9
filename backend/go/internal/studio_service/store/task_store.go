package store

import (
	"context"
	"errors"
	"fmt"

	"SoraStudio/backend/go/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 列表分页参数的边界。pageSize 超出上限会被压到上限，防止单次响应无界膨胀。
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// TaskStore defines the interface for video task persistence.
type TaskStore interface {
	Create(ctx context.Context, task *models.VideoTask) error
	GetByID(ctx context.Context, id, username string) (*models.VideoTask, error)
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus, progress int, result datatypes.JSON, errMsg string) (bool, error)
	List(ctx context.Context, username string, page, pageSize int, kind string) ([]*models.VideoTask, int64, error)
	SaveResults(ctx context.Context, taskID string, results []models.VideoResult) error
}

// GormTaskStore 是基于 MySQL/GORM 的 TaskStore 实现，
// 是任务记录的唯一持久化入口。
type GormTaskStore struct {
	db *gorm.DB
}

// NewGormTaskStore creates a new GormTaskStore.
func NewGormTaskStore(db *gorm.DB) *GormTaskStore {
	return &GormTaskStore{db: db}
}

// Create 插入一条新的任务记录。
// owner 和 kind 为必填；缺失时返回 ErrInvalidInput，不触碰数据库。
func (s *GormTaskStore) Create(ctx context.Context, task *models.VideoTask) error {
	if task.Username == "" || task.Kind == "" {
		return fmt.Errorf("%w: username and kind are required", models.ErrInvalidInput)
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// GetByID 按 id 查询任务，且仅当 owner 匹配时返回。
// owner 不匹配与记录不存在返回同一个 ErrTaskNotFound，
// 避免跨用户探测任务的存在性。
func (s *GormTaskStore) GetByID(ctx context.Context, id, username string) (*models.VideoTask, error) {
	var task models.VideoTask
	err := s.db.WithContext(ctx).
		Preload("Results").
		Where("id = ? AND username = ?", id, username).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrTaskNotFound
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return &task, nil
}

// UpdateStatus 写入一次状态转移。
// WHERE 条件只命中非终态行：终态一旦写入便不可覆盖，对已终态任务的
// 重复写入是无操作（返回 updated=false），以容忍迟到或并发的轮询。
// progress 使用 GREATEST 写入，保证多次轮询下进度单调不减。
func (s *GormTaskStore) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, progress int, result datatypes.JSON, errMsg string) (bool, error) {
	updates := map[string]interface{}{
		"status":   status,
		"progress": gorm.Expr("GREATEST(progress, ?)", progress),
	}
	if result != nil {
		updates["result"] = result
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}

	res := s.db.WithContext(ctx).
		Model(&models.VideoTask{}).
		Where("id = ? AND status IN ?", id, []models.TaskStatus{models.TaskStatusPending, models.TaskStatusRunning}).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// List 返回属于 username 的任务，按创建时间倒序，可选按 kind 过滤。
// page 从 1 开始；total 是过滤后的全量条数，与分页无关。
func (s *GormTaskStore) List(ctx context.Context, username string, page, pageSize int, kind string) ([]*models.VideoTask, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	query := s.db.WithContext(ctx).Model(&models.VideoTask{}).Where("username = ?", username)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	var tasks []*models.VideoTask
	err := query.
		Preload("Results").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return tasks, total, nil
}

// SaveResults 保存任务成功后的产物记录。
func (s *GormTaskStore) SaveResults(ctx context.Context, taskID string, results []models.VideoResult) error {
	if len(results) == 0 {
		return nil
	}
	for i := range results {
		results[i].TaskID = taskID
	}
	if err := s.db.WithContext(ctx).Create(&results).Error; err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}
