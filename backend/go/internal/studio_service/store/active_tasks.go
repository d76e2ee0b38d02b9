package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"SoraStudio/backend/go/internal/models"

	"github.com/go-redis/redis/v8"
)

// activeTasksKeyPrefix 是每个用户活跃任务 hash 的键前缀。
const activeTasksKeyPrefix = "studio:active_tasks:"

// ActiveTaskTracker 用 Redis 维护每个用户正在进行的任务集合，
// 供前端在不逐条对账的情况下展示进行中的工作。
// 创建任务时加入，任务到达终态时移除。
type ActiveTaskTracker struct {
	rdb *redis.Client
}

// NewActiveTaskTracker creates a new ActiveTaskTracker.
func NewActiveTaskTracker(rdb *redis.Client) *ActiveTaskTracker {
	return &ActiveTaskTracker{rdb: rdb}
}

func activeTasksKey(username string) string {
	return activeTasksKeyPrefix + username
}

// Add 把一个任务加入用户的活跃集合。重复加入是无操作。
func (t *ActiveTaskTracker) Add(ctx context.Context, username string, task models.ActiveTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := t.rdb.HSet(ctx, activeTasksKey(username), task.ID, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// Remove 把一个任务移出用户的活跃集合。
func (t *ActiveTaskTracker) Remove(ctx context.Context, username, taskID string) error {
	if err := t.rdb.HDel(ctx, activeTasksKey(username), taskID).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// List 返回用户的活跃任务，按开始时间倒序。
func (t *ActiveTaskTracker) List(ctx context.Context, username string) ([]models.ActiveTask, error) {
	entries, err := t.rdb.HGetAll(ctx, activeTasksKey(username)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	tasks := make([]models.ActiveTask, 0, len(entries))
	for _, raw := range entries {
		var task models.ActiveTask
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			// 单条脏数据不影响其余条目
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].StartTime > tasks[j].StartTime
	})
	return tasks, nil
}
