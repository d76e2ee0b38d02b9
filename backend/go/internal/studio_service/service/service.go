package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SoraStudio/backend/go/internal/models"
	"SoraStudio/backend/go/internal/provider"
	"SoraStudio/backend/go/internal/studio_service/publisher"
	"SoraStudio/backend/go/internal/studio_service/store"
	"SoraStudio/backend/go/pkg/logger"
	"SoraStudio/backend/go/pkg/util"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProviderAPI 定义了 service 依赖的 provider 客户端能力。
type ProviderAPI interface {
	SubmitGenerate(ctx context.Context, p provider.GenerateParams) (string, error)
	SubmitUploadCharacter(ctx context.Context, p provider.UploadCharacterParams) (string, error)
	SubmitCreateCharacter(ctx context.Context, p provider.CreateCharacterParams) (string, error)
	FetchStatus(ctx context.Context, providerJobID string) (*provider.JobStatus, error)
	GetCredits(ctx context.Context) (json.RawMessage, error)
	GetModelStatus(ctx context.Context, model string) (json.RawMessage, error)
}

// ActiveTracker 定义了活跃任务追踪器的能力。
type ActiveTracker interface {
	Add(ctx context.Context, username string, task models.ActiveTask) error
	Remove(ctx context.Context, username, taskID string) error
	List(ctx context.Context, username string) ([]models.ActiveTask, error)
}

// StudioService 是任务生命周期的唯一驱动者：
// 创建路径先提交 provider 再落库（提交失败不留任何本地记录），
// 读取路径按需对账（终态直接返回，非终态轮询 provider 并写回）。
type StudioService struct {
	tasks      store.TaskStore
	characters store.CharacterStore
	tracker    ActiveTracker
	provider   ProviderAPI
	events     publisher.EventPublisher
	// 终态任务缓存。终态记录被冻结，缓存命中即可跳过持久层。
	terminalCache *util.LRUCache[string, *models.VideoTask]
	logger        *logger.Logger
}

// NewStudioService creates a new StudioService.
func NewStudioService(
	tasks store.TaskStore,
	characters store.CharacterStore,
	tracker ActiveTracker,
	providerClient ProviderAPI,
	events publisher.EventPublisher,
	cache *util.LRUCache[string, *models.VideoTask],
	log *logger.Logger,
) *StudioService {
	return &StudioService{
		tasks:         tasks,
		characters:    characters,
		tracker:       tracker,
		provider:      providerClient,
		events:        events,
		terminalCache: cache,
		logger:        log,
	}
}

// CreateTask 提交一个任务给 provider 并持久化本地记录。
// provider 提交失败时整个操作失败，不会留下没有远端对应的孤儿记录；
// 提交成功后记录以 running 状态落库。
func (s *StudioService) CreateTask(ctx context.Context, username, kind string, params interface{}) (*models.VideoTask, error) {
	if username == "" {
		return nil, models.ErrUnauthorized
	}

	var (
		providerJobID string
		prompt        string
		err           error
	)

	switch kind {
	case models.TaskKindGenerateVideo:
		p, ok := params.(provider.GenerateParams)
		if !ok || p.Prompt == "" {
			return nil, fmt.Errorf("%w: prompt is required", models.ErrInvalidInput)
		}
		prompt = p.Prompt
		providerJobID, err = s.provider.SubmitGenerate(ctx, p)
	case models.TaskKindUploadCharacter:
		p, ok := params.(provider.UploadCharacterParams)
		if !ok || p.URL == "" {
			return nil, fmt.Errorf("%w: url is required", models.ErrInvalidInput)
		}
		providerJobID, err = s.provider.SubmitUploadCharacter(ctx, p)
	case models.TaskKindCreateCharacter:
		p, ok := params.(provider.CreateCharacterParams)
		if !ok || p.Pid == "" {
			return nil, fmt.Errorf("%w: pid is required", models.ErrInvalidInput)
		}
		providerJobID, err = s.provider.SubmitCreateCharacter(ctx, p)
	default:
		return nil, fmt.Errorf("%w: unknown task kind '%s'", models.ErrInvalidInput, kind)
	}

	if err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "provider_error"}).
			WithPayload(map[string]interface{}{"kind": kind, "username": username}).
			Error("provider 提交失败，任务未创建")
		return nil, err
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal parameters: %v", models.ErrInvalidInput, err)
	}

	task := &models.VideoTask{
		ID:            uuid.New().String(),
		Username:      username,
		Kind:          kind,
		ProviderJobID: providerJobID,
		Status:        models.TaskStatusRunning,
		Progress:      0,
		Parameters:    datatypes.JSON(rawParams),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		// provider 任务已提交但本地落库失败：记录 provider job id 供人工对账。
		s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "store_error"}).
			WithPayload(map[string]interface{}{"provider_job_id": providerJobID}).
			Error("任务落库失败，远端任务已提交")
		return nil, err
	}

	if err := s.tracker.Add(ctx, username, models.ActiveTask{
		ID:        task.ID,
		Prompt:    prompt,
		StartTime: time.Now().Unix(),
	}); err != nil {
		// 追踪器只服务于展示，失败不影响任务本身。
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("活跃任务追踪器写入失败")
	}

	s.publishEvent(ctx, publisher.TaskEvent{
		Type:     publisher.EventTaskCreated,
		TaskID:   task.ID,
		Username: username,
		Kind:     kind,
		Status:   task.Status,
	})

	return task, nil
}

// GetTask 返回任务记录，并在任务未到终态时顺带对账一次：
// 向 provider 查询最新状态，映射后写回本地再返回。
// 终态任务直接返回存量记录，不再产生任何出站调用。
// provider 暂时不可用不会让读取失败——返回最近一次已知的快照。
func (s *StudioService) GetTask(ctx context.Context, id, username string) (*models.VideoTask, error) {
	if cached, ok := s.terminalCache.Get(id); ok && cached.Username == username {
		return cached, nil
	}

	task, err := s.tasks.GetByID(ctx, id, username)
	if err != nil {
		return nil, err
	}

	if task.Status.IsTerminal() {
		s.terminalCache.Put(id, task)
		return task, nil
	}

	js, err := s.provider.FetchStatus(ctx, task.ProviderJobID)
	if err != nil {
		if errors.Is(err, models.ErrProviderUnavailable) {
			// 过期但可用优于读取失败：返回最近一次已知状态。
			s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "provider_error"}).
				WithPayload(map[string]interface{}{"task_id": id}).
				Warn("对账时 provider 不可用，返回本地快照")
			return task, nil
		}
		if errors.Is(err, models.ErrProviderRejected) {
			// provider 在应用层拒绝了这个任务 id：任务不可能再完成，置为失败。
			return s.applyTransition(ctx, task, &provider.JobStatus{
				Status: models.TaskStatusFailed,
				Error:  err.Error(),
			})
		}
		return nil, err
	}

	return s.applyTransition(ctx, task, js)
}

// applyTransition 把一次 provider 观测写回本地记录并返回刷新后的任务。
// 存储层的"终态不可覆盖"规则保证并发对账是幂等的。
func (s *StudioService) applyTransition(ctx context.Context, task *models.VideoTask, js *provider.JobStatus) (*models.VideoTask, error) {
	// 本地状态只前进：provider 报 queued 时本地保持 running。
	newStatus := js.Status
	if newStatus == models.TaskStatusPending {
		newStatus = models.TaskStatusRunning
	}

	progress := js.Progress
	var resultJSON datatypes.JSON
	errMsg := ""

	switch newStatus {
	case models.TaskStatusSucceeded:
		progress = 100
		if len(js.Results) > 0 {
			if raw, err := json.Marshal(js.Results); err == nil {
				resultJSON = datatypes.JSON(raw)
			}
		}
	case models.TaskStatusFailed:
		errMsg = js.Error
		if errMsg == "" {
			errMsg = js.FailureReason
		}
		if errMsg == "" {
			errMsg = "task failed"
		}
	}

	updated, err := s.tasks.UpdateStatus(ctx, task.ID, newStatus, progress, resultJSON, errMsg)
	if err != nil {
		return nil, err
	}
	if !updated {
		// 另一次并发对账已经写入了终态，读回最新记录即可。
		return s.tasks.GetByID(ctx, task.ID, task.Username)
	}

	if newStatus.IsTerminal() {
		s.onTerminal(ctx, task, newStatus, js, errMsg)
	}

	fresh, err := s.tasks.GetByID(ctx, task.ID, task.Username)
	if err != nil {
		return nil, err
	}
	if fresh.Status.IsTerminal() {
		s.terminalCache.Put(fresh.ID, fresh)
	}
	return fresh, nil
}

// onTerminal 处理终态转移的附带工作：保存产物与角色、
// 移出活跃集合、发布任务事件。这些都不影响主路径的结果。
func (s *StudioService) onTerminal(ctx context.Context, task *models.VideoTask, status models.TaskStatus, js *provider.JobStatus, errMsg string) {
	if status == models.TaskStatusSucceeded && len(js.Results) > 0 {
		results := make([]models.VideoResult, 0, len(js.Results))
		for _, r := range js.Results {
			results = append(results, models.VideoResult{
				URL:             r.URL,
				Pid:             r.Pid,
				CharacterID:     r.CharacterID,
				RemoveWatermark: r.RemoveWatermark,
			})
		}
		if err := s.tasks.SaveResults(ctx, task.ID, results); err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "store_error"}).
				WithPayload(map[string]interface{}{"task_id": task.ID}).
				Error("任务产物保存失败")
		}

		// 角色类任务成功后把角色归档给用户复用。
		if task.Kind == models.TaskKindUploadCharacter || task.Kind == models.TaskKindCreateCharacter {
			for _, r := range js.Results {
				if r.CharacterID == "" {
					continue
				}
				if err := s.characters.Save(ctx, &models.Character{
					Username:     task.Username,
					CharacterID:  r.CharacterID,
					SourceTaskID: task.ID,
				}); err != nil {
					s.logger.WithError(models.ErrorInfo{Message: err.Error(), Type: "store_error"}).
						WithPayload(map[string]interface{}{"task_id": task.ID}).
						Error("角色归档失败")
				}
			}
		}
	}

	if err := s.tracker.Remove(ctx, task.Username, task.ID); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("活跃任务追踪器移除失败")
	}

	eventType := publisher.EventTaskSucceeded
	if status == models.TaskStatusFailed {
		eventType = publisher.EventTaskFailed
	}
	s.publishEvent(ctx, publisher.TaskEvent{
		Type:     eventType,
		TaskID:   task.ID,
		Username: task.Username,
		Kind:     task.Kind,
		Status:   status,
		Error:    errMsg,
	})
}

// publishEvent 发布任务事件。发布失败会被记录，但从不影响请求结果。
func (s *StudioService) publishEvent(ctx context.Context, event publisher.TaskEvent) {
	event.Timestamp = time.Now()
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).
			WithPayload(map[string]interface{}{"event": event.Type, "task_id": event.TaskID}).
			Error("任务事件发布失败")
	}
}

// ListTasks 返回用户的任务列表。列表不触发对账：
// 对账是按条拉取的，避免一次列表请求产生一串出站轮询。
func (s *StudioService) ListTasks(ctx context.Context, username string, page, pageSize int, kind string) ([]*models.VideoTask, int64, error) {
	return s.tasks.List(ctx, username, page, pageSize, kind)
}

// ActiveTasks 返回用户当前进行中的任务。
func (s *StudioService) ActiveTasks(ctx context.Context, username string) ([]models.ActiveTask, error) {
	return s.tracker.List(ctx, username)
}

// Characters 返回用户的角色列表。
func (s *StudioService) Characters(ctx context.Context, username string) ([]*models.Character, error) {
	return s.characters.ListByUser(ctx, username)
}

// Credits 查询 provider 账户余额。
func (s *StudioService) Credits(ctx context.Context) (json.RawMessage, error) {
	return s.provider.GetCredits(ctx)
}

// ModelStatus 查询 provider 模型可用状态。
func (s *StudioService) ModelStatus(ctx context.Context, model string) (json.RawMessage, error) {
	return s.provider.GetModelStatus(ctx, model)
}
