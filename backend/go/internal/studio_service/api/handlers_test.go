package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"SoraStudio/backend/go/internal/config"
	"SoraStudio/backend/go/internal/models"
	"SoraStudio/backend/go/internal/provider"
	"SoraStudio/backend/go/internal/studio_service/publisher"
	"SoraStudio/backend/go/internal/studio_service/service"
	"SoraStudio/backend/go/pkg/logger"
	"SoraStudio/backend/go/pkg/ratelimiter"
	"SoraStudio/backend/go/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"gorm.io/datatypes"
)

const testSecret = "test-secret"

// --- minimal fakes for wiring a real service behind the handlers ---

type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*models.VideoTask
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]*models.VideoTask)}
}

func (s *memTaskStore) Create(ctx context.Context, task *models.VideoTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *task
	s.tasks[task.ID] = &clone
	return nil
}

func (s *memTaskStore) GetByID(ctx context.Context, id, username string) (*models.VideoTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.Username != username {
		return nil, models.ErrTaskNotFound
	}
	clone := *task
	return &clone, nil
}

func (s *memTaskStore) UpdateStatus(ctx context.Context, id string, status models.TaskStatus, progress int, result datatypes.JSON, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.Status.IsTerminal() {
		return false, nil
	}
	task.Status = status
	if progress > task.Progress {
		task.Progress = progress
	}
	return true, nil
}

func (s *memTaskStore) List(ctx context.Context, username string, page, pageSize int, kind string) ([]*models.VideoTask, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.VideoTask
	for _, task := range s.tasks {
		if task.Username == username {
			clone := *task
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memTaskStore) SaveResults(ctx context.Context, taskID string, results []models.VideoResult) error {
	return nil
}

type memCharacterStore struct{}

func (memCharacterStore) Save(ctx context.Context, character *models.Character) error { return nil }
func (memCharacterStore) ListByUser(ctx context.Context, username string) ([]*models.Character, error) {
	return nil, nil
}

type memTracker struct{}

func (memTracker) Add(ctx context.Context, username string, task models.ActiveTask) error { return nil }
func (memTracker) Remove(ctx context.Context, username, taskID string) error              { return nil }
func (memTracker) List(ctx context.Context, username string) ([]models.ActiveTask, error) {
	return nil, nil
}

type stubProvider struct{}

func (stubProvider) SubmitGenerate(ctx context.Context, p provider.GenerateParams) (string, error) {
	return "job-1", nil
}
func (stubProvider) SubmitUploadCharacter(ctx context.Context, p provider.UploadCharacterParams) (string, error) {
	return "job-2", nil
}
func (stubProvider) SubmitCreateCharacter(ctx context.Context, p provider.CreateCharacterParams) (string, error) {
	return "job-3", nil
}
func (stubProvider) FetchStatus(ctx context.Context, providerJobID string) (*provider.JobStatus, error) {
	return &provider.JobStatus{Status: models.TaskStatusRunning, Progress: 10}, nil
}
func (stubProvider) GetCredits(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"credits":50}`), nil
}
func (stubProvider) GetModelStatus(ctx context.Context, model string) (json.RawMessage, error) {
	return json.RawMessage(`{"status":"available"}`), nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, event publisher.TaskEvent) error { return nil }
func (nopPublisher) Close() error                                                 { return nil }

func newTestRouter(t *testing.T, limiterCfg config.RateLimiterConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cache, err := util.NewWithConfig[string, *models.VideoTask](util.CacheConfig{Capacity: 16})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	svc := service.NewStudioService(newMemTaskStore(), memCharacterStore{}, memTracker{},
		stubProvider{}, nopPublisher{}, cache, logger.New("test", "", ""))

	limiter, err := ratelimiter.NewFromConfig(limiterCfg)
	if err != nil {
		t.Fatalf("failed to create rate limiter: %v", err)
	}

	router := gin.New()
	RegisterRoutes(router, NewAPI(svc, nil, logger.New("test", "", "")), testSecret, limiter)
	return router
}

func signToken(t *testing.T, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"username": username})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func doRequest(router *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- authentication ---

func TestRoutes_RequireAuth(t *testing.T) {
	router := newTestRouter(t, config.RateLimiterConfig{})

	w := doRequest(router, http.MethodGet, "/api/v1/studio/tasks", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/studio/tasks", "not-a-jwt", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with garbage token, got %d", w.Code)
	}
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	router := newTestRouter(t, config.RateLimiterConfig{})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"username": "alice"})
	signed, _ := token.SignedString([]byte("some-other-secret"))

	w := doRequest(router, http.MethodGet, "/api/v1/studio/tasks", signed, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong secret, got %d", w.Code)
	}
}

// --- task routes ---

func TestGenerateVideo_AcceptedAndReadable(t *testing.T) {
	router := newTestRouter(t, config.RateLimiterConfig{})
	token := signToken(t, "alice")

	w := doRequest(router, http.MethodPost, "/api/v1/studio/generations", token,
		`{"prompt":"a cat surfing"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if created.TaskID == "" || created.Status != "running" {
		t.Errorf("Unexpected creation response: %+v", created)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/studio/tasks/"+created.TaskID, token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on read-back, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGenerateVideo_MissingPrompt(t *testing.T) {
	router := newTestRouter(t, config.RateLimiterConfig{})
	token := signToken(t, "alice")

	w := doRequest(router, http.MethodPost, "/api/v1/studio/generations", token, `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestGetTask_UnknownID(t *testing.T) {
	router := newTestRouter(t, config.RateLimiterConfig{})
	token := signToken(t, "alice")

	w := doRequest(router, http.MethodGet, "/api/v1/studio/tasks/no-such-task", token, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestGetTask_ForeignOwnerIsNotFound(t *testing.T) {
	router := newTestRouter(t, config.RateLimiterConfig{})

	w := doRequest(router, http.MethodPost, "/api/v1/studio/generations", signToken(t, "alice"),
		`{"prompt":"a cat"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	var created struct {
		TaskID string `json:"task_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)

	w = doRequest(router, http.MethodGet, "/api/v1/studio/tasks/"+created.TaskID, signToken(t, "mallory"), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for foreign owner, got %d", w.Code)
	}
}

func TestCreateRoutes_RateLimited(t *testing.T) {
	router := newTestRouter(t, config.RateLimiterConfig{
		Enabled:   true,
		Algorithm: "tokenBucket",
		TokenBucket: config.TokenBucketConfig{
			Rate:     0.001, // effectively no refill during the test
			Capacity: 2,
		},
	})
	token := signToken(t, "alice")

	for i := 0; i < 2; i++ {
		w := doRequest(router, http.MethodPost, "/api/v1/studio/generations", token,
			fmt.Sprintf(`{"prompt":"video %d"}`, i))
		if w.Code != http.StatusAccepted {
			t.Fatalf("Expected 202 on request %d, got %d", i+1, w.Code)
		}
	}

	w := doRequest(router, http.MethodPost, "/api/v1/studio/generations", token,
		`{"prompt":"one too many"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after bucket drained, got %d", w.Code)
	}

	// Read routes are not limited.
	w = doRequest(router, http.MethodGet, "/api/v1/studio/tasks", token, "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 on read route, got %d", w.Code)
	}
}

// --- provider account routes ---

func TestCredits(t *testing.T) {
	router := newTestRouter(t, config.RateLimiterConfig{})

	w := doRequest(router, http.MethodGet, "/api/v1/studio/credits", signToken(t, "alice"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var parsed struct {
		Credits int `json:"credits"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if parsed.Credits != 50 {
		t.Errorf("Expected 50 credits, got %d", parsed.Credits)
	}
}

func TestModelStatus(t *testing.T) {
	router := newTestRouter(t, config.RateLimiterConfig{})

	w := doRequest(router, http.MethodPost, "/api/v1/studio/model-status", signToken(t, "alice"),
		`{"model":"sora-2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
