package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"SoraStudio/backend/go/internal/config"
	"SoraStudio/backend/go/internal/models"
	pkghttp "SoraStudio/backend/go/pkg/http"
	"SoraStudio/backend/go/pkg/logger"
)

// helper to build a client pointed at a single mock host
func newTestClient(t *testing.T, hostURL string) *Client {
	t.Helper()
	httpClient, err := pkghttp.NewClient(config.CircuitBreakerConfig{Enabled: false}, 5*time.Second)
	if err != nil {
		t.Fatalf("failed to create http client: %v", err)
	}
	return NewClient(Config{
		HostMode:    "domestic",
		DomesticURL: hostURL,
		APIKey:      "test-key",
		Token:       "test-token",
		MaxRetries:  1,
	}, httpClient, logger.New("test", "", ""))
}

func TestSubmitGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/video/sora-video" {
			t.Errorf("Expected path /v1/video/sora-video, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected Bearer test-key, got %q", auth)
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("Failed to parse request body: %v", err)
		}
		// The platform always uses polling mode.
		if payload["webHook"] != "-1" {
			t.Errorf("Expected webHook -1, got %v", payload["webHook"])
		}
		if payload["shutProgress"] != false {
			t.Errorf("Expected shutProgress false, got %v", payload["shutProgress"])
		}
		if payload["model"] != "sora-2" {
			t.Errorf("Expected default model sora-2, got %v", payload["model"])
		}

		fmt.Fprint(w, `{"code":0,"msg":"","data":{"id":"job-123"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	jobID, err := client.SubmitGenerate(context.Background(), GenerateParams{Prompt: "a cat", Duration: 10})
	if err != nil {
		t.Fatalf("SubmitGenerate() error = %v", err)
	}
	if jobID != "job-123" {
		t.Errorf("Expected job id job-123, got %s", jobID)
	}
}

func TestSubmitGenerate_ProviderRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":5,"msg":"insufficient credits"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.SubmitGenerate(context.Background(), GenerateParams{Prompt: "a cat"})
	if !errors.Is(err, models.ErrProviderRejected) {
		t.Errorf("Expected ErrProviderRejected, got %v", err)
	}
}

func TestSubmitGenerate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.SubmitGenerate(context.Background(), GenerateParams{Prompt: "a cat"})
	if !errors.Is(err, models.ErrProviderUnavailable) {
		t.Errorf("Expected ErrProviderUnavailable, got %v", err)
	}
}

func TestSubmit_HostFailover(t *testing.T) {
	// The overseas host answers; the domestic one is unreachable.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"id":"job-456"}}`)
	}))
	defer server.Close()

	httpClient, err := pkghttp.NewClient(config.CircuitBreakerConfig{Enabled: false}, 5*time.Second)
	if err != nil {
		t.Fatalf("failed to create http client: %v", err)
	}
	client := NewClient(Config{
		HostMode:    "auto",
		DomesticURL: "http://127.0.0.1:1", // nothing listens here
		OverseasURL: server.URL,
		MaxRetries:  1,
	}, httpClient, logger.New("test", "", ""))

	jobID, err := client.SubmitUploadCharacter(context.Background(), UploadCharacterParams{URL: "http://example.com/v.mp4"})
	if err != nil {
		t.Fatalf("SubmitUploadCharacter() error = %v", err)
	}
	if jobID != "job-456" {
		t.Errorf("Expected job id job-456, got %s", jobID)
	}
}

func TestFetchStatus_Normalization(t *testing.T) {
	cases := []struct {
		providerStatus string
		want           models.TaskStatus
	}{
		{"queued", models.TaskStatusPending},
		{"pending", models.TaskStatusPending},
		{"in_progress", models.TaskStatusRunning},
		{"processing", models.TaskStatusRunning},
		{"succeeded", models.TaskStatusSucceeded},
		{"success", models.TaskStatusSucceeded},
		{"failed", models.TaskStatusFailed},
		{"error", models.TaskStatusFailed},
		{"something_new", models.TaskStatusRunning}, // unknown statuses stay running
	}

	for _, tc := range cases {
		status := tc.providerStatus
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/draw/result" {
				t.Errorf("Expected path /v1/draw/result, got %s", r.URL.Path)
			}
			fmt.Fprintf(w, `{"code":0,"data":{"id":"job-1","status":%q,"progress":42}}`, status)
		}))

		client := newTestClient(t, server.URL)
		js, err := client.FetchStatus(context.Background(), "job-1")
		server.Close()
		if err != nil {
			t.Fatalf("FetchStatus(%q) error = %v", tc.providerStatus, err)
		}
		if js.Status != tc.want {
			t.Errorf("FetchStatus(%q) status = %s, want %s", tc.providerStatus, js.Status, tc.want)
		}
		if js.Progress != 42 {
			t.Errorf("FetchStatus(%q) progress = %d, want 42", tc.providerStatus, js.Progress)
		}
	}
}

func TestFetchStatus_SucceededWithResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"id":"job-1","status":"succeeded","progress":100,
			"results":[{"url":"http://cdn/video.mp4","pid":"p-1","character_id":"c-1"}]}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	js, err := client.FetchStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("FetchStatus() error = %v", err)
	}
	if js.Status != models.TaskStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", js.Status)
	}
	if len(js.Results) != 1 || js.Results[0].URL != "http://cdn/video.mp4" {
		t.Errorf("Unexpected results: %+v", js.Results)
	}
	if js.Results[0].CharacterID != "c-1" {
		t.Errorf("Expected character id c-1, got %s", js.Results[0].CharacterID)
	}
}

func TestFetchStatus_MalformedDataIsRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":"not an object"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	js, err := client.FetchStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("FetchStatus() error = %v", err)
	}
	if js.Status != models.TaskStatusRunning {
		t.Errorf("Expected malformed payload to be treated as running, got %s", js.Status)
	}
}

func TestGetCredits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/client/openapi/getCredits" {
			t.Errorf("Expected path /client/openapi/getCredits, got %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		json.Unmarshal(body, &payload)
		if payload["token"] != "test-token" {
			t.Errorf("Expected account token in payload, got %v", payload["token"])
		}
		fmt.Fprint(w, `{"code":0,"data":{"credits":120}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	data, err := client.GetCredits(context.Background())
	if err != nil {
		t.Fatalf("GetCredits() error = %v", err)
	}
	var parsed struct {
		Credits int `json:"credits"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Failed to parse credits data: %v", err)
	}
	if parsed.Credits != 120 {
		t.Errorf("Expected 120 credits, got %d", parsed.Credits)
	}
}

func TestGetCredits_MissingToken(t *testing.T) {
	httpClient, _ := pkghttp.NewClient(config.CircuitBreakerConfig{Enabled: false}, time.Second)
	client := NewClient(Config{HostMode: "domestic", DomesticURL: "http://127.0.0.1:1"}, httpClient, logger.New("test", "", ""))

	_, err := client.GetCredits(context.Background())
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestGetModelStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		if got := r.URL.Query().Get("model"); got != "sora-2" {
			t.Errorf("Expected model query sora-2, got %q", got)
		}
		fmt.Fprint(w, `{"code":0,"data":{"status":"available"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	data, err := client.GetModelStatus(context.Background(), "sora-2")
	if err != nil {
		t.Fatalf("GetModelStatus() error = %v", err)
	}
	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Failed to parse model status data: %v", err)
	}
	if parsed.Status != "available" {
		t.Errorf("Expected status available, got %s", parsed.Status)
	}
}
