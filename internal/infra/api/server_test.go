package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/infra/broadcast"
	"screenshot-ai-assistant/internal/usecase"
)

type stubPipeline struct {
	generateErr error
	debugErr    error
	lastGen     usecase.GenerateRequest
}

func (s *stubPipeline) SubmitGenerate(ctx context.Context, req usecase.GenerateRequest) (string, error) {
	if s.generateErr != nil {
		return "", s.generateErr
	}
	s.lastGen = req
	if req.TaskID != "" {
		return req.TaskID, nil
	}
	return "generated-id", nil
}

func (s *stubPipeline) SubmitDebug(ctx context.Context, req usecase.DebugRequest) (string, error) {
	if s.debugErr != nil {
		return "", s.debugErr
	}
	return req.TaskID, nil
}

type stubTaskRepo struct {
	task *model.Task
}

func (r *stubTaskRepo) Save(ctx context.Context, qx any, task *model.Task) error   { return nil }
func (r *stubTaskRepo) Update(ctx context.Context, qx any, task *model.Task) error { return nil }
func (r *stubTaskRepo) FindByTaskID(ctx context.Context, qx any, taskID string) (*model.Task, error) {
	if r.task == nil || r.task.ID != taskID {
		return nil, domain.ErrNotFound
	}
	return r.task, nil
}

func testServer(pipeline *stubPipeline, tasks *stubTaskRepo) http.Handler {
	logger := zerolog.Nop()
	srv := NewServer(pipeline, tasks, broadcast.NewBroadcaster(&logger), nil, nil, &logger)
	return srv.Router(Auth(testSecret, &stubProvider{}, &logger))
}

func multipartBody(t *testing.T, fields map[string]string, images int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	for i := 0; i < images; i++ {
		fw, err := w.CreateFormFile("images", "shot.png")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte("fake-png-bytes"))
	}
	_ = w.Close()
	return &buf, w.FormDataContentType()
}

func authedRequest(t *testing.T, method, target string, body *bytes.Buffer, contentType string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1", time.Now().Add(time.Hour)))
	return req
}

func TestGenerateAccepted(t *testing.T) {
	pipeline := &stubPipeline{}
	h := testServer(pipeline, &stubTaskRepo{})

	body, ct := multipartBody(t, map[string]string{"model": "gpt-4o", "text": "help"}, 2)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/task/generate", body, ct))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["task_id"] == "" {
		t.Error("missing task_id in response")
	}
	if pipeline.lastGen.UserID != "user-1" {
		t.Errorf("user id = %q", pipeline.lastGen.UserID)
	}
	if len(pipeline.lastGen.Assets) != 2 {
		t.Errorf("assets = %d, want 2", len(pipeline.lastGen.Assets))
	}
}

func TestGenerateTooManyImages(t *testing.T) {
	h := testServer(&stubPipeline{}, &stubTaskRepo{})
	body, ct := multipartBody(t, map[string]string{"model": "gpt-4o"}, 4)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/task/generate", body, ct))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDebugTooManyImages(t *testing.T) {
	h := testServer(&stubPipeline{}, &stubTaskRepo{})
	body, ct := multipartBody(t, map[string]string{"model": "gpt-4o", "task_id": "t1"}, 3)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/task/debug", body, ct))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateNoCredits403(t *testing.T) {
	h := testServer(&stubPipeline{generateErr: domain.ErrInsufficientCredits}, &stubTaskRepo{})
	body, ct := multipartBody(t, map[string]string{"model": "gpt-4o", "text": "x"}, 1)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/task/generate", body, ct))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestGenerateQueueFull429(t *testing.T) {
	h := testServer(&stubPipeline{generateErr: domain.ErrQueueFull}, &stubTaskRepo{})
	body, ct := multipartBody(t, map[string]string{"model": "gpt-4o", "text": "x"}, 1)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/task/generate", body, ct))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestTaskRoutesRequireAuth(t *testing.T) {
	h := testServer(&stubPipeline{}, &stubTaskRepo{})
	body, ct := multipartBody(t, map[string]string{"model": "gpt-4o"}, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/task/generate", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGetTaskScopedToOwner(t *testing.T) {
	task := model.NewTask("t1", "someone-else", "gpt-4o")
	h := testServer(&stubPipeline{}, &stubTaskRepo{task: task})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/task/t1", &bytes.Buffer{}, ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for foreign task", rec.Code)
	}
}

func TestGetTaskReturnsRecord(t *testing.T) {
	task := model.NewTask("t1", "user-1", "gpt-4o")
	task.Problem = "p"
	task.Solution = "s"
	h := testServer(&stubPipeline{}, &stubTaskRepo{task: task})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/task/t1", &bytes.Buffer{}, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["solution"] != "s" {
		t.Errorf("solution = %v", resp["solution"])
	}
}

func TestHealthOpen(t *testing.T) {
	h := testServer(&stubPipeline{}, &stubTaskRepo{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
