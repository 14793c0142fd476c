package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
	"screenshot-ai-assistant/internal/domain/ports/repository"
	"screenshot-ai-assistant/internal/infra/broadcast"
	"screenshot-ai-assistant/internal/infra/logging"
	"screenshot-ai-assistant/internal/infra/redis"
	"screenshot-ai-assistant/internal/usecase"
)

const (
	maxGenerateImages = 3
	maxDebugImages    = 2
	maxImageBytes     = 10 << 20 // 10MB per image
	maxFormBytes      = 40 << 20

	submitLimit  = 10 // submissions per user per window
	submitWindow = time.Minute
)

// Server exposes the task pipeline over HTTP: submission endpoints, a
// server-sent-events progress stream and a task read-back for clients that
// missed the tail of the stream.
type Server struct {
	pipeline usecase.PipelineUseCase
	tasks    repository.TaskRepository
	bus      *broadcast.Broadcaster
	limiter  *redis.RateLimiter
	pool     *pgxpool.Pool
	log      *zerolog.Logger
}

func NewServer(
	pipeline usecase.PipelineUseCase,
	tasks repository.TaskRepository,
	bus *broadcast.Broadcaster,
	limiter *redis.RateLimiter,
	pool *pgxpool.Pool,
	logger *zerolog.Logger,
) *Server {
	return &Server{pipeline: pipeline, tasks: tasks, bus: bus, limiter: limiter, pool: pool, log: logger}
}

// Router builds the chi mux. Auth wraps only the task routes; health stays
// open for probes.
func (s *Server) Router(auth Middleware) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1/task", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return auth(next) })
		// Submits parse multipart bodies; cap them. The event stream must
		// stay open, so it is not under the timeout.
		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler { return Timeout(30 * time.Second)(next) })
			r.Post("/generate", s.handleGenerate)
			r.Post("/debug", s.handleDebug)
		})
		r.Get("/events/{taskID}", s.handleEvents)
		r.Get("/{taskID}", s.handleGetTask)
	})

	return Chain(r, TraceID(), RequestLog(s.log), Recover(s.log))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	if !s.allowSubmit(w, r, id.UserID, "generate") {
		return
	}
	images, err := readImages(r, maxGenerateImages)
	if err != nil {
		writeError(w, err)
		return
	}
	req := usecase.GenerateRequest{
		TaskID:         r.FormValue("task_id"),
		UserID:         id.UserID,
		Assets:         images,
		UserText:       r.FormValue("text"),
		TargetLanguage: r.FormValue("target_language"),
		Model:          r.FormValue("model"),
		SpeechContext:  r.FormValue("speech_context"),
		UILanguage:     r.FormValue("ui_language"),
		Multimodal:     r.FormValue("multimodal") == "true",
	}
	taskID, err := s.pipeline.SubmitGenerate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	if !s.allowSubmit(w, r, id.UserID, "debug") {
		return
	}
	images, err := readImages(r, maxDebugImages)
	if err != nil {
		writeError(w, err)
		return
	}
	round, _ := strconv.Atoi(r.FormValue("round"))
	req := usecase.DebugRequest{
		TaskID:        r.FormValue("task_id"),
		UserID:        id.UserID,
		UserText:      r.FormValue("text"),
		Assets:        images,
		Model:         r.FormValue("model"),
		Round:         round,
		SpeechContext: r.FormValue("speech_context"),
		UILanguage:    r.FormValue("ui_language"),
		Multimodal:    r.FormValue("multimodal") == "true",
	}
	taskID, err := s.pipeline.SubmitDebug(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

// handleEvents streams progress events for a task over SSE until the client
// disconnects. Disconnecting only stops delivery; the pipeline runs on.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := broadcast.NewChanSink(32)
	detach := s.bus.Register(taskID, sink)
	defer detach()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-sink.C:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			if isTerminal(ev.Status) {
				return
			}
		}
	}
}

func isTerminal(status string) bool {
	switch status {
	case "completed", "error", "ocr error", "ai error", "save error":
		return true
	}
	return false
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.tasks.FindByTaskID(r.Context(), nil, taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if id := IdentityFrom(r.Context()); id == nil || task.UserID != id.UserID {
		writeError(w, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":         task.ID,
		"status":          task.Status,
		"round":           task.Round,
		"model":           task.Model,
		"assets":          task.Assets,
		"extracted_texts": task.ExtractedTexts,
		"problem":         task.Problem,
		"solution":        task.Solution,
		"failure_stage":   task.FailureStage,
		"failure_reason":  task.FailureReason,
		"updated_at":      task.UpdatedAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	var dbLatency time.Duration
	if s.pool != nil {
		start := time.Now()
		if err := s.pool.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		dbLatency = time.Since(start)
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"db_latency": dbLatency.String(),
	})
}

// allowSubmit applies the per-user submission rate limit. A limiter outage
// fails open: refusing all traffic because Redis blinked is worse.
func (s *Server) allowSubmit(w http.ResponseWriter, r *http.Request, userID, kind string) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(r.Context(), redis.UserSubmitKey(userID, kind), submitLimit, submitWindow)
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		http.Error(w, "too many submissions", http.StatusTooManyRequests)
		return false
	}
	return true
}

// readImages pulls uploaded files out of the multipart form, enforcing the
// per-request count and the per-image size limit.
func readImages(r *http.Request, maxCount int) ([]adapter.Image, error) {
	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if r.MultipartForm == nil {
		return nil, nil
	}
	files := r.MultipartForm.File["images"]
	if len(files) > maxCount {
		return nil, fmt.Errorf("%w: at most %d images per request", domain.ErrInvalidArgument, maxCount)
	}
	out := make([]adapter.Image, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxImageBytes {
			return nil, fmt.Errorf("%w: %s exceeds 10MB", domain.ErrInvalidArgument, fh.Filename)
		}
		img, err := readOne(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

func readOne(fh *multipart.FileHeader) (adapter.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return adapter.Image{}, err
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return adapter.Image{}, err
	}
	if len(content) > maxImageBytes {
		return adapter.Image{}, fmt.Errorf("%w: %s exceeds 10MB", domain.ErrInvalidArgument, fh.Filename)
	}
	return adapter.Image{
		Content:     content,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
	}, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientCredits):
		code = http.StatusForbidden
	case errors.Is(err, domain.ErrQueueFull):
		code = http.StatusTooManyRequests
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
