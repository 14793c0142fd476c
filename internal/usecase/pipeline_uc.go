package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
	"screenshot-ai-assistant/internal/domain/ports/repository"
	"screenshot-ai-assistant/internal/infra/broadcast"
	"screenshot-ai-assistant/internal/infra/logging"
	"screenshot-ai-assistant/internal/infra/metrics"
	"screenshot-ai-assistant/internal/infra/retry"
	"screenshot-ai-assistant/internal/infra/worker"
)

// Event statuses published over the broadcaster, in pipeline order.
const (
	evStarted      = "started"
	evUploading    = "uploading"
	evStorageError = "storage error"
	evSaveError    = "save error"
	evOCRRunning   = "ocr processing"
	evOCRDone      = "ocr completed"
	evOCRError     = "ocr error"
	evAIRunning    = "ai processing"
	evAIDone       = "ai completed"
	evAIError      = "ai error"
	evCompleted    = "completed"
	evError        = "error"
	evNoCredits    = "no credits"
)

// GenerateRequest starts a new conversation for a batch of screenshots.
type GenerateRequest struct {
	TaskID         string // optional; server-generated when empty
	UserID         string
	Assets         []adapter.Image
	UserText       string
	TargetLanguage string
	Model          string
	SpeechContext  string
	UILanguage     string
	Multimodal     bool
}

// DebugRequest continues the conversation stored under TaskID.
type DebugRequest struct {
	TaskID        string
	UserID        string
	UserText      string
	Assets        []adapter.Image // optional follow-up screenshots
	Model         string
	Round         int
	SpeechContext string
	UILanguage    string
	Multimodal    bool
}

// Compile-time check
var _ PipelineUseCase = (*PipelineEngine)(nil)

type PipelineUseCase interface {
	SubmitGenerate(ctx context.Context, req GenerateRequest) (string, error)
	SubmitDebug(ctx context.Context, req DebugRequest) (string, error)
}

// PipelineEngine drives a submitted task through upload, extraction,
// reasoning, persistence and credit accounting. Submissions enqueue onto a
// bounded worker pool and return immediately; a saturated pool rejects the
// submission instead of accepting unbounded work.
type PipelineEngine struct {
	tasks   repository.TaskRepository
	credits repository.CreditRepository
	txm     repository.TransactionManager
	storage adapter.ObjectStorage
	ocr     adapter.OCRProvider
	ai      adapter.AIProvider
	exec    *retry.Executor
	bus     *broadcast.Broadcaster
	pool    *worker.Pool
	parser  ResponseParser
	prompts *PromptBuilder
	log     *zerolog.Logger

	// continueWithoutAssets keeps the pipeline going when every upload
	// failed. The record then carries an empty asset list.
	continueWithoutAssets bool
}

func NewPipelineEngine(
	tasks repository.TaskRepository,
	credits repository.CreditRepository,
	txm repository.TransactionManager,
	storage adapter.ObjectStorage,
	ocr adapter.OCRProvider,
	ai adapter.AIProvider,
	exec *retry.Executor,
	bus *broadcast.Broadcaster,
	pool *worker.Pool,
	parser ResponseParser,
	prompts *PromptBuilder,
	logger *zerolog.Logger,
	continueWithoutAssets bool,
) *PipelineEngine {
	return &PipelineEngine{
		tasks:                 tasks,
		credits:               credits,
		txm:                   txm,
		storage:               storage,
		ocr:                   ocr,
		ai:                    ai,
		exec:                  exec,
		bus:                   bus,
		pool:                  pool,
		parser:                parser,
		prompts:               prompts,
		log:                   logger,
		continueWithoutAssets: continueWithoutAssets,
	}
}

func (p *PipelineEngine) SubmitGenerate(ctx context.Context, req GenerateRequest) (string, error) {
	if req.UserID == "" || req.Model == "" {
		return "", domain.ErrInvalidArgument
	}
	if len(req.Assets) == 0 && req.UserText == "" {
		return "", fmt.Errorf("%w: no assets and no text", domain.ErrInvalidArgument)
	}
	if req.TaskID == "" {
		req.TaskID = ulid.Make().String()
	}
	if err := p.checkCredits(ctx, req.UserID); err != nil {
		return "", err
	}
	if err := p.pool.Submit(func(ctx context.Context) error {
		p.runGenerate(ctx, req)
		return nil
	}); err != nil {
		return "", err
	}
	return req.TaskID, nil
}

func (p *PipelineEngine) SubmitDebug(ctx context.Context, req DebugRequest) (string, error) {
	if req.TaskID == "" || req.UserID == "" || req.Model == "" {
		return "", domain.ErrInvalidArgument
	}
	if err := p.checkCredits(ctx, req.UserID); err != nil {
		return "", err
	}
	if err := p.pool.Submit(func(ctx context.Context) error {
		p.runDebug(ctx, req)
		return nil
	}); err != nil {
		return "", err
	}
	return req.TaskID, nil
}

func (p *PipelineEngine) checkCredits(ctx context.Context, userID string) error {
	bal, err := p.credits.Get(ctx, nil, userID)
	if err != nil {
		return err
	}
	if bal.Exhausted() {
		return domain.ErrInsufficientCredits
	}
	return nil
}

func (p *PipelineEngine) runGenerate(ctx context.Context, req GenerateRequest) {
	ctx = logging.WithTaskID(logging.WithUserID(ctx, req.UserID), req.TaskID)
	log := logging.With(ctx, p.log)
	defer p.recoverToEvent(ctx, req.TaskID, "generate")

	started := time.Now()
	p.publish(ctx, req.TaskID, broadcast.Event{Status: evStarted, Step: "submit", Message: "task accepted"})

	task := model.NewTask(req.TaskID, req.UserID, req.Model)

	refs, ocrTexts, ok := p.stageUploadAndExtract(ctx, task, req.Assets, req.UILanguage, req.Multimodal, true)
	if !ok {
		metrics.IncTaskFinished("generate", "failed")
		return
	}
	task.Assets = refs
	task.ExtractedTexts = ocrTexts

	task.AppendTurn("system", p.prompts.SystemPrompt(req.UILanguage, req.TargetLanguage), nil)
	if req.Multimodal {
		task.AppendTurn("user", p.prompts.MultimodalPrompt(req.UserText, req.SpeechContext), encodeAssets(req.Assets))
	} else {
		task.AppendTurn("user", p.prompts.UserPrompt(ocrTexts, req.UserText, req.SpeechContext), nil)
	}

	if !p.stageReason(ctx, task) {
		metrics.IncTaskFinished("generate", "failed")
		return
	}

	p.stageFinish(ctx, task, "generate")
	log.Info().Str("task_id", task.ID).Dur("took", time.Since(started)).Msg("generate pipeline finished")
}

func (p *PipelineEngine) runDebug(ctx context.Context, req DebugRequest) {
	ctx = logging.WithTaskID(logging.WithUserID(ctx, req.UserID), req.TaskID)
	log := logging.With(ctx, p.log)
	defer p.recoverToEvent(ctx, req.TaskID, "debug")

	started := time.Now()
	p.publish(ctx, req.TaskID, broadcast.Event{Status: evStarted, Step: "submit", Message: "debug round accepted"})

	task, err := retry.DoValue(ctx, p.exec, "load task", func(ctx context.Context) (*model.Task, error) {
		return p.tasks.FindByTaskID(ctx, nil, req.TaskID)
	})
	if err != nil {
		p.publish(ctx, req.TaskID, broadcast.Event{Status: evError, Step: "load", Message: fmt.Sprintf("task %s not found: %v", req.TaskID, err)})
		metrics.IncTaskFinished("debug", "failed")
		return
	}
	if task.UserID != req.UserID {
		p.publish(ctx, req.TaskID, broadcast.Event{Status: evError, Step: "load", Message: "task belongs to another user"})
		metrics.IncTaskFinished("debug", "failed")
		return
	}
	// Debug reopens a completed conversation for another round.
	if task.Status == model.TaskStatusCompleted {
		task.Status = model.TaskStatusStarted
	}
	task.AdvanceRound(req.Round)
	task.Model = req.Model

	var ocrTexts []string
	if len(req.Assets) > 0 {
		refs, texts, ok := p.stageUploadAndExtract(ctx, task, req.Assets, req.UILanguage, req.Multimodal, false)
		if !ok {
			metrics.IncTaskFinished("debug", "failed")
			return
		}
		task.Assets = append(task.Assets, refs...)
		task.ExtractedTexts = append(task.ExtractedTexts, texts...)
		ocrTexts = texts
	}

	if req.Multimodal && len(req.Assets) > 0 {
		task.AppendTurn("user", p.prompts.MultimodalPrompt(req.UserText, req.SpeechContext), encodeAssets(req.Assets))
	} else {
		task.AppendTurn("user", p.prompts.UserPrompt(ocrTexts, req.UserText, req.SpeechContext), nil)
	}

	if !p.stageReason(ctx, task) {
		metrics.IncTaskFinished("debug", "failed")
		return
	}

	p.stageFinish(ctx, task, "debug")
	log.Info().Str("task_id", task.ID).Int("round", task.Round).Dur("took", time.Since(started)).Msg("debug pipeline finished")
}

// stageUploadAndExtract runs uploads, the initial persist (generate only)
// and OCR. The persist overlaps extraction since neither depends on the
// other; it writes a snapshot so the live task can keep mutating.
// Returns ok=false after a terminal event has been published.
func (p *PipelineEngine) stageUploadAndExtract(ctx context.Context, task *model.Task, assets []adapter.Image, uiLanguage string, multimodal, initialPersist bool) ([]model.AssetRef, []string, bool) {
	log := logging.With(ctx, p.log)

	task.Transition(model.TaskStatusUploading)
	refs, survivors := p.uploadAssets(ctx, task.ID, assets)
	if len(assets) > 0 && len(refs) == 0 && !p.continueWithoutAssets {
		p.failTask(ctx, task, "uploading", evError, domain.ErrNoAssets.Error())
		return nil, nil, false
	}

	// Initial record write and OCR have no data dependency; join both.
	var (
		wg      sync.WaitGroup
		saveErr error
		texts   []string
		ocrErr  error
	)
	if initialPersist {
		snapshot := *task
		snapshot.Assets = refs
		wg.Add(1)
		go func() {
			defer wg.Done()
			saveErr = p.exec.Do(ctx, "save task", func(ctx context.Context) error {
				return p.tasks.Save(ctx, nil, &snapshot)
			})
		}()
	}

	task.Transition(model.TaskStatusExtracting)
	p.publish(ctx, task.ID, broadcast.Event{Status: evOCRRunning, Step: "extract", Message: "extracting text"})
	if multimodal {
		// Provider reads the raw images itself; keep the event shape stable
		// for UI consumers anyway.
		texts = nil
	} else if len(survivors) > 0 {
		t0 := time.Now()
		texts, ocrErr = p.ocr.Extract(ctx, survivors, uiLanguage)
		metrics.ObserveStage("ocr", int(time.Since(t0).Milliseconds()), ocrErr == nil)
	}
	wg.Wait()

	if saveErr != nil {
		log.Error().Err(saveErr).Msg("initial task persist failed")
		p.failTask(ctx, task, "persist", evSaveError, saveErr.Error())
		return nil, nil, false
	}
	if ocrErr != nil {
		log.Error().Err(ocrErr).Msg("ocr failed")
		p.failTask(ctx, task, "extract", evOCRError, ocrErr.Error())
		return nil, nil, false
	}

	p.publish(ctx, task.ID, broadcast.Event{
		Status: evOCRDone, Step: "extract", Message: "extraction complete",
		Data: map[string]any{"texts": texts},
	})
	return refs, texts, true
}

// uploadAssets stores assets concurrently. A failed upload is dropped from
// the batch; one bad image must not abort the whole request. The survivors
// slice preserves request order.
func (p *PipelineEngine) uploadAssets(ctx context.Context, taskID string, assets []adapter.Image) ([]model.AssetRef, []adapter.Image) {
	if len(assets) == 0 {
		return nil, nil
	}
	log := logging.With(ctx, p.log)

	type result struct {
		url string
		err error
	}
	results := make([]result, len(assets))
	var wg sync.WaitGroup
	for i, img := range assets {
		wg.Add(1)
		go func(i int, img adapter.Image) {
			defer wg.Done()
			name := taskID + "/" + uuid.NewString() + path.Ext(img.FileName)
			t0 := time.Now()
			url, err := p.storage.Put(ctx, img.Content, name, img.ContentType)
			metrics.ObserveStage("upload", int(time.Since(t0).Milliseconds()), err == nil)
			results[i] = result{url: url, err: err}
		}(i, img)
	}
	wg.Wait()

	refs := make([]model.AssetRef, 0, len(assets))
	survivors := make([]adapter.Image, 0, len(assets))
	for i, r := range results {
		if r.err != nil {
			log.Warn().Err(r.err).Str("file", assets[i].FileName).Msg("asset upload failed, dropping")
			p.publish(ctx, taskID, broadcast.Event{
				Status: evStorageError, Step: "upload",
				Message:      fmt.Sprintf("upload failed for %s", assets[i].FileName),
				CurrentImage: i + 1, TotalImages: len(assets),
			})
			continue
		}
		refs = append(refs, model.AssetRef{URL: r.url, FileName: assets[i].FileName})
		survivors = append(survivors, assets[i])
		p.publish(ctx, taskID, broadcast.Event{
			Status: evUploading, Step: "upload",
			Message:      fmt.Sprintf("uploaded %s", assets[i].FileName),
			CurrentImage: i + 1, TotalImages: len(assets),
		})
	}
	return refs, survivors
}

// stageReason sends the whole conversation to the provider, single attempt.
// Provider failures are fatal for the task; retry budget belongs to
// persistence, not to billed model calls.
func (p *PipelineEngine) stageReason(ctx context.Context, task *model.Task) bool {
	log := logging.With(ctx, p.log)

	task.Transition(model.TaskStatusReasoning)
	p.publish(ctx, task.ID, broadcast.Event{Status: evAIRunning, Step: "reason", Message: "querying " + task.Model})

	t0 := time.Now()
	reply, err := p.ai.Complete(ctx, task.Model, task.Conversation)
	metrics.ObserveAICall(providerLabel(task.Model), task.Model, 0, 0, int(time.Since(t0).Milliseconds()), err == nil)
	if err != nil {
		log.Error().Err(err).Str("model", task.Model).Msg("reasoning call failed")
		p.failTask(ctx, task, "reason", evAIError, err.Error())
		return false
	}

	task.Analysis = reply
	problem, solution := p.parser.Parse(reply)
	task.Problem = problem
	task.Solution = solution
	task.AppendTurn("assistant", reply, nil)

	p.publish(ctx, task.ID, broadcast.Event{Status: evAIDone, Step: "reason", Message: "model reply received"})
	return true
}

// stageFinish persists the final record, settles the credit and emits the
// terminal event. Record and credit commit together when the store supports
// it; a settlement failure never takes back the already-delivered result,
// so the fallback path re-persists the record and reports the credit
// problem as a side-channel event.
func (p *PipelineEngine) stageFinish(ctx context.Context, task *model.Task, kind string) {
	log := logging.With(ctx, p.log)

	task.Transition(model.TaskStatusCompleted)
	remaining, err := p.settle(ctx, task)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("task settlement failed")
		if perr := p.exec.Do(ctx, "update task", func(ctx context.Context) error {
			return p.tasks.Update(ctx, nil, task)
		}); perr != nil {
			p.publish(ctx, task.ID, broadcast.Event{Status: evSaveError, Step: "persist", Message: perr.Error()})
		}
		p.publish(ctx, task.UserID, broadcast.Event{Status: evError, Step: "credit", Message: "credit update failed"})
	case remaining == 0:
		p.publish(ctx, task.UserID, broadcast.Event{Status: evNoCredits, Step: "credit", Message: "credits exhausted"})
	}

	p.publish(ctx, task.ID, broadcast.Event{
		Status: evCompleted, Step: "finish", Message: "task complete",
		Data: map[string]any{"problem": task.Problem, "solution": task.Solution},
	})
	metrics.IncTaskFinished(kind, "completed")
}

// settle writes the final record and spends one credit, in one transaction
// when a transaction manager is configured.
func (p *PipelineEngine) settle(ctx context.Context, task *model.Task) (remaining int, err error) {
	if p.txm == nil {
		if err := p.exec.Do(ctx, "update task", func(ctx context.Context) error {
			return p.tasks.Update(ctx, nil, task)
		}); err != nil {
			return 0, err
		}
		return p.credits.DecrementOne(ctx, nil, task.UserID)
	}
	err = p.exec.Do(ctx, "settle task", func(ctx context.Context) error {
		return p.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := p.tasks.Update(ctx, tx, task); err != nil {
				return err
			}
			var derr error
			remaining, derr = p.credits.DecrementOne(ctx, tx, task.UserID)
			return derr
		})
	})
	return remaining, err
}

// failTask marks the task failed, best-effort persists it and publishes the
// terminal error event.
func (p *PipelineEngine) failTask(ctx context.Context, task *model.Task, stage, status, reason string) {
	task.Fail(stage, reason)
	if err := p.exec.Do(ctx, "persist failed task", func(ctx context.Context) error {
		return p.tasks.Update(ctx, nil, task)
	}); err != nil {
		// Save may never have happened for early failures.
		_ = p.tasks.Save(ctx, nil, task)
	}
	p.publish(ctx, task.ID, broadcast.Event{Status: status, Step: stage, Message: reason})
}

// recoverToEvent converts a pipeline panic into a terminal error event so a
// bug cannot strand a task without a final event from the client's view.
func (p *PipelineEngine) recoverToEvent(ctx context.Context, taskID, kind string) {
	if r := recover(); r != nil {
		logging.With(ctx, p.log).Error().Interface("panic", r).Str("task_id", taskID).Msg("pipeline panic")
		p.publish(ctx, taskID, broadcast.Event{Status: evError, Step: kind, Message: fmt.Sprintf("internal error: %v", r)})
		metrics.IncTaskFinished(kind, "panic")
	}
}

func (p *PipelineEngine) publish(ctx context.Context, key string, ev broadcast.Event) {
	p.bus.Publish(ctx, key, ev)
}

func encodeAssets(assets []adapter.Image) []string {
	out := make([]string, 0, len(assets))
	for _, a := range assets {
		out = append(out, base64.StdEncoding.EncodeToString(a.Content))
	}
	return out
}

func providerLabel(modelName string) string {
	// Label only; routing uses the typed resolver in the AI adapter.
	switch {
	case len(modelName) >= 3 && modelName[:3] == "gpt":
		return "openai"
	case len(modelName) >= 6 && modelName[:6] == "claude":
		return "anthropic"
	case len(modelName) >= 6 && modelName[:6] == "gemini":
		return "gemini"
	default:
		return "other"
	}
}
