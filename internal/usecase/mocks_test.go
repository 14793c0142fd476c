package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
	"screenshot-ai-assistant/internal/domain/ports/repository"
)

// --- task repository ---

type mockTaskRepo struct {
	mu          sync.Mutex
	tasks       map[string]*model.Task
	saveCalls   int
	updateCalls int
	failSave    error
	failUpdate  error
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: map[string]*model.Task{}}
}

func copyTask(t *model.Task) *model.Task {
	c := *t
	c.Assets = append([]model.AssetRef(nil), t.Assets...)
	c.ExtractedTexts = append([]string(nil), t.ExtractedTexts...)
	c.Conversation = append([]model.Turn(nil), t.Conversation...)
	return &c
}

func (r *mockTaskRepo) Save(ctx context.Context, qx any, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++
	if r.failSave != nil {
		return r.failSave
	}
	r.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *mockTaskRepo) Update(ctx context.Context, qx any, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	if r.failUpdate != nil {
		return r.failUpdate
	}
	r.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *mockTaskRepo) FindByTaskID(ctx context.Context, qx any, taskID string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyTask(t), nil
}

func (r *mockTaskRepo) stored(taskID string) *model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[taskID]; ok {
		return copyTask(t)
	}
	return nil
}

// --- credit repository ---

type mockCreditRepo struct {
	mu            sync.Mutex
	remaining     map[string]int
	failDecrement error
	decrements    int
}

func newMockCreditRepo() *mockCreditRepo {
	return &mockCreditRepo{remaining: map[string]int{}}
}

func (r *mockCreditRepo) Get(ctx context.Context, qx any, userID string) (*model.CreditBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.remaining[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &model.CreditBalance{UserID: userID, TotalCredits: 100, RemainingCredits: rem, UpdatedAt: time.Now()}, nil
}

func (r *mockCreditRepo) DecrementOne(ctx context.Context, qx any, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDecrement != nil {
		return 0, r.failDecrement
	}
	rem, ok := r.remaining[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	r.decrements++
	if rem > 0 {
		rem--
	}
	r.remaining[userID] = rem
	return rem, nil
}

// --- transaction manager ---

type mockTxManager struct{}

func (mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// --- object storage ---

type mockStorage struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]error // keyed by original filename extension-less match
}

func newMockStorage() *mockStorage {
	return &mockStorage{failFor: map[string]error{}}
}

func (s *mockStorage) Put(ctx context.Context, content []byte, name, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for frag, err := range s.failFor {
		if frag != "" && strings.Contains(name, frag) {
			return "", err
		}
	}
	if err, ok := s.failFor[""]; ok && err != nil {
		return "", err
	}
	return "https://cdn.test/" + name, nil
}

// --- OCR provider ---

type mockOCR struct {
	mu    sync.Mutex
	texts []string
	err   error
	calls int
}

func (o *mockOCR) Extract(ctx context.Context, images []adapter.Image, uiLanguage string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	if o.texts != nil {
		return o.texts, nil
	}
	out := make([]string, len(images))
	for i := range images {
		out[i] = fmt.Sprintf("text from %s", images[i].FileName)
	}
	return out, nil
}

// --- AI provider ---

type mockAI struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	gotTurns [][]model.Turn
}

func (a *mockAI) Complete(ctx context.Context, modelName string, turns []model.Turn) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.gotTurns = append(a.gotTurns, append([]model.Turn(nil), turns...))
	if a.err != nil {
		return "", a.err
	}
	if a.reply != "" {
		return a.reply, nil
	}
	return "- Problem: mock problem\n- Solution: mock solution", nil
}

func (a *mockAI) CountTokens(ctx context.Context, modelName string, turns []model.Turn) (int, error) {
	return 10, nil
}

type panickyParser struct{}

func (panickyParser) Parse(raw string) (string, string) { panic("parser exploded") }
