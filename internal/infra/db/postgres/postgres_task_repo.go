package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/repository"
	"screenshot-ai-assistant/internal/infra/redis"
)

var _ repository.TaskRepository = (*TaskRepo)(nil)

// TaskRepo persists tasks with the conversation history, assets and
// extracted texts stored as JSONB. A write-through Redis cache keeps hot
// tasks (active debug rounds) out of the database read path.
type TaskRepo struct {
	pool  *pgxpool.Pool
	cache *redis.TaskCache
}

func NewPostgresTaskRepo(pool *pgxpool.Pool, cache *redis.TaskCache) *TaskRepo {
	return &TaskRepo{pool: pool, cache: cache}
}

func (r *TaskRepo) Save(ctx context.Context, qx any, task *model.Task) error {
	assets, conv, texts, err := marshalTaskJSON(task)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO tasks (id, user_id, status, round, model, assets, extracted_texts,
                   analysis, problem, solution, conversation,
                   failure_stage, failure_reason, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,COALESCE($14,NOW()),COALESCE($15,NOW()));`
	_, err = execSQL(ctx, r.pool, qx, q,
		task.ID, task.UserID, string(task.Status), task.Round, task.Model,
		assets, texts, task.Analysis, task.Problem, task.Solution, conv,
		task.FailureStage, task.FailureReason, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save task: %w", err)
	}
	if r.cache != nil {
		_ = r.cache.Store(ctx, task)
	}
	return nil
}

func (r *TaskRepo) Update(ctx context.Context, qx any, task *model.Task) error {
	assets, conv, texts, err := marshalTaskJSON(task)
	if err != nil {
		return err
	}
	const q = `
UPDATE tasks SET
  status = $2, round = $3, assets = $4, extracted_texts = $5,
  analysis = $6, problem = $7, solution = $8, conversation = $9,
  failure_stage = $10, failure_reason = $11, updated_at = NOW()
WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, qx, q,
		task.ID, string(task.Status), task.Round, assets, texts,
		task.Analysis, task.Problem, task.Solution, conv,
		task.FailureStage, task.FailureReason)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	if r.cache != nil {
		_ = r.cache.Store(ctx, task)
	}
	return nil
}

func (r *TaskRepo) FindByTaskID(ctx context.Context, qx any, taskID string) (*model.Task, error) {
	if r.cache != nil {
		if t, err := r.cache.Get(ctx, taskID); err == nil && t != nil {
			return t, nil
		}
	}
	const q = `
SELECT id, user_id, status, round, model, assets, extracted_texts,
       analysis, problem, solution, conversation,
       failure_stage, failure_reason, created_at, updated_at
FROM tasks WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, qx, q, taskID)
	if err != nil {
		return nil, err
	}
	var (
		t                 model.Task
		status            string
		assets, conv, txt []byte
	)
	if err := row.Scan(&t.ID, &t.UserID, &status, &t.Round, &t.Model,
		&assets, &txt, &t.Analysis, &t.Problem, &t.Solution, &conv,
		&t.FailureStage, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	t.Status = model.TaskStatus(status)
	if len(assets) > 0 {
		if err := json.Unmarshal(assets, &t.Assets); err != nil {
			return nil, fmt.Errorf("decode assets: %w", err)
		}
	}
	if len(txt) > 0 {
		if err := json.Unmarshal(txt, &t.ExtractedTexts); err != nil {
			return nil, fmt.Errorf("decode extracted texts: %w", err)
		}
	}
	if len(conv) > 0 {
		if err := json.Unmarshal(conv, &t.Conversation); err != nil {
			return nil, fmt.Errorf("decode conversation: %w", err)
		}
	}
	if r.cache != nil {
		_ = r.cache.Store(ctx, &t)
	}
	return &t, nil
}

func marshalTaskJSON(task *model.Task) (assets, conv, texts []byte, err error) {
	if assets, err = json.Marshal(task.Assets); err != nil {
		return nil, nil, nil, fmt.Errorf("encode assets: %w", err)
	}
	if conv, err = json.Marshal(task.Conversation); err != nil {
		return nil, nil, nil, fmt.Errorf("encode conversation: %w", err)
	}
	if texts, err = json.Marshal(task.ExtractedTexts); err != nil {
		return nil, nil, nil, fmt.Errorf("encode extracted texts: %w", err)
	}
	return assets, conv, texts, nil
}
