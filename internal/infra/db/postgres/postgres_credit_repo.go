package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/repository"
)

var _ repository.CreditRepository = (*CreditRepo)(nil)

type CreditRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCreditRepo(pool *pgxpool.Pool) *CreditRepo {
	return &CreditRepo{pool: pool}
}

func (r *CreditRepo) Get(ctx context.Context, qx any, userID string) (*model.CreditBalance, error) {
	const q = `SELECT user_id, total_credits, remaining_credits, updated_at FROM user_credits WHERE user_id = $1;`
	row, err := pickRow(ctx, r.pool, qx, q, userID)
	if err != nil {
		return nil, err
	}
	var b model.CreditBalance
	if err := row.Scan(&b.UserID, &b.TotalCredits, &b.RemainingCredits, &b.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get credits: %w", err)
	}
	return &b, nil
}

// DecrementOne performs the subtraction in a single UPDATE so concurrent
// tasks for the same user cannot race the balance below zero.
func (r *CreditRepo) DecrementOne(ctx context.Context, qx any, userID string) (int, error) {
	const q = `
UPDATE user_credits
SET remaining_credits = GREATEST(remaining_credits - 1, 0), updated_at = NOW()
WHERE user_id = $1
RETURNING remaining_credits;`
	row, err := pickRow(ctx, r.pool, qx, q, userID)
	if err != nil {
		return 0, err
	}
	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if err == pgx.ErrNoRows {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("decrement credits: %w", err)
	}
	return remaining, nil
}
