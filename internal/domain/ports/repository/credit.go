package repository

import (
	"context"

	"screenshot-ai-assistant/internal/domain/model"
)

// CreditRepository tracks per-user credit balances.
type CreditRepository interface {
	Get(ctx context.Context, qx any, userID string) (*model.CreditBalance, error)

	// DecrementOne atomically subtracts one credit, clamped at zero, and
	// returns the remaining balance. Concurrent decrements for the same
	// user must never drive the balance negative.
	DecrementOne(ctx context.Context, qx any, userID string) (remaining int, err error)
}
