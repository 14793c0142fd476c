package adapter

import (
	"context"

	"screenshot-ai-assistant/internal/domain/model"
)

// IdentityProvider validates access credentials and exchanges refresh
// credentials for a new session. Refresh tokens are single-use at the
// provider; concurrent refreshes with the same token are rejected there,
// which is why callers go through the refresh coordinator.
type IdentityProvider interface {
	Validate(ctx context.Context, accessToken string) (*model.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (*model.Session, error)
}
