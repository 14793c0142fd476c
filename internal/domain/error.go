package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidExecContext  = errors.New("invalid executor context")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnknownModel        = errors.New("unknown model")

	// Authentication errors
	ErrCredentialExpired = errors.New("access credential expired")
	ErrRefreshFailed     = errors.New("credential refresh failed")

	// Pipeline errors
	ErrNoAssets       = errors.New("no assets survived upload")
	ErrQueueFull      = errors.New("pipeline queue full")
	ErrRetryExhausted = errors.New("retries exhausted")
)
