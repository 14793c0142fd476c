package model

import "time"

// Identity is the authenticated principal behind a request.
type Identity struct {
	UserID string
	Email  string
}

// Session pairs an identity with the credentials the provider issued for it.
type Session struct {
	Identity     Identity
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
