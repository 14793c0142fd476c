package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
)

var _ adapter.IdentityProvider = (*GoTrueAdapter)(nil)

// GoTrueAdapter talks to a GoTrue auth server (Supabase Auth). Validate
// resolves an access token via /user; Refresh exchanges a refresh token
// at /token?grant_type=refresh_token.
type GoTrueAdapter struct {
	base   string
	apiKey string
	client *http.Client
}

func NewGoTrueAdapter(base, apiKey string) (*GoTrueAdapter, error) {
	if base == "" || apiKey == "" {
		return nil, errors.New("gotrue: url and api key are required")
	}
	return &GoTrueAdapter{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *GoTrueAdapter) Validate(ctx context.Context, accessToken string) (*model.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, domain.ErrCredentialExpired
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("gotrue user http %d: %s", resp.StatusCode, string(b))
	}

	var payload struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.ID == "" {
		return nil, domain.ErrCredentialExpired
	}
	return &model.Identity{UserID: payload.ID, Email: payload.Email}, nil
}

func (g *GoTrueAdapter) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	body, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.base+"/auth/v1/token?grant_type=refresh_token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		// The provider's error text distinguishes a reused token from a bad
		// one; the refresh coordinator keys its self-heal off that text.
		var ge struct {
			ErrorDescription string `json:"error_description"`
			Msg              string `json:"msg"`
		}
		_ = json.Unmarshal(raw, &ge)
		detail := ge.ErrorDescription
		if detail == "" {
			detail = ge.Msg
		}
		if detail == "" {
			detail = string(raw)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrRefreshFailed, detail)
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		User         struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if payload.AccessToken == "" {
		return nil, domain.ErrRefreshFailed
	}
	return &model.Session{
		Identity:     model.Identity{UserID: payload.User.ID, Email: payload.User.Email},
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}
