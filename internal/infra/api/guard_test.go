package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/domain/model"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   exp.Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

type stubProvider struct {
	session *model.Session
	err     error
	calls   int
}

func (s *stubProvider) Validate(ctx context.Context, accessToken string) (*model.Identity, error) {
	return nil, domain.ErrCredentialExpired
}

func (s *stubProvider) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func authHandler(provider *stubProvider) http.Handler {
	logger := zerolog.Nop()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFrom(r.Context())
		if id == nil {
			http.Error(w, "no identity", http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-User", id.UserID)
		w.WriteHeader(http.StatusOK)
	})
	return Auth(testSecret, provider, &logger)(inner)
}

func TestAuthValidTokenPasses(t *testing.T) {
	h := authHandler(&stubProvider{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-User") != "user-1" {
		t.Errorf("identity not propagated: %q", rec.Header().Get("X-User"))
	}
	if rec.Header().Get(HeaderNewAccessToken) != "" {
		t.Error("no refresh should have happened")
	}
}

func TestAuthMissingCredential(t *testing.T) {
	h := authHandler(&stubProvider{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthExpiredWithoutRefreshRejected(t *testing.T) {
	provider := &stubProvider{}
	h := authHandler(provider)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "user-1", time.Now().Add(-time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if provider.calls != 0 {
		t.Errorf("refresh attempted without a refresh token")
	}
}

func TestAuthExpiredWithRefreshRotates(t *testing.T) {
	provider := &stubProvider{
		session: &model.Session{
			Identity:     model.Identity{UserID: "user-1", Email: "user-1@example.com"},
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
	}
	h := authHandler(provider)

	expired := signToken(t, "user-1", time.Now().Add(-time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+expired+",old-refresh")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if provider.calls != 1 {
		t.Fatalf("refresh calls = %d, want 1", provider.calls)
	}
	if rec.Header().Get(HeaderNewAccessToken) != "new-access" {
		t.Errorf("New-Access-Token = %q", rec.Header().Get(HeaderNewAccessToken))
	}
	if rec.Header().Get(HeaderNewRefreshToken) != "new-refresh" {
		t.Errorf("New-Refresh-Token = %q", rec.Header().Get(HeaderNewRefreshToken))
	}
	if rec.Header().Get("X-User") != "user-1" {
		t.Errorf("identity = %q", rec.Header().Get("X-User"))
	}
}

func TestAuthRefreshFailure401(t *testing.T) {
	provider := &stubProvider{err: errors.New("refresh token already used")}
	h := authHandler(provider)

	expired := signToken(t, "user-1", time.Now().Add(-time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+expired+",stale-refresh")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsWrongSignature(t *testing.T) {
	h := authHandler(&stubProvider{})
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSplitCredential(t *testing.T) {
	a, r := splitCredential("acc,ref")
	if a != "acc" || r != "ref" {
		t.Errorf("got (%q, %q)", a, r)
	}
	a, r = splitCredential("only-access")
	if a != "only-access" || r != "" {
		t.Errorf("got (%q, %q)", a, r)
	}
}
