package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"screenshot-ai-assistant/internal/domain/model"
	"screenshot-ai-assistant/internal/domain/ports/adapter"
	"screenshot-ai-assistant/internal/infra/logging"
)

type Middleware func(http.Handler) http.Handler

func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TraceID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tid := uuid.NewString()
			ctx := logging.WithTraceID(r.Context(), tid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequestLog(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logging.With(r.Context(), logger)
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: 200}
			next.ServeHTTP(ww, r)
			l.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("duration", time.Since(start)).
				Msg("http_request")
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the wrapped writer usable for SSE streaming.
func (w *respWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func Recover(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l := logging.With(r.Context(), logger)
					l.Error().Interface("panic", rec).Msg("panic recovered")
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type identityCtxKey struct{}

// IdentityFrom returns the authenticated identity stored by the Auth
// middleware, or nil on unauthenticated routes.
func IdentityFrom(ctx context.Context) *model.Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*model.Identity)
	return id
}

// Response headers carrying rotated credentials after a mid-request refresh.
const (
	HeaderNewAccessToken  = "New-Access-Token"
	HeaderNewRefreshToken = "New-Refresh-Token"
)

// Auth validates the bearer credential and stores the identity in the
// request context. The credential is either "Bearer <access>" or
// "Bearer <access>,<refresh>"; with a refresh token present, an expired
// access token triggers a coordinated refresh and the new pair is surfaced
// via response headers.
func Auth(secret string, provider adapter.IdentityProvider, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				http.Error(w, "missing bearer credential", http.StatusUnauthorized)
				return
			}
			access, refresh := splitCredential(raw)

			if id := validateLocal(secret, access); id != nil {
				serveAs(next, w, r, id)
				return
			}

			if refresh == "" {
				http.Error(w, "credential expired", http.StatusUnauthorized)
				return
			}

			session, err := provider.Refresh(r.Context(), refresh)
			if err != nil {
				logging.With(r.Context(), logger).Warn().Err(err).Msg("session refresh failed")
				http.Error(w, "session refresh failed", http.StatusUnauthorized)
				return
			}
			w.Header().Set(HeaderNewAccessToken, session.AccessToken)
			w.Header().Set(HeaderNewRefreshToken, session.RefreshToken)
			serveAs(next, w, r, &session.Identity)
		})
	}
}

func serveAs(next http.Handler, w http.ResponseWriter, r *http.Request, id *model.Identity) {
	ctx := context.WithValue(r.Context(), identityCtxKey{}, id)
	ctx = logging.WithUserID(ctx, id.UserID)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func splitCredential(raw string) (access, refresh string) {
	if i := strings.IndexByte(raw, ','); i >= 0 {
		return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+1:])
	}
	return strings.TrimSpace(raw), ""
}

// validateLocal checks the access token signature and expiry against the
// shared HS256 secret; nil means expired or malformed.
func validateLocal(secret, accessToken string) *model.Identity {
	if secret == "" || accessToken == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil
	}
	email, _ := claims["email"].(string)
	return &model.Identity{UserID: sub, Email: email}
}
