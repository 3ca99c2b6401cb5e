package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/auth"
)

// Authenticator resolves a subscriber bearer token to an account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uuid.UUID, string, error)
}

// SessionAuth authenticates subscribers by their JWT. The account id is
// placed in the request context; handlers pass it down explicitly.
func SessionAuth(a Authenticator, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			id, role, err := a.Authenticate(r.Context(), raw)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) {
					log.Error("session auth failed", "error", err)
					http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
					return
				}
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := WithAccountID(r.Context(), id)
			ctx = context.WithValue(ctx, ctxRoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountIDFromCtx returns the authenticated subscriber.
func AccountIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxAccountKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// WithAccountID returns a context carrying the given account.
func WithAccountID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxAccountKey, id)
}

// RoleFromCtx returns the role claim of the authenticated subscriber.
func RoleFromCtx(ctx context.Context) string {
	role, _ := ctx.Value(ctxRoleKey).(string)
	return role
}
