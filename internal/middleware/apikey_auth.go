package middleware

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/models"
)

type contextKey string

const (
	ctxAccountKey contextKey = "account"
	ctxRoleKey    contextKey = "role"
	ctxAPIKeyKey  contextKey = "api_key"
)

// APIKeyRepo is the interface used by API key auth middleware.
type APIKeyRepo interface {
	FindByKeyHash(ctx context.Context, keyHash string) (*models.APIKey, error)
}

// APIKeyAuth authenticates internal callers by hashing the Bearer token
// (SHA-256) and looking it up in api_keys. When scopes are given the key
// must carry one of them; admin keys pass every scope check.
func APIKeyAuth(apiKeyRepo APIKeyRepo, scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}

			key, err := apiKeyRepo.FindByKeyHash(r.Context(), HashKey(raw))
			if err != nil || key == nil || !key.IsActive {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
				return
			}
			if len(scopes) > 0 && key.Scope != models.APIKeyScopeAdmin && !slices.Contains(scopes, key.Scope) {
				http.Error(w, `{"error":"api key scope not allowed"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAPIKey(r.Context(), key)))
		})
	}
}

// APIKeyFromCtx returns the authenticated internal caller or nil.
func APIKeyFromCtx(ctx context.Context) *models.APIKey {
	k, _ := ctx.Value(ctxAPIKeyKey).(*models.APIKey)
	return k
}

// WithAPIKey returns a context carrying the given key.
func WithAPIKey(ctx context.Context, k *models.APIKey) context.Context {
	return context.WithValue(ctx, ctxAPIKeyKey, k)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// HashKey is the stored form of a raw API key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewAPIKey mints a random key for an internal caller. The raw key is
// returned once; only its hash and prefix are kept on the model.
func NewAPIKey(name, scope string) (string, *models.APIKey, error) {
	if scope != models.APIKeyScopeFulfillment && scope != models.APIKeyScopeAdmin {
		return "", nil, fmt.Errorf("unknown api key scope %q", scope)
	}
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", nil, fmt.Errorf("generate api key: %w", err)
	}
	raw := "tb_" + hex.EncodeToString(rawBytes)
	return raw, &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   HashKey(raw),
		KeyPrefix: raw[:11],
		Scope:     scope,
		IsActive:  true,
	}, nil
}
