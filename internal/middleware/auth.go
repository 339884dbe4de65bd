package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/iwandwip/intan-kiosk/internal/audit"
	apperrors "github.com/iwandwip/intan-kiosk/internal/errors"
	"github.com/iwandwip/intan-kiosk/internal/httputil"
	"github.com/iwandwip/intan-kiosk/internal/model"
	"github.com/iwandwip/intan-kiosk/internal/util"
)

type contextKey string

const UserContextKey contextKey = "user"

func GetUser(ctx context.Context) *model.UserProfile {
	if user, ok := ctx.Value(UserContextKey).(*model.UserProfile); ok {
		return user
	}
	return nil
}

func WithUser(ctx context.Context, user *model.UserProfile) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// TokenLookup resolves the hash of an API token to its user.
type TokenLookup interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.UserProfile, error)
}

type AuthMiddleware struct {
	users TokenLookup
}

func NewAuthMiddleware(users TokenLookup) *AuthMiddleware {
	return &AuthMiddleware{users: users}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		tokenHash := util.HashToken(token)
		user, err := m.users.FindByTokenHash(r.Context(), tokenHash)
		if err != nil {
			log.Error().Err(err).Msg("auth middleware: database error")
			httputil.WriteError(w, apperrors.Database(err))
			return
		}

		if user == nil {
			log.Warn().Msg("auth middleware: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure})
			httputil.WriteError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireAdmin lets only admin users through. It must run after
// AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		if user == nil {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication"))
			return
		}
		if !user.IsAdmin {
			httputil.WriteError(w, apperrors.Forbidden("Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken reads the bearer token, falling back to the token query
// parameter that EventSource clients use.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	return r.URL.Query().Get("token")
}
