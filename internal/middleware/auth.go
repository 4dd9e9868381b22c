package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/AnshRaj112/somnia-backend/internal/apperr"
	"github.com/AnshRaj112/somnia-backend/internal/models"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

type contextKey int

const (
	userKey contextKey = iota
	tokenKey
)

// RequireAuth rejects requests without a valid, unrevoked bearer token and
// stores the user and the raw token in the request context. Lookup failures
// answer 500 instead of 401.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindInternal {
					writeJSONError(w, http.StatusInternalServerError, apperr.ErrInternal.Message)
					return
				}
				writeJSONError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, token)))
		})
	}
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey).(*models.User)
	return u, ok
}

func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// WithUser returns ctx carrying user and token, as RequireAuth would set.
func WithUser(ctx context.Context, user *models.User, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, tokenKey, token)
}
