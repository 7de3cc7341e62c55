package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/devspace/internal/apperror"
)

// contextKey is unexported so no other package can collide with our keys.
type contextKey string

const userIDKey contextKey = "userID"

// TokenCookie is the cookie the browser flow stores the session token in.
const TokenCookie = "token"

// RequireAuth rejects requests without a valid token with a JSON 401 whose
// code says whether the token was expired or otherwise invalid.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := Authenticate(r, tokens)
			if err != nil {
				writeUnauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth attaches the user id when a valid token is present and lets
// anonymous requests through unchanged. A bad token is treated as anonymous.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := Authenticate(r, tokens); err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, or ("", false) for
// anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// Authenticate reads the token from, in order, the Authorization bearer
// header, the "token" cookie and the "token" query parameter (WebSocket
// clients cannot set headers), and validates it.
func Authenticate(r *http.Request, tokens *TokenService) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		if c, err := r.Cookie(TokenCookie); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return "", apperror.Unauthorized("authentication required", "")
	}
	return tokens.Validate(raw)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// UnauthorizedError converts a token failure into the AppError the HTTP layer
// renders.
func UnauthorizedError(err error) *apperror.AppError {
	var appErr *apperror.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrTokenExpired):
		return apperror.Unauthorized("token has expired", apperror.CodeTokenExpired)
	default:
		return apperror.Unauthorized("invalid token", apperror.CodeTokenInvalid)
	}
}

// writeUnauthorized mirrors the handler package's error body. It is
// duplicated here because handler imports auth.
func writeUnauthorized(w http.ResponseWriter, err error) {
	appErr := UnauthorizedError(err)
	body := map[string]string{
		"error":   "unauthorized",
		"message": appErr.Message,
	}
	if appErr.Code != "" {
		body["code"] = appErr.Code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(body)
}
