package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kisanai/backend/internal/logger"
	"github.com/kisanai/backend/internal/models"
	"github.com/kisanai/backend/internal/services"
)

type contextKey string

const sessionKey contextKey = "session"

// RequireSession rejects requests without a valid bearer token and stores
// the verified session in the request context.
func RequireSession(sessions services.SessionManager, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Authorization header required"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid authorization header format"))
				return
			}

			sess, err := sessions.Authenticate(r.Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				if !errors.Is(err, services.ErrInvalidSession) && !errors.Is(err, services.ErrSessionRevoked) {
					log.Error("session check failed", "path", r.URL.Path, "error", err)
					writeJSON(w, http.StatusServiceUnavailable, models.NewErrorResponse("Authentication unavailable"))
					return
				}
				writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

func WithSession(ctx context.Context, sess *models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// GetSession returns the verified session, or nil outside RequireSession.
func GetSession(ctx context.Context) *models.Session {
	sess, _ := ctx.Value(sessionKey).(*models.Session)
	return sess
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	if sess := GetSession(ctx); sess != nil {
		return sess.UserID
	}
	return ""
}

func GetUserEmail(ctx context.Context) string {
	if sess := GetSession(ctx); sess != nil {
		return sess.Email
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
