package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"social-go/internal/config"
	"social-go/internal/db"
	"social-go/internal/models"
	"social-go/internal/security"
)

type contextKey string

const contextKeyUser = contextKey("user")

// WithUser returns ctx carrying the authenticated user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, user)
}

// UserFrom returns the user set by Authorization, or nil.
func UserFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(contextKeyUser).(*models.User)
	return user
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Authorization resolves the session and loads the user. Missing or expired
// sessions get 401; banned users get 403.
func Authorization(sessions *security.SessionStore, database *db.DB, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := sessions.GetSession(r)
			switch {
			case errors.Is(err, security.ErrNoSession), errors.Is(err, db.ErrNotFound):
				deny(w, http.StatusUnauthorized, "Not signed in")
				return
			case errors.Is(err, db.ErrSessionExpired):
				deny(w, http.StatusUnauthorized, "Session expired")
				return
			case err != nil:
				logger.Error("session lookup failed", "err", err)
				deny(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			user, err := database.GetUserByUsername(r.Context(), session.Username)
			if errors.Is(err, db.ErrNotFound) {
				deny(w, http.StatusUnauthorized, "Not signed in")
				return
			}
			if err != nil {
				logger.Error("user lookup failed", "err", err, "user", session.Username)
				deny(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if user.Banned {
				logger.Info("banned user rejected", "user", user.Username)
				deny(w, http.StatusForbidden, "Account banned")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// Admin lets through admins and configured super admins. It must run after
// Authorization.
func Admin(cfg *config.Config, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFrom(r.Context())
			if user == nil {
				deny(w, http.StatusUnauthorized, "Not signed in")
				return
			}
			if !user.IsAdmin && !cfg.IsSuperAdmin(user.Username) {
				logger.Warn("admin access denied", "user", user.Username, "path", r.URL.Path)
				deny(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
