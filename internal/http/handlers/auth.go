package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"social-go/internal/config"
	"social-go/internal/db"
	"social-go/internal/metrics"
	"social-go/internal/models"
	"social-go/internal/security"
)

type AuthHandler struct {
	db  *db.DB
	sec *security.SessionStore
	cfg *config.Config
	log *log.Logger
}

func NewAuthHandler(db *db.DB, sec *security.SessionStore, cfg *config.Config, logger *log.Logger) *AuthHandler {
	return &AuthHandler{
		db:  db,
		sec: sec,
		cfg: cfg,
		log: logger,
	}
}

type sessionResponse struct {
	Username     string `json:"username"`
	Token        string `json:"token"`
	IsAdmin      bool   `json:"isAdmin"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		InviteCode string `json:"inviteCode"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	username := strings.TrimSpace(req.Username)
	inviteCode := strings.TrimSpace(req.InviteCode)
	if username == "" || req.Password == "" || (inviteCode == "" && h.cfg.InviteRequired()) {
		writeError(w, h.log, badRequest("All fields required."))
		return
	}
	if !models.ValidUsername(username) {
		writeError(w, h.log, badRequest("Username must be 3-32 letters, digits, '.', '_' or '-'"))
		return
	}
	if err := security.ValidatePassword(req.Password); err != nil {
		writeError(w, h.log, err)
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	user := &models.User{Username: username, PasswordHash: hash}
	if err := h.db.CreateUser(r.Context(), user, inviteCode, h.cfg.InviteRequired()); err != nil {
		metrics.AuthFailures.WithLabelValues("register").Inc()
		writeError(w, h.log, err)
		return
	}
	h.log.Info("user registered", "user", username)

	session, err := h.sec.CreateSession(w, r, username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		Username:     username,
		Token:        session.Token,
		IsSuperAdmin: h.cfg.IsSuperAdmin(username),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, h.log, badRequest("All fields required."))
		return
	}

	invalid := &apiError{status: http.StatusUnauthorized, msg: "Invalid username or password"}
	user, err := h.db.GetUserByUsername(r.Context(), username)
	if errors.Is(err, db.ErrNotFound) {
		metrics.AuthFailures.WithLabelValues("unknown_user").Inc()
		writeError(w, h.log, invalid)
		return
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !security.ComparePasswords(user.PasswordHash, req.Password) {
		metrics.AuthFailures.WithLabelValues("bad_password").Inc()
		writeError(w, h.log, invalid)
		return
	}
	if user.Banned {
		metrics.AuthFailures.WithLabelValues("banned").Inc()
		writeError(w, h.log, forbidden("Account banned"))
		return
	}

	session, err := h.sec.CreateSession(w, r, user.Username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Username:     user.Username,
		Token:        session.Token,
		IsAdmin:      user.IsAdmin,
		IsSuperAdmin: h.cfg.IsSuperAdmin(user.Username),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sec.DestroySession(w, r); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	writeJSON(w, http.StatusOK, struct {
		*models.User
		IsSuperAdmin bool `json:"isSuperAdmin"`
	}{user, h.cfg.IsSuperAdmin(user.Username)})
}
