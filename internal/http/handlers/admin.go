package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"social-go/internal/config"
	"social-go/internal/db"
	"social-go/internal/events"
	"social-go/internal/models"
	"social-go/internal/security"
)

// adminLogLimit is how many audit entries the dashboard shows.
const adminLogLimit = 200

type AdminHandler struct {
	db  *db.DB
	hub *events.Hub
	cfg *config.Config
	log *log.Logger
}

func NewAdminHandler(db *db.DB, hub *events.Hub, cfg *config.Config, logger *log.Logger) *AdminHandler {
	return &AdminHandler{db: db, hub: hub, cfg: cfg, log: logger}
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.Stats(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	codes, err := h.db.ListInviteCodes(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

// CreateInvite stores the given code, or a generated one when none is given.
func (h *AdminHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code  string `json:"code"`
		Notes string `json:"notes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		var err error
		if code, err = security.NewInviteCode(); err != nil {
			writeError(w, h.log, err)
			return
		}
	}

	invite := &models.InviteCode{Code: code, Notes: strings.TrimSpace(req.Notes), CreatedBy: currentUser(r).Username}
	if err := h.db.CreateInviteCode(r.Context(), invite); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, invite)
}

func (h *AdminHandler) DeleteInvite(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteInviteCode(r.Context(), mux.Vars(r)["code"], currentUser(r).Username); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Invite code cancelled"})
}

// GetAllUsers lists every user, or those matching ?q= when given.
func (h *AdminHandler) GetAllUsers(w http.ResponseWriter, r *http.Request) {
	var (
		users []models.User
		err   error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		users, err = h.db.SearchUsers(r.Context(), q)
	} else {
		users, err = h.db.GetAllUsers(r.Context())
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ExportUsers sends the user list as a JSON download. Password hashes never
// leave the server.
func (h *AdminHandler) ExportUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.GetAllUsers(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	name := fmt.Sprintf("users-%s.json", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	writeJSON(w, http.StatusOK, users)
}

func (h *AdminHandler) SetBan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Banned bool `json:"banned"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.ban(r, mux.Vars(r)["username"], req.Banned); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": mux.Vars(r)["username"], "banned": req.Banned})
}

func (h *AdminHandler) ban(r *http.Request, username string, banned bool) error {
	by := currentUser(r).Username
	if banned && h.cfg.IsSuperAdmin(username) {
		return forbidden("The super admin cannot be banned")
	}
	if banned && username == by {
		return badRequest("You cannot ban yourself")
	}
	if err := h.db.SetBanned(r.Context(), username, banned, by); err != nil {
		return err
	}
	h.log.Info("ban updated", "user", username, "banned", banned, "by", by)
	return nil
}

func (h *AdminHandler) Promote(w http.ResponseWriter, r *http.Request) {
	by := currentUser(r).Username
	if !h.cfg.IsSuperAdmin(by) {
		writeError(w, h.log, forbidden("Only the super admin can promote users"))
		return
	}
	username := mux.Vars(r)["username"]
	if err := h.db.PromoteAdmin(r.Context(), username, by); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.Info("admin promoted", "user", username, "by", by)
	writeJSON(w, http.StatusOK, map[string]string{"message": "User promoted to admin"})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	by := currentUser(r).Username
	username := mux.Vars(r)["username"]
	if h.cfg.IsSuperAdmin(username) {
		writeError(w, h.log, forbidden("The super admin cannot be deleted"))
		return
	}
	if username == by {
		writeError(w, h.log, badRequest("You cannot delete yourself"))
		return
	}
	if err := h.db.DeleteUser(r.Context(), username, by); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.Info("user deleted", "user", username, "by", by)
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

// ListPosts includes soft-deleted posts.
func (h *AdminHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.db.ListAllPosts(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *AdminHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	content, err := text(req.Content, "Post content", models.MaxPostLength)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.db.UpdatePostContent(r.Context(), id, content, "", currentUser(r).Username); err != nil {
		writeError(w, h.log, err)
		return
	}
	post, err := h.db.GetPost(r.Context(), id, "")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	publish(h.hub, events.PostUpdated, post)
	writeJSON(w, http.StatusOK, post)
}

// DeletePost soft-deletes a live post and purges one that was already
// soft-deleted.
func (h *AdminHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	permanent, err := h.db.ModeratePostDelete(r.Context(), id, currentUser(r).Username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	publish(h.hub, events.PostDeleted, map[string]any{"id": id, "permanent": permanent})
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "permanent": permanent})
}

func (h *AdminHandler) BanAuthor(w http.ResponseWriter, r *http.Request) {
	post, err := h.db.GetPost(r.Context(), mux.Vars(r)["id"], "")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	err = h.ban(r, post.Author, true)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, h.log, badRequest("Post author no longer exists"))
		return
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": post.Author, "banned": true})
}

func (h *AdminHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.db.ListLogs(r.Context(), adminLogLimit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *AdminHandler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.db.ClearLogs(r.Context(), currentUser(r).Username); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logs cleared"})
}
