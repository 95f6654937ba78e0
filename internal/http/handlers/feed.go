package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"social-go/internal/db"
	"social-go/internal/events"
	"social-go/internal/media"
	"social-go/internal/models"
)

type FeedHandler struct {
	db    *db.DB
	hub   *events.Hub
	files *media.Store
	log   *log.Logger
}

func NewFeedHandler(db *db.DB, hub *events.Hub, files *media.Store, logger *log.Logger) *FeedHandler {
	return &FeedHandler{db: db, hub: hub, files: files, log: logger}
}

func (h *FeedHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, h.log, badRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}
	posts, err := h.db.ListFeed(r.Context(), currentUser(r).Username, limit, r.URL.Query().Get("before"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// ownedMedia checks that url points at an upload owned by username. An empty
// url is allowed.
func (h *FeedHandler) ownedMedia(ctx context.Context, url, username, prefix string) error {
	if url == "" {
		return nil
	}
	name, ok := strings.CutPrefix(url, h.files.URLPrefix)
	if !ok || name == "" || strings.Contains(name, "/") {
		return badRequest("Media must be one of your uploads")
	}
	m, err := h.db.GetMediaByFilename(ctx, name)
	if errors.Is(err, db.ErrNotFound) {
		return badRequest("Media must be one of your uploads")
	}
	if err != nil {
		return err
	}
	if m.Owner != username || !strings.HasPrefix(m.ContentType, prefix) {
		return badRequest("Media must be one of your uploads")
	}
	return nil
}

func (h *FeedHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		Image   string `json:"image"`
		Video   string `json:"video"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	user := currentUser(r)

	content, err := text(req.Content, "Post content", models.MaxPostLength)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.ownedMedia(r.Context(), req.Image, user.Username, "image/"); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.ownedMedia(r.Context(), req.Video, user.Username, "video/"); err != nil {
		writeError(w, h.log, err)
		return
	}

	post := &models.Post{Author: user.Username, Content: content, Image: req.Image, Video: req.Video}
	if err := h.db.CreatePost(r.Context(), post); err != nil {
		writeError(w, h.log, err)
		return
	}
	post.AuthorAvatar = user.Avatar
	publish(h.hub, events.PostCreated, post)
	writeJSON(w, http.StatusCreated, post)
}

// GetPost returns a post even after it was deleted; Deleted tells clients.
func (h *FeedHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.db.GetPost(r.Context(), mux.Vars(r)["id"], currentUser(r).Username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *FeedHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
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

	user := currentUser(r)
	id := mux.Vars(r)["id"]
	if err := h.db.UpdatePostContent(r.Context(), id, content, user.Username, user.Username); err != nil {
		writeError(w, h.log, err)
		return
	}
	post, err := h.db.GetPost(r.Context(), id, user.Username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	publish(h.hub, events.PostUpdated, post)
	writeJSON(w, http.StatusOK, post)
}

func (h *FeedHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := mux.Vars(r)["id"]
	if err := h.db.SoftDeletePost(r.Context(), id, user.Username, user.Username); err != nil {
		writeError(w, h.log, err)
		return
	}
	publish(h.hub, events.PostDeleted, map[string]string{"id": id})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted"})
}

func (h *FeedHandler) toggle(kind models.ReactionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		id := mux.Vars(r)["id"]
		active, count, err := h.db.ToggleReaction(r.Context(), id, user.Username, kind)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		publish(h.hub, events.PostReaction, map[string]any{
			"postId": id,
			"kind":   kind,
			"user":   user.Username,
			"active": active,
			"count":  count,
		})
		writeJSON(w, http.StatusOK, map[string]any{"active": active, "count": count})
	}
}

func (h *FeedHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	h.toggle(models.ReactionLike)(w, r)
}

func (h *FeedHandler) ToggleLove(w http.ResponseWriter, r *http.Request) {
	h.toggle(models.ReactionLove)(w, r)
}

func (h *FeedHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.db.GetPost(r.Context(), id, ""); err != nil {
		writeError(w, h.log, err)
		return
	}
	comments, err := h.db.ListComments(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *FeedHandler) commentEvent(action string, c *models.Comment) {
	publish(h.hub, events.PostComment, map[string]any{"postId": c.PostID, "action": action, "comment": c})
}

func (h *FeedHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	body, err := text(req.Text, "Comment", models.MaxCommentLength)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	comment := &models.Comment{PostID: mux.Vars(r)["id"], Author: currentUser(r).Username, Text: body}
	if err := h.db.AddComment(r.Context(), comment); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.commentEvent("created", comment)
	writeJSON(w, http.StatusCreated, comment)
}

func (h *FeedHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	body, err := text(req.Text, "Comment", models.MaxCommentLength)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	vars := mux.Vars(r)
	if err := h.db.UpdateComment(r.Context(), vars["id"], vars["cid"], currentUser(r).Username, body); err != nil {
		writeError(w, h.log, err)
		return
	}
	comment, err := h.db.GetComment(r.Context(), vars["id"], vars["cid"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.commentEvent("updated", comment)
	writeJSON(w, http.StatusOK, comment)
}

func (h *FeedHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.db.DeleteComment(r.Context(), vars["id"], vars["cid"], currentUser(r).Username); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.commentEvent("deleted", &models.Comment{ID: vars["cid"], PostID: vars["id"]})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Comment deleted"})
}
