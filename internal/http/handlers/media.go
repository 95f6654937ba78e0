package handlers

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"social-go/internal/db"
	"social-go/internal/media"
)

// multipartOverhead leaves room for form boundaries and headers on top of the
// file size limit.
const multipartOverhead = 1 << 20

type MediaHandler struct {
	db    *db.DB
	files *media.Store
	log   *log.Logger
}

func NewMediaHandler(db *db.DB, files *media.Store, logger *log.Logger) *MediaHandler {
	return &MediaHandler{db: db, files: files, log: logger}
}

func (h *MediaHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.files.MaxBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.log, badRequest("Failed to get file"))
		return
	}
	defer file.Close()

	user := currentUser(r)
	m, err := h.files.Save(file, header.Filename, user.Username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.db.SaveMedia(r.Context(), m); err != nil {
		h.files.Remove(m)
		writeError(w, h.log, err)
		return
	}
	h.log.Info("media uploaded", "user", user.Username, "file", m.Filename, "type", m.ContentType, "size", m.Size)
	writeJSON(w, http.StatusCreated, m)
}

func (h *MediaHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.db.GetUserMedia(r.Context(), currentUser(r).Username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	for i := range files {
		files[i].URL = h.files.URL(files[i].Filename)
	}
	writeJSON(w, http.StatusOK, files)
}

// DeleteFile removes an upload owned by the caller. Other users' media
// reports 404 so ids cannot be probed.
func (h *MediaHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	m, err := h.db.GetMedia(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if m.Owner != currentUser(r).Username {
		writeError(w, h.log, db.ErrNotFound)
		return
	}
	if err := h.db.DeleteMedia(r.Context(), m.ID); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.files.Remove(m); err != nil {
		h.log.Warn("media file not removed", "file", m.Filename, "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}
