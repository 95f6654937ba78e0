package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"social-go/internal/db"
	"social-go/internal/media"
	"social-go/internal/models"
)

// maxAvatarBody bounds avatar uploads before decoding. Base64 JSON bodies are
// about a third larger than the raw image.
const maxAvatarBody = 8 << 20

type ProfileHandler struct {
	db  *db.DB
	log *log.Logger
}

func NewProfileHandler(db *db.DB, logger *log.Logger) *ProfileHandler {
	return &ProfileHandler{db: db, log: logger}
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.db.GetUserByUsername(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateBio accepts an empty bio to clear it.
func (h *ProfileHandler) UpdateBio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bio string `json:"bio"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	bio := strings.TrimSpace(req.Bio)
	if utf8.RuneCountInString(bio) > models.MaxBioLength {
		writeError(w, h.log, badRequest("Bio must be at most %d characters", models.MaxBioLength))
		return
	}

	user := currentUser(r)
	if err := h.db.UpdateBio(r.Context(), user.Username, bio); err != nil {
		writeError(w, h.log, err)
		return
	}
	user.Bio = bio
	writeJSON(w, http.StatusOK, user)
}

// UploadAvatar takes a multipart "avatar" file or a JSON body whose avatar
// field is a data URL or bare base64.
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBody)

	var src io.Reader
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("avatar")
		if err != nil {
			writeError(w, h.log, badRequest("Missing avatar file"))
			return
		}
		defer file.Close()
		src = file
	} else {
		var req struct {
			Avatar string `json:"avatar"`
		}
		if err := decodeJSONLimit(w, r, &req, maxAvatarBody); err != nil {
			writeError(w, h.log, err)
			return
		}
		if strings.TrimSpace(req.Avatar) == "" {
			writeError(w, h.log, badRequest("Avatar is required"))
			return
		}
		data, err := media.DecodeDataURL(req.Avatar)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		src = bytes.NewReader(data)
	}

	avatar, err := media.ProcessAvatar(src)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	user := currentUser(r)
	if err := h.db.UpdateAvatar(r.Context(), user.Username, avatar); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.Info("avatar updated", "user", user.Username, "bytes", len(avatar))
	user.Avatar = avatar
	writeJSON(w, http.StatusOK, user)
}
