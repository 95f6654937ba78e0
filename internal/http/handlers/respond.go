package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"social-go/internal/db"
	"social-go/internal/events"
	"social-go/internal/http/middleware"
	"social-go/internal/media"
	"social-go/internal/metrics"
	"social-go/internal/models"
	"social-go/internal/security"
)

const maxJSONBody = 1 << 20

// apiError carries a status and a message safe to show the client.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string {
	return e.msg
}

func badRequest(format string, args ...any) error {
	return &apiError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func forbidden(msg string) error {
	return &apiError{status: http.StatusForbidden, msg: msg}
}

var statusOf = []struct {
	err    error
	status int
	msg    string
}{
	{db.ErrNotFound, http.StatusNotFound, "Not found"},
	{db.ErrUsernameTaken, http.StatusConflict, "Username already taken"},
	{db.ErrInviteRequired, http.StatusBadRequest, "Invite code required"},
	{db.ErrInviteInvalid, http.StatusBadRequest, "Invalid invite code"},
	{db.ErrInviteUsed, http.StatusConflict, "Invite code already used"},
	{db.ErrInviteCodeTaken, http.StatusConflict, "Invite code already exists"},
	{db.ErrAlreadyAdmin, http.StatusConflict, "User is already an admin"},
	{db.ErrGroupNameTaken, http.StatusConflict, "Group name already taken"},
	{db.ErrNotAuthor, http.StatusForbidden, "Only the author can do that"},
	{db.ErrPostDeleted, http.StatusConflict, "Post has been deleted"},
	{db.ErrSessionExpired, http.StatusUnauthorized, "Session expired"},
	{security.ErrPasswordTooShort, http.StatusBadRequest, security.ErrPasswordTooShort.Error()},
	{security.ErrPasswordTooLong, http.StatusBadRequest, security.ErrPasswordTooLong.Error()},
	{security.ErrPasswordBlank, http.StatusBadRequest, security.ErrPasswordBlank.Error()},
	{media.ErrUnsupportedMedia, http.StatusUnsupportedMediaType, media.ErrUnsupportedMedia.Error()},
	{media.ErrTooLarge, http.StatusRequestEntityTooLarge, "File too large"},
	{media.ErrUnsupportedImage, http.StatusBadRequest, "Unsupported image format"},
	{media.ErrImageTooLarge, http.StatusRequestEntityTooLarge, "Image dimensions too large"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and a client message. Unknown errors are
// logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, logger *log.Logger, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		writeJSON(w, ae.status, map[string]string{"error": ae.msg})
		return
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Request too large"})
		return
	}
	for _, m := range statusOf {
		if errors.Is(err, m.err) {
			writeJSON(w, m.status, map[string]string{"error": m.msg})
			return
		}
	}
	logger.Error("request failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return decodeJSONLimit(w, r, v, maxJSONBody)
}

// decodeJSONLimit is decodeJSON for handlers that accept bodies larger than
// maxJSONBody.
func decodeJSONLimit(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return badRequest("Request body required")
		}
		return badRequest("Invalid request")
	}
	return nil
}

// text trims s and checks it holds between 1 and max characters.
func text(s, field string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", badRequest("%s is required", field)
	}
	if utf8.RuneCountInString(s) > max {
		return "", badRequest("%s must be at most %d characters", field, max)
	}
	return s, nil
}

func currentUser(r *http.Request) *models.User {
	return middleware.UserFrom(r.Context())
}

// publish delivers an event and records delivery counts.
func publish(hub *events.Hub, typ string, data any, users ...string) {
	if hub == nil {
		return
	}
	delivered, dropped := hub.Publish(events.Event{Type: typ, Data: data}, users...)
	metrics.EventsPublished.WithLabelValues(typ).Add(float64(delivered))
	if dropped > 0 {
		metrics.EventsDropped.WithLabelValues(typ).Add(float64(dropped))
	}
}
