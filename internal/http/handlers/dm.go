package handlers

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"social-go/internal/db"
	"social-go/internal/events"
	"social-go/internal/models"
)

type DMHandler struct {
	db  *db.DB
	hub *events.Hub
	log *log.Logger
}

func NewDMHandler(db *db.DB, hub *events.Hub, logger *log.Logger) *DMHandler {
	return &DMHandler{db: db, hub: hub, log: logger}
}

// ListUsers returns everyone the caller could message.
func (h *DMHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	names, err := h.db.ListUsernames(r.Context(), currentUser(r).Username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *DMHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convos, err := h.db.ListConversations(r.Context(), currentUser(r).Username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convos)
}

func (h *DMHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.db.ListDirectMessages(r.Context(), currentUser(r).Username, mux.Vars(r)["user"], r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *DMHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	body, err := text(req.Text, "Message", models.MaxMessageLength)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	sender := currentUser(r).Username
	recipient := mux.Vars(r)["user"]
	if recipient == sender {
		writeError(w, h.log, badRequest("You cannot message yourself"))
		return
	}
	exists, err := h.db.UserExists(r.Context(), recipient)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !exists {
		writeError(w, h.log, db.ErrNotFound)
		return
	}

	msg := &models.DirectMessage{Sender: sender, Recipient: recipient, Text: body}
	if err := h.db.SendDirectMessage(r.Context(), msg); err != nil {
		writeError(w, h.log, err)
		return
	}
	publish(h.hub, events.DMMessage, msg, sender, recipient)
	writeJSON(w, http.StatusCreated, msg)
}
