package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"social-go/internal/db"
	"social-go/internal/events"
	"social-go/internal/models"
)

type GroupHandler struct {
	db  *db.DB
	hub *events.Hub
	log *log.Logger
}

func NewGroupHandler(db *db.DB, hub *events.Hub, logger *log.Logger) *GroupHandler {
	return &GroupHandler{db: db, hub: hub, log: logger}
}

// memberGroup loads the group in the route and checks the caller belongs to it.
func (h *GroupHandler) memberGroup(r *http.Request) (*models.Group, error) {
	group, err := h.db.GetGroup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	if !group.HasMember(currentUser(r).Username) {
		return nil, forbidden("You are not a member of this group")
	}
	return group, nil
}

func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.db.ListGroupsForUser(r.Context(), currentUser(r).Username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	name, err := text(req.Name, "Group name", models.MaxGroupNameLength)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	creator := currentUser(r).Username
	group := &models.Group{Name: name, Creator: creator, Members: []string{creator}}
	if err := h.db.CreateGroup(r.Context(), group); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.memberGroup(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// AddMember lets the creator add a user. Adding an existing member is a no-op.
func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		writeError(w, h.log, badRequest("Username is required"))
		return
	}

	group, err := h.db.GetGroup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if group.Creator != currentUser(r).Username {
		writeError(w, h.log, forbidden("Only the group creator can add members"))
		return
	}
	exists, err := h.db.UserExists(r.Context(), username)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !exists {
		writeError(w, h.log, db.ErrNotFound)
		return
	}

	err = h.db.AddGroupMember(r.Context(), group.ID, username)
	if errors.Is(err, db.ErrAlreadyMember) {
		writeJSON(w, http.StatusOK, group)
		return
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	group.Members = append(group.Members, username)
	publish(h.hub, events.GroupMember, map[string]string{"groupId": group.ID, "name": group.Name, "username": username}, group.Members...)
	writeJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	group, err := h.memberGroup(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	msgs, err := h.db.ListGroupMessages(r.Context(), group.ID, r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *GroupHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
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
	group, err := h.memberGroup(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	msg := &models.GroupMessage{GroupID: group.ID, Author: currentUser(r).Username, Text: body}
	if err := h.db.SendGroupMessage(r.Context(), msg); err != nil {
		writeError(w, h.log, err)
		return
	}
	publish(h.hub, events.GroupMessage, msg, group.Members...)
	writeJSON(w, http.StatusCreated, msg)
}
