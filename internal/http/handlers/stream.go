package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"social-go/internal/events"
	"social-go/internal/metrics"
)

type StreamSettings struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

func DefaultStreamSettings() StreamSettings {
	return StreamSettings{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  75 * time.Second,
	}
}

// StreamHandler pushes hub events to a websocket client.
type StreamHandler struct {
	hub      *events.Hub
	settings StreamSettings
	upgrader websocket.Upgrader
	log      *log.Logger
}

func NewStreamHandler(hub *events.Hub, settings StreamSettings, logger *log.Logger) *StreamHandler {
	return &StreamHandler{
		hub:      hub,
		settings: settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: logger,
	}
}

func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.log.Debug("websocket upgrade failed", "user", user.Username, "err", err)
		return
	}
	defer ws.Close()

	sub := h.hub.Subscribe(user.Username)
	defer sub.Close()

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()
	h.log.Debug("stream connected", "user", user.Username)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only serve to process pongs and notice the client going away.
	go func() {
		defer cancel()
		ws.SetReadLimit(512)
		ws.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(h.settings.ReadTimeout))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.settings.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug("stream closed", "user", user.Username)
			return
		case ev, ok := <-sub.Events():
			if !ok {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(h.settings.WriteTimeout))
				return
			}
			ws.SetWriteDeadline(time.Now().Add(h.settings.WriteTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				h.log.Debug("stream write failed", "user", user.Username, "err", err)
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.settings.WriteTimeout)); err != nil {
				return
			}
		}
	}
}
