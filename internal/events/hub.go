// Package events fans out change notifications to connected clients.
package events

import (
	"sync"
	"time"
)

const (
	PostCreated  = "post.created"
	PostUpdated  = "post.updated"
	PostDeleted  = "post.deleted"
	PostReaction = "post.reaction"
	PostComment  = "post.comment"
	DMMessage    = "dm.message"
	GroupMessage = "group.message"
	GroupMember  = "group.member"
)

type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// Hub delivers events to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

type Subscription struct {
	Username string

	hub  *Hub
	ch   chan Event
	once sync.Once
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a listener for username. The returned subscription's
// channel is closed by Close or when the hub shuts down.
func (h *Hub) Subscribe(username string) *Subscription {
	sub := &Subscription{
		Username: username,
		hub:      h,
		ch:       make(chan Event, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		sub.once.Do(func() {})
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s]; ok {
		delete(s.hub.subs, s)
		s.closeChan()
	}
}

func (s *Subscription) closeChan() {
	s.once.Do(func() { close(s.ch) })
}

// Publish sends ev to the subscribers of the given users, or to everyone when
// no user is named. It returns how many subscribers received the event and
// how many dropped it.
func (h *Hub) Publish(ev Event, users ...string) (delivered, dropped int) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	var audience map[string]bool
	if len(users) > 0 {
		audience = make(map[string]bool, len(users))
		for _, u := range users {
			audience[u] = true
		}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if audience != nil && !audience[sub.Username] {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.closeChan()
		delete(h.subs, sub)
	}
}
