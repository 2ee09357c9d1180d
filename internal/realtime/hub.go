package realtime

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
)

const (
	EventOnlineUsers  = "onlineUsers"
	EventNewMessage   = "newMessage"
	EventMessageSent  = "messageSent"
	EventMessagesSeen = "messagesSeen"
	EventTyping       = "typing"
	EventNotification = "notification"
	EventError        = "error"

	EventSendMessage = "sendMessage"
	EventMarkSeen    = "markMessagesAsSeen"
	EventStartTyping = "startTyping"
	EventStopTyping  = "stopTyping"
)

// Inbound is a frame received from a client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is a frame pushed to clients.
type Outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Hub maps user ids to their open connections. A user may hold several at
// once, one per tab or device. It is the only owner of that map.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	logger  *slog.Logger

	onPresence func(userID string, online bool)
	onCount    func(n int)
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// OnPresence registers a callback fired when a user's first connection opens
// or last connection closes.
func (h *Hub) OnPresence(fn func(userID string, online bool)) {
	h.onPresence = fn
}

func (h *Hub) OnCount(fn func(n int)) {
	h.onCount = fn
}

// Add registers c and reports whether it is the user's first connection.
func (h *Hub) Add(c *Client) bool {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	n := h.countLocked()
	h.mu.Unlock()

	h.changed(c.userID, !ok, true, n)
	return !ok
}

// Remove unregisters c and reports whether the user has gone offline.
func (h *Hub) Remove(c *Client) bool {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	if _, present := set[c]; !present {
		h.mu.Unlock()
		return false
	}
	delete(set, c)
	last := len(set) == 0
	if last {
		delete(h.clients, c.userID)
	}
	n := h.countLocked()
	h.mu.Unlock()

	c.close()
	h.changed(c.userID, last, false, n)
	return last
}

func (h *Hub) changed(userID string, edge, online bool, n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
	if !edge {
		return
	}
	if h.onPresence != nil {
		h.onPresence(userID, online)
	}
	h.Broadcast(Outbound{Event: EventOnlineUsers, Data: h.OnlineUsers()})
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) Lookup(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.clients[userID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	users := make([]string, 0, len(h.clients))
	for id := range h.clients {
		users = append(users, id)
	}
	h.mu.RUnlock()
	sort.Strings(users)
	return users
}

// SendToUser pushes msg to every connection of userID and returns how many
// connections accepted it.
func (h *Hub) SendToUser(userID string, msg Outbound) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode realtime event", "event", msg.Event, "error", err)
		return 0
	}
	delivered := 0
	for _, c := range h.Lookup(userID) {
		if c.enqueue(payload) {
			delivered++
		} else {
			h.logger.Warn("Dropping slow websocket client", "user_id", userID)
			go h.Remove(c)
		}
	}
	return delivered
}

func (h *Hub) Broadcast(msg Outbound) {
	for _, userID := range h.OnlineUsers() {
		h.SendToUser(userID, msg)
	}
}

// Close drops every connection; used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()
	for _, set := range all {
		for c := range set {
			c.close()
		}
	}
}
