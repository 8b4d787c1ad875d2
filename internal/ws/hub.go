package ws

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ValentinBorsan/SapereHub/internal/session"
)

// An inbound frame from one client, queued for serialized dispatch.
type inbound struct {
	client   *Client
	envelope session.Envelope
}

// Tracks connected clients by group and pushes every event through the
// coordinator one at a time. Run owns group membership and is the only
// goroutine that dispatches events, which is what lets room mutation
// stay free of cross-event races.
type Hub struct {
	// Registered clients by group id. Clients appear here only after
	// join-group; banned participants stay subscribed so they can hear
	// an unban.
	rooms map[string]map[*Client]bool

	// All open connections, joined or not.
	clients map[*Client]bool

	unregister chan *Client
	events     chan inbound

	coordinator *session.Coordinator
	mu          sync.RWMutex
	log         *logrus.Entry
}

func NewHub(registry *session.Registry) *Hub {
	h := &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
		unregister: make(chan *Client),
		events:     make(chan inbound, 256),
		log:        logrus.WithField("component", "hub"),
	}
	h.coordinator = session.NewCoordinator(registry, h)
	return h
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.events:
			h.dispatch(msg)
		}
	}
}

// Tracks a fresh connection. Called from ServeWs before the pumps
// start, so no event from this client can be dispatched first.
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)

	if client.group != "" {
		if clients, ok := h.rooms[client.group]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, client.group)
				h.log.WithField("group_id", client.group).Info("room channel empty")
			}
		}
	}
	close(client.send)
	h.mu.Unlock()

	// Room state itself is never deleted, but a presenter must not keep
	// the slot after their connection is gone.
	h.coordinator.Disconnect(client)
}

func (h *Hub) dispatch(msg inbound) {
	client := msg.client
	env := msg.envelope

	h.mu.RLock()
	open := h.clients[client]
	h.mu.RUnlock()
	if !open {
		return
	}

	if env.Event != session.EvtJoinGroup {
		h.coordinator.HandleEvent(client, env.Event, env.Data)
		return
	}

	groupID := session.JoinGroupID(env.Data)
	if groupID == "" {
		return
	}

	if client.group != "" {
		// One group per connection. Re-joining the same group just
		// refreshes the snapshot.
		if client.group != groupID {
			h.log.WithFields(logrus.Fields{
				"user_id":  client.identity.ID,
				"group_id": groupID,
				"joined":   client.group,
			}).Warn("join for a different group on a joined connection, dropped")
			return
		}
		h.coordinator.Join(client, groupID)
		return
	}

	h.mu.Lock()
	client.group = groupID
	if _, ok := h.rooms[groupID]; !ok {
		h.rooms[groupID] = make(map[*Client]bool)
	}
	h.rooms[groupID][client] = true
	count := len(h.rooms[groupID])
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"group_id":  groupID,
		"user_id":   client.identity.ID,
		"connected": count,
	}).Info("client joined group channel")

	h.coordinator.Join(client, groupID)
}

// session.Broadcaster

func (h *Hub) ToRoom(groupID string, frame []byte) {
	if frame == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[groupID] {
		client.Deliver(frame)
	}
}

func (h *Hub) ToOthers(groupID string, sender session.Peer, frame []byte) {
	if frame == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[groupID] {
		if session.Peer(client) != sender {
			client.Deliver(frame)
		}
	}
}

func (h *Hub) ToParticipant(groupID, participantID string, frame []byte) {
	if frame == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[groupID] {
		if client.identity.ID == participantID {
			client.Deliver(frame)
		}
	}
}

// Stats for the HTTP surface.

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Connected-client counts per joined group.
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	active := make(map[string]int, len(h.rooms))
	for groupID, clients := range h.rooms {
		active[groupID] = len(clients)
	}
	return active
}
