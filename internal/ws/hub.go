package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client is one websocket connection as seen by the hub.
type Client struct {
	ID   string
	Send chan []byte
	Conn *websocket.Conn // nil in tests that only inspect Send
}

// NewClient allocates a client with a send buffer of the given size.
func NewClient(id string, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{ID: id, Send: make(chan []byte, buffer), Conn: conn}
}

// Audience selects who receives a broadcast.
type Audience int

const (
	// AudienceRoom reaches every client that joined the session.
	AudienceRoom Audience = iota
	// AudienceRoomAndSender is AudienceRoom plus the sender even if it has not joined.
	AudienceRoomAndSender
	// AudienceOthers is AudienceRoom minus the sender.
	AudienceOthers
	// AudienceSender reaches only the sender.
	AudienceSender
)

type BroadcastMessage struct {
	SessionID string
	Sender    *Client
	Audience  Audience
	Data      []byte
}

type membership struct {
	client    *Client
	sessionID string
}

// Hub owns every connected client and the session rooms they joined. All
// mutations and fan-out happen on the Run goroutine, in the order they were
// submitted.
type Hub struct {
	clients    map[*Client]string          // client -> session ID ("" before join)
	rooms      map[string]map[*Client]bool // session ID -> clients
	register   chan *Client
	unregister chan *Client
	join       chan membership
	broadcast  chan BroadcastMessage
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]string),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan membership),
		broadcast:  make(chan BroadcastMessage),
		done:       make(chan struct{}),
	}
}

// Run processes hub traffic until ctx is canceled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			log.Info().Str("module", "ws").Msg("hub stopped")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = ""
			h.mu.Unlock()
			log.Debug().Str("module", "ws").Str("client", client.ID).Msg("client registered")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
			h.mu.Unlock()
		case m := <-h.join:
			h.mu.Lock()
			if prev, ok := h.clients[m.client]; ok {
				h.leaveRoom(m.client, prev)
				h.clients[m.client] = m.sessionID
				if m.sessionID != "" {
					if h.rooms[m.sessionID] == nil {
						h.rooms[m.sessionID] = make(map[*Client]bool)
					}
					h.rooms[m.sessionID][m.client] = true
				}
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			h.deliver(msg)
			h.mu.Unlock()
		}
	}
}

// drop forgets a client and closes its send channel. Callers hold h.mu.
func (h *Hub) drop(client *Client) {
	h.leaveRoom(client, h.clients[client])
	delete(h.clients, client)
	close(client.Send)
}

func (h *Hub) leaveRoom(client *Client, sessionID string) {
	if sessionID == "" {
		return
	}
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
}

func (h *Hub) deliver(msg BroadcastMessage) {
	var targets []*Client
	switch msg.Audience {
	case AudienceSender:
		targets = append(targets, msg.Sender)
	default:
		for client := range h.rooms[msg.SessionID] {
			if msg.Audience == AudienceOthers && client == msg.Sender {
				continue
			}
			targets = append(targets, client)
		}
		if msg.Audience == AudienceRoomAndSender && msg.Sender != nil && !h.rooms[msg.SessionID][msg.Sender] {
			targets = append(targets, msg.Sender)
		}
	}

	for _, client := range targets {
		if client == nil {
			continue
		}
		if _, ok := h.clients[client]; !ok {
			continue
		}
		select {
		case client.Send <- msg.Data:
		default:
			log.Warn().Str("module", "ws").Str("client", client.ID).Msg("send buffer full, dropping client")
			h.drop(client)
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Join moves client into the room of sessionID. An empty sessionID takes it
// out of any room.
func (h *Hub) Join(client *Client, sessionID string) {
	select {
	case h.join <- membership{client: client, sessionID: sessionID}:
	case <-h.done:
	}
}

func (h *Hub) Broadcast(msg BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// RoomSize returns how many connections joined the session.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// ClientCount returns how many connections are registered.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
