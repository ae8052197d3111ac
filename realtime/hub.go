// Package realtime carries room traffic over WebSocket. One connection
// multiplexes every room of its user; messages are addressed to users, not
// rooms, and reach every open connection of that user.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Message types handled or sent by the transport itself.
const (
	MsgJoinRoom     = "join_room"
	MsgLeaveRoom    = "leave_room"
	MsgGetGameState = "get_game_state"
	MsgMakeMove     = "make_move"
	MsgRebuy        = "rebuy"
	MsgWatchRoom    = "watch_room"
	MsgStartGame    = "start_game"
	MsgPing         = "ping"

	MsgPong        = "pong"
	MsgError       = "error"
	MsgUpdateCoins = "update_coins"
)

// Envelope is the frame of every message in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encode(msgType, roomID, requestID string, data any) ([]byte, error) {
	env := Envelope{Type: msgType, RoomID: roomID, RequestID: requestID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Hub is the registry of open connections, keyed by user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	fanout  *Fanout
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

// UseFanout relays every message through Redis so that connections held by
// other instances receive it too.
func (h *Hub) UseFanout(f *Fanout) {
	h.mu.Lock()
	h.fanout = f
	h.mu.Unlock()
}

// Register adds a connection. It reports whether it is the user's first.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}
	log.Debug().Str("component", "realtime").Str("user_id", c.userID).Int("connections", len(conns)).Msg("connection registered")
	return len(conns) == 1
}

// Unregister removes a connection and closes its send queue. It reports
// whether the user has no connection left.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unregisterLocked(c)
}

func (h *Hub) unregisterLocked(c *Client) bool {
	conns, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	if _, ok := conns[c]; !ok {
		return false
	}
	delete(conns, c)
	c.closeSend()
	if len(conns) == 0 {
		delete(h.clients, c.userID)
		return true
	}
	return false
}

// Connections returns how many connections userID holds on this instance.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// SendToUser delivers a message to every connection of userID.
func (h *Hub) SendToUser(userID, msgType, roomID string, data any) {
	payload, err := encode(msgType, roomID, "", data)
	if err != nil {
		log.Error().Err(err).Str("component", "realtime").Str("type", msgType).Msg("message not encoded")
		return
	}
	h.deliver(userID, payload)

	h.mu.RLock()
	f := h.fanout
	h.mu.RUnlock()
	if f != nil {
		f.Publish(context.Background(), userID, payload)
	}
}

// SendCoins tells userID their new coin balance.
func (h *Hub) SendCoins(userID string, balance int64) {
	h.SendToUser(userID, MsgUpdateCoins, "", map[string]int64{"coins": balance})
}

// deliver queues payload on every local connection of userID. A connection
// whose queue is full is dropped; its client resyncs after reconnecting.
func (h *Hub) deliver(userID string, payload []byte) {
	h.mu.RLock()
	var slow []*Client
	for c := range h.clients[userID] {
		if !c.enqueue(payload) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		h.unregisterLocked(c)
		log.Warn().Str("component", "realtime").Str("user_id", userID).Msg("slow consumer dropped")
	}
	h.mu.Unlock()
}
