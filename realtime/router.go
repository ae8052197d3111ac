package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"

	"game-room-engine/games"
	"game-room-engine/models"
	"game-room-engine/room"
)

const requestTimeout = 10 * time.Second

// Rooms is the part of the room manager the transport drives.
type Rooms interface {
	JoinRoom(ctx context.Context, roomID, userID string) (models.GameParticipant, error)
	LeaveRoom(ctx context.Context, roomID, userID string) error
	GetState(ctx context.Context, roomID, userID string) (room.Snapshot, error)
	Watch(ctx context.Context, roomID, userID string) (room.Snapshot, error)
	StartRoom(ctx context.Context, roomID, userID string) (room.Snapshot, error)
	SubmitMove(ctx context.Context, roomID string, req room.MoveRequest) (uint64, error)
	Rebuy(ctx context.Context, roomID, userID string, amount int64) (int64, error)
	Reconnect(ctx context.Context, roomID, userID string) error
	DisconnectUser(ctx context.Context, userID string)
	RoomsOf(userID string) []string
}

// Router turns inbound envelopes into room operations.
type Router struct {
	hub   *Hub
	rooms Rooms
}

func NewRouter(hub *Hub, rooms Rooms) *Router {
	return &Router{hub: hub, rooms: rooms}
}

// Handler upgrades authenticated requests. The user id is read from the
// "user_id" local set by the auth middleware.
func (rt *Router) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("user_id").(string)
		if userID == "" {
			_ = conn.Close()
			return
		}
		rt.Serve(NewClient(userID, conn))
	})
}

// Serve runs a connection until it closes.
func (rt *Router) Serve(c *Client) {
	rt.Connect(c)
	go c.writePump()
	c.readPump(rt.Handle)
	rt.Disconnect(c)
}

// Connect registers c and marks its user connected in every room.
func (rt *Router) Connect(c *Client) {
	if !rt.hub.Register(c) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	for _, id := range rt.rooms.RoomsOf(c.userID) {
		if err := rt.rooms.Reconnect(ctx, id, c.userID); err != nil {
			log.Debug().Err(err).Str("component", "realtime").Str("room_id", id).Str("user_id", c.userID).Msg("reconnect skipped")
		}
	}
	log.Info().Str("component", "realtime").Str("user_id", c.userID).Msg("user connected")
}

// Disconnect unregisters c. When it was the user's last connection the user
// is marked disconnected in every room.
func (rt *Router) Disconnect(c *Client) {
	if !rt.hub.Unregister(c) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	rt.rooms.DisconnectUser(ctx, c.userID)
	log.Info().Str("component", "realtime").Str("user_id", c.userID).Msg("user disconnected")
}

type moveData struct {
	Move     games.Move `json:"move"`
	TurnSeq  uint64     `json:"turn_seq,omitempty"`
	ClientTS *time.Time `json:"client_ts,omitempty"`
}

type rebuyData struct {
	Amount int64 `json:"amount"`
}

// Handle dispatches one inbound frame. Failures are answered with an error
// message on the same connection.
func (rt *Router) Handle(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.reply(MsgError, "", "", ErrorData{Code: "bad_request", Message: "malformed message"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := rt.dispatch(ctx, c, env); err != nil {
		log.Debug().Err(err).Str("component", "realtime").Str("user_id", c.userID).Str("type", env.Type).
			Str("room_id", env.RoomID).Msg("request rejected")
		c.reply(MsgError, env.RoomID, env.RequestID, ErrorData{Code: models.ErrorCode(err), Message: err.Error()})
	}
}

func (rt *Router) dispatch(ctx context.Context, c *Client, env Envelope) error {
	if env.Type == MsgPing {
		c.reply(MsgPong, "", env.RequestID, nil)
		return nil
	}
	if env.RoomID == "" {
		return fmt.Errorf("%s without room_id: %w", env.Type, models.ErrInvalidConfiguration)
	}

	switch env.Type {
	case MsgJoinRoom:
		if _, err := rt.rooms.JoinRoom(ctx, env.RoomID, c.userID); err != nil {
			return err
		}
		return rt.sendState(ctx, c, env)

	case MsgLeaveRoom:
		return rt.rooms.LeaveRoom(ctx, env.RoomID, c.userID)

	case MsgGetGameState:
		return rt.sendState(ctx, c, env)

	case MsgWatchRoom:
		snap, err := rt.rooms.Watch(ctx, env.RoomID, c.userID)
		if err != nil {
			return err
		}
		c.reply(room.MsgGameUpdate, env.RoomID, env.RequestID, room.Update{Version: snap.Version, Room: snap})
		return nil

	case MsgStartGame:
		_, err := rt.rooms.StartRoom(ctx, env.RoomID, c.userID)
		return err

	case MsgMakeMove:
		var d moveData
		if err := json.Unmarshal(env.Data, &d); err != nil || d.Move.Action == "" {
			return fmt.Errorf("make_move payload: %w", models.ErrInvalidMove)
		}
		_, err := rt.rooms.SubmitMove(ctx, env.RoomID, room.MoveRequest{
			UserID:   c.userID,
			Move:     d.Move,
			TurnSeq:  d.TurnSeq,
			ClientTS: d.ClientTS,
		})
		return err

	case MsgRebuy:
		var d rebuyData
		if err := json.Unmarshal(env.Data, &d); err != nil || d.Amount <= 0 {
			return fmt.Errorf("rebuy amount: %w", models.ErrInvalidConfiguration)
		}
		_, err := rt.rooms.Rebuy(ctx, env.RoomID, c.userID, d.Amount)
		return err
	}
	return fmt.Errorf("unknown message type %q: %w", env.Type, models.ErrInvalidConfiguration)
}

func (rt *Router) sendState(ctx context.Context, c *Client, env Envelope) error {
	snap, err := rt.rooms.GetState(ctx, env.RoomID, c.userID)
	if err != nil {
		return err
	}
	c.reply(room.MsgGameUpdate, env.RoomID, env.RequestID, room.Update{Version: snap.Version, Room: snap})
	return nil
}
