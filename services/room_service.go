package services

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"game-room-engine/config"
	"game-room-engine/games"
	"game-room-engine/room"
)

type RoomService struct {
	Rooms   *room.Manager
	Catalog *config.Catalog
}

func NewRoomService(rooms *room.Manager, catalog *config.Catalog) *RoomService {
	return &RoomService{Rooms: rooms, Catalog: catalog}
}

// ListGames returns the game catalog.
func (s *RoomService) ListGames(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"games": s.Catalog.List()})
}

func (s *RoomService) CreateRoom(c *fiber.Ctx) error {
	var req room.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.GameType == "" {
		return badRequest(c, "game_type is required")
	}
	req.HostID = userID(c)

	snap, err := s.Rooms.CreateRoom(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(snap)
}

// ListRooms lists waiting lobby rooms, optionally of one game.
func (s *RoomService) ListRooms(c *fiber.Ctx) error {
	rooms, err := s.Rooms.ListRooms(c.UserContext(), c.Query("game_type"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

func (s *RoomService) GetRoom(c *fiber.Ctx) error {
	snap, err := s.Rooms.GetState(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(snap)
}

func (s *RoomService) JoinRoom(c *fiber.Ctx) error {
	p, err := s.Rooms.JoinRoom(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

func (s *RoomService) LeaveRoom(c *fiber.Ctx) error {
	if err := s.Rooms.LeaveRoom(c.UserContext(), c.Params("id"), userID(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "left room"})
}

func (s *RoomService) StartRoom(c *fiber.Ctx) error {
	snap, err := s.Rooms.StartRoom(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(snap)
}

func (s *RoomService) Rebuy(c *fiber.Ctx) error {
	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil || body.Amount <= 0 {
		return badRequest(c, "amount must be a positive integer")
	}
	balance, err := s.Rooms.Rebuy(c.UserContext(), c.Params("id"), userID(c), body.Amount)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"coins": balance})
}

func (s *RoomService) SubmitMove(c *fiber.Ctx) error {
	var body struct {
		Move     games.Move `json:"move"`
		TurnSeq  uint64     `json:"turn_seq"`
		ClientTS *time.Time `json:"client_ts"`
	}
	if err := c.BodyParser(&body); err != nil || body.Move.Action == "" {
		return badRequest(c, "move.action is required")
	}
	version, err := s.Rooms.SubmitMove(c.UserContext(), c.Params("id"), room.MoveRequest{
		UserID:   userID(c),
		Move:     body.Move,
		TurnSeq:  body.TurnSeq,
		ClientTS: body.ClientTS,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"version": version})
}
