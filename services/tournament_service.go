package services

import (
	"github.com/gofiber/fiber/v2"

	"game-room-engine/bracket"
	"game-room-engine/models"
)

type TournamentService struct {
	Brackets *bracket.Manager
}

func NewTournamentService(m *bracket.Manager) *TournamentService {
	return &TournamentService{Brackets: m}
}

func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	var req bracket.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.CreatorID = userID(c)
	t, err := s.Brackets.Create(c.UserContext(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

// ListTournaments filters by ?status= when given.
func (s *TournamentService) ListTournaments(c *fiber.Ctx) error {
	ts, err := s.Brackets.List(c.UserContext(), c.Query("status"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"tournaments": ts})
}

func (s *TournamentService) GetTournament(c *fiber.Ctx) error {
	t, err := s.Brackets.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(t)
}

func (s *TournamentService) GetBracket(c *fiber.Ctx) error {
	matches, err := s.Brackets.Bracket(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"matches": matches})
}

func (s *TournamentService) GetStandings(c *fiber.Ctx) error {
	table, err := s.Brackets.Standings(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"standings": table})
}

// OpenRegistration, StartTournament and CancelTournament are limited to the
// creator and admins.
func (s *TournamentService) OpenRegistration(c *fiber.Ctx) error {
	if err := s.authorize(c); err != nil {
		return fail(c, err)
	}
	t, err := s.Brackets.OpenRegistration(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(t)
}

func (s *TournamentService) Register(c *fiber.Ctx) error {
	p, err := s.Brackets.Register(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (s *TournamentService) Unregister(c *fiber.Ctx) error {
	if err := s.Brackets.Unregister(c.UserContext(), c.Params("id"), userID(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "unregistered"})
}

func (s *TournamentService) StartTournament(c *fiber.Ctx) error {
	if err := s.authorize(c); err != nil {
		return fail(c, err)
	}
	t, err := s.Brackets.Start(c.UserContext(), c.Params("id"), true)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(t)
}

func (s *TournamentService) CancelTournament(c *fiber.Ctx) error {
	if err := s.authorize(c); err != nil {
		return fail(c, err)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.BodyParser(&body)
	if body.Reason == "" {
		body.Reason = "cancelled by organizer"
	}
	t, err := s.Brackets.Cancel(c.UserContext(), c.Params("id"), body.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(t)
}

func (s *TournamentService) authorize(c *fiber.Ctx) error {
	if hasRole(c, "admin") {
		return nil
	}
	t, err := s.Brackets.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if t.CreatorID != userID(c) {
		return models.ErrForbidden
	}
	return nil
}
