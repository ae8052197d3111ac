package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"game-room-engine/models"
)

// StatusFor maps an engine error to the HTTP status of its response.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrInvalidConfiguration), errors.Is(err, models.ErrInvalidMove):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrNotParticipant), errors.Is(err, models.ErrNotYourTurn):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrRoomFull), errors.Is(err, models.ErrRoomNotJoinable), errors.Is(err, models.ErrRoomNotActive),
		errors.Is(err, models.ErrTooLate), errors.Is(err, models.ErrMatchAlreadyResolved), errors.Is(err, models.ErrAlreadyJoined),
		errors.Is(err, models.ErrTournamentFull), errors.Is(err, models.ErrRegistrationClosed),
		errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrRebuyNotAllowed):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrTransportDisconnect):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// fail writes err as {"error", "code"}. Internal errors are logged and their
// detail withheld.
func fail(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("component", "http").Str("path", c.Path()).Msg("request failed")
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg, "code": models.ErrorCode(err)})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func hasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals("user_roles").([]string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
