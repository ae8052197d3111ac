package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"

	"game-room-engine/services"
)

// TokenValidator checks an end-user access token.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken, deviceID string) (*services.ValidateResponse, error)
}

// WSAuthMiddleware validates `token` and `device_id` from query params before
// the WebSocket upgrade.
//
// Usage:
//
//	app.Get("/ws", middleware.WSAuthMiddleware(authClient), router.Handler())
func WSAuthMiddleware(auth TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
				"error": "websocket upgrade required",
			})
		}

		accessToken := strings.TrimSpace(c.Query("token"))
		deviceID := strings.TrimSpace(c.Query("device_id"))
		if accessToken == "" || deviceID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or device_id in query",
			})
		}

		resp, err := auth.ValidateToken(c.UserContext(), accessToken, deviceID)
		if err != nil {
			log.Warn().Err(err).Str("component", "ws_auth").Str("device_id", deviceID).Msg("validation failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals("user_id", resp.UserID)
		c.Locals("device_id", resp.DeviceID)
		c.Locals("user_roles", resp.Roles)
		c.Locals("otp_not_required", resp.OTPNotRequiredForDevice)

		log.Debug().Str("component", "ws_auth").Str("user_id", resp.UserID).Str("device_id", resp.DeviceID).Msg("authenticated")
		return c.Next()
	}
}
