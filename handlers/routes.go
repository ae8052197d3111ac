package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"game-room-engine/middleware"
	"game-room-engine/realtime"
	"game-room-engine/services"
)

// Services groups everything the HTTP surface serves.
type Services struct {
	Rooms       *services.RoomService
	Tournaments *services.TournamentService
	Wallet      *services.WalletService
	Auth        middleware.TokenValidator
	Realtime    *realtime.Router
}

// AppConfig is the fiber configuration of the service. Request strings are
// immutable since user and room ids end up as keys in long-lived state.
func AppConfig() fiber.Config {
	return fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		Immutable:    true,
	}
}

// SetupRoutes mounts every route. Gateway auth is applied by the caller.
func SetupRoutes(app *fiber.App, s Services) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if s.Realtime != nil {
		app.Get("/ws", middleware.WSAuthMiddleware(s.Auth), s.Realtime.Handler())
	}

	// 🔐 Secured routes, user context required
	secured := app.Group("/s", middleware.UserContextMiddleware())
	SetupGameRoutes(app, secured, s.Rooms)
	SetupTournamentRoutes(secured, s.Tournaments)
	SetupWalletRoutes(secured, s.Wallet)
}
