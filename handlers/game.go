package handlers

import (
	"github.com/gofiber/fiber/v2"

	"game-room-engine/services"
)

func SetupGameRoutes(app *fiber.App, secured fiber.Router, roomService *services.RoomService) {
	// 🔓 Public: catalog, still behind Gateway auth
	app.Get("/games", roomService.ListGames)

	secured.Post("/rooms", roomService.CreateRoom)
	secured.Get("/rooms", roomService.ListRooms)
	secured.Get("/rooms/:id", roomService.GetRoom)
	secured.Post("/rooms/:id/join", roomService.JoinRoom)
	secured.Post("/rooms/:id/leave", roomService.LeaveRoom)
	secured.Post("/rooms/:id/start", roomService.StartRoom)
	secured.Post("/rooms/:id/rebuy", roomService.Rebuy)
	secured.Post("/rooms/:id/moves", roomService.SubmitMove)
}
