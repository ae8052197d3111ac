package handlers

import (
	"github.com/gofiber/fiber/v2"

	"game-room-engine/services"
)

func SetupTournamentRoutes(secured fiber.Router, tournamentService *services.TournamentService) {
	secured.Post("/tournaments", tournamentService.CreateTournament)
	secured.Get("/tournaments", tournamentService.ListTournaments)
	secured.Get("/tournaments/:id", tournamentService.GetTournament)
	secured.Get("/tournaments/:id/bracket", tournamentService.GetBracket)
	secured.Get("/tournaments/:id/standings", tournamentService.GetStandings)

	// Organizer (creator or admin)
	secured.Post("/tournaments/:id/open", tournamentService.OpenRegistration)
	secured.Post("/tournaments/:id/start", tournamentService.StartTournament)
	secured.Post("/tournaments/:id/cancel", tournamentService.CancelTournament)

	// Players
	secured.Post("/tournaments/:id/register", tournamentService.Register)
	secured.Post("/tournaments/:id/unregister", tournamentService.Unregister)
}
