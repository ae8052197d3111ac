package handlers

import (
	"github.com/gofiber/fiber/v2"

	"game-room-engine/services"
)

func SetupWalletRoutes(secured fiber.Router, walletService *services.WalletService) {
	secured.Get("/wallet", walletService.GetWallet)
	secured.Get("/wallet/transactions", walletService.GetTransactions)

	// 🔒 Admin-only
	admin := secured.Group("/admin")
	admin.Post("/wallets/:user_id/grant", walletService.Grant)
}
