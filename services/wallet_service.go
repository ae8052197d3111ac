package services

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"

	"game-room-engine/economy"
)

type WalletService struct {
	Economy *economy.Service
}

func NewWalletService(econ *economy.Service) *WalletService {
	return &WalletService{Economy: econ}
}

// GetWallet returns the caller's coin balance.
func (s *WalletService) GetWallet(c *fiber.Ctx) error {
	uid := userID(c)
	balance, err := s.Economy.Balance(c.UserContext(), uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"user_id": uid, "coins": balance})
}

// GetTransactions returns the caller's latest ledger entries, newest first.
func (s *WalletService) GetTransactions(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	txs, err := s.Economy.Transactions(c.UserContext(), userID(c), limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"transactions": txs})
}

// Grant credits coins to a user. Admin only; an Idempotency-Key header makes
// retries safe.
func (s *WalletService) Grant(c *fiber.Ctx) error {
	if !hasRole(c, "admin") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
	}
	var body struct {
		Amount int64  `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil || body.Amount <= 0 {
		return badRequest(c, "amount must be a positive integer")
	}
	if body.Reason == "" {
		body.Reason = "admin grant"
	}
	target := utils.CopyString(c.Params("user_id"))
	key := utils.CopyString(c.Get("Idempotency-Key"))
	balance, err := s.Economy.Grant(c.UserContext(), key, target, body.Amount, body.Reason)
	if err != nil {
		return fail(c, err)
	}
	log.Info().Str("component", "wallet").Str("admin_id", userID(c)).Str("user_id", target).
		Int64("amount", body.Amount).Msg("coins granted")
	return c.JSON(fiber.Map{"user_id": target, "coins": balance})
}
