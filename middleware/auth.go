package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"
)

// UserContextMiddleware extracts user identity and roles set by Gateway.
// Routes under /s/ require a user.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := utils.CopyString(strings.TrimSpace(c.Get("X-User-ID")))
		rolesStr := c.Get("X-User-Roles")

		path := c.Path()
		if strings.HasPrefix(path, "/s/") && userID == "" {
			log.Warn().Str("component", "user_ctx").Str("path", path).Msg("X-User-ID missing on secured route")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(rolesStr, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, utils.CopyString(r))
			}
		}

		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)
		c.Locals("otp_not_required", strings.EqualFold(c.Get("X-Otp-Not-Required"), "true"))

		log.Debug().Str("component", "user_ctx").Str("user_id", userID).Strs("roles", roles).Str("path", path).Msg("user context")
		return c.Next()
	}
}
