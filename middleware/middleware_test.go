package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-room-engine/services"
)

func status(t *testing.T, app *fiber.App, req *http.Request) int {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("secret", "/ws"))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	app.Get("/ws", func(c *fiber.Ctx) error { return c.SendString("socket") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, req))

	req.Header.Set("Authorization", "Bearer nope")
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, req))

	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, fiber.StatusOK, status(t, app, req))

	req.Header.Set("Authorization", "secret")
	assert.Equal(t, fiber.StatusOK, status(t, app, req), "raw token")

	assert.Equal(t, fiber.StatusOK, status(t, app, httptest.NewRequest(http.MethodGet, "/ws", nil)))
}

func TestUserContextMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(UserContextMiddleware())
	app.Get("/s/me", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": c.Locals("user_id"), "roles": c.Locals("user_roles")})
	})
	app.Get("/open", func(c *fiber.Ctx) error { return c.SendString("ok") })

	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, httptest.NewRequest(http.MethodGet, "/s/me", nil)))
	assert.Equal(t, fiber.StatusOK, status(t, app, httptest.NewRequest(http.MethodGet, "/open", nil)))

	req := httptest.NewRequest(http.MethodGet, "/s/me", nil)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Roles", "admin, gamer,")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

type validator func(token, device string) (*services.ValidateResponse, error)

func (v validator) ValidateToken(_ context.Context, token, device string) (*services.ValidateResponse, error) {
	return v(token, device)
}

func TestWSAuthMiddleware(t *testing.T) {
	auth := validator(func(token, device string) (*services.ValidateResponse, error) {
		if token != "good" {
			return nil, errors.New("expired")
		}
		return &services.ValidateResponse{UserID: "alice", DeviceID: device}, nil
	})
	app := fiber.New()
	app.Get("/ws", WSAuthMiddleware(auth), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})

	upgrade := func(query string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/ws"+query, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		return req
	}

	assert.Equal(t, fiber.StatusUpgradeRequired, status(t, app, httptest.NewRequest(http.MethodGet, "/ws?token=good&device_id=d", nil)))
	assert.Equal(t, fiber.StatusBadRequest, status(t, app, upgrade("?token=good")))
	assert.Equal(t, fiber.StatusUnauthorized, status(t, app, upgrade("?token=bad&device_id=d")))
	assert.Equal(t, fiber.StatusOK, status(t, app, upgrade("?token=good&device_id=d")))
}
