package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-room-engine/bracket"
	"game-room-engine/config"
	"game-room-engine/economy"
	"game-room-engine/events"
	"game-room-engine/middleware"
	"game-room-engine/realtime"
	"game-room-engine/room"
	"game-room-engine/services"
	"game-room-engine/store"
)

const gatewayToken = "test-gateway-token"

type noAuth struct{}

func (noAuth) ValidateToken(context.Context, string, string) (*services.ValidateResponse, error) {
	return &services.ValidateResponse{UserID: "alice"}, nil
}

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	cat, err := config.LoadCatalog("")
	require.NoError(t, err)

	st := store.NewMemory()
	econ := economy.NewService(st.Ledger, events.Nop{}, 0, 10)
	queue := economy.NewQueue(econ, 16)
	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx, 1)

	hub := realtime.NewHub()
	rooms := room.NewManager(room.Options{
		Catalog:     cat,
		Store:       st.Rooms,
		Economy:     econ,
		Settlements: queue,
		Broadcaster: hub,
		IdleTTL:     time.Hour,
		FinishedTTL: time.Hour,
	})
	brackets := bracket.NewManager(st.Tournaments, econ, rooms, cat, events.Nop{})
	rooms.SetMatchReporter(brackets)
	t.Cleanup(func() {
		rooms.Close()
		cancel()
		queue.Close()
	})

	app := fiber.New(AppConfig())
	app.Use(middleware.GatewayAuthMiddleware(gatewayToken, "/ws"))
	SetupRoutes(app, Services{
		Rooms:       services.NewRoomService(rooms, cat),
		Tournaments: services.NewTournamentService(brackets),
		Wallet:      services.NewWalletService(econ),
		Auth:        noAuth{},
		Realtime:    realtime.NewRouter(hub, rooms),
	})
	return app
}

type call struct {
	method, path string
	user, roles  string
	body         any
}

func do(t *testing.T, app *fiber.App, c call) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Authorization", "Bearer "+gatewayToken)
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}
	if c.roles != "" {
		req.Header.Set("X-User-Roles", c.roles)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func grant(t *testing.T, app *fiber.App, user string, amount int64) {
	t.Helper()
	status, _ := do(t, app, call{method: http.MethodPost, path: "/s/admin/wallets/" + user + "/grant", user: "root", roles: "admin", body: map[string]int64{"amount": amount}})
	require.Equal(t, fiber.StatusOK, status)
}

func TestGatewayAuth(t *testing.T) {
	app := newApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	status, body := do(t, app, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestSecuredRoutesNeedUser(t *testing.T) {
	app := newApp(t)
	status, _ := do(t, app, call{method: http.MethodGet, path: "/s/wallet"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestWebSocketNeedsUpgrade(t *testing.T) {
	app := newApp(t)
	req := httptest.NewRequest(http.MethodGet, "/ws?token=t&device_id=d", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestGameCatalog(t *testing.T) {
	app := newApp(t)
	status, body := do(t, app, call{method: http.MethodGet, path: "/games"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["games"], 7)
}

func TestWallet(t *testing.T) {
	app := newApp(t)

	status, _ := do(t, app, call{method: http.MethodPost, path: "/s/admin/wallets/alice/grant", user: "alice", body: map[string]int64{"amount": 10}})
	assert.Equal(t, fiber.StatusForbidden, status)

	grant(t, app, "alice", 300)
	status, body := do(t, app, call{method: http.MethodGet, path: "/s/wallet", user: "alice"})
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 300, body["coins"])

	status, body = do(t, app, call{method: http.MethodGet, path: "/s/wallet/transactions?limit=5", user: "alice"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["transactions"], 1)
}

func TestRoomFlow(t *testing.T) {
	app := newApp(t)
	grant(t, app, "alice", 500)
	grant(t, app, "bob", 500)

	status, body := do(t, app, call{method: http.MethodPost, path: "/s/rooms", user: "alice", body: map[string]any{"game_type": "tic-tac-toe", "bet": 100}})
	require.Equal(t, fiber.StatusCreated, status, body)
	roomID := body["id"].(string)

	status, body = do(t, app, call{method: http.MethodGet, path: "/s/rooms", user: "bob"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["rooms"], 1)

	status, body = do(t, app, call{method: http.MethodPost, path: "/s/rooms", user: "alice", body: map[string]any{"game_type": "tic-tac-toe", "bet": 5}})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_configuration", body["code"])

	status, _ = do(t, app, call{method: http.MethodPost, path: "/s/rooms/" + roomID + "/join", user: "bob"})
	require.Equal(t, fiber.StatusOK, status)

	status, body = do(t, app, call{method: http.MethodGet, path: "/s/rooms/" + roomID, user: "bob"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "in_progress", body["status"])
	assert.Equal(t, "alice", body["current_turn"])

	move := map[string]any{"move": map[string]any{"action": "place", "data": map[string]int{"index": 4}}}
	status, body = do(t, app, call{method: http.MethodPost, path: "/s/rooms/" + roomID + "/moves", user: "bob", body: move})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "not_your_turn", body["code"])

	status, body = do(t, app, call{method: http.MethodPost, path: "/s/rooms/" + roomID + "/moves", user: "alice", body: move})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.NotZero(t, body["version"])

	status, body = do(t, app, call{method: http.MethodPost, path: "/s/rooms/" + roomID + "/rebuy", user: "alice", body: map[string]int64{"amount": 50}})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "rebuy_not_allowed", body["code"])

	status, body = do(t, app, call{method: http.MethodGet, path: "/s/rooms/missing", user: "alice"})
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "not_found", body["code"])
}

func TestTournamentFlow(t *testing.T) {
	app := newApp(t)

	status, body := do(t, app, call{method: http.MethodPost, path: "/s/tournaments", user: "org", body: map[string]any{
		"name": "Friday Cup", "type": "single_elimination", "game_type": "tic-tac-toe", "entry_fee_coins": 100,
	}})
	require.Equal(t, fiber.StatusCreated, status, body)
	id := body["id"].(string)

	status, _ = do(t, app, call{method: http.MethodPost, path: "/s/tournaments/" + id + "/open", user: "mallory"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body = do(t, app, call{method: http.MethodPost, path: "/s/tournaments/" + id + "/open", user: "org"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "registering", body["status"])

	status, body = do(t, app, call{method: http.MethodPost, path: "/s/tournaments/" + id + "/register", user: "broke"})
	assert.Equal(t, fiber.StatusPaymentRequired, status)
	assert.Equal(t, "insufficient_funds", body["code"])

	for _, p := range []string{"ann", "ben"} {
		grant(t, app, p, 500)
		status, body = do(t, app, call{method: http.MethodPost, path: "/s/tournaments/" + id + "/register", user: p})
		require.Equal(t, fiber.StatusCreated, status, body)
	}
	status, _ = do(t, app, call{method: http.MethodPost, path: "/s/tournaments/" + id + "/register", user: "ann"})
	assert.Equal(t, fiber.StatusConflict, status)

	status, body = do(t, app, call{method: http.MethodPost, path: "/s/tournaments/" + id + "/start", user: "org"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "active", body["status"])

	status, body = do(t, app, call{method: http.MethodGet, path: "/s/tournaments/" + id + "/bracket", user: "ann"})
	require.Equal(t, fiber.StatusOK, status)
	matches := body["matches"].([]any)
	require.Len(t, matches, 1)
	assert.NotEmpty(t, matches[0].(map[string]any)["room_id"])

	status, body = do(t, app, call{method: http.MethodGet, path: "/s/tournaments/" + id + "/standings", user: "ann"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["standings"], 2)

	status, body = do(t, app, call{method: http.MethodPost, path: "/s/tournaments/" + id + "/cancel", user: "root", roles: "admin"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "cancelled", body["status"])

	status, body = do(t, app, call{method: http.MethodGet, path: "/s/wallet", user: "ann"})
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 400, body["coins"], "a started match is not refunded")
}

func TestBackToBackGrantsKeepUserIdentity(t *testing.T) {
	app := newApp(t)
	users := []string{"alice", "bob", "carol"}
	for i, u := range users {
		grant(t, app, u, int64(100*(i+1)))
	}

	for i, u := range users {
		status, body := do(t, app, call{method: http.MethodGet, path: "/s/wallet", user: u})
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, u, body["user_id"])
		assert.EqualValues(t, 100*(i+1), body["coins"], u)
	}

	status, body := do(t, app, call{method: http.MethodPost, path: "/s/rooms", user: "alice", body: map[string]any{"game_type": "tic-tac-toe", "bet": 100}})
	require.Equal(t, fiber.StatusCreated, status, body)
	roomID := body["id"].(string)
	status, body = do(t, app, call{method: http.MethodPost, path: "/s/rooms/" + roomID + "/join", user: "bob"})
	require.Equal(t, fiber.StatusOK, status, body)

	status, body = do(t, app, call{method: http.MethodGet, path: "/s/rooms/" + roomID, user: "carol"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alice", body["current_turn"])
	assert.Equal(t, "alice", body["host_id"])
}
