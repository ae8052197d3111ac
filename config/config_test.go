package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_Default(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)

	tests := []struct {
		game       string
		minPlayers int
		maxPlayers int
	}{
		{"tic-tac-toe", 2, 2},
		{"chess", 2, 2},
		{"memory", 2, 4},
		{"poker", 2, 6},
		{"quiz", 2, 4},
		{"wordle", 1, 4},
		{"codenames", 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.game, func(t *testing.T) {
			g, ok := cat.Get(tt.game)
			require.True(t, ok)
			assert.Equal(t, tt.game, g.Type)
			assert.Equal(t, tt.minPlayers, g.MinPlayers)
			assert.Equal(t, tt.maxPlayers, g.MaxPlayers)
			assert.Positive(t, g.TurnTimeout)
		})
	}

	poker, _ := cat.Get("poker")
	assert.Equal(t, Blinds{SmallBlind: 25, BigBlind: 50}, poker.TableTypes["premium"])
	assert.True(t, poker.AllowRebuy)
	assert.Equal(t, 30*time.Second, poker.TurnTimeout)

	codenames, _ := cat.Get("codenames")
	assert.True(t, codenames.SupportsFormat("2v2"))
	assert.False(t, codenames.SupportsFormat("1v1"))

	chess, _ := cat.Get("chess")
	assert.True(t, chess.SupportsFormat("1v1"))
	assert.False(t, chess.SupportsFormat("2v2"))
}

func TestLoadCatalog_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
games:
  chess:
    min_players: 2
    max_players: 2
    min_bet: 50
    max_bet: 500
    turn_timeout: 90s
`), 0o644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)

	chess, _ := cat.Get("chess")
	assert.Equal(t, int64(50), chess.MinBet)
	assert.Equal(t, 90*time.Second, chess.TurnTimeout)

	_, ok := cat.Get("poker")
	assert.True(t, ok, "games missing from the override keep their defaults")
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", "games: {}"},
		{"bad players", "games:\n  x:\n    min_players: 3\n    max_players: 2\n"},
		{"bad bets", "games:\n  x:\n    min_players: 1\n    max_players: 2\n    min_bet: 10\n    max_bet: 5\n"},
		{"not yaml", "games: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{ServiceToken: "tok", WinnerBonusPercent: 10, MaxConsecutiveTimeouts: 3}
	assert.NoError(t, cfg.Validate())

	cfg.WinnerBonusPercent = 150
	assert.Error(t, cfg.Validate())

	cfg.WinnerBonusPercent = 10
	cfg.ServiceToken = ""
	assert.Error(t, cfg.Validate())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("GAME_SERVICE_TOKEN", "secret")
	t.Setenv("WINNER_BONUS_PERCENT", "25")
	t.Setenv("IDLE_ROOM_TTL", "2m")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(25), cfg.WinnerBonusPercent)
	assert.Equal(t, 2*time.Minute, cfg.IdleRoomTTL)
	assert.Equal(t, "http://a.test,http://b.test", cfg.Origins())
	assert.NotNil(t, cfg.Games)
	assert.False(t, cfg.ArchiveEnabled())

	t.Setenv("RAKE_PERCENT", "abc")
	_, err = Load()
	assert.Error(t, err)
}
