package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every runtime setting of the service.
type Config struct {
	Port           string
	DatabaseURL    string // empty: in-memory store
	ServiceToken   string
	AuthServiceURL string
	AllowedOrigins string
	LogLevel       string
	LogFormat      string

	WinnerBonusPercent     int64
	RakePercent            int64
	MaxConsecutiveTimeouts int
	IdleRoomTTL            time.Duration
	FinishedRoomTTL        time.Duration
	NextHandDelay          time.Duration

	RedisURL string
	NATSURL  string

	R2AccountID  string
	R2AccessKey  string
	R2SecretKey  string
	R2Bucket     string
	ArchiveEvery time.Duration

	GamesConfigPath string
	Games           *Catalog
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, reading environment variables directly")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "5200"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ServiceToken:   os.Getenv("GAME_SERVICE_TOKEN"),
		AuthServiceURL: os.Getenv("AUTH_SERVICE_URL"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),

		RedisURL: os.Getenv("REDIS_URL"),
		NATSURL:  os.Getenv("NATS_URL"),

		R2AccountID: os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKey: os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretKey: os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:    os.Getenv("R2_BUCKET_NAME"),

		GamesConfigPath: os.Getenv("GAMES_CONFIG_PATH"),
	}

	var err error
	if cfg.WinnerBonusPercent, err = getInt("WINNER_BONUS_PERCENT", 10); err != nil {
		return nil, err
	}
	if cfg.RakePercent, err = getInt("RAKE_PERCENT", 0); err != nil {
		return nil, err
	}
	timeouts, err := getInt("MAX_CONSECUTIVE_TIMEOUTS", 3)
	if err != nil {
		return nil, err
	}
	cfg.MaxConsecutiveTimeouts = int(timeouts)
	if cfg.IdleRoomTTL, err = getDuration("IDLE_ROOM_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FinishedRoomTTL, err = getDuration("FINISHED_ROOM_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.NextHandDelay, err = getDuration("NEXT_HAND_DELAY", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.ArchiveEvery, err = getDuration("ARCHIVE_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Games, err = LoadCatalog(cfg.GamesConfigPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.ServiceToken == "" {
		return fmt.Errorf("GAME_SERVICE_TOKEN environment variable not set")
	}
	if c.WinnerBonusPercent < 0 || c.WinnerBonusPercent > 100 {
		return fmt.Errorf("WINNER_BONUS_PERCENT must be within 0..100, got %d", c.WinnerBonusPercent)
	}
	if c.RakePercent < 0 || c.RakePercent > 50 {
		return fmt.Errorf("RAKE_PERCENT must be within 0..50, got %d", c.RakePercent)
	}
	if c.MaxConsecutiveTimeouts < 1 {
		return fmt.Errorf("MAX_CONSECUTIVE_TIMEOUTS must be positive")
	}
	return nil
}

// ArchiveEnabled reports whether R2 credentials are configured.
func (c *Config) ArchiveEnabled() bool {
	return c.R2AccountID != "" && c.R2Bucket != ""
}

// Origins returns the trimmed CORS origin list joined for fiber.
func (c *Config) Origins() string {
	list := strings.Split(c.AllowedOrigins, ",")
	for i, origin := range list {
		list[i] = strings.TrimSpace(origin)
	}
	return strings.Join(list, ",")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
