package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"

	"game-room-engine/bracket"
	"game-room-engine/config"
	"game-room-engine/economy"
	"game-room-engine/events"
	"game-room-engine/handlers"
	"game-room-engine/middleware"
	"game-room-engine/realtime"
	"game-room-engine/room"
	"game-room-engine/services"
	"game-room-engine/store"
	"game-room-engine/utils"
	"game-room-engine/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage: Postgres when configured, memory otherwise ---
	st := store.NewMemory()
	if cfg.DatabaseURL != "" {
		db, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open database")
		}
		st = store.NewGorm(db)
	} else {
		log.Warn().Msg("DATABASE_URL not set, state is kept in memory only")
	}

	var pub events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		pub = nc
	}
	defer pub.Close()

	// --- Realtime ---
	hub := realtime.NewHub()
	if cfg.RedisURL != "" {
		rdb, err := realtime.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()
		fanout := realtime.NewFanout(rdb, hub)
		hub.UseFanout(fanout)
		go func() {
			if err := fanout.Run(ctx); err != nil {
				log.Error().Err(err).Msg("fanout stopped")
			}
		}()
	}

	// --- Engine ---
	econ := economy.NewService(st.Ledger, pub, cfg.RakePercent, cfg.WinnerBonusPercent)
	econ.OnBalance(hub.SendCoins)
	// settlements outlive the signal context; shutdown drains them
	workCtx, stopWork := context.WithCancel(context.Background())
	settlements := economy.NewQueue(econ, 1024)
	settlements.Start(workCtx, 4)

	rooms := room.NewManager(room.Options{
		Catalog:                cfg.Games,
		Store:                  st.Rooms,
		Economy:                econ,
		Settlements:            settlements,
		Events:                 pub,
		Broadcaster:            hub,
		MaxConsecutiveTimeouts: cfg.MaxConsecutiveTimeouts,
		IdleTTL:                cfg.IdleRoomTTL,
		FinishedTTL:            cfg.FinishedRoomTTL,
		NextHandDelay:          cfg.NextHandDelay,
	})
	brackets := bracket.NewManager(st.Tournaments, econ, rooms, cfg.Games, pub)
	rooms.SetMatchReporter(brackets)

	sched, err := services.StartScheduler(ctx, rooms, brackets, econ, settlements, st.Rooms)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	if cfg.ArchiveEnabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2AccountID, cfg.R2AccessKey, cfg.R2SecretKey, cfg.R2Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize R2 client")
		}
		go workers.PollArchives(ctx, workers.NewArchiveClient(st.Rooms, r2), cfg.ArchiveEvery)
	}

	// --- HTTP ---
	app := fiber.New(handlers.AppConfig())

	// 🔐❗ GLOBAL: Only Gateway requests allowed, except the user-authenticated socket
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, "/ws"))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Device-ID, Idempotency-Key",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	handlers.SetupRoutes(app, handlers.Services{
		Rooms:       services.NewRoomService(rooms, cfg.Games),
		Tournaments: services.NewTournamentService(brackets),
		Wallet:      services.NewWalletService(econ),
		Auth:        services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.ServiceToken),
		Realtime:    realtime.NewRouter(hub, rooms),
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()

	log.Info().Str("port", cfg.Port).Int("games", len(cfg.Games.Games)).Bool("redis", cfg.RedisURL != "").
		Bool("nats", cfg.NATSURL != "").Bool("archive", cfg.ArchiveEnabled()).Msg("game room engine running")
	log.Info().Str("origins", cfg.Origins()).Msg("CORS configured")

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := sched.Shutdown(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown")
	}
	rooms.Close()

	drained := make(chan struct{})
	go func() {
		settlements.Drain()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(15 * time.Second):
		log.Warn().Msg("settlements still pending at shutdown")
	}
	stopWork()
	settlements.Close()
}
