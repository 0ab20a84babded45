package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warroomgo/internal/config"
	"warroomgo/internal/database/db_client"
	"warroomgo/internal/http/http_server"
	"warroomgo/internal/redis/redis_client"
	"warroomgo/internal/services/auth"
	"warroomgo/internal/telemetry/presencesync"
	"warroomgo/internal/ws"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// 4. Postgres db client (token store)
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	// 5. Token verification boundary
	verifier := auth.NewTokenVerifier(redisClient, pgDb,
		time.Duration(cfg.TokenCacheTTLSeconds)*time.Second)

	// 6. Hub + cross-instance Redis fan-out
	hub := ws.NewHub()
	ws.WireFanout(redisClient, hub, instanceID)

	// 7. Coordinator owning registry and room membership
	coordinator := ws.NewCoordinator(hub, cfg.DefaultCursorColor)

	// 8. Background: occupancy telemetry mirror
	presencesync.Run(ctx, redisClient, coordinator,
		time.Duration(cfg.PresenceSyncSeconds)*time.Second)

	// 9. WS server behind the auth boundary
	wsSrv := ws.NewWsServer(coordinator, verifier)

	// 10. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, coordinator)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
