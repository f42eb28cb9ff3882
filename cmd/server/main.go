package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"communitychat/internal/chat"
	"communitychat/internal/config"
	"communitychat/internal/db"
	"communitychat/internal/logging"
	myMiddleware "communitychat/internal/middleware"
	"communitychat/internal/user"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	log := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration failed")
	}
	if cfg.Server.DSN == "" {
		log.Fatal().Msg("server.dsn is not set")
	}
	if cfg.Server.JWTSecret == "" {
		log.Fatal().Msg("server.jwt_secret is not set")
	}

	database, err := db.NewDatabase(cfg.Server.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to postgres failed")
	}
	log.Info().Msg("connected to postgres")

	if err := database.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// Redis is optional: without it the hub fans out within this
	// instance only.
	var redisClient *redis.Client
	if cfg.Server.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Server.RedisAddr})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Fatal().Err(err).Msg("connecting to redis failed")
		}
		log.Info().Msg("connected to redis")
	}

	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.Server.JWTSecret)
	userHandler := user.NewHandler(userService, log)

	chatRepo := chat.NewRepository(database.Conn)
	hub := chat.NewHub(redisClient, chatRepo, log)
	go hub.Run()
	go hub.SubscribeToRedis()

	chatHandler := chat.NewHandler(hub, chatRepo, log)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService, user.SessionCookie)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users", userHandler.ListPeers)
		r.Get("/api/messages/{peer}", chatHandler.GetChatHistory)
		r.Get("/ws", chatHandler.ServeWs)
	})

	log.Info().Str("addr", cfg.Server.Addr).Msg("server starting")
	if err := http.ListenAndServe(cfg.Server.Addr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
