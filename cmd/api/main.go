package main

import (
	"log"
	"time"

	"peerlearn-chat/config"
	"peerlearn-chat/internal/domain/conversation"
	"peerlearn-chat/internal/domain/message"
	"peerlearn-chat/internal/domain/user"
	"peerlearn-chat/internal/events"
	"peerlearn-chat/internal/handler"
	"peerlearn-chat/internal/presence"
	"peerlearn-chat/internal/redis"
	"peerlearn-chat/internal/repository"
	"peerlearn-chat/internal/server"
	"peerlearn-chat/internal/services"
	"peerlearn-chat/pkg/database"
	"peerlearn-chat/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == "release" {
		mode = logger.ProductionMode
	}
	l := logger.New(mode)
	logger.SetGlobalLogger(l)
	zap.ReplaceGlobals(l.Logger)

	// Connect to Database
	database.Connect(cfg)

	if err := database.DB.AutoMigrate(
		&user.User{},
		&conversation.Conversation{},
		&conversation.Participant{},
		&conversation.ConversationSequence{},
		&message.Message{},
		&message.Reaction{},
		&message.Receipt{},
	); err != nil {
		log.Fatalf("Failed to apply GORM migrations: %v", err)
	}

	redisClient := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	limiter := redis.NewRateLimiter(redisClient, redis.DefaultRateLimitConfig())
	store := presence.NewStore(redisClient, 5*time.Minute)
	bridge := events.NewRedisBridge(redisClient, cfg.InstanceID)

	messageRepo := repository.NewMessageRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	userRepo := repository.NewUserRepository(database.DB)

	hub := server.NewHub(presence.NewLedger(), store, userRepo, bridge)

	authService := services.NewAuthService(cfg)
	engagementService := services.NewEngagementService(userRepo, l)
	chatService := services.NewChatService(messageRepo, conversationRepo, engagementService, hub, l)
	receiptService := services.NewReceiptService(messageRepo, conversationRepo, hub, l)
	reactionService := services.NewReactionService(messageRepo, conversationRepo, hub, l)

	hub.AttachDispatcher(server.NewDispatcher(chatService, receiptService, reactionService, hub))

	if err := bridge.Start(hub); err != nil {
		log.Fatalf("Failed to start event bridge: %v", err)
	}
	defer bridge.Stop()

	go hub.Run()
	defer hub.Stop()

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Messages: handler.NewMessageHandler(chatService, l),
		Presence: handler.NewPresenceHandler(store, userRepo, l),
		Socket:   server.NewWebSocketHandler(hub, authService, limiter),
	}, authService, limiter)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}
