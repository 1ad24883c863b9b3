package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/relaydesk/relay-go-api/internal/config"
	"github.com/relaydesk/relay-go-api/internal/database"
	"github.com/relaydesk/relay-go-api/internal/handler"
	"github.com/relaydesk/relay-go-api/internal/middleware"
	"github.com/relaydesk/relay-go-api/internal/models"
	"github.com/relaydesk/relay-go-api/internal/realtime"
	"github.com/relaydesk/relay-go-api/internal/repository"
	"github.com/relaydesk/relay-go-api/internal/router"
	"github.com/relaydesk/relay-go-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Channel{},
		&models.ChannelMember{},
		&models.Message{},
		&models.DirectMessage{},
		&models.ThreadMessage{},
		&models.MessageReaction{},
		&models.ReadMarker{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, change feed runs on redis only")
		natsConn = nil
	} else {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	channelRepo := repository.NewChannelRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	reactionRepo := repository.NewReactionRepository(db)
	markerRepo := repository.NewReadMarkerRepository(db)

	feed := realtime.NewStreamFeed(redisClient, natsConn, cfg.ChannelBase, logger)
	cache := realtime.NewQueryCache()
	engine := realtime.NewEngine(feed, cache, storeFetcher(messageRepo), realtime.Options{
		SetupTimeout: cfg.SyncSetupTimeout,
		BackoffBase:  cfg.SyncBackoffBase,
		BackoffCap:   cfg.SyncBackoffCap,
		MaxRetries:   cfg.SyncMaxRetries,
	}, logger)
	defer engine.Close()

	conversationService := service.NewConversationService(channelRepo, messageRepo, feed, redisClient, cfg.ChannelBase, validate, logger)
	reactionService := service.NewReactionService(reactionRepo, messageRepo, channelRepo, feed, validate, logger)
	unreadService := service.NewUnreadService(markerRepo, feed, logger)
	presenceService := service.NewPresenceService(redisClient, cfg.ChannelBase, cfg.TypingTTL, logger)

	channelHandler := handler.NewChannelHandler(conversationService, logger)
	messageHandler := handler.NewMessageHandler(conversationService, logger)
	reactionHandler := handler.NewReactionHandler(reactionService, logger)
	unreadHandler := handler.NewUnreadHandler(unreadService, logger)
	presenceHandler := handler.NewPresenceHandler(presenceService, logger)
	syncHandler := handler.NewSyncHandler(engine, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ChannelHandler:  channelHandler,
		MessageHandler:  messageHandler,
		ReactionHandler: reactionHandler,
		UnreadHandler:   unreadHandler,
		PresenceHandler: presenceHandler,
		SyncHandler:     syncHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

// storeFetcher resolves a cache key back to fresh store state after a feed
// event invalidates it. Kinds that need per-actor context resolve to nil and
// are simply dropped from the cache until the next direct read.
func storeFetcher(messages repository.MessageRepository) realtime.Fetcher {
	return func(ctx context.Context, key realtime.CacheKey) (interface{}, error) {
		conversation, err := models.ParseConversation(key.Conversation)
		if err != nil {
			return nil, err
		}

		switch key.Kind {
		case realtime.QueryMessages:
			if channelID, ok := conversation.ChannelID(); ok {
				return messages.ListByChannel(ctx, channelID, time.Time{}, 0)
			}
			a, b, _ := conversation.DirectPair()
			return messages.ListDirect(ctx, a, b, time.Time{}, 0)
		case realtime.QueryPinned:
			if channelID, ok := conversation.ChannelID(); ok {
				return messages.ListPinned(ctx, channelID)
			}
			return nil, nil
		default:
			return nil, nil
		}
	}
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
