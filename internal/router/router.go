package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/relaydesk/relay-go-api/internal/config"
	"github.com/relaydesk/relay-go-api/internal/handler"
	"github.com/relaydesk/relay-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChannelHandler  *handler.ChannelHandler
	MessageHandler  *handler.MessageHandler
	ReactionHandler *handler.ReactionHandler
	UnreadHandler   *handler.UnreadHandler
	PresenceHandler *handler.PresenceHandler
	SyncHandler     *handler.SyncHandler
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ChannelHandler != nil {
		channels := api.Group("/channels", jwtMiddleware)
		deps.ChannelHandler.Register(channels)
	}

	if deps.MessageHandler != nil {
		messages := api.Group("/messages", jwtMiddleware)
		deps.MessageHandler.Register(messages)

		if deps.ReactionHandler != nil {
			conversations := api.Group("/conversations", jwtMiddleware)
			deps.ReactionHandler.Register(messages, conversations)
		}
	}

	if deps.UnreadHandler != nil {
		unread := api.Group("/unread", jwtMiddleware)
		deps.UnreadHandler.Register(unread)
	}

	if deps.PresenceHandler != nil {
		presence := api.Group("/presence", jwtMiddleware)
		deps.PresenceHandler.Register(presence)
	}

	if deps.SyncHandler != nil {
		ws := app.Group("/ws", jwtMiddleware)
		deps.SyncHandler.Register(ws)
	}
}
