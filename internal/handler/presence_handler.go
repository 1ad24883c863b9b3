package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/relaydesk/relay-go-api/internal/dto"
	"github.com/relaydesk/relay-go-api/internal/models"
	"github.com/relaydesk/relay-go-api/internal/service"
	"github.com/relaydesk/relay-go-api/internal/utils"
)

// PresenceHandler exposes the ephemeral typing-indicator endpoints.
type PresenceHandler struct {
	service service.PresenceService
	logger  zerolog.Logger
}

// NewPresenceHandler constructs a presence handler.
func NewPresenceHandler(service service.PresenceService, logger zerolog.Logger) *PresenceHandler {
	return &PresenceHandler{
		service: service,
		logger:  logger.With().Str("component", "presence_handler").Logger(),
	}
}

// Register binds the typing routes.
func (h *PresenceHandler) Register(router fiber.Router) {
	router.Post("/typing", h.renew)
	router.Get("/typing", h.list)
}

func (h *PresenceHandler) renew(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.TypingRenewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	conversation, err := models.ParseConversation(payload.Conversation)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation")
	}

	if err := h.service.RenewTyping(requestContext(c), actorID, conversation); err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "typing renewed", nil)
}

func (h *PresenceHandler) list(c *fiber.Ctx) error {
	conversation, err := models.ParseConversation(c.Query("conversation"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation")
	}

	state, err := h.service.ListTyping(requestContext(c), conversation)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "typing state", state)
}
