package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/relaydesk/relay-go-api/internal/dto"
	"github.com/relaydesk/relay-go-api/internal/models"
	"github.com/relaydesk/relay-go-api/internal/service"
	"github.com/relaydesk/relay-go-api/internal/utils"
)

// ReactionHandler exposes reaction and pin endpoints.
type ReactionHandler struct {
	service service.ReactionService
	logger  zerolog.Logger
}

// NewReactionHandler constructs a reaction handler.
func NewReactionHandler(service service.ReactionService, logger zerolog.Logger) *ReactionHandler {
	return &ReactionHandler{
		service: service,
		logger:  logger.With().Str("component", "reaction_handler").Logger(),
	}
}

// Register binds reaction routes under the message group and pin routes
// under the conversation group.
func (h *ReactionHandler) Register(messages fiber.Router, pins fiber.Router) {
	messages.Post("/:id/reactions", h.toggle)
	messages.Get("/:id/reactions", h.list)
	messages.Put("/:id/pin", h.togglePin)
	pins.Get("/pinned", h.listPinned)
}

func (h *ReactionHandler) toggle(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	var payload dto.ReactionToggleRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.MessageID = messageID

	result, err := h.service.ToggleReaction(requestContext(c), actorID, payload)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "reaction toggled", result)
}

func (h *ReactionHandler) list(c *fiber.Ctx) error {
	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	reactions, err := h.service.ListReactions(requestContext(c), messageID)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "reactions", reactions)
}

func (h *ReactionHandler) togglePin(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	var payload dto.PinToggleRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.service.TogglePin(requestContext(c), messageID, actorID, payload.Pinned)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "pin updated", message)
}

func (h *ReactionHandler) listPinned(c *fiber.Ctx) error {
	conversation, err := models.ParseConversation(c.Query("conversation"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation")
	}

	messages, err := h.service.ListPinned(requestContext(c), conversation)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "pinned messages", messages)
}
