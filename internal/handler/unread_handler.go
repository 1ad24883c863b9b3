package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/relaydesk/relay-go-api/internal/dto"
	"github.com/relaydesk/relay-go-api/internal/models"
	"github.com/relaydesk/relay-go-api/internal/service"
	"github.com/relaydesk/relay-go-api/internal/utils"
)

// UnreadHandler exposes read-marker and unread-count endpoints.
type UnreadHandler struct {
	service service.UnreadService
	logger  zerolog.Logger
}

// NewUnreadHandler constructs an unread handler.
func NewUnreadHandler(service service.UnreadService, logger zerolog.Logger) *UnreadHandler {
	return &UnreadHandler{
		service: service,
		logger:  logger.With().Str("component", "unread_handler").Logger(),
	}
}

// Register binds the unread routes.
func (h *UnreadHandler) Register(router fiber.Router) {
	router.Post("/mark-read", h.markRead)
	router.Get("/count", h.count)
	router.Get("/summary", h.summary)
}

func (h *UnreadHandler) markRead(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.MarkReadRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	conversation, err := models.ParseConversation(payload.Conversation)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation")
	}

	if err := h.service.MarkRead(requestContext(c), actorID, conversation); err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "conversation marked read", nil)
}

func (h *UnreadHandler) count(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	conversation, err := models.ParseConversation(c.Query("conversation"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation")
	}

	unread, err := h.service.UnreadCount(requestContext(c), actorID, conversation)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "unread count", dto.UnreadCountResponse{
		Conversation: conversation.String(),
		Unread:       unread,
	})
}

func (h *UnreadHandler) summary(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	summary, err := h.service.AllUnreadCounts(requestContext(c), actorID)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "unread summary", summary)
}
