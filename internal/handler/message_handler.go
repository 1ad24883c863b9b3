package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/relaydesk/relay-go-api/internal/dto"
	"github.com/relaydesk/relay-go-api/internal/models"
	"github.com/relaydesk/relay-go-api/internal/service"
	"github.com/relaydesk/relay-go-api/internal/utils"
)

// MessageHandler exposes message and thread-reply endpoints.
type MessageHandler struct {
	service service.ConversationService
	logger  zerolog.Logger
}

// NewMessageHandler constructs a message handler.
func NewMessageHandler(service service.ConversationService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  logger.With().Str("component", "message_handler").Logger(),
	}
}

// Register binds the message routes.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Get("/", h.history)
	router.Post("/", h.send)
	router.Patch("/:id", h.edit)
	router.Delete("/:id", h.remove)
	router.Get("/:id/replies", h.listReplies)
	router.Post("/:id/replies", h.sendReply)
	router.Get("/:id/replies/count", h.countReplies)
}

func (h *MessageHandler) history(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var cursor *time.Time
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid cursor timestamp")
		}
		cursor = &parsed
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.MessageHistoryQuery{
		Conversation: c.Query("conversation"),
		Cursor:       cursor,
		Limit:        limit,
	}

	messages, err := h.service.ListMessages(requestContext(c), actorID, query)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "messages", messages)
}

func (h *MessageHandler) send(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.MessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.service.Send(requestContext(c), actorID, payload)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *MessageHandler) edit(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	var payload dto.MessageEditRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	conversation, err := models.ParseConversation(payload.Conversation)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation")
	}

	message, err := h.service.Edit(requestContext(c), conversation, messageID, actorID, payload.Content)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "message updated", message)
}

func (h *MessageHandler) remove(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	conversation, err := models.ParseConversation(c.Query("conversation"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation")
	}

	if err := h.service.Delete(requestContext(c), conversation, messageID, actorID); err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "message deleted", nil)
}

func (h *MessageHandler) listReplies(c *fiber.Ctx) error {
	parentID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	conversation, err := models.ParseConversation(c.Query("conversation"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation")
	}

	replies, err := h.service.ListThreadReplies(requestContext(c), conversation, parentID)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "thread replies", replies)
}

func (h *MessageHandler) sendReply(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	parentID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	var payload dto.ThreadReplyCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.ParentMessageID = parentID

	reply, err := h.service.SendThreadReply(requestContext(c), actorID, payload)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "thread reply sent", reply)
}

func (h *MessageHandler) countReplies(c *fiber.Ctx) error {
	parentID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid message id")
	}

	conversation, err := models.ParseConversation(c.Query("conversation"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid conversation")
	}

	count, err := h.service.CountThreadReplies(requestContext(c), conversation, parentID)
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "thread reply count", fiber.Map{"count": count})
}
