package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/relaydesk/relay-go-api/internal/dto"
	"github.com/relaydesk/relay-go-api/internal/service"
	"github.com/relaydesk/relay-go-api/internal/utils"
)

// ChannelHandler exposes channel CRUD endpoints.
type ChannelHandler struct {
	service service.ConversationService
	logger  zerolog.Logger
}

// NewChannelHandler constructs a channel handler.
func NewChannelHandler(service service.ConversationService, logger zerolog.Logger) *ChannelHandler {
	return &ChannelHandler{
		service: service,
		logger:  logger.With().Str("component", "channel_handler").Logger(),
	}
}

// Register binds the channel routes.
func (h *ChannelHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.create)
	router.Post("/:id/join", h.join)
	router.Delete("/:id", h.remove)
}

func (h *ChannelHandler) list(c *fiber.Ctx) error {
	channels, err := h.service.ListChannels(requestContext(c), c.Query("organization_id"))
	if err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "channels", channels)
}

func (h *ChannelHandler) create(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.ChannelCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	channel, err := h.service.CreateChannel(requestContext(c), actorID, payload)
	if err != nil {
		return sendServiceError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "channel created", channel)
}

func (h *ChannelHandler) join(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	channelID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid channel id")
	}

	if err := h.service.JoinChannel(requestContext(c), channelID, actorID); err != nil {
		return sendServiceError(c, err)
	}
	return utils.SendSuccess(c, "channel joined", nil)
}

func (h *ChannelHandler) remove(c *fiber.Ctx) error {
	actorID := userIDFromContext(c)
	if actorID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	channelID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid channel id")
	}

	var payload dto.ChannelDeleteRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "confirmation required: echo the channel name")
	}

	if err := h.service.DeleteChannel(requestContext(c), channelID, actorID, payload.Confirm); err != nil {
		return sendServiceError(c, err)
	}

	requestLogger(h.logger, c).Info().Uint("channel_id", channelID).Msg("channel delete cascade completed")
	return utils.SendSuccess(c, "channel deleted", nil)
}
