package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/relaydesk/relay-go-api/internal/dto"
	"github.com/relaydesk/relay-go-api/internal/models"
	"github.com/relaydesk/relay-go-api/internal/observability"
	"github.com/relaydesk/relay-go-api/internal/realtime"
	"github.com/relaydesk/relay-go-api/internal/repository"
)

const lastMessageTTL = 30 * time.Minute

// channelMetadataSchema constrains the free-form metadata clients may attach
// to a channel at creation time.
var channelMetadataSchema = jsonschema.MustCompileString("channel_metadata.json", `{
	"type": "object",
	"properties": {
		"topic": {"type": "string", "maxLength": 250},
		"icon": {"type": "string", "maxLength": 64},
		"retention_days": {"type": "integer", "minimum": 1, "maximum": 3650}
	},
	"additionalProperties": false
}`)

// ConversationService exposes channel, direct-message, and thread use-cases.
type ConversationService interface {
	ListChannels(ctx context.Context, organizationID string) ([]dto.ChannelResponse, error)
	CreateChannel(ctx context.Context, actorID string, payload dto.ChannelCreateRequest) (dto.ChannelResponse, error)
	DeleteChannel(ctx context.Context, channelID uint, actorID, confirmName string) error
	JoinChannel(ctx context.Context, channelID uint, actorID string) error

	ListMessages(ctx context.Context, actorID string, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error)
	Send(ctx context.Context, actorID string, payload dto.MessageSendRequest) (dto.MessageResponse, error)
	Edit(ctx context.Context, conversation models.Conversation, messageID uint, actorID, content string) (dto.MessageResponse, error)
	Delete(ctx context.Context, conversation models.Conversation, messageID uint, actorID string) error

	SendThreadReply(ctx context.Context, actorID string, payload dto.ThreadReplyCreateRequest) (dto.ThreadReplyResponse, error)
	ListThreadReplies(ctx context.Context, conversation models.Conversation, parentID uint) ([]dto.ThreadReplyResponse, error)
	CountThreadReplies(ctx context.Context, conversation models.Conversation, parentID uint) (int64, error)

	LastMessage(ctx context.Context, conversation models.Conversation) *dto.MessageResponse
}

type conversationService struct {
	channels  repository.ChannelRepository
	messages  repository.MessageRepository
	feed      realtime.Feed
	redis     *redis.Client
	cacheKey  string
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// NewConversationService constructs the conversation service. redisClient may
// be nil; the last-message cache is then skipped.
func NewConversationService(
	channels repository.ChannelRepository,
	messages repository.MessageRepository,
	feed realtime.Feed,
	redisClient *redis.Client,
	channelBase string,
	validate *validator.Validate,
	logger zerolog.Logger,
) ConversationService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	cacheKey := ""
	if channelBase != "" {
		cacheKey = channelBase + ":last"
	}

	return &conversationService{
		channels:  channels,
		messages:  messages,
		feed:      feed,
		redis:     redisClient,
		cacheKey:  cacheKey,
		validator: validate,
		logger:    logger.With().Str("component", "conversation_service").Logger(),
		tracer:    otel.Tracer("github.com/relaydesk/relay-go-api/internal/service/conversation"),
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

func (s *conversationService) ListChannels(ctx context.Context, organizationID string) ([]dto.ChannelResponse, error) {
	channels, err := s.channels.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return dto.NewChannelResponseSlice(channels), nil
}

func (s *conversationService) CreateChannel(ctx context.Context, actorID string, payload dto.ChannelCreateRequest) (dto.ChannelResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChannelResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	name := strings.TrimSpace(s.sanitizer.Sanitize(payload.Name))
	if name == "" || len(name) > 50 {
		return dto.ChannelResponse{}, fmt.Errorf("%w: channel name must be 1-50 characters", ErrValidation)
	}
	description := strings.TrimSpace(s.sanitizer.Sanitize(payload.Description))

	metadata := datatypes.JSONMap{"created_by": actorID}
	if payload.Metadata != nil {
		if err := channelMetadataSchema.Validate(map[string]interface{}(payload.Metadata)); err != nil {
			return dto.ChannelResponse{}, fmt.Errorf("%w: invalid channel metadata: %v", ErrValidation, err)
		}
		for key, value := range payload.Metadata {
			metadata[key] = value
		}
	}

	channel := models.Channel{
		Name:        name,
		Description: description,
		IsPrivate:   payload.IsPrivate,
		CreatedBy:   actorID,
		Metadata:    metadata,
	}

	if err := s.channels.Create(ctx, &channel); err != nil {
		return dto.ChannelResponse{}, err
	}

	owner := models.ChannelMember{ChannelID: channel.ID, UserID: actorID, Role: models.ChannelRoleOwner}
	if err := s.channels.AddMember(ctx, &owner); err != nil {
		return dto.ChannelResponse{}, err
	}

	s.logger.Info().Uint("channel_id", channel.ID).Str("actor_id", actorID).Msg("channel created")

	return dto.NewChannelResponse(channel), nil
}

// DeleteChannel cascades the channel and everything hanging off it. The
// caller must echo the channel name; the cascade is irreversible and is never
// retried on partial failure.
func (s *conversationService) DeleteChannel(ctx context.Context, channelID uint, actorID, confirmName string) error {
	channel, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return s.mapNotFound(err, "channel")
	}

	member, err := s.channels.GetMember(ctx, channelID, actorID)
	if err != nil || !member.CanModerate() {
		return fmt.Errorf("%w: channel deletion requires moderator or owner", ErrForbidden)
	}

	if strings.TrimSpace(confirmName) != channel.Name {
		return fmt.Errorf("%w: confirmation does not match channel name", ErrValidation)
	}

	spanCtx, span := s.tracer.Start(ctx, "conversation.delete_channel", trace.WithAttributes(
		attribute.Int("channel.id", int(channelID)),
		attribute.String("actor.id", actorID),
	))
	defer span.End()

	if err := s.channels.DeleteCascade(spanCtx, channelID); err != nil {
		span.RecordError(err)
		return err
	}

	conversation := models.ChannelConversation(channelID)
	s.publish(spanCtx, conversation, realtime.EntityMessage, realtime.OpDelete, 0)
	s.dropLastMessage(spanCtx, conversation)
	s.logger.Info().Uint("channel_id", channelID).Str("actor_id", actorID).Msg("channel deleted")

	return nil
}

func (s *conversationService) JoinChannel(ctx context.Context, channelID uint, actorID string) error {
	if _, err := s.channels.GetByID(ctx, channelID); err != nil {
		return s.mapNotFound(err, "channel")
	}
	if _, err := s.channels.GetMember(ctx, channelID, actorID); err == nil {
		return nil
	}

	member := models.ChannelMember{ChannelID: channelID, UserID: actorID, Role: models.ChannelRoleMember}
	return s.channels.AddMember(ctx, &member)
}

func (s *conversationService) ListMessages(ctx context.Context, actorID string, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	conversation, err := models.ParseConversation(query.Conversation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	cursor := time.Time{}
	if query.Cursor != nil {
		cursor = *query.Cursor
	}

	if channelID, ok := conversation.ChannelID(); ok {
		if err := s.checkChannelAccess(ctx, channelID, actorID); err != nil {
			return nil, err
		}
		messages, err := s.messages.ListByChannel(ctx, channelID, cursor, query.Limit)
		if err != nil {
			return nil, err
		}
		return dto.NewMessageResponseSlice(messages), nil
	}

	if _, ok := conversation.Peer(actorID); !ok {
		return nil, fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}
	a, b, _ := conversation.DirectPair()
	messages, err := s.messages.ListDirect(ctx, a, b, cursor, query.Limit)
	if err != nil {
		return nil, err
	}
	return dto.NewDirectMessageResponseSlice(messages), nil
}

func (s *conversationService) Send(ctx context.Context, actorID string, payload dto.MessageSendRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	conversation, err := models.ParseConversation(payload.Conversation)
	if err != nil {
		return dto.MessageResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	kind, content, fileURL, fileMIME, err := s.normalizeBody(payload.Type, payload.Content, payload.FileURL, payload.FileMIME)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "conversation.send", trace.WithAttributes(
		attribute.String("conversation", conversation.String()),
		attribute.String("sender.id", actorID),
		attribute.String("message.kind", kind),
	))
	defer span.End()

	var response dto.MessageResponse
	var rowID uint

	if channelID, ok := conversation.ChannelID(); ok {
		if err := s.checkChannelAccess(spanCtx, channelID, actorID); err != nil {
			return dto.MessageResponse{}, err
		}

		message := models.Message{
			ChannelID:   channelID,
			SenderID:    actorID,
			Content:     content,
			MessageType: kind,
			FileURL:     fileURL,
			FileMIME:    fileMIME,
		}
		if err := s.messages.Create(spanCtx, &message); err != nil {
			span.RecordError(err)
			return dto.MessageResponse{}, err
		}
		response = dto.NewMessageResponse(message)
		rowID = message.ID
	} else {
		peer, ok := conversation.Peer(actorID)
		if !ok {
			return dto.MessageResponse{}, fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
		}

		message := models.DirectMessage{
			SenderID:    actorID,
			RecipientID: peer,
			Content:     content,
			MessageType: kind,
			FileURL:     fileURL,
			FileMIME:    fileMIME,
		}
		if err := s.messages.CreateDirect(spanCtx, &message); err != nil {
			span.RecordError(err)
			return dto.MessageResponse{}, err
		}
		response = dto.NewDirectMessageResponse(message)
		rowID = message.ID
	}

	s.publish(spanCtx, conversation, realtime.EntityMessage, realtime.OpInsert, rowID)
	s.cacheLastMessage(spanCtx, conversation, response)
	observability.MessagesSent().WithLabelValues(kind).Inc()

	return response, nil
}

// Edit mutates body and updated_at only; conversation and sender are
// immutable. Editing an unchanged body is a no-op. The conversation key
// selects the id namespace: channel and direct messages number their rows
// independently, so a bare id is ambiguous.
func (s *conversationService) Edit(ctx context.Context, conversation models.Conversation, messageID uint, actorID, content string) (dto.MessageResponse, error) {
	if channelID, ok := conversation.ChannelID(); ok {
		message, err := s.messages.GetByID(ctx, messageID)
		if err != nil {
			return dto.MessageResponse{}, s.mapNotFound(err, "message")
		}
		if message.ChannelID != channelID {
			return dto.MessageResponse{}, fmt.Errorf("%w: message", ErrNotFound)
		}
		return s.editChannelMessage(ctx, message, actorID, content)
	}

	direct, err := s.messages.GetDirectByID(ctx, messageID)
	if err != nil {
		return dto.MessageResponse{}, s.mapNotFound(err, "message")
	}
	if direct.Conversation() != conversation {
		return dto.MessageResponse{}, fmt.Errorf("%w: message", ErrNotFound)
	}
	return s.editDirectMessage(ctx, direct, actorID, content)
}

func (s *conversationService) editChannelMessage(ctx context.Context, message models.Message, actorID, content string) (dto.MessageResponse, error) {
	if message.SenderID != actorID {
		return dto.MessageResponse{}, fmt.Errorf("%w: only the author may edit a message", ErrForbidden)
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return dto.MessageResponse{}, fmt.Errorf("%w: message content empty after sanitization", ErrValidation)
	}
	if clean == message.Content {
		return dto.NewMessageResponse(message), nil
	}

	message.Content = clean
	if err := s.messages.Update(ctx, &message); err != nil {
		return dto.MessageResponse{}, err
	}

	conversation := models.ChannelConversation(message.ChannelID)
	s.publish(ctx, conversation, realtime.EntityMessage, realtime.OpUpdate, message.ID)

	return dto.NewMessageResponse(message), nil
}

func (s *conversationService) editDirectMessage(ctx context.Context, message models.DirectMessage, actorID, content string) (dto.MessageResponse, error) {
	if message.SenderID != actorID {
		return dto.MessageResponse{}, fmt.Errorf("%w: only the author may edit a message", ErrForbidden)
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return dto.MessageResponse{}, fmt.Errorf("%w: message content empty after sanitization", ErrValidation)
	}
	if clean == message.Content {
		return dto.NewDirectMessageResponse(message), nil
	}

	message.Content = clean
	if err := s.messages.UpdateDirect(ctx, &message); err != nil {
		return dto.MessageResponse{}, err
	}

	s.publish(ctx, message.Conversation(), realtime.EntityMessage, realtime.OpUpdate, message.ID)

	return dto.NewDirectMessageResponse(message), nil
}

// Delete hard-deletes the message and cascades its reactions and thread
// replies. Failed deletes are reported, never retried. Like Edit, the
// conversation key disambiguates the message id.
func (s *conversationService) Delete(ctx context.Context, conversation models.Conversation, messageID uint, actorID string) error {
	if channelID, ok := conversation.ChannelID(); ok {
		message, err := s.messages.GetByID(ctx, messageID)
		if err != nil {
			return s.mapNotFound(err, "message")
		}
		if message.ChannelID != channelID {
			return fmt.Errorf("%w: message", ErrNotFound)
		}
		if message.SenderID != actorID {
			return fmt.Errorf("%w: only the author may delete a message", ErrForbidden)
		}
		if err := s.messages.DeleteCascade(ctx, messageID); err != nil {
			return err
		}
		s.publish(ctx, conversation, realtime.EntityMessage, realtime.OpDelete, messageID)
		return nil
	}

	direct, err := s.messages.GetDirectByID(ctx, messageID)
	if err != nil {
		return s.mapNotFound(err, "message")
	}
	if direct.Conversation() != conversation {
		return fmt.Errorf("%w: message", ErrNotFound)
	}
	if direct.SenderID != actorID {
		return fmt.Errorf("%w: only the author may delete a message", ErrForbidden)
	}
	if err := s.messages.DeleteDirectCascade(ctx, messageID); err != nil {
		return err
	}
	s.publish(ctx, direct.Conversation(), realtime.EntityMessage, realtime.OpDelete, messageID)
	return nil
}

// SendThreadReply posts under a parent message. The parent must be a
// top-level message of the given conversation; replies cannot nest, and a
// reply's own id never resolves as a parent.
func (s *conversationService) SendThreadReply(ctx context.Context, actorID string, payload dto.ThreadReplyCreateRequest) (dto.ThreadReplyResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ThreadReplyResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	conversation, err := models.ParseConversation(payload.Conversation)
	if err != nil {
		return dto.ThreadReplyResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	kind, content, fileURL, fileMIME, err := s.normalizeBody(payload.Type, payload.Content, payload.FileURL, payload.FileMIME)
	if err != nil {
		return dto.ThreadReplyResponse{}, err
	}

	reply := models.ThreadMessage{
		ParentMessageID: payload.ParentMessageID,
		SenderID:        actorID,
		Content:         content,
		MessageType:     kind,
		FileURL:         fileURL,
		FileMIME:        fileMIME,
	}

	if channelID, ok := conversation.ChannelID(); ok {
		parent, err := s.messages.GetByID(ctx, payload.ParentMessageID)
		if err != nil {
			return dto.ThreadReplyResponse{}, s.mapNotFound(err, "parent message")
		}
		if parent.ChannelID != channelID {
			return dto.ThreadReplyResponse{}, fmt.Errorf("%w: parent message", ErrNotFound)
		}
		if err := s.checkChannelAccess(ctx, channelID, actorID); err != nil {
			return dto.ThreadReplyResponse{}, err
		}
		reply.ChannelID = &channelID
	} else {
		if _, ok := conversation.Peer(actorID); !ok {
			return dto.ThreadReplyResponse{}, fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
		}
		parent, err := s.messages.GetDirectByID(ctx, payload.ParentMessageID)
		if err != nil {
			return dto.ThreadReplyResponse{}, s.mapNotFound(err, "parent message")
		}
		if parent.Conversation() != conversation {
			return dto.ThreadReplyResponse{}, fmt.Errorf("%w: parent message", ErrNotFound)
		}
	}

	if err := s.messages.CreateThreadReply(ctx, &reply); err != nil {
		return dto.ThreadReplyResponse{}, err
	}

	s.publish(ctx, conversation, realtime.EntityMessage, realtime.OpInsert, reply.ID)
	observability.MessagesSent().WithLabelValues(kind).Inc()

	return dto.NewThreadReplyResponse(reply), nil
}

func (s *conversationService) ListThreadReplies(ctx context.Context, conversation models.Conversation, parentID uint) ([]dto.ThreadReplyResponse, error) {
	replies, err := s.messages.ListThreadReplies(ctx, parentID, conversation.IsDirect())
	if err != nil {
		return nil, err
	}
	return dto.NewThreadReplyResponseSlice(replies), nil
}

func (s *conversationService) CountThreadReplies(ctx context.Context, conversation models.Conversation, parentID uint) (int64, error) {
	return s.messages.CountThreadReplies(ctx, parentID, conversation.IsDirect())
}

// LastMessage returns the cached most-recent message for the conversation,
// used to warm newly connected sync clients.
func (s *conversationService) LastMessage(ctx context.Context, conversation models.Conversation) *dto.MessageResponse {
	if s.redis == nil || s.cacheKey == "" {
		return nil
	}

	key := fmt.Sprintf("%s:%s", s.cacheKey, conversation)
	result, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return nil
	}

	var message dto.MessageResponse
	if err := json.Unmarshal([]byte(result), &message); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unmarshal cached last message")
		return nil
	}
	return &message
}

// normalizeBody enforces the tagged-union shape of message kinds: file and
// image carry a mandatory storage reference, text carries body content, link
// content must be an absolute URL. A declared attachment MIME must be a known
// type, and image attachments must declare an image type.
func (s *conversationService) normalizeBody(kind, content, fileURL, fileMIME string) (string, string, string, string, error) {
	if kind == "" {
		kind = models.MessageTypeText
	}
	if !models.ValidMessageType(kind) {
		return "", "", "", "", fmt.Errorf("%w: unsupported message kind %q", ErrValidation, kind)
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	fileMIME = strings.TrimSpace(fileMIME)

	switch kind {
	case models.MessageTypeFile, models.MessageTypeImage:
		if strings.TrimSpace(fileURL) == "" {
			return "", "", "", "", fmt.Errorf("%w: %s messages require a file reference", ErrValidation, kind)
		}
		if fileMIME != "" {
			declared := mimetype.Lookup(fileMIME)
			if declared == nil {
				return "", "", "", "", fmt.Errorf("%w: unknown attachment type %q", ErrValidation, fileMIME)
			}
			fileMIME = declared.String()
		}
		if kind == models.MessageTypeImage && fileMIME != "" && !strings.HasPrefix(fileMIME, "image/") {
			return "", "", "", "", fmt.Errorf("%w: image messages require an image attachment type", ErrValidation)
		}
	case models.MessageTypeLink:
		if err := s.validator.Var(clean, "required,url"); err != nil {
			return "", "", "", "", fmt.Errorf("%w: link messages require an absolute URL body", ErrValidation)
		}
		fileURL = ""
		fileMIME = ""
	default:
		if clean == "" {
			return "", "", "", "", fmt.Errorf("%w: message content empty after sanitization", ErrValidation)
		}
		fileURL = ""
		fileMIME = ""
	}

	return kind, clean, strings.TrimSpace(fileURL), fileMIME, nil
}

// checkChannelAccess rejects sends into private channels by non-members.
func (s *conversationService) checkChannelAccess(ctx context.Context, channelID uint, actorID string) error {
	channel, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return s.mapNotFound(err, "channel")
	}
	if !channel.IsPrivate {
		return nil
	}
	if _, err := s.channels.GetMember(ctx, channelID, actorID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: not a member of this private channel", ErrForbidden)
		}
		return err
	}
	return nil
}

func (s *conversationService) publish(ctx context.Context, conversation models.Conversation, entity realtime.Entity, op realtime.Operation, rowID uint) {
	if s.feed == nil {
		return
	}
	event := realtime.Event{
		ConversationID: conversation.String(),
		Entity:         entity,
		Operation:      op,
		RowID:          rowID,
		SentAt:         s.now().UTC(),
	}
	if err := s.feed.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("conversation", conversation.String()).Msg("failed to publish feed event")
	}
}

func (s *conversationService) cacheLastMessage(ctx context.Context, conversation models.Conversation, message dto.MessageResponse) {
	if s.redis == nil || s.cacheKey == "" {
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal message for cache")
		return
	}

	key := fmt.Sprintf("%s:%s", s.cacheKey, conversation)
	if err := s.redis.Set(ctx, key, payload, lastMessageTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache last message")
	}
}

func (s *conversationService) dropLastMessage(ctx context.Context, conversation models.Conversation) {
	if s.redis == nil || s.cacheKey == "" {
		return
	}
	key := fmt.Sprintf("%s:%s", s.cacheKey, conversation)
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to drop cached last message")
	}
}

func (s *conversationService) mapNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}
