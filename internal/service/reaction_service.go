package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/relaydesk/relay-go-api/internal/dto"
	"github.com/relaydesk/relay-go-api/internal/models"
	"github.com/relaydesk/relay-go-api/internal/observability"
	"github.com/relaydesk/relay-go-api/internal/realtime"
	"github.com/relaydesk/relay-go-api/internal/repository"
)

// ReactionService toggles emoji reactions and pin state on messages.
type ReactionService interface {
	ToggleReaction(ctx context.Context, actorID string, payload dto.ReactionToggleRequest) (dto.ReactionToggleResponse, error)
	ListReactions(ctx context.Context, messageID uint) ([]dto.ReactionResponse, error)
	TogglePin(ctx context.Context, messageID uint, actorID string, pinned bool) (dto.MessageResponse, error)
	ListPinned(ctx context.Context, conversation models.Conversation) ([]dto.MessageResponse, error)
}

type reactionService struct {
	reactions repository.ReactionRepository
	messages  repository.MessageRepository
	channels  repository.ChannelRepository
	feed      realtime.Feed
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewReactionService constructs a reaction and pin service.
func NewReactionService(
	reactions repository.ReactionRepository,
	messages repository.MessageRepository,
	channels repository.ChannelRepository,
	feed realtime.Feed,
	validate *validator.Validate,
	logger zerolog.Logger,
) ReactionService {
	return &reactionService{
		reactions: reactions,
		messages:  messages,
		channels:  channels,
		feed:      feed,
		validator: validate,
		logger:    logger.With().Str("component", "reaction_service").Logger(),
		tracer:    otel.Tracer("github.com/relaydesk/relay-go-api/internal/service/reaction"),
		now:       time.Now,
	}
}

// ToggleReaction flips the (message, actor, emoji) triple. Toggle is its own
// inverse; a unique-constraint race from a concurrent toggle is recovered as
// a no-op success.
func (s *reactionService) ToggleReaction(ctx context.Context, actorID string, payload dto.ReactionToggleRequest) (dto.ReactionToggleResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ReactionToggleResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	message, err := s.messages.GetByID(ctx, payload.MessageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ReactionToggleResponse{}, fmt.Errorf("%w: message", ErrNotFound)
		}
		return dto.ReactionToggleResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "reaction.toggle", trace.WithAttributes(
		attribute.Int("message.id", int(payload.MessageID)),
		attribute.String("actor.id", actorID),
	))
	defer span.End()

	applied, err := s.reactions.Toggle(spanCtx, payload.MessageID, actorID, payload.Emoji)
	if err != nil {
		span.RecordError(err)
		return dto.ReactionToggleResponse{}, err
	}

	conversation := models.ChannelConversation(message.ChannelID)
	op := realtime.OpDelete
	if applied {
		op = realtime.OpInsert
	}
	s.publish(spanCtx, conversation, realtime.EntityReaction, op, payload.MessageID)

	observability.ReactionsToggled().WithLabelValues(strconv.FormatBool(applied)).Inc()

	return dto.ReactionToggleResponse{
		MessageID: payload.MessageID,
		Emoji:     payload.Emoji,
		Applied:   applied,
	}, nil
}

func (s *reactionService) ListReactions(ctx context.Context, messageID uint) ([]dto.ReactionResponse, error) {
	reactions, err := s.reactions.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return dto.NewReactionResponseSlice(reactions), nil
}

// TogglePin flips the pin flag; any member of the conversation may pin or
// unpin, and concurrent togglers converge on the last write.
func (s *reactionService) TogglePin(ctx context.Context, messageID uint, actorID string, pinned bool) (dto.MessageResponse, error) {
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessageResponse{}, fmt.Errorf("%w: message", ErrNotFound)
		}
		return dto.MessageResponse{}, err
	}

	if err := s.checkMembership(ctx, message.ChannelID, actorID); err != nil {
		return dto.MessageResponse{}, err
	}

	updated, err := s.messages.SetPinned(ctx, messageID, pinned, s.now().UTC())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MessageResponse{}, fmt.Errorf("%w: message", ErrNotFound)
		}
		return dto.MessageResponse{}, err
	}

	conversation := models.ChannelConversation(message.ChannelID)
	s.publish(ctx, conversation, realtime.EntityMessage, realtime.OpUpdate, messageID)

	return dto.NewMessageResponse(updated), nil
}

func (s *reactionService) ListPinned(ctx context.Context, conversation models.Conversation) ([]dto.MessageResponse, error) {
	channelID, ok := conversation.ChannelID()
	if !ok {
		return nil, fmt.Errorf("%w: pins apply to channel conversations", ErrValidation)
	}

	messages, err := s.messages.ListPinned(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponseSlice(messages), nil
}

func (s *reactionService) checkMembership(ctx context.Context, channelID uint, actorID string) error {
	channel, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: channel", ErrNotFound)
		}
		return err
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

func (s *reactionService) publish(ctx context.Context, conversation models.Conversation, entity realtime.Entity, op realtime.Operation, rowID uint) {
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
