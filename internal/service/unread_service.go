package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaydesk/relay-go-api/internal/dto"
	"github.com/relaydesk/relay-go-api/internal/models"
	"github.com/relaydesk/relay-go-api/internal/realtime"
	"github.com/relaydesk/relay-go-api/internal/repository"
)

// UnreadService maintains per-actor read markers and answers unread counts.
// MarkRead writes are expected to be debounced by the caller; every call
// still lands safely because the marker is monotonic.
type UnreadService interface {
	MarkRead(ctx context.Context, actorID string, conversation models.Conversation) error
	UnreadCount(ctx context.Context, actorID string, conversation models.Conversation) (int64, error)
	AllUnreadCounts(ctx context.Context, actorID string) (dto.UnreadSummaryResponse, error)
}

type unreadService struct {
	markers repository.ReadMarkerRepository
	feed    realtime.Feed
	logger  zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewUnreadService constructs the unread tracker.
func NewUnreadService(markers repository.ReadMarkerRepository, feed realtime.Feed, logger zerolog.Logger) UnreadService {
	return &unreadService{
		markers: markers,
		feed:    feed,
		logger:  logger.With().Str("component", "unread_service").Logger(),
		tracer:  otel.Tracer("github.com/relaydesk/relay-go-api/internal/service/unread"),
		now:     time.Now,
	}
}

// MarkRead moves the actor's marker to now. A write that would move the
// marker backward is ignored by the repository, so the marker never regresses.
func (s *unreadService) MarkRead(ctx context.Context, actorID string, conversation models.Conversation) error {
	spanCtx, span := s.tracer.Start(ctx, "unread.mark_read", trace.WithAttributes(
		attribute.String("actor.id", actorID),
		attribute.String("conversation", conversation.String()),
	))
	defer span.End()

	if err := s.markers.Upsert(spanCtx, actorID, conversation, s.now().UTC()); err != nil {
		span.RecordError(err)
		return err
	}

	if s.feed != nil {
		event := realtime.Event{
			ConversationID: conversation.String(),
			Entity:         realtime.EntityReadMarker,
			Operation:      realtime.OpUpdate,
			SentAt:         s.now().UTC(),
		}
		if err := s.feed.Publish(spanCtx, event); err != nil {
			s.logger.Warn().Err(err).Str("conversation", conversation.String()).Msg("failed to publish read-marker event")
		}
	}

	return nil
}

func (s *unreadService) UnreadCount(ctx context.Context, actorID string, conversation models.Conversation) (int64, error) {
	return s.markers.UnreadCount(ctx, actorID, conversation)
}

// AllUnreadCounts is the bulk sidebar variant: one aggregate query per table,
// never one round trip per conversation.
func (s *unreadService) AllUnreadCounts(ctx context.Context, actorID string) (dto.UnreadSummaryResponse, error) {
	channels, err := s.markers.ChannelUnreadCounts(ctx, actorID)
	if err != nil {
		return dto.UnreadSummaryResponse{}, fmt.Errorf("channel unread aggregate: %w", err)
	}

	directs, err := s.markers.DirectUnreadCounts(ctx, actorID)
	if err != nil {
		return dto.UnreadSummaryResponse{}, fmt.Errorf("direct unread aggregate: %w", err)
	}

	return dto.UnreadSummaryResponse{Channels: channels, Directs: directs}, nil
}
