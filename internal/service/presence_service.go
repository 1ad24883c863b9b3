package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/relaydesk/relay-go-api/internal/dto"
	"github.com/relaydesk/relay-go-api/internal/models"
)

const defaultTypingTTL = 2 * time.Second

// PresenceService tracks ephemeral typing indicators. State lives only in
// redis behind a short TTL and auto-expires unless renewed; nothing is ever
// written to durable storage.
type PresenceService interface {
	RenewTyping(ctx context.Context, actorID string, conversation models.Conversation) error
	ListTyping(ctx context.Context, conversation models.Conversation) (dto.TypingStateResponse, error)
}

type presenceService struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewPresenceService constructs the typing-indicator service.
func NewPresenceService(redisClient *redis.Client, channelBase string, ttl time.Duration, logger zerolog.Logger) PresenceService {
	if ttl <= 0 {
		ttl = defaultTypingTTL
	}

	prefix := "typing:"
	if channelBase != "" {
		prefix = channelBase + ":typing:"
	}

	return &presenceService{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "presence_service").Logger(),
		now:    time.Now,
	}
}

func (s *presenceService) RenewTyping(ctx context.Context, actorID string, conversation models.Conversation) error {
	if s.redis == nil {
		return nil
	}

	key := s.key(conversation, actorID)
	return s.redis.Set(ctx, key, "1", s.ttl).Err()
}

func (s *presenceService) ListTyping(ctx context.Context, conversation models.Conversation) (dto.TypingStateResponse, error) {
	response := dto.TypingStateResponse{
		Conversation: conversation.String(),
		UserIDs:      []string{},
		ObservedAt:   s.now().UTC(),
	}
	if s.redis == nil {
		return response, nil
	}

	pattern := s.key(conversation, "*")
	iter := s.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if idx := strings.LastIndex(key, ":"); idx >= 0 && idx < len(key)-1 {
			response.UserIDs = append(response.UserIDs, key[idx+1:])
		}
	}
	if err := iter.Err(); err != nil {
		return dto.TypingStateResponse{}, err
	}

	return response, nil
}

func (s *presenceService) key(conversation models.Conversation, actorID string) string {
	return fmt.Sprintf("%s%s:%s", s.prefix, conversation, actorID)
}
