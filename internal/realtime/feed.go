package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/relaydesk/relay-go-api/internal/observability"
)

const feedBufferSize = 64

// ErrFeedUnavailable is returned when no feed transport is configured.
var ErrFeedUnavailable = errors.New("no change feed transport available")

// Feed is the ordered per-conversation stream of row-level change events.
// Services publish after every successful store write; the sync engine
// subscribes per conversation.
type Feed interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, conversationID string) (<-chan Event, func(), error)
}

// StreamFeed fans change events out over redis pub/sub, mirrored to NATS for
// cross-service consumers. Subscriptions prefer redis and fall back to NATS
// when redis is not configured.
type StreamFeed struct {
	redis   *redis.Client
	nats    *nats.Conn
	prefix  string
	subject string
	nodeID  string
	logger  zerolog.Logger
}

// NewStreamFeed constructs a feed over the configured transports. channelBase
// scopes the redis channel and NATS subject namespaces, e.g. "relay".
func NewStreamFeed(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *StreamFeed {
	prefix := ""
	subject := ""
	if channelBase != "" {
		prefix = channelBase + ":feed:"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".feed."
	}

	return &StreamFeed{
		redis:   redisClient,
		nats:    natsConn,
		prefix:  prefix,
		subject: subject,
		nodeID:  uuid.NewString(),
		logger:  logger.With().Str("component", "change_feed").Logger(),
	}
}

func (f *StreamFeed) Publish(ctx context.Context, event Event) error {
	event.Source = f.nodeID
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	published := false
	if f.redis != nil && f.prefix != "" {
		if err := f.redis.Publish(ctx, f.prefix+event.ConversationID, payload).Err(); err != nil {
			return err
		}
		published = true
	}
	if f.nats != nil && f.subject != "" {
		if err := f.nats.Publish(f.subject+subjectToken(event.ConversationID), payload); err != nil {
			return err
		}
		published = true
	}
	if !published {
		return ErrFeedUnavailable
	}

	observability.FeedEventsPublished().WithLabelValues(string(event.Entity), string(event.Operation)).Inc()
	return nil
}

func (f *StreamFeed) Subscribe(ctx context.Context, conversationID string) (<-chan Event, func(), error) {
	if f.redis != nil && f.prefix != "" {
		return f.subscribeRedis(ctx, conversationID)
	}
	if f.nats != nil && f.subject != "" {
		return f.subscribeNATS(conversationID)
	}
	return nil, nil, ErrFeedUnavailable
}

func (f *StreamFeed) subscribeRedis(ctx context.Context, conversationID string) (<-chan Event, func(), error) {
	pubsub := f.redis.Subscribe(ctx, f.prefix+conversationID)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	events := make(chan Event, feedBufferSize)
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			event, ok := f.decode([]byte(msg.Payload))
			if !ok {
				continue
			}
			select {
			case events <- event:
			default:
				f.logger.Warn().Str("conversation", conversationID).Msg("dropping feed event for slow subscriber")
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return events, cancel, nil
}

func (f *StreamFeed) subscribeNATS(conversationID string) (<-chan Event, func(), error) {
	sink := newFeedSink()

	// Unsubscribe does not wait for an in-flight callback to return, so the
	// sink serializes delivery against close instead of closing the channel
	// out from under the callback.
	sub, err := f.nats.Subscribe(f.subject+subjectToken(conversationID), func(msg *nats.Msg) {
		event, ok := f.decode(msg.Data)
		if !ok {
			return
		}
		if !sink.deliver(event) {
			f.logger.Warn().Str("conversation", conversationID).Msg("dropping feed event for slow subscriber")
		}
	})
	if err != nil {
		return nil, nil, err
	}

	cancel := func() {
		if err := sub.Unsubscribe(); err != nil {
			f.logger.Warn().Err(err).Msg("failed to unsubscribe feed nats subscription")
		}
		sink.close()
	}
	return sink.events, cancel, nil
}

func (f *StreamFeed) decode(payload []byte) (Event, bool) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		f.logger.Warn().Err(err).Msg("invalid feed event payload")
		return Event{}, false
	}
	return event, true
}

// subjectToken makes a conversation key safe for use as a NATS subject token.
func subjectToken(conversationID string) string {
	return strings.ReplaceAll(conversationID, ":", "_")
}

// feedSink hands decoded events to a subscriber channel. Delivery and close
// share a lock so a delivery racing the close is dropped instead of sending
// on a closed channel.
type feedSink struct {
	mu     sync.Mutex
	events chan Event
	closed bool
}

func newFeedSink() *feedSink {
	return &feedSink{events: make(chan Event, feedBufferSize)}
}

// deliver forwards the event to the subscriber, reporting false when the sink
// is closed or the subscriber's buffer is full.
func (s *feedSink) deliver(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

func (s *feedSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// MemoryFeed is an in-process feed for tests and single-node runs. It keeps
// the same per-conversation ordering guarantee as the stream transports.
type MemoryFeed struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	closed      bool
}

// NewMemoryFeed constructs an empty in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subscribers: make(map[string]map[chan Event]struct{})}
}

func (f *MemoryFeed) Publish(ctx context.Context, event Event) error {
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrFeedUnavailable
	}

	for ch := range f.subscribers[event.ConversationID] {
		select {
		case ch <- event:
		default:
		}
	}

	observability.FeedEventsPublished().WithLabelValues(string(event.Entity), string(event.Operation)).Inc()
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, conversationID string) (<-chan Event, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, nil, ErrFeedUnavailable
	}

	ch := make(chan Event, feedBufferSize)
	if _, exists := f.subscribers[conversationID]; !exists {
		f.subscribers[conversationID] = make(map[chan Event]struct{})
	}
	f.subscribers[conversationID][ch] = struct{}{}

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if subs, ok := f.subscribers[conversationID]; ok {
			if _, present := subs[ch]; present {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(f.subscribers, conversationID)
				}
			}
		}
	}
	return ch, cancel, nil
}

// Close tears down every subscription; further publishes fail.
func (f *MemoryFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, subs := range f.subscribers {
		for ch := range subs {
			close(ch)
		}
	}
	f.subscribers = make(map[string]map[chan Event]struct{})
}
