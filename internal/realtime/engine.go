package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaydesk/relay-go-api/internal/observability"
)

// State is the lifecycle phase of one subscription.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

const (
	notificationBufferSize = 32
	statusBufferSize       = 8
)

// Status is surfaced to the delivery layer on every state change. Degraded
// means retries are exhausted and the client should fall back to polling.
type Status struct {
	Conversation string `json:"conversation"`
	State        State  `json:"state"`
	Degraded     bool   `json:"degraded"`
	Attempt      int    `json:"attempt,omitempty"`
}

// Notification is a typed, client-facing translation of a raw feed event.
type Notification struct {
	Conversation string    `json:"conversation"`
	Entity       Entity    `json:"entity"`
	Operation    Operation `json:"operation"`
	RowID        uint      `json:"row_id"`
}

// Fetcher loads fresh store state for a cache key during feed-driven refetch.
type Fetcher func(ctx context.Context, key CacheKey) (interface{}, error)

// Options tune subscription setup and reconnect behavior.
type Options struct {
	SetupTimeout time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	MaxRetries   int
}

func (o Options) withDefaults() Options {
	if o.SetupTimeout <= 0 {
		o.SetupTimeout = 5 * time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	return o
}

type subscriptionID struct {
	actor        string
	conversation string
}

// Engine runs one subscription per (actor, conversation) pair. Subscriptions
// operate independently: each one owns a goroutine, so a slow or failing feed
// for one conversation never blocks delivery for another.
type Engine struct {
	feed    Feed
	cache   *QueryCache
	fetcher Fetcher
	opts    Options
	logger  zerolog.Logger

	mu   sync.Mutex
	subs map[subscriptionID]*Subscription
}

// NewEngine constructs a sync engine over the given feed and cache.
func NewEngine(feed Feed, cache *QueryCache, fetcher Fetcher, opts Options, logger zerolog.Logger) *Engine {
	return &Engine{
		feed:    feed,
		cache:   cache,
		fetcher: fetcher,
		opts:    opts.withDefaults(),
		logger:  logger.With().Str("component", "sync_engine").Logger(),
		subs:    make(map[subscriptionID]*Subscription),
	}
}

// Cache exposes the query cache owned by this engine.
func (e *Engine) Cache() *QueryCache {
	return e.cache
}

// Subscribe starts (or returns the existing) subscription for the pair. The
// subscription lives until Stop is called or ctx is cancelled.
func (e *Engine) Subscribe(ctx context.Context, actor, conversation string) *Subscription {
	id := subscriptionID{actor: actor, conversation: conversation}

	e.mu.Lock()
	if existing, ok := e.subs[id]; ok && existing.State() != StateClosed {
		e.mu.Unlock()
		return existing
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		actor:         actor,
		conversation:  conversation,
		engine:        e,
		notifications: make(chan Notification, notificationBufferSize),
		status:        make(chan Status, statusBufferSize),
		cancel:        cancel,
		done:          make(chan struct{}),
		state:         StateIdle,
	}
	e.subs[id] = sub
	e.mu.Unlock()

	observability.SyncSubscriptionsActive().Inc()
	go sub.run(runCtx)
	return sub
}

// Close stops every active subscription.
func (e *Engine) Close() {
	e.mu.Lock()
	subs := make([]*Subscription, 0, len(e.subs))
	for _, sub := range e.subs {
		subs = append(subs, sub)
	}
	e.mu.Unlock()

	for _, sub := range subs {
		sub.Stop()
	}
}

func (e *Engine) remove(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := subscriptionID{actor: sub.actor, conversation: sub.conversation}
	if e.subs[id] == sub {
		delete(e.subs, id)
	}
}

// affectedKeys maps a feed event to the cache entries it stales.
func affectedKeys(event Event) []CacheKey {
	switch event.Entity {
	case EntityMessage:
		return []CacheKey{
			{Conversation: event.ConversationID, Kind: QueryMessages},
			{Conversation: event.ConversationID, Kind: QueryPinned},
			{Conversation: event.ConversationID, Kind: QueryUnread},
		}
	case EntityReaction:
		return []CacheKey{{Conversation: event.ConversationID, Kind: QueryReactions}}
	case EntityReadMarker:
		return []CacheKey{{Conversation: event.ConversationID, Kind: QueryUnread}}
	default:
		return nil
	}
}

// Subscription is the explicit handle for one (actor, conversation) feed
// subscription, exposing its state machine instead of ambient listeners.
type Subscription struct {
	actor        string
	conversation string
	engine       *Engine

	notifications chan Notification
	status        chan Status
	cancel        context.CancelFunc
	done          chan struct{}
	stopOnce      sync.Once

	mu       sync.Mutex
	state    State
	degraded bool
}

// Notifications delivers typed change notifications in feed order.
func (s *Subscription) Notifications() <-chan Notification {
	return s.notifications
}

// StatusChanges delivers state-machine transitions, including degraded.
func (s *Subscription) StatusChanges() <-chan Status {
	return s.status
}

// Conversation returns the conversation this subscription watches.
func (s *Subscription) Conversation() string {
	return s.conversation
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports whether reconnect attempts are exhausted.
func (s *Subscription) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Stop tears the subscription down and unsubscribes from the feed so no
// server-side resources leak. It blocks until the run loop has exited.
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
		s.transition(StateClosed, s.Degraded(), 0)
		s.engine.remove(s)
		observability.SyncSubscriptionsActive().Dec()
	})
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)

	opts := s.engine.opts
	attempt := 0

	for {
		s.transition(StateConnecting, false, attempt)

		setupCtx, cancelSetup := context.WithTimeout(ctx, opts.SetupTimeout)
		events, cancelSub, err := s.engine.feed.Subscribe(setupCtx, s.conversation)
		cancelSetup()

		if err == nil {
			s.transition(StateConnected, false, 0)
			attempt = 0

			alive := s.consume(ctx, events)
			cancelSub()
			if !alive {
				return
			}
			// Feed channel closed underneath us: transport lost.
		}

		if ctx.Err() != nil {
			return
		}

		attempt++
		if attempt > opts.MaxRetries {
			s.engine.logger.Warn().
				Str("conversation", s.conversation).
				Int("attempts", attempt-1).
				Msg("sync subscription degraded, retries exhausted")
			s.transition(StateReconnecting, true, attempt)
			<-ctx.Done()
			return
		}

		s.transition(StateReconnecting, false, attempt)
		observability.SyncReconnects().Inc()

		select {
		case <-time.After(backoffDelay(opts, attempt)):
		case <-ctx.Done():
			return
		}
	}
}

// consume pumps feed events until the context ends (returns false) or the
// feed channel closes (returns true, signalling a reconnect).
func (s *Subscription) consume(ctx context.Context, events <-chan Event) bool {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return true
			}
			s.handleEvent(ctx, event)
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Subscription) handleEvent(ctx context.Context, event Event) {
	observability.FeedEventsConsumed().WithLabelValues(string(event.Entity)).Inc()

	// Invalidate-then-refetch: the event payload is never patched into the
	// cache, because it is not guaranteed to be full row state.
	for _, key := range affectedKeys(event) {
		fetch := s.engine.fetchFor(key)
		if err := s.engine.cache.Invalidate(ctx, key, fetch); err != nil {
			s.engine.logger.Warn().Err(err).
				Str("conversation", key.Conversation).
				Str("query", string(key.Kind)).
				Msg("cache refetch failed")
		}
	}

	notification := Notification{
		Conversation: event.ConversationID,
		Entity:       event.Entity,
		Operation:    event.Operation,
		RowID:        event.RowID,
	}
	select {
	case s.notifications <- notification:
	default:
		s.engine.logger.Warn().
			Str("conversation", s.conversation).
			Msg("dropping sync notification for slow client")
	}
}

func (e *Engine) fetchFor(key CacheKey) FetchFunc {
	if e.fetcher == nil {
		return nil
	}
	return func(ctx context.Context) (interface{}, error) {
		return e.fetcher(ctx, key)
	}
}

func (s *Subscription) transition(state State, degraded bool, attempt int) {
	s.mu.Lock()
	changed := s.state != state || s.degraded != degraded
	s.state = state
	s.degraded = degraded
	s.mu.Unlock()

	if !changed {
		return
	}

	update := Status{
		Conversation: s.conversation,
		State:        state,
		Degraded:     degraded,
		Attempt:      attempt,
	}
	select {
	case s.status <- update:
	default:
	}
}

func backoffDelay(opts Options, attempt int) time.Duration {
	delay := opts.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= opts.BackoffCap {
			return opts.BackoffCap
		}
	}
	if delay > opts.BackoffCap {
		return opts.BackoffCap
	}
	return delay
}
