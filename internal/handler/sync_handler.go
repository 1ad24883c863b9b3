package handler

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/relaydesk/relay-go-api/internal/middleware"
	"github.com/relaydesk/relay-go-api/internal/models"
	"github.com/relaydesk/relay-go-api/internal/observability"
	"github.com/relaydesk/relay-go-api/internal/realtime"
)

const outboundBufferSize = 64

// SyncHandler wires the websocket sync endpoint onto the realtime engine.
// Each connection multiplexes any number of conversation subscriptions.
type SyncHandler struct {
	engine *realtime.Engine
	logger zerolog.Logger
}

// NewSyncHandler constructs a sync handler.
func NewSyncHandler(engine *realtime.Engine, logger zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		engine: engine,
		logger: logger.With().Str("component", "sync_handler").Logger(),
	}
}

// Register binds the websocket sync route.
func (h *SyncHandler) Register(router fiber.Router) {
	router.Use("/sync", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/sync", websocket.New(h.handleConnection))
}

// syncRequest is a client frame controlling conversation subscriptions.
type syncRequest struct {
	Action       string `json:"action"`
	Conversation string `json:"conversation"`
}

// syncFrame is a server frame carrying either a change notification or a
// subscription status transition.
type syncFrame struct {
	Type         string                 `json:"type"`
	Conversation string                 `json:"conversation,omitempty"`
	Notification *realtime.Notification `json:"notification,omitempty"`
	Status       *realtime.Status       `json:"status,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

func (h *SyncHandler) handleConnection(conn *websocket.Conn) {
	actorID := websocketUserID(conn)
	if actorID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "user id missing"))
		_ = conn.Close()
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	observability.WSClientsActive().Inc()
	defer observability.WSClientsActive().Dec()

	session := &syncSession{
		handler:  h,
		conn:     conn,
		actorID:  actorID,
		outbound: make(chan syncFrame, outboundBufferSize),
		subs:     make(map[string]*realtime.Subscription),
	}

	h.logger.Info().Str("user_id", actorID).Msg("sync websocket connected")

	var writerDone sync.WaitGroup
	writerDone.Add(1)
	go func() {
		defer writerDone.Done()
		session.writeLoop()
	}()

	session.readLoop(ctx, cancel)

	session.closeAll()
	close(session.outbound)
	writerDone.Wait()
	_ = conn.Close()

	h.logger.Info().Str("user_id", actorID).Msg("sync websocket disconnected")
}

// syncSession owns the per-connection subscription set. All writes to the
// socket funnel through the outbound channel because the websocket connection
// is not safe for concurrent writers.
type syncSession struct {
	handler  *SyncHandler
	conn     *websocket.Conn
	actorID  string
	outbound chan syncFrame

	mu   sync.Mutex
	subs map[string]*realtime.Subscription
	wg   sync.WaitGroup
}

func (s *syncSession) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	for {
		var request syncRequest
		if err := s.conn.ReadJSON(&request); err != nil {
			return
		}

		switch strings.ToLower(strings.TrimSpace(request.Action)) {
		case "subscribe":
			s.subscribe(ctx, request.Conversation)
		case "unsubscribe":
			s.unsubscribe(request.Conversation)
		default:
			s.send(syncFrame{Type: "error", Error: "unknown action"})
		}
	}
}

func (s *syncSession) subscribe(ctx context.Context, raw string) {
	conversation, err := models.ParseConversation(raw)
	if err != nil {
		s.send(syncFrame{Type: "error", Error: "invalid conversation"})
		return
	}
	key := conversation.String()

	s.mu.Lock()
	if _, ok := s.subs[key]; ok {
		s.mu.Unlock()
		return
	}
	sub := s.handler.engine.Subscribe(ctx, s.actorID, key)
	s.subs[key] = sub
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pump(ctx, sub)
	}()
}

func (s *syncSession) unsubscribe(raw string) {
	conversation, err := models.ParseConversation(raw)
	if err != nil {
		s.send(syncFrame{Type: "error", Error: "invalid conversation"})
		return
	}
	key := conversation.String()

	s.mu.Lock()
	sub, ok := s.subs[key]
	if ok {
		delete(s.subs, key)
	}
	s.mu.Unlock()

	if ok {
		sub.Stop()
	}
}

// pump forwards one subscription's notifications and status transitions onto
// the shared outbound channel until the subscription ends.
func (s *syncSession) pump(ctx context.Context, sub *realtime.Subscription) {
	for {
		select {
		case notification, ok := <-sub.Notifications():
			if !ok {
				return
			}
			s.send(syncFrame{
				Type:         "notification",
				Conversation: notification.Conversation,
				Notification: &notification,
			})
		case status, ok := <-sub.StatusChanges():
			if !ok {
				return
			}
			s.send(syncFrame{
				Type:         "status",
				Conversation: status.Conversation,
				Status:       &status,
			})
			if status.State == realtime.StateClosed {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *syncSession) send(frame syncFrame) {
	select {
	case s.outbound <- frame:
	default:
		s.handler.logger.Warn().Str("user_id", s.actorID).Msg("dropping sync frame for slow client")
	}
}

func (s *syncSession) writeLoop() {
	for frame := range s.outbound {
		if err := s.conn.WriteJSON(frame); err != nil {
			// Keep draining so senders never block on a dead socket.
			continue
		}
	}
}

func (s *syncSession) closeAll() {
	s.mu.Lock()
	subs := make([]*realtime.Subscription, 0, len(s.subs))
	for key, sub := range s.subs {
		subs = append(subs, sub)
		delete(s.subs, key)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Stop()
	}
	s.wg.Wait()
}

func websocketUserID(conn *websocket.Conn) string {
	if value := conn.Locals("user_id"); value != nil {
		switch v := value.(type) {
		case float64:
			return strconv.FormatUint(uint64(v), 10)
		case uint:
			return strconv.FormatUint(uint64(v), 10)
		case int:
			return strconv.Itoa(v)
		case string:
			return strings.TrimSpace(v)
		}
	}
	return ""
}
