package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/relaydesk/relay-go-api/internal/dto"
	"github.com/relaydesk/relay-go-api/internal/models"
	"github.com/relaydesk/relay-go-api/internal/realtime"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type stubChannelRepo struct {
	channels map[uint]models.Channel
	members  map[uint]map[string]models.ChannelMember
	cascaded []uint
}

func newStubChannelRepo() *stubChannelRepo {
	return &stubChannelRepo{
		channels: make(map[uint]models.Channel),
		members:  make(map[uint]map[string]models.ChannelMember),
	}
}

func (s *stubChannelRepo) Create(ctx context.Context, channel *models.Channel) error {
	channel.ID = uint(len(s.channels) + 1)
	s.channels[channel.ID] = *channel
	return nil
}

func (s *stubChannelRepo) GetByID(ctx context.Context, id uint) (models.Channel, error) {
	channel, ok := s.channels[id]
	if !ok {
		return models.Channel{}, gorm.ErrRecordNotFound
	}
	return channel, nil
}

func (s *stubChannelRepo) ListByOrganization(ctx context.Context, organizationID string) ([]models.Channel, error) {
	var out []models.Channel
	for _, channel := range s.channels {
		out = append(out, channel)
	}
	return out, nil
}

func (s *stubChannelRepo) DeleteCascade(ctx context.Context, id uint) error {
	if _, ok := s.channels[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.channels, id)
	delete(s.members, id)
	s.cascaded = append(s.cascaded, id)
	return nil
}

func (s *stubChannelRepo) AddMember(ctx context.Context, member *models.ChannelMember) error {
	if s.members[member.ChannelID] == nil {
		s.members[member.ChannelID] = make(map[string]models.ChannelMember)
	}
	s.members[member.ChannelID][member.UserID] = *member
	return nil
}

func (s *stubChannelRepo) GetMember(ctx context.Context, channelID uint, userID string) (models.ChannelMember, error) {
	member, ok := s.members[channelID][userID]
	if !ok {
		return models.ChannelMember{}, gorm.ErrRecordNotFound
	}
	return member, nil
}

func (s *stubChannelRepo) RemoveMember(ctx context.Context, channelID uint, userID string) error {
	delete(s.members[channelID], userID)
	return nil
}

// stubMessageRepo mirrors the store's three tables, each with its own id
// sequence, so colliding ids across tables are the normal case here too.
type stubMessageRepo struct {
	messages map[uint]models.Message
	directs  map[uint]models.DirectMessage
	replies  map[uint]models.ThreadMessage

	nextMessageID uint
	nextDirectID  uint
	nextReplyID   uint

	updates  int
	cascaded []uint
}

func newStubMessageRepo() *stubMessageRepo {
	return &stubMessageRepo{
		messages: make(map[uint]models.Message),
		directs:  make(map[uint]models.DirectMessage),
		replies:  make(map[uint]models.ThreadMessage),
	}
}

func (s *stubMessageRepo) Create(ctx context.Context, message *models.Message) error {
	s.nextMessageID++
	message.ID = s.nextMessageID
	message.CreatedAt = time.Now().UTC()
	s.messages[message.ID] = *message
	return nil
}

func (s *stubMessageRepo) GetByID(ctx context.Context, id uint) (models.Message, error) {
	message, ok := s.messages[id]
	if !ok {
		return models.Message{}, gorm.ErrRecordNotFound
	}
	return message, nil
}

func (s *stubMessageRepo) Update(ctx context.Context, message *models.Message) error {
	s.updates++
	s.messages[message.ID] = *message
	return nil
}

func (s *stubMessageRepo) DeleteCascade(ctx context.Context, id uint) error {
	if _, ok := s.messages[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.messages, id)
	s.cascaded = append(s.cascaded, id)
	return nil
}

func (s *stubMessageRepo) ListByChannel(ctx context.Context, channelID uint, before time.Time, limit int) ([]models.Message, error) {
	var out []models.Message
	for _, message := range s.messages {
		if message.ChannelID == channelID {
			out = append(out, message)
		}
	}
	return out, nil
}

func (s *stubMessageRepo) ListPinned(ctx context.Context, channelID uint) ([]models.Message, error) {
	var out []models.Message
	for _, message := range s.messages {
		if message.ChannelID == channelID && message.IsPinned {
			out = append(out, message)
		}
	}
	return out, nil
}

func (s *stubMessageRepo) SetPinned(ctx context.Context, id uint, pinned bool, at time.Time) (models.Message, error) {
	message, ok := s.messages[id]
	if !ok {
		return models.Message{}, gorm.ErrRecordNotFound
	}
	message.IsPinned = pinned
	if pinned {
		message.PinnedAt = &at
	} else {
		message.PinnedAt = nil
	}
	s.messages[id] = message
	return message, nil
}

func (s *stubMessageRepo) CreateDirect(ctx context.Context, message *models.DirectMessage) error {
	s.nextDirectID++
	message.ID = s.nextDirectID
	message.CreatedAt = time.Now().UTC()
	s.directs[message.ID] = *message
	return nil
}

func (s *stubMessageRepo) GetDirectByID(ctx context.Context, id uint) (models.DirectMessage, error) {
	message, ok := s.directs[id]
	if !ok {
		return models.DirectMessage{}, gorm.ErrRecordNotFound
	}
	return message, nil
}

func (s *stubMessageRepo) UpdateDirect(ctx context.Context, message *models.DirectMessage) error {
	s.updates++
	s.directs[message.ID] = *message
	return nil
}

func (s *stubMessageRepo) DeleteDirectCascade(ctx context.Context, id uint) error {
	if _, ok := s.directs[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.directs, id)
	for replyID, reply := range s.replies {
		if reply.ParentMessageID == id && reply.ChannelID == nil {
			delete(s.replies, replyID)
		}
	}
	return nil
}

func (s *stubMessageRepo) ListDirect(ctx context.Context, userA, userB string, before time.Time, limit int) ([]models.DirectMessage, error) {
	var out []models.DirectMessage
	for _, message := range s.directs {
		out = append(out, message)
	}
	return out, nil
}

func (s *stubMessageRepo) CreateThreadReply(ctx context.Context, reply *models.ThreadMessage) error {
	s.nextReplyID++
	reply.ID = s.nextReplyID
	reply.CreatedAt = time.Now().UTC()
	s.replies[reply.ID] = *reply
	return nil
}

func (s *stubMessageRepo) ListThreadReplies(ctx context.Context, parentID uint, direct bool) ([]models.ThreadMessage, error) {
	var out []models.ThreadMessage
	for _, reply := range s.replies {
		if reply.ParentMessageID == parentID && (reply.ChannelID == nil) == direct {
			out = append(out, reply)
		}
	}
	return out, nil
}

func (s *stubMessageRepo) CountThreadReplies(ctx context.Context, parentID uint, direct bool) (int64, error) {
	replies, _ := s.ListThreadReplies(ctx, parentID, direct)
	return int64(len(replies)), nil
}

// recordingFeed captures published events for assertions.
type recordingFeed struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (f *recordingFeed) Publish(ctx context.Context, event realtime.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *recordingFeed) Subscribe(ctx context.Context, conversationID string) (<-chan realtime.Event, func(), error) {
	ch := make(chan realtime.Event)
	close(ch)
	return ch, func() {}, nil
}

func (f *recordingFeed) published() []realtime.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]realtime.Event, len(f.events))
	copy(out, f.events)
	return out
}

func newTestConversationService(t *testing.T) (ConversationService, *stubChannelRepo, *stubMessageRepo, *recordingFeed) {
	t.Helper()
	channels := newStubChannelRepo()
	messages := newStubMessageRepo()
	feed := &recordingFeed{}
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewConversationService(channels, messages, feed, nil, "", validate, testLogger())
	return svc, channels, messages, feed
}

func TestSendRejectsUnknownKind(t *testing.T) {
	svc, _, _, _ := newTestConversationService(t)

	_, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		Conversation: "channel:1",
		Content:      "hello",
		Type:         "video",
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSendFileRequiresFileReference(t *testing.T) {
	svc, channels, _, _ := newTestConversationService(t)
	channel := models.Channel{Name: "general"}
	require.NoError(t, channels.Create(context.Background(), &channel))

	_, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		Conversation: "channel:1",
		Type:         "file",
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSendSanitizesContentAndPublishes(t *testing.T) {
	svc, channels, _, feed := newTestConversationService(t)
	channel := models.Channel{Name: "general"}
	require.NoError(t, channels.Create(context.Background(), &channel))

	message, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		Conversation: "channel:1",
		Content:      "<script>alert(1)</script>hello team",
	})
	require.NoError(t, err)
	require.Equal(t, "hello team", message.Content)
	require.Equal(t, models.MessageTypeText, message.Type)

	events := feed.published()
	require.Len(t, events, 1)
	require.Equal(t, "channel:1", events[0].ConversationID)
	require.Equal(t, realtime.EntityMessage, events[0].Entity)
	require.Equal(t, realtime.OpInsert, events[0].Operation)
}

func TestSendRejectsContentEmptyAfterSanitization(t *testing.T) {
	svc, channels, _, _ := newTestConversationService(t)
	channel := models.Channel{Name: "general"}
	require.NoError(t, channels.Create(context.Background(), &channel))

	_, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		Conversation: "channel:1",
		Content:      "<script>alert(1)</script>",
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSendRejectsPrivateChannelNonMember(t *testing.T) {
	svc, channels, _, _ := newTestConversationService(t)
	channel := models.Channel{Name: "secret", IsPrivate: true}
	require.NoError(t, channels.Create(context.Background(), &channel))

	_, err := svc.Send(context.Background(), "mallory", dto.MessageSendRequest{
		Conversation: "channel:1",
		Content:      "let me in",
	})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestSendRejectsForeignDirectConversation(t *testing.T) {
	svc, _, _, _ := newTestConversationService(t)

	_, err := svc.Send(context.Background(), "carol", dto.MessageSendRequest{
		Conversation: "dm:alice:bob",
		Content:      "intruding",
	})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestEditRejectsNonAuthor(t *testing.T) {
	svc, channels, messages, _ := newTestConversationService(t)
	channel := models.Channel{Name: "general"}
	require.NoError(t, channels.Create(context.Background(), &channel))

	message := models.Message{ChannelID: 1, SenderID: "alice", Content: "original", MessageType: models.MessageTypeText}
	require.NoError(t, messages.Create(context.Background(), &message))

	_, err := svc.Edit(context.Background(), models.ChannelConversation(1), message.ID, "bob", "hijacked")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestEditUnchangedContentIsNoOp(t *testing.T) {
	svc, _, messages, feed := newTestConversationService(t)

	message := models.Message{ChannelID: 1, SenderID: "alice", Content: "same", MessageType: models.MessageTypeText}
	require.NoError(t, messages.Create(context.Background(), &message))

	response, err := svc.Edit(context.Background(), models.ChannelConversation(1), message.ID, "alice", "same")
	require.NoError(t, err)
	require.Equal(t, "same", response.Content)
	require.Zero(t, messages.updates, "unchanged content must not hit the store")
	require.Empty(t, feed.published(), "a no-op edit publishes nothing")
}

func TestEditMissingMessage(t *testing.T) {
	svc, _, _, _ := newTestConversationService(t)

	_, err := svc.Edit(context.Background(), models.ChannelConversation(1), 99, "alice", "anything")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteChannelRequiresNameEcho(t *testing.T) {
	svc, channels, _, _ := newTestConversationService(t)
	ctx := context.Background()

	channel, err := svc.CreateChannel(ctx, "alice", dto.ChannelCreateRequest{Name: "launch-plan"})
	require.NoError(t, err)

	err = svc.DeleteChannel(ctx, channel.ID, "alice", "launch-pla")
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, channels.cascaded)

	require.NoError(t, svc.DeleteChannel(ctx, channel.ID, "alice", "launch-plan"))
	require.Equal(t, []uint{channel.ID}, channels.cascaded)
}

func TestDeleteChannelRequiresModerator(t *testing.T) {
	svc, _, _, _ := newTestConversationService(t)
	ctx := context.Background()

	channel, err := svc.CreateChannel(ctx, "alice", dto.ChannelCreateRequest{Name: "general"})
	require.NoError(t, err)
	require.NoError(t, svc.JoinChannel(ctx, channel.ID, "bob"))

	err = svc.DeleteChannel(ctx, channel.ID, "bob", "general")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestThreadReplyRejectsMissingParent(t *testing.T) {
	svc, _, _, _ := newTestConversationService(t)

	_, err := svc.SendThreadReply(context.Background(), "alice", dto.ThreadReplyCreateRequest{
		Conversation:    "channel:1",
		ParentMessageID: 404,
		Content:         "into the void",
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestThreadReplyCannotNest(t *testing.T) {
	svc, channels, messages, _ := newTestConversationService(t)
	ctx := context.Background()

	channel := models.Channel{Name: "general"}
	require.NoError(t, channels.Create(ctx, &channel))
	parent := models.Message{ChannelID: 1, SenderID: "alice", Content: "top level", MessageType: models.MessageTypeText}
	require.NoError(t, messages.Create(ctx, &parent))

	_, err := svc.SendThreadReply(ctx, "bob", dto.ThreadReplyCreateRequest{
		Conversation:    "channel:1",
		ParentMessageID: parent.ID,
		Content:         "first reply",
	})
	require.NoError(t, err)

	second, err := svc.SendThreadReply(ctx, "carol", dto.ThreadReplyCreateRequest{
		Conversation:    "channel:1",
		ParentMessageID: parent.ID,
		Content:         "second reply",
	})
	require.NoError(t, err)

	// Replies only attach to top-level messages. The second reply's id has no
	// row in the message table, so treating it as a parent must fail.
	_, err = svc.SendThreadReply(ctx, "bob", dto.ThreadReplyCreateRequest{
		Conversation:    "channel:1",
		ParentMessageID: second.ID,
		Content:         "nested",
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEditScopesMessageIDToConversation(t *testing.T) {
	svc, channels, messages, _ := newTestConversationService(t)
	ctx := context.Background()

	channel := models.Channel{Name: "general"}
	require.NoError(t, channels.Create(ctx, &channel))
	channelMessage := models.Message{ChannelID: 1, SenderID: "bob", Content: "channel post", MessageType: models.MessageTypeText}
	require.NoError(t, messages.Create(ctx, &channelMessage))
	direct := models.DirectMessage{SenderID: "alice", RecipientID: "carol", Content: "dm post", MessageType: models.MessageTypeText}
	require.NoError(t, messages.CreateDirect(ctx, &direct))
	require.Equal(t, channelMessage.ID, direct.ID, "each table numbers its own rows")

	// Alice edits her own direct message even though a channel message by bob
	// shares the id.
	response, err := svc.Edit(ctx, models.DirectConversation("alice", "carol"), direct.ID, "alice", "dm edited")
	require.NoError(t, err)
	require.Equal(t, "dm edited", response.Content)
	require.Equal(t, "channel post", messages.messages[channelMessage.ID].Content)

	// The id does not reach across conversations.
	_, err = svc.Edit(ctx, models.DirectConversation("alice", "bob"), direct.ID, "alice", "wrong pair")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteScopesMessageIDToConversation(t *testing.T) {
	svc, channels, messages, _ := newTestConversationService(t)
	ctx := context.Background()

	channel := models.Channel{Name: "general"}
	require.NoError(t, channels.Create(ctx, &channel))
	channelMessage := models.Message{ChannelID: 1, SenderID: "bob", Content: "channel post", MessageType: models.MessageTypeText}
	require.NoError(t, messages.Create(ctx, &channelMessage))
	direct := models.DirectMessage{SenderID: "alice", RecipientID: "carol", Content: "dm post", MessageType: models.MessageTypeText}
	require.NoError(t, messages.CreateDirect(ctx, &direct))

	require.NoError(t, svc.Delete(ctx, models.DirectConversation("alice", "carol"), direct.ID, "alice"))
	require.NotContains(t, messages.directs, direct.ID)
	require.Contains(t, messages.messages, channelMessage.ID, "the channel message with the same id survives")
}

func TestSendImageRejectsNonImageAttachmentType(t *testing.T) {
	svc, channels, _, _ := newTestConversationService(t)
	channel := models.Channel{Name: "general"}
	require.NoError(t, channels.Create(context.Background(), &channel))

	_, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		Conversation: "channel:1",
		Type:         "image",
		FileURL:      "https://files.example.com/report.pdf",
		FileMIME:     "application/pdf",
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSendRejectsUnknownAttachmentType(t *testing.T) {
	svc, channels, _, _ := newTestConversationService(t)
	channel := models.Channel{Name: "general"}
	require.NoError(t, channels.Create(context.Background(), &channel))

	_, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		Conversation: "channel:1",
		Type:         "file",
		FileURL:      "https://files.example.com/blob",
		FileMIME:     "application/x-no-such-type",
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSendFileCarriesAttachmentType(t *testing.T) {
	svc, channels, _, _ := newTestConversationService(t)
	channel := models.Channel{Name: "general"}
	require.NoError(t, channels.Create(context.Background(), &channel))

	message, err := svc.Send(context.Background(), "alice", dto.MessageSendRequest{
		Conversation: "channel:1",
		Type:         "file",
		FileURL:      "https://files.example.com/report.pdf",
		FileMIME:     "application/pdf",
	})
	require.NoError(t, err)
	require.Equal(t, "application/pdf", message.FileMIME)
}

func TestCreateChannelRejectsMetadataOutsideSchema(t *testing.T) {
	svc, _, _, _ := newTestConversationService(t)
	ctx := context.Background()

	_, err := svc.CreateChannel(ctx, "alice", dto.ChannelCreateRequest{
		Name:     "general",
		Metadata: map[string]interface{}{"topic": float64(42)},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateChannel(ctx, "alice", dto.ChannelCreateRequest{
		Name:     "general",
		Metadata: map[string]interface{}{"mascot": "gopher"},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateChannelStoresSchemaValidMetadata(t *testing.T) {
	svc, channels, _, _ := newTestConversationService(t)
	ctx := context.Background()

	channel, err := svc.CreateChannel(ctx, "alice", dto.ChannelCreateRequest{
		Name:     "launch",
		Metadata: map[string]interface{}{"topic": "release day", "retention_days": float64(30)},
	})
	require.NoError(t, err)

	stored := channels.channels[channel.ID]
	require.Equal(t, "release day", stored.Metadata["topic"])
	require.Equal(t, "alice", stored.Metadata["created_by"])
}
