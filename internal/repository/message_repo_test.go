package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relay-go-api/internal/models"
)

func TestListByChannelPagesBackwardInAscendingOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		message := models.Message{
			ChannelID: 1,
			SenderID:  "alice",
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&message).Error)
	}

	page, err := repo.ListByChannel(ctx, 1, time.Time{}, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, "message 2", page[0].Content, "newest page, oldest first")
	require.Equal(t, "message 4", page[2].Content)

	older, err := repo.ListByChannel(ctx, 1, page[0].CreatedAt, 3)
	require.NoError(t, err)
	require.Len(t, older, 2)
	require.Equal(t, "message 0", older[0].Content)
	require.Equal(t, "message 1", older[1].Content)
}

func TestListByChannelScopesToChannel(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Message{ChannelID: 1, SenderID: "alice", Content: "one"}).Error)
	require.NoError(t, db.Create(&models.Message{ChannelID: 2, SenderID: "bob", Content: "two"}).Error)

	messages, err := repo.ListByChannel(ctx, 1, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "one", messages[0].Content)
}

func TestListDirectMatchesBothDirections(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.DirectMessage{SenderID: "alice", RecipientID: "bob", Content: "hi", CreatedAt: base}).Error)
	require.NoError(t, db.Create(&models.DirectMessage{SenderID: "bob", RecipientID: "alice", Content: "hello", CreatedAt: base.Add(time.Minute)}).Error)
	require.NoError(t, db.Create(&models.DirectMessage{SenderID: "alice", RecipientID: "carol", Content: "other", CreatedAt: base}).Error)

	messages, err := repo.ListDirect(ctx, "alice", "bob", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "hi", messages[0].Content)
	require.Equal(t, "hello", messages[1].Content)
}

func TestSetPinnedTogglesFlagAndTimestamp(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	message := models.Message{ChannelID: 1, SenderID: "alice", Content: "pin me"}
	require.NoError(t, db.Create(&message).Error)

	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	pinned, err := repo.SetPinned(ctx, message.ID, true, at)
	require.NoError(t, err)
	require.True(t, pinned.IsPinned)
	require.NotNil(t, pinned.PinnedAt)

	unpinned, err := repo.SetPinned(ctx, message.ID, false, at.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, unpinned.IsPinned)
	require.Nil(t, unpinned.PinnedAt)

	listed, err := repo.ListPinned(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestDeleteCascadeRemovesReactionsAndReplies(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	message := models.Message{ChannelID: 1, SenderID: "alice", Content: "target"}
	require.NoError(t, db.Create(&message).Error)
	require.NoError(t, db.Create(&models.MessageReaction{MessageID: message.ID, UserID: "bob", Emoji: "thumbsup"}).Error)
	channelID := message.ChannelID
	require.NoError(t, db.Create(&models.ThreadMessage{ParentMessageID: message.ID, ChannelID: &channelID, SenderID: "bob", Content: "reply"}).Error)

	require.NoError(t, repo.DeleteCascade(ctx, message.ID))

	var reactions, replies int64
	require.NoError(t, db.Model(&models.MessageReaction{}).Count(&reactions).Error)
	require.NoError(t, db.Model(&models.ThreadMessage{}).Count(&replies).Error)
	require.Zero(t, reactions)
	require.Zero(t, replies)

	_, err := repo.GetByID(ctx, message.ID)
	require.Error(t, err)
}

func TestThreadRepliesListAndCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	parent := models.Message{ChannelID: 1, SenderID: "alice", Content: "parent"}
	require.NoError(t, db.Create(&parent).Error)

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		channelID := parent.ChannelID
		reply := models.ThreadMessage{
			ParentMessageID: parent.ID,
			ChannelID:       &channelID,
			SenderID:        "bob",
			Content:         fmt.Sprintf("reply %d", i),
			CreatedAt:       base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.CreateThreadReply(ctx, &reply))
	}

	replies, err := repo.ListThreadReplies(ctx, parent.ID, false)
	require.NoError(t, err)
	require.Len(t, replies, 3)
	require.Equal(t, "reply 0", replies[0].Content)

	count, err := repo.CountThreadReplies(ctx, parent.ID, false)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
}

func TestThreadRepliesScopedToParentNamespace(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	// A channel message and a direct message with the same row id each get a
	// reply; the two parents must never see each other's threads.
	channelParent := models.Message{ChannelID: 1, SenderID: "bob", Content: "channel parent"}
	require.NoError(t, db.Create(&channelParent).Error)
	directParent := models.DirectMessage{SenderID: "alice", RecipientID: "carol", Content: "direct parent"}
	require.NoError(t, db.Create(&directParent).Error)
	require.Equal(t, channelParent.ID, directParent.ID)

	channelID := channelParent.ChannelID
	require.NoError(t, repo.CreateThreadReply(ctx, &models.ThreadMessage{
		ParentMessageID: channelParent.ID, ChannelID: &channelID, SenderID: "dave", Content: "in channel",
	}))
	require.NoError(t, repo.CreateThreadReply(ctx, &models.ThreadMessage{
		ParentMessageID: directParent.ID, SenderID: "carol", Content: "in dm",
	}))

	channelReplies, err := repo.ListThreadReplies(ctx, channelParent.ID, false)
	require.NoError(t, err)
	require.Len(t, channelReplies, 1)
	require.Equal(t, "in channel", channelReplies[0].Content)

	directReplies, err := repo.ListThreadReplies(ctx, directParent.ID, true)
	require.NoError(t, err)
	require.Len(t, directReplies, 1)
	require.Equal(t, "in dm", directReplies[0].Content)

	directCount, err := repo.CountThreadReplies(ctx, directParent.ID, true)
	require.NoError(t, err)
	require.Equal(t, int64(1), directCount)
}

func TestDeleteCascadeLeavesDirectThreadAlone(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	message := models.Message{ChannelID: 1, SenderID: "bob", Content: "channel"}
	require.NoError(t, db.Create(&message).Error)
	direct := models.DirectMessage{SenderID: "alice", RecipientID: "carol", Content: "direct"}
	require.NoError(t, db.Create(&direct).Error)
	require.NoError(t, repo.CreateThreadReply(ctx, &models.ThreadMessage{
		ParentMessageID: direct.ID, SenderID: "carol", Content: "dm reply",
	}))

	require.NoError(t, repo.DeleteCascade(ctx, message.ID))

	directReplies, err := repo.ListThreadReplies(ctx, direct.ID, true)
	require.NoError(t, err)
	require.Len(t, directReplies, 1, "deleting a channel message must not touch a direct thread with the same parent id")
}

func TestDeleteDirectCascadeRemovesOwnRepliesOnly(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	message := models.Message{ChannelID: 1, SenderID: "bob", Content: "channel"}
	require.NoError(t, db.Create(&message).Error)
	direct := models.DirectMessage{SenderID: "alice", RecipientID: "carol", Content: "direct"}
	require.NoError(t, db.Create(&direct).Error)

	channelID := message.ChannelID
	require.NoError(t, repo.CreateThreadReply(ctx, &models.ThreadMessage{
		ParentMessageID: message.ID, ChannelID: &channelID, SenderID: "dave", Content: "channel reply",
	}))
	require.NoError(t, repo.CreateThreadReply(ctx, &models.ThreadMessage{
		ParentMessageID: direct.ID, SenderID: "carol", Content: "dm reply",
	}))

	require.NoError(t, repo.DeleteDirectCascade(ctx, direct.ID))

	_, err := repo.GetDirectByID(ctx, direct.ID)
	require.Error(t, err)

	channelReplies, err := repo.ListThreadReplies(ctx, message.ID, false)
	require.NoError(t, err)
	require.Len(t, channelReplies, 1)

	directReplies, err := repo.ListThreadReplies(ctx, direct.ID, true)
	require.NoError(t, err)
	require.Empty(t, directReplies)
}
