package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestStreamFeedPublishesOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	feed := NewStreamFeed(client, nil, "relay", testLogger())
	ctx := context.Background()

	events, cancel, err := feed.Subscribe(ctx, "channel:1")
	require.NoError(t, err)
	defer cancel()

	sent := Event{
		ConversationID: "channel:1",
		Entity:         EntityReaction,
		Operation:      OpInsert,
		RowID:          3,
	}
	require.NoError(t, feed.Publish(ctx, sent))

	select {
	case received := <-events:
		require.Equal(t, sent.ConversationID, received.ConversationID)
		require.Equal(t, sent.Entity, received.Entity)
		require.Equal(t, sent.Operation, received.Operation)
		require.Equal(t, sent.RowID, received.RowID)
		require.NotEmpty(t, received.Source, "publisher stamps its node identity")
		require.False(t, received.SentAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
	}
}

func TestStreamFeedIsolatesConversations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	feed := NewStreamFeed(client, nil, "relay", testLogger())
	ctx := context.Background()

	events, cancel, err := feed.Subscribe(ctx, "channel:1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, feed.Publish(ctx, Event{ConversationID: "channel:2", Entity: EntityMessage, Operation: OpInsert}))
	require.NoError(t, feed.Publish(ctx, Event{ConversationID: "channel:1", Entity: EntityMessage, Operation: OpUpdate, RowID: 9}))

	select {
	case received := <-events:
		require.Equal(t, "channel:1", received.ConversationID)
		require.Equal(t, uint(9), received.RowID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
	}
}

func TestStreamFeedWithoutTransportFails(t *testing.T) {
	feed := NewStreamFeed(nil, nil, "relay", testLogger())

	err := feed.Publish(context.Background(), Event{ConversationID: "channel:1"})
	require.ErrorIs(t, err, ErrFeedUnavailable)

	_, _, err = feed.Subscribe(context.Background(), "channel:1")
	require.ErrorIs(t, err, ErrFeedUnavailable)
}

func TestFeedSinkDropsDeliveryAfterClose(t *testing.T) {
	sink := newFeedSink()

	require.True(t, sink.deliver(Event{ConversationID: "channel:1", RowID: 1}))

	sink.close()
	// A transport callback can still fire after the subscription is torn
	// down; it must observe the closed sink instead of the closed channel.
	require.False(t, sink.deliver(Event{ConversationID: "channel:1", RowID: 2}))
	sink.close()

	received, ok := <-sink.events
	require.True(t, ok)
	require.Equal(t, uint(1), received.RowID)
	_, ok = <-sink.events
	require.False(t, ok)
}

func TestFeedSinkReportsFullBuffer(t *testing.T) {
	sink := newFeedSink()

	for i := 0; i < feedBufferSize; i++ {
		require.True(t, sink.deliver(Event{ConversationID: "channel:1", RowID: uint(i)}))
	}
	require.False(t, sink.deliver(Event{ConversationID: "channel:1", RowID: uint(feedBufferSize)}))
}

func TestMemoryFeedOrdering(t *testing.T) {
	feed := NewMemoryFeed()
	defer feed.Close()
	ctx := context.Background()

	events, cancel, err := feed.Subscribe(ctx, "dm:alice:bob")
	require.NoError(t, err)
	defer cancel()

	for i := uint(1); i <= 3; i++ {
		require.NoError(t, feed.Publish(ctx, Event{ConversationID: "dm:alice:bob", Entity: EntityMessage, Operation: OpInsert, RowID: i}))
	}

	for i := uint(1); i <= 3; i++ {
		select {
		case received := <-events:
			require.Equal(t, i, received.RowID, "per-conversation order is preserved")
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for feed event")
		}
	}
}
