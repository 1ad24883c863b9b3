package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relay-go-api/internal/models"
)

func TestTypingIndicatorRenewAndExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	svc := NewPresenceService(client, "relay", 2*time.Second, testLogger())
	ctx := context.Background()
	conversation := models.ChannelConversation(1)

	require.NoError(t, svc.RenewTyping(ctx, "alice", conversation))
	require.NoError(t, svc.RenewTyping(ctx, "bob", conversation))

	state, err := svc.ListTyping(ctx, conversation)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, state.UserIDs)
	require.Equal(t, conversation.String(), state.Conversation)

	// The indicator auto-expires unless renewed.
	mr.FastForward(3 * time.Second)

	state, err = svc.ListTyping(ctx, conversation)
	require.NoError(t, err)
	require.Empty(t, state.UserIDs)
}

func TestTypingIndicatorScopedToConversation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	svc := NewPresenceService(client, "relay", 2*time.Second, testLogger())
	ctx := context.Background()

	require.NoError(t, svc.RenewTyping(ctx, "alice", models.ChannelConversation(1)))

	state, err := svc.ListTyping(ctx, models.ChannelConversation(2))
	require.NoError(t, err)
	require.Empty(t, state.UserIDs)
}

func TestTypingWithoutRedisIsSilent(t *testing.T) {
	svc := NewPresenceService(nil, "relay", 0, testLogger())
	ctx := context.Background()

	require.NoError(t, svc.RenewTyping(ctx, "alice", models.ChannelConversation(1)))
	state, err := svc.ListTyping(ctx, models.ChannelConversation(1))
	require.NoError(t, err)
	require.Empty(t, state.UserIDs)
}
