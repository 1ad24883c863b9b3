package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInvalidateRefetchesAndSupersedesOptimistic(t *testing.T) {
	cache := NewQueryCache()
	key := CacheKey{Conversation: "channel:1", Kind: QueryMessages}

	cache.SetOptimistic(key, "optimistic")
	value, ok := cache.Get(key)
	require.True(t, ok)
	require.Equal(t, "optimistic", value)

	err := cache.Invalidate(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		return "confirmed", nil
	})
	require.NoError(t, err)

	value, ok = cache.Get(key)
	require.True(t, ok)
	require.Equal(t, "confirmed", value)

	// The optimistic overlay is gone; a rollback now is a no-op.
	cache.Rollback(key)
	value, ok = cache.Get(key)
	require.True(t, ok)
	require.Equal(t, "confirmed", value)
}

func TestRollbackRestoresConfirmedValue(t *testing.T) {
	cache := NewQueryCache()
	key := CacheKey{Conversation: "channel:1", Kind: QueryMessages}

	require.NoError(t, cache.Invalidate(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		return []string{"a", "b"}, nil
	}))

	cache.SetOptimistic(key, []string{"a", "b", "c"})
	cache.SetOptimistic(key, []string{"a", "b", "c", "d"})

	cache.Rollback(key)
	value, ok := cache.Get(key)
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, value, "rollback restores the last confirmed value, not the intermediate one")
}

func TestCommitDropsRollbackState(t *testing.T) {
	cache := NewQueryCache()
	key := CacheKey{Conversation: "channel:1", Kind: QueryReactions}

	cache.SetOptimistic(key, "pending")
	cache.Commit(key)
	cache.Rollback(key)

	value, ok := cache.Get(key)
	require.True(t, ok)
	require.Equal(t, "pending", value)
}

func TestInvalidateFailureClearsEntry(t *testing.T) {
	cache := NewQueryCache()
	key := CacheKey{Conversation: "channel:1", Kind: QueryMessages}

	cache.SetOptimistic(key, "stale")
	err := cache.Invalidate(context.Background(), key, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("store down")
	})
	require.Error(t, err)

	_, ok := cache.Get(key)
	require.False(t, ok, "a failed refetch must not leave a stale value behind")
}

func TestInvalidateWithoutFetcherDropsValue(t *testing.T) {
	cache := NewQueryCache()
	key := CacheKey{Conversation: "dm:alice:bob", Kind: QueryUnread}

	cache.SetOptimistic(key, int64(3))
	require.NoError(t, cache.Invalidate(context.Background(), key, nil))

	_, ok := cache.Get(key)
	require.False(t, ok)
}
