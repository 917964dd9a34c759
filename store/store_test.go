package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/store"
	"github.com/convoflow/convoflow/store/kv"
	"github.com/convoflow/convoflow/store/test"
)

func textContent(text string) store.MessageContent {
	return store.MessageContent{ContentType: "text", Parts: []string{text}}
}

func newTestStore(config store.CacheConfig) (*store.Store, *test.MemoryDriver, *kv.MemoryStore) {
	driver := test.NewMemoryDriver()
	cache := kv.NewMemoryStore()
	return store.New(driver, cache, config), driver, cache
}

func TestGetOrCreateConversation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(store.DefaultCacheConfig())

	t.Run("CreatesWhenIDEmpty", func(t *testing.T) {
		conversation, err := s.GetOrCreateConversation(ctx, "alice", "")
		require.NoError(t, err)
		assert.NotEmpty(t, conversation.ID)
		assert.Equal(t, "alice", conversation.OwnerID)
	})

	t.Run("ReturnsExisting", func(t *testing.T) {
		created, err := s.GetOrCreateConversation(ctx, "alice", "")
		require.NoError(t, err)

		got, err := s.GetOrCreateConversation(ctx, "alice", created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, created.CreatedTs, got.CreatedTs)
	})

	t.Run("CreatesWithRequestedID", func(t *testing.T) {
		conversation, err := s.GetOrCreateConversation(ctx, "alice", "custom-id")
		require.NoError(t, err)
		assert.Equal(t, "custom-id", conversation.ID)
	})
}

func TestAddMessageRequiresConversation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(store.DefaultCacheConfig())

	_, err := s.AddMessage(ctx, "missing", store.RoleUser, textContent("hi"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConversationNotFound))
}

func TestGetMessagesOrderAndIdempotence(t *testing.T) {
	ctx := context.Background()
	s, driver, _ := newTestStore(store.DefaultCacheConfig())

	conversation, err := s.GetOrCreateConversation(ctx, "alice", "")
	require.NoError(t, err)

	texts := []string{"one", "two", "three", "four", "five"}
	for i, text := range texts {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		_, err := s.AddMessage(ctx, conversation.ID, role, textContent(text), "")
		require.NoError(t, err)
	}

	first, err := s.GetMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, first, len(texts))
	for i, m := range first {
		assert.Equal(t, texts[i], m.Content.Text())
	}

	second, err := s.GetMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, second, len(texts))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	// Every write warmed the cache, so no read touched the durable store.
	assert.Equal(t, 0, driver.ListMessagesCalls)
}

func TestGetMessagesColdRepopulatesCache(t *testing.T) {
	ctx := context.Background()
	s, driver, _ := newTestStore(store.DefaultCacheConfig())

	conversation, err := s.GetOrCreateConversation(ctx, "alice", "")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.AddMessage(ctx, conversation.ID, store.RoleUser, textContent(fmt.Sprintf("m%d", i)), "")
		require.NoError(t, err)
	}

	// Same durable store, empty cache: a restart or eviction.
	cold := store.New(driver, kv.NewMemoryStore(), store.DefaultCacheConfig())

	first, err := cold.GetMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, 1, driver.ListMessagesCalls)

	second, err := cold.GetMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, second, 3)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Content, second[i].Content)
	}
	assert.Equal(t, 1, driver.ListMessagesCalls)
}

func TestGetMessagesHealsCorruptCacheEntry(t *testing.T) {
	ctx := context.Background()
	s, driver, cache := newTestStore(store.DefaultCacheConfig())

	conversation, err := s.GetOrCreateConversation(ctx, "alice", "")
	require.NoError(t, err)
	added, err := s.AddMessage(ctx, conversation.ID, store.RoleUser, textContent("hello"), "")
	require.NoError(t, err)

	// A corrupt element lands at the head of the cached history.
	key := "conv:" + conversation.ID + ":history"
	require.NoError(t, cache.Delete(ctx, key))
	require.NoError(t, cache.ListAppend(ctx, key, []byte("{not json")))

	for i := 0; i < 3; i++ {
		messages, err := s.GetMessages(ctx, conversation.ID)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, added.ID, messages[0].ID)
	}

	// The first read purges the bad entry and rebuilds it; later reads are
	// warm and the entry does not accrete duplicates.
	assert.Equal(t, 1, driver.ListMessagesCalls)
	entry, err := cache.ListRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Len(t, entry, 1)
}

func TestHistoryCacheCap(t *testing.T) {
	ctx := context.Background()
	config := store.CacheConfig{HistoryCap: 3, HistoryTTL: time.Minute, ListTTL: time.Minute}
	s, driver, _ := newTestStore(config)

	conversation, err := s.GetOrCreateConversation(ctx, "alice", "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.AddMessage(ctx, conversation.ID, store.RoleUser, textContent(fmt.Sprintf("m%d", i)), "")
		require.NoError(t, err)
	}

	// Warm reads serve the bounded suffix in durable order.
	warm, err := s.GetMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, warm, 3)
	assert.Equal(t, "m2", warm[0].Content.Text())
	assert.Equal(t, "m4", warm[2].Content.Text())
	assert.Equal(t, 0, driver.ListMessagesCalls)

	// Cold reads return the full history and repopulate only the suffix.
	cold := store.New(driver, kv.NewMemoryStore(), config)
	full, err := cold.GetMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, full, 5)

	again, err := cold.GetMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, again, 3)
	assert.Equal(t, "m2", again[0].Content.Text())
}

func TestListConversationsCachesPages(t *testing.T) {
	ctx := context.Background()
	s, driver, _ := newTestStore(store.DefaultCacheConfig())

	first, err := s.GetOrCreateConversation(ctx, "alice", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, first.ID, store.RoleUser, textContent("earlier"), "")
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	second, err := s.GetOrCreateConversation(ctx, "alice", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, second.ID, store.RoleUser, textContent("later"), "")
	require.NoError(t, err)

	list, err := s.ListConversations(ctx, "alice", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Items, 2)
	assert.Equal(t, second.ID, list.Items[0].ID)
	require.NotNil(t, list.Items[0].LastMessage)
	assert.Equal(t, "later", *list.Items[0].LastMessage)
	assert.Equal(t, 1, driver.CountConversationsCalls)

	// A repeated read of the same page is served from cache.
	cached, err := s.ListConversations(ctx, "alice", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, list.Total, cached.Total)
	assert.Equal(t, 1, driver.CountConversationsCalls)
	assert.Equal(t, 1, driver.ListConversationPageCalls)

	// A different page is its own cache entry.
	_, err = s.ListConversations(ctx, "alice", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, driver.CountConversationsCalls)
}

func TestAddMessageInvalidatesListPages(t *testing.T) {
	ctx := context.Background()
	s, driver, _ := newTestStore(store.DefaultCacheConfig())

	conversation, err := s.GetOrCreateConversation(ctx, "alice", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conversation.ID, store.RoleUser, textContent("first"), "")
	require.NoError(t, err)

	list, err := s.ListConversations(ctx, "alice", 0, 10)
	require.NoError(t, err)
	require.NotNil(t, list.Items[0].LastMessage)
	assert.Equal(t, "first", *list.Items[0].LastMessage)
	assert.Equal(t, 1, driver.CountConversationsCalls)

	// The write invalidates the cached page, so the next read sees the new
	// preview instead of a stale one.
	_, err = s.AddMessage(ctx, conversation.ID, store.RoleAssistant, textContent("second"), "")
	require.NoError(t, err)

	refreshed, err := s.ListConversations(ctx, "alice", 0, 10)
	require.NoError(t, err)
	require.NotNil(t, refreshed.Items[0].LastMessage)
	assert.Equal(t, "second", *refreshed.Items[0].LastMessage)
	assert.Equal(t, 2, driver.CountConversationsCalls)
}

func TestListInvalidationIsPerOwner(t *testing.T) {
	ctx := context.Background()
	s, driver, _ := newTestStore(store.DefaultCacheConfig())

	aliceConv, err := s.GetOrCreateConversation(ctx, "alice", "")
	require.NoError(t, err)
	_, err = s.GetOrCreateConversation(ctx, "bob", "")
	require.NoError(t, err)

	_, err = s.ListConversations(ctx, "alice", 0, 10)
	require.NoError(t, err)
	_, err = s.ListConversations(ctx, "bob", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, driver.CountConversationsCalls)

	_, err = s.AddMessage(ctx, aliceConv.ID, store.RoleUser, textContent("hi"), "")
	require.NoError(t, err)

	// Bob's page survives Alice's write.
	_, err = s.ListConversations(ctx, "bob", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, driver.CountConversationsCalls)

	_, err = s.ListConversations(ctx, "alice", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, driver.CountConversationsCalls)
}

// failingKV simulates an unreachable cache backend. Every operation errors.
type failingKV struct{}

var errCacheDown = errors.New("cache backend unreachable")

func (failingKV) Get(context.Context, string) ([]byte, error)               { return nil, errCacheDown }
func (failingKV) Set(context.Context, string, []byte, time.Duration) error  { return errCacheDown }
func (failingKV) Delete(context.Context, ...string) error                   { return errCacheDown }
func (failingKV) Scan(context.Context, string) ([]string, error)            { return nil, errCacheDown }
func (failingKV) ListAppend(context.Context, string, ...[]byte) error       { return errCacheDown }
func (failingKV) ListTrim(context.Context, string, int64, int64) error      { return errCacheDown }
func (failingKV) ListRange(context.Context, string, int64, int64) ([][]byte, error) {
	return nil, errCacheDown
}
func (failingKV) Expire(context.Context, string, time.Duration) error { return errCacheDown }
func (failingKV) Close() error                                        { return nil }

func TestDegradesWhenCacheUnavailable(t *testing.T) {
	ctx := context.Background()
	driver := test.NewMemoryDriver()
	s := store.New(driver, failingKV{}, store.DefaultCacheConfig())

	conversation, err := s.GetOrCreateConversation(ctx, "alice", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conversation.ID, store.RoleUser, textContent("hello"), "")
	require.NoError(t, err)

	messages, err := s.GetMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content.Text())

	list, err := s.ListConversations(ctx, "alice", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
}
