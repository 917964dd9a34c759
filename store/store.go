package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/convoflow/convoflow/store/kv"
)

// ErrConversationNotFound is returned when a referenced conversation does not
// exist durably. It is propagated to the caller, never retried.
var ErrConversationNotFound = errors.New("conversation not found")

// CacheConfig holds the cache-aside settings.
type CacheConfig struct {
	// HistoryCap bounds the cached message history per conversation. The cached
	// entry is always a suffix of the true durable order, capped at this size.
	HistoryCap int
	HistoryTTL time.Duration
	ListTTL    time.Duration
}

// DefaultCacheConfig returns the default cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		HistoryCap: 200,
		HistoryTTL: 10 * time.Minute,
		ListTTL:    10 * time.Minute,
	}
}

// Store provides conversation and message access backed jointly by the durable
// store and the key-value cache. The durable store is the source of truth; the
// cache holds derived, expirable views only. Every durable mutation that can
// change a cached list page invalidates those pages before returning success,
// so a cached page is at worst stale for one TTL window.
//
// Cache failures never fail an operation: reads degrade to durable-only and
// writes skip the cache step with a warning.
type Store struct {
	driver Driver
	cache  kv.Store
	config CacheConfig
}

// New creates a new instance of Store.
func New(driver Driver, cache kv.Store, config CacheConfig) *Store {
	if config.HistoryCap <= 0 {
		config.HistoryCap = DefaultCacheConfig().HistoryCap
	}
	if config.HistoryTTL <= 0 {
		config.HistoryTTL = DefaultCacheConfig().HistoryTTL
	}
	if config.ListTTL <= 0 {
		config.ListTTL = DefaultCacheConfig().ListTTL
	}
	return &Store{
		driver: driver,
		cache:  cache,
		config: config,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	if err := s.cache.Close(); err != nil {
		slog.Default().Warn("Failed to close cache store", "error", err)
	}
	return s.driver.Close()
}

func historyKey(conversationID string) string {
	return "conv:" + conversationID + ":history"
}

func listKey(ownerID string, offset, limit int) string {
	return "user:" + ownerID + ":conversation_list:" + strconv.Itoa(offset) + ":" + strconv.Itoa(limit) + ":updated"
}

func listPattern(ownerID string) string {
	return "user:" + ownerID + ":conversation_list:*"
}

// historyItem is the cached projection of one message, stored as one JSON
// element of the conversation's history list.
type historyItem struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   MessageContent `json:"content"`
	CreatedTs int64          `json:"created_at"`
}

// GetOrCreateConversation returns the conversation with the given id if it
// exists durably, otherwise creates one owned by ownerID. A new conversation
// invalidates every cached conversation-list page for the owner; list pages
// embed derived previews a single write cannot cheaply patch, so invalidation
// is a full pattern delete.
func (s *Store) GetOrCreateConversation(ctx context.Context, ownerID, conversationID string) (*Conversation, error) {
	if conversationID != "" {
		conversation, err := s.driver.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, errors.Wrap(err, "get conversation")
		}
		if conversation != nil {
			return conversation, nil
		}
	}

	id := conversationID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UnixMicro()

	conversation, err := s.driver.CreateConversation(ctx, &Conversation{
		ID:        id,
		OwnerID:   ownerID,
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create conversation")
	}

	s.invalidateListPages(ctx, ownerID)

	return conversation, nil
}

// GetConversation returns the conversation with the given id, or
// ErrConversationNotFound. Conversation rows are small and read rarely
// relative to histories, so they are served from the durable store directly.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	conversation, err := s.driver.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "get conversation")
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

// AddMessage persists a message durably (bumping the conversation's updated_ts
// in the same transaction), appends it to the conversation's cached history,
// trims that history to the configured cap, refreshes its TTL, and invalidates
// the owner's cached list pages. Returns ErrConversationNotFound if the
// conversation does not durably exist.
func (s *Store) AddMessage(ctx context.Context, conversationID string, role Role, content MessageContent, messageID string) (*Message, error) {
	conversation, err := s.driver.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "get conversation")
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	id := messageID
	if id == "" {
		id = uuid.NewString()
	}

	message, err := s.driver.CreateMessage(ctx, &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedTs:      time.Now().UnixMicro(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create message")
	}

	s.appendHistory(ctx, conversationID, message)
	s.invalidateListPages(ctx, conversation.OwnerID)

	return message, nil
}

// GetMessages returns the ordered message history of a conversation.
// Warm path: the cached history entry is returned verbatim; it is defined to be
// a valid suffix of the durable order, so no durable read happens. Cold path:
// the full durable history is read, the cache repopulated with up to the last
// HistoryCap entries, and the full result returned. Callers that need full
// history under a hot cache must read the durable store directly.
func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	key := historyKey(conversationID)

	cached, err := s.cache.ListRange(ctx, key, 0, -1)
	if err != nil {
		slog.Default().Warn("History cache read failed, falling back to durable store",
			"conversation_id", conversationID, "error", err)
		cached = nil
	}
	if len(cached) > 0 {
		messages, err := decodeHistory(conversationID, cached)
		if err == nil {
			return messages, nil
		}
		slog.Default().Warn("History cache entry corrupt, falling back to durable store",
			"conversation_id", conversationID, "error", err)
		if err := s.cache.Delete(ctx, key); err != nil {
			slog.Default().Warn("History cache purge failed",
				"conversation_id", conversationID, "error", err)
		}
	}

	messages, err := s.driver.ListMessages(ctx, &FindMessage{ConversationID: &conversationID})
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}

	if len(messages) > 0 {
		tail := messages
		if len(tail) > s.config.HistoryCap {
			tail = tail[len(tail)-s.config.HistoryCap:]
		}
		values := make([][]byte, 0, len(tail))
		for _, m := range tail {
			values = append(values, encodeHistoryItem(m))
		}
		// Rebuild the entry from scratch. Appending onto whatever is already
		// under the key would duplicate the history when a stale or corrupt
		// entry survived, and the entry must stay a suffix of durable order.
		if err := s.cache.Delete(ctx, key); err != nil {
			slog.Default().Warn("History cache reset failed, skipping repopulation",
				"conversation_id", conversationID, "error", err)
		} else if err := s.cache.ListAppend(ctx, key, values...); err != nil {
			slog.Default().Warn("History cache populate failed",
				"conversation_id", conversationID, "error", err)
		} else if err := s.cache.Expire(ctx, key, s.config.HistoryTTL); err != nil {
			slog.Default().Warn("History cache expire failed",
				"conversation_id", conversationID, "error", err)
		}
	}

	return messages, nil
}

// ListConversations returns one page of the owner's conversations, most
// recently updated first, each with a preview of its latest message. The page
// payload is cached whole and re-fetched from the durable store on miss.
func (s *Store) ListConversations(ctx context.Context, ownerID string, offset, limit int) (*ConversationList, error) {
	key := listKey(ownerID, offset, limit)

	data, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Default().Warn("List cache read failed, falling back to durable store",
			"owner_id", ownerID, "error", err)
	} else if data != nil {
		payload := &ConversationList{}
		if err := json.Unmarshal(data, payload); err == nil {
			return payload, nil
		}
		slog.Default().Warn("List cache entry corrupt, falling back to durable store",
			"owner_id", ownerID, "error", err)
	}

	total, err := s.driver.CountConversations(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "count conversations")
	}
	items, err := s.driver.ListConversationPage(ctx, ownerID, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list conversation page")
	}

	payload := &ConversationList{
		Items:  items,
		Total:  total,
		Offset: offset,
		Limit:  limit,
	}

	if data, err := json.Marshal(payload); err == nil {
		if err := s.cache.Set(ctx, key, data, s.config.ListTTL); err != nil {
			slog.Default().Warn("List cache write failed", "owner_id", ownerID, "error", err)
		}
	}

	return payload, nil
}

// appendHistory appends one message to the cached history suffix, keeping the
// entry bounded and its TTL fresh. Cache errors are logged and swallowed.
func (s *Store) appendHistory(ctx context.Context, conversationID string, message *Message) {
	key := historyKey(conversationID)

	if err := s.cache.ListAppend(ctx, key, encodeHistoryItem(message)); err != nil {
		slog.Default().Warn("History cache append failed",
			"conversation_id", conversationID, "error", err)
		return
	}
	if err := s.cache.ListTrim(ctx, key, -int64(s.config.HistoryCap), -1); err != nil {
		slog.Default().Warn("History cache trim failed",
			"conversation_id", conversationID, "error", err)
	}
	if err := s.cache.Expire(ctx, key, s.config.HistoryTTL); err != nil {
		slog.Default().Warn("History cache expire failed",
			"conversation_id", conversationID, "error", err)
	}
}

// invalidateListPages deletes every cached conversation-list page for the
// owner. Pages are invalidated, never patched in place.
func (s *Store) invalidateListPages(ctx context.Context, ownerID string) {
	keys, err := s.cache.Scan(ctx, listPattern(ownerID))
	if err != nil {
		slog.Default().Warn("List cache scan failed", "owner_id", ownerID, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.Default().Warn("List cache invalidation failed", "owner_id", ownerID, "error", err)
	}
}

func encodeHistoryItem(message *Message) []byte {
	data, _ := json.Marshal(&historyItem{
		ID:        message.ID,
		Role:      message.Role,
		Content:   message.Content,
		CreatedTs: message.CreatedTs,
	})
	return data
}

func decodeHistory(conversationID string, items [][]byte) ([]*Message, error) {
	messages := make([]*Message, 0, len(items))
	for _, raw := range items {
		item := &historyItem{}
		if err := json.Unmarshal(raw, item); err != nil {
			return nil, errors.Wrap(err, "decode history item")
		}
		messages = append(messages, &Message{
			ID:             item.ID,
			ConversationID: conversationID,
			Role:           item.Role,
			Content:        item.Content,
			CreatedTs:      item.CreatedTs,
		})
	}
	return messages, nil
}
