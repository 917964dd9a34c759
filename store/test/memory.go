// Package test provides in-memory test doubles for the store layer so that
// cache and streaming behavior can be exercised hermetically.
package test

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/convoflow/convoflow/store"
)

// MemoryDriver is an in-memory store.Driver. It keeps per-method call counters
// so tests can assert whether the durable store was actually consulted.
type MemoryDriver struct {
	mu            sync.Mutex
	conversations map[string]*store.Conversation
	messages      map[string][]*store.Message // keyed by conversation id, append order

	// Call counters, guarded by mu.
	ListMessagesCalls         int
	ListConversationPageCalls int
	CountConversationsCalls   int
}

// NewMemoryDriver creates an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		conversations: make(map[string]*store.Conversation),
		messages:      make(map[string][]*store.Message),
	}
}

func (d *MemoryDriver) GetDB() *sql.DB {
	return nil
}

func (d *MemoryDriver) Close() error {
	return nil
}

func (d *MemoryDriver) CreateConversation(_ context.Context, create *store.Conversation) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := *create
	d.conversations[c.ID] = &c
	return create, nil
}

func (d *MemoryDriver) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// ownerConversations returns the owner's conversations, most recently updated
// first. Caller must hold mu.
func (d *MemoryDriver) ownerConversations(ownerID string) []*store.Conversation {
	list := make([]*store.Conversation, 0)
	for _, c := range d.conversations {
		if c.OwnerID != ownerID {
			continue
		}
		cp := *c
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].UpdatedTs != list[j].UpdatedTs {
			return list[i].UpdatedTs > list[j].UpdatedTs
		}
		return list[i].ID > list[j].ID
	})
	return list
}

func (d *MemoryDriver) CountConversations(_ context.Context, ownerID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.CountConversationsCalls++
	total := 0
	for _, c := range d.conversations {
		if c.OwnerID == ownerID {
			total++
		}
	}
	return total, nil
}

func (d *MemoryDriver) ListConversationPage(_ context.Context, ownerID string, offset, limit int) ([]*store.ConversationListItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ListConversationPageCalls++
	conversations := d.ownerConversations(ownerID)

	items := make([]*store.ConversationListItem, 0)
	for i := offset; i < len(conversations) && len(items) < limit; i++ {
		c := conversations[i]
		item := &store.ConversationListItem{
			ID:        c.ID,
			Title:     c.Title,
			UpdatedTs: c.UpdatedTs,
		}
		if msgs := d.messages[c.ID]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			if len(last.Content.Parts) > 0 {
				preview := last.Content.Parts[0]
				item.LastMessage = &preview
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (d *MemoryDriver) CreateMessage(_ context.Context, create *store.Message) (*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.conversations[create.ConversationID]
	if !ok {
		return nil, store.ErrConversationNotFound
	}

	m := *create
	d.messages[create.ConversationID] = append(d.messages[create.ConversationID], &m)
	if create.CreatedTs > c.UpdatedTs {
		c.UpdatedTs = create.CreatedTs
	}
	return create, nil
}

func (d *MemoryDriver) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ListMessagesCalls++

	list := make([]*store.Message, 0)
	appendMatch := func(msgs []*store.Message) {
		for _, m := range msgs {
			if find.ID != nil && m.ID != *find.ID {
				continue
			}
			cp := *m
			list = append(list, &cp)
		}
	}
	if find.ConversationID != nil {
		appendMatch(d.messages[*find.ConversationID])
	} else {
		for _, msgs := range d.messages {
			appendMatch(msgs)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs < list[j].CreatedTs
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}
