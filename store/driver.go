package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for the durable store driver.
// It contains all methods a database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Conversation model related methods.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	CountConversations(ctx context.Context, ownerID string) (int, error)

	// ListConversationPage returns one page of a user's conversations ordered by
	// updated_ts descending (id descending as tie-break), each joined to its
	// single most recent message for the preview text.
	ListConversationPage(ctx context.Context, ownerID string, offset, limit int) ([]*ConversationListItem, error)

	// Message model related methods. CreateMessage inserts the message and bumps
	// the parent conversation's updated_ts in one transaction.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
}
