package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/convoflow/convoflow/store"
)

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	fields := []string{"id", "owner_id", "title", "created_ts", "updated_ts"}
	args := []any{create.ID, create.OwnerID, create.Title, create.CreatedTs, create.UpdatedTs}

	stmt := `INSERT INTO conversation (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}

	return create, nil
}

func (d *DB) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	stmt := `SELECT id, owner_id, title, created_ts, updated_ts FROM conversation WHERE id = ` + placeholder(1)
	conversation := &store.Conversation{}
	err := d.db.QueryRowContext(ctx, stmt, id).Scan(
		&conversation.ID, &conversation.OwnerID, &conversation.Title, &conversation.CreatedTs, &conversation.UpdatedTs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	return conversation, nil
}

func (d *DB) CountConversations(ctx context.Context, ownerID string) (int, error) {
	var total int
	stmt := `SELECT COUNT(*) FROM conversation WHERE owner_id = ` + placeholder(1)
	if err := d.db.QueryRowContext(ctx, stmt, ownerID).Scan(&total); err != nil {
		return 0, errors.Wrap(err, "failed to count conversations")
	}
	return total, nil
}

func (d *DB) ListConversationPage(ctx context.Context, ownerID string, offset, limit int) ([]*store.ConversationListItem, error) {
	query := `SELECT c.id, c.title, c.updated_ts, m.content
		FROM conversation c
		LEFT JOIN message m ON m.id = (
			SELECT id FROM message
			WHERE conversation_id = c.id
			ORDER BY created_ts DESC, id DESC
			LIMIT 1
		)
		WHERE c.owner_id = $1
		ORDER BY c.updated_ts DESC, c.id DESC
		LIMIT $2 OFFSET $3`
	rows, err := d.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversation page")
	}
	defer rows.Close()

	items := make([]*store.ConversationListItem, 0)
	for rows.Next() {
		item := &store.ConversationListItem{}
		var rawContent sql.NullString
		if err := rows.Scan(&item.ID, &item.Title, &item.UpdatedTs, &rawContent); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation page row")
		}
		item.LastMessage = previewText(rawContent)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversation page")
	}

	return items, nil
}

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	content, err := json.Marshal(create.Content)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message content")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	fields := []string{"id", "conversation_id", "role", "content", "created_ts"}
	args := []any{create.ID, create.ConversationID, create.Role, string(content), create.CreatedTs}
	stmt := `INSERT INTO message (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}

	// updated_ts is monotonically non-decreasing.
	bump := `UPDATE conversation SET updated_ts = GREATEST(updated_ts, $1) WHERE id = $2`
	if _, err := tx.ExecContext(ctx, bump, create.CreatedTs, create.ConversationID); err != nil {
		return nil, errors.Wrap(err, "failed to bump conversation updated_ts")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit message")
	}

	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}

	query := `SELECT id, conversation_id, role, content, created_ts FROM message
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts ASC, id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var rawContent string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &rawContent, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		if err := json.Unmarshal([]byte(rawContent), &m.Content); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal message content")
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}

	return list, nil
}

// previewText extracts the first text part of a message content JSON blob.
func previewText(raw sql.NullString) *string {
	if !raw.Valid {
		return nil
	}
	content := store.MessageContent{}
	if err := json.Unmarshal([]byte(raw.String), &content); err != nil {
		return nil
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return &content.Parts[0]
}
