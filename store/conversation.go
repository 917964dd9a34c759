package store

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageContent is the structured message body: a content type tag plus an
// ordered list of text parts.
type MessageContent struct {
	ContentType string   `json:"content_type"`
	Parts       []string `json:"parts"`
}

// Text joins the string parts into one newline-separated string.
func (c MessageContent) Text() string {
	out := ""
	for i, p := range c.Parts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}

type Conversation struct {
	ID        string
	OwnerID   string
	Title     string
	CreatedTs int64
	UpdatedTs int64
}

// Message rows are immutable once created. Within a conversation the order is
// defined by (CreatedTs, ID).
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        MessageContent
	CreatedTs      int64
}

type FindMessage struct {
	ID             *string
	ConversationID *string
}

// ConversationListItem is one row of a paginated conversation listing,
// including the text of the conversation's most recent message as a preview.
type ConversationListItem struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	LastMessage *string `json:"last_message"`
	UpdatedTs   int64   `json:"updated_ts"`
}

// ConversationList is the payload returned (and cached) by ListConversations.
type ConversationList struct {
	Items  []*ConversationListItem `json:"items"`
	Total  int                     `json:"total"`
	Offset int                     `json:"offset"`
	Limit  int                     `json:"limit"`
}
