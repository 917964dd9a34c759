package v1

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/convoflow/convoflow/server/chat"
	enginerrors "github.com/convoflow/convoflow/internal/errors"
	"github.com/convoflow/convoflow/server/sse"
	"github.com/convoflow/convoflow/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100

	ownerHeader  = "X-Owner-ID"
	defaultOwner = "default"
)

func ownerID(c echo.Context) string {
	if owner := c.Request().Header.Get(ownerHeader); owner != "" {
		return owner
	}
	if owner := c.QueryParam("owner"); owner != "" {
		return owner
	}
	return defaultOwner
}

// ListConversations handles GET /api/v1/conversations.
func (s *APIV1Service) ListConversations(c echo.Context) error {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return httpError(c, err)
	}
	limit, err := queryInt(c, "limit", defaultPageLimit)
	if err != nil {
		return httpError(c, err)
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	list, err := s.Store.ListConversations(c.Request().Context(), ownerID(c), offset, limit)
	if err != nil {
		return httpError(c, enginerrors.StoreUnavailable("list conversations", err))
	}
	return c.JSON(http.StatusOK, list)
}

type conversationDetail struct {
	ID        string             `json:"id"`
	Title     string             `json:"title,omitempty"`
	CreatedTs int64              `json:"created_ts"`
	UpdatedTs int64              `json:"updated_ts"`
	Messages  []*messageResponse `json:"messages"`
}

type messageResponse struct {
	ID        string               `json:"id"`
	Role      store.Role           `json:"role"`
	Content   store.MessageContent `json:"content"`
	CreatedTs int64                `json:"created_ts"`
}

// GetConversation handles GET /api/v1/conversations/:id.
func (s *APIV1Service) GetConversation(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	conversation, err := s.Store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			return httpError(c, enginerrors.NotFound("conversation not found"))
		}
		return httpError(c, enginerrors.StoreUnavailable("get conversation", err))
	}

	messages, err := s.Store.GetMessages(ctx, id)
	if err != nil {
		return httpError(c, enginerrors.StoreUnavailable("get messages", err))
	}

	detail := &conversationDetail{
		ID:        conversation.ID,
		Title:     conversation.Title,
		CreatedTs: conversation.CreatedTs,
		UpdatedTs: conversation.UpdatedTs,
		Messages:  make([]*messageResponse, 0, len(messages)),
	}
	for _, m := range messages {
		detail.Messages = append(detail.Messages, &messageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedTs: m.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, detail)
}

type streamRequest struct {
	ConversationID string          `json:"conversation_id"`
	Messages       []streamMessage `json:"messages"`
}

type streamMessage struct {
	ID      string               `json:"id"`
	Role    store.Role           `json:"role"`
	Content store.MessageContent `json:"content"`
}

// StreamConversation handles POST /api/v1/conversations/stream. The response
// is a Server-Sent Events stream terminated by the [DONE] sentinel.
func (s *APIV1Service) StreamConversation(c echo.Context) error {
	var body streamRequest
	if err := c.Bind(&body); err != nil {
		return httpError(c, enginerrors.InvalidArgument("invalid request body"))
	}

	req := &chat.ChatRequest{
		OwnerID:        ownerID(c),
		ConversationID: body.ConversationID,
	}
	for _, m := range body.Messages {
		role := m.Role
		if role == "" {
			role = store.RoleUser
		}
		req.Messages = append(req.Messages, chat.InboundMessage{
			ID:      m.ID,
			Role:    role,
			Content: m.Content,
		})
	}

	response := c.Response()
	sse.PrepareHeaders(response.Header())

	writer := sse.NewWriter(response, response)
	var writeMu sync.Mutex
	started := false
	send := func(event *chat.Event) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if !started {
			response.WriteHeader(http.StatusOK)
			started = true
		}
		return writer.WriteEvent(event)
	}

	// Comment frames keep proxies from timing out the connection while the
	// generator is still thinking.
	stop := make(chan struct{})
	keepAliveDone := make(chan struct{})
	defer func() {
		close(stop)
		<-keepAliveDone
	}()
	go func() {
		defer close(keepAliveDone)
		ticker := time.NewTicker(s.keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-c.Request().Context().Done():
				return
			case <-ticker.C:
				writeMu.Lock()
				if started {
					_ = writer.WriteComment("keepalive")
				}
				writeMu.Unlock()
			}
		}
	}()

	if err := s.Streamer.Stream(c.Request().Context(), req, send); err != nil {
		if !started {
			return httpError(c, err)
		}
		// The stream is already underway; nothing more can reach the client.
		return nil
	}
	return nil
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, enginerrors.InvalidArgument(name + " must be a non-negative integer")
	}
	return value, nil
}
