package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/internal/profile"
	"github.com/convoflow/convoflow/server/chat"
	"github.com/convoflow/convoflow/store"
	"github.com/convoflow/convoflow/store/kv"
	"github.com/convoflow/convoflow/store/test"
)

func newTestService(t *testing.T, answer string) (*echo.Echo, *store.Store) {
	t.Helper()
	st := store.New(test.NewMemoryDriver(), kv.NewMemoryStore(), store.DefaultCacheConfig())
	generator := chat.GeneratorFunc(func(_ context.Context, _ []chat.HistoryMessage) (string, error) {
		return answer, nil
	})
	streamer := chat.NewStreamer(st, generator, chat.NewTokenSigner("test-secret", 0), chat.Config{
		GeneratorTimeout: chat.DefaultConfig().GeneratorTimeout,
	})

	e := echo.New()
	service := NewAPIV1Service(&profile.Profile{Mode: "dev"}, st, streamer)
	service.Register(e)
	return e, st
}

func TestListConversationsEmpty(t *testing.T) {
	e, _ := newTestService(t, "unused")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set(ownerHeader, "alice")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var list store.ConversationList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Total)
	assert.Empty(t, list.Items)
}

func TestGetConversationNotFound(t *testing.T) {
	e, _ := newTestService(t, "unused")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/missing", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp.Code)
}

func TestStreamConversation(t *testing.T) {
	e, _ := newTestService(t, "hello world")

	body := `{"messages":[{"role":"user","content":{"content_type":"text","parts":["hi"]}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/stream", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(ownerHeader, "alice")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	payload := rec.Body.String()
	assert.True(t, strings.HasPrefix(payload, "event: delta_encoding\ndata: v1\n\n"))
	assert.Contains(t, payload, `"type":"resume_conversation_token"`)
	assert.Contains(t, payload, `"type":"input_message"`)
	assert.Contains(t, payload, `"v":"hello "`)
	assert.Contains(t, payload, `"v":"world "`)
	assert.Contains(t, payload, `"type":"message_stream_complete"`)
	assert.True(t, strings.HasSuffix(payload, "data: [DONE]\n\n"))

	// The turn is durable: listing the owner's conversations shows it with the
	// answer as the preview.
	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	listReq.Header.Set(ownerHeader, "alice")
	listRec := httptest.NewRecorder()
	e.ServeHTTP(listRec, listReq)

	require.Equal(t, http.StatusOK, listRec.Code)
	var list store.ConversationList
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	require.Len(t, list.Items, 1)
	require.NotNil(t, list.Items[0].LastMessage)
	assert.Equal(t, "hello world", *list.Items[0].LastMessage)
}

func TestStreamConversationKeepAlive(t *testing.T) {
	st := store.New(test.NewMemoryDriver(), kv.NewMemoryStore(), store.DefaultCacheConfig())
	slow := chat.GeneratorFunc(func(ctx context.Context, _ []chat.HistoryMessage) (string, error) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return "done", nil
	})
	streamer := chat.NewStreamer(st, slow, chat.NewTokenSigner("test-secret", 0), chat.Config{
		GeneratorTimeout: chat.DefaultConfig().GeneratorTimeout,
	})

	e := echo.New()
	service := NewAPIV1Service(&profile.Profile{Mode: "dev"}, st, streamer)
	service.keepAliveInterval = 5 * time.Millisecond
	service.Register(e)

	body := `{"messages":[{"role":"user","content":{"content_type":"text","parts":["hi"]}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/stream", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	payload := rec.Body.String()
	// Comment frames are interleaved while the generator is still working.
	assert.Contains(t, payload, ": keepalive\n\n")
	assert.True(t, strings.HasSuffix(payload, "data: [DONE]\n\n"))
}

func TestStreamConversationRejectsEmptyBody(t *testing.T) {
	e, _ := newTestService(t, "unused")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/stream", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_ARGUMENT", resp.Code)
}
