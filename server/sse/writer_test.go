package sse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/server/chat"
)

func TestWriteEventNamedString(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	err := w.WriteEvent(&chat.Event{Name: "delta_encoding", Data: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "event: delta_encoding\ndata: v1\n\n", buf.String())
}

func TestWriteEventSentinel(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	err := w.WriteEvent(&chat.Event{Data: chat.Sentinel})
	require.NoError(t, err)
	assert.Equal(t, "data: [DONE]\n\n", buf.String())
}

func TestWriteEventJSONPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	err := w.WriteEvent(&chat.Event{Data: &chat.StreamComplete{
		Type:           "message_stream_complete",
		ConversationID: "c1",
	}})
	require.NoError(t, err)
	assert.Equal(t, `data: {"type":"message_stream_complete","conversation_id":"c1"}`+"\n\n", buf.String())
}

func TestWriteEventNamedJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	err := w.WriteEvent(&chat.Event{Name: "delta", Data: &chat.DeltaPatch{V: []chat.PatchOp{
		{P: "/message/content/parts/0", O: "append", V: "hi "},
	}}})
	require.NoError(t, err)
	assert.Equal(t, "event: delta\n"+`data: {"v":[{"p":"/message/content/parts/0","o":"append","v":"hi "}]}`+"\n\n", buf.String())
}

func TestWriteComment(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	require.NoError(t, w.WriteComment("keepalive"))
	assert.Equal(t, ": keepalive\n\n", buf.String())
}
