// Package chat implements the streaming protocol for a single conversation
// turn: it persists the inbound user messages, invokes the answer generator
// against the full conversation history, and replays the finished answer to
// the client as an ordered sequence of incremental patch events.
package chat

// SSE event names. Events without a name are sent as plain data frames.
const (
	eventNameDelta         = "delta"
	eventNameDeltaEncoding = "delta_encoding"
)

const (
	// deltaEncodingVersion is the header payload announcing the patch dialect.
	deltaEncodingVersion = "v1"
	// Sentinel is the literal end-of-transmission marker the transport writes
	// after the last event.
	Sentinel = "[DONE]"
)

// Assistant message statuses as seen by the client.
const (
	statusInProgress = "in_progress"
	statusFinished   = "finished_successfully"
)

// Patch paths into the in-flight assistant message.
const (
	patchPathFirstPart = "/message/content/parts/0"
	patchPathStatus    = "/message/status"
	patchPathEndTurn   = "/message/end_turn"
	patchPathMetadata  = "/message/metadata"
)

// Event is one frame of the outbound stream. Name is the optional SSE event
// name; Data is either a bare string (written literally, e.g. the sentinel) or
// a struct serialized as JSON. Events must be delivered in emission order.
type Event struct {
	Name string
	Data any
}

// Author identifies the author of a streamed message.
type Author struct {
	Role string `json:"role"`
}

// Content mirrors the structured message body on the wire.
type Content struct {
	ContentType string   `json:"content_type"`
	Parts       []string `json:"parts"`
}

// ResumeConversation carries the opaque continuation token minted at the start
// of every streaming turn.
type ResumeConversation struct {
	Type           string `json:"type"`
	Token          string `json:"token"`
	ConversationID string `json:"conversation_id"`
}

// InputMessage echoes the final inbound user message back to the client.
type InputMessage struct {
	ID         string  `json:"id"`
	Author     Author  `json:"author"`
	CreateTime float64 `json:"create_time"`
	Content    Content `json:"content"`
	Status     string  `json:"status"`
}

// InputMessageEvent wraps InputMessage with its conversation identity.
type InputMessageEvent struct {
	Type           string       `json:"type"`
	InputMessage   InputMessage `json:"input_message"`
	ConversationID string       `json:"conversation_id"`
}

// AssistantMessage is the empty assistant message shell established by the
// delta add event and patched incrementally afterwards.
type AssistantMessage struct {
	ID         string         `json:"id"`
	Author     Author         `json:"author"`
	CreateTime float64        `json:"create_time"`
	UpdateTime float64        `json:"update_time"`
	Content    Content        `json:"content"`
	Status     string         `json:"status"`
	Metadata   map[string]any `json:"metadata"`
}

// DeltaAddPayload is the value of a delta add event.
type DeltaAddPayload struct {
	Message        AssistantMessage `json:"message"`
	ConversationID string           `json:"conversation_id"`
}

// DeltaAdd establishes the assistant message shell ("o":"add").
type DeltaAdd struct {
	O string          `json:"o"`
	V DeltaAddPayload `json:"v"`
}

// PatchOp is one JSON-patch-style operation against the in-flight message.
type PatchOp struct {
	P string `json:"p"`
	O string `json:"o"`
	V any    `json:"v"`
}

// DeltaPatch carries an ordered list of patch operations.
type DeltaPatch struct {
	V []PatchOp `json:"v"`
}

// MessageMarker is an out-of-band signal, e.g. the first visible token.
type MessageMarker struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Marker         string `json:"marker"`
	Event          string `json:"event"`
}

// StreamError reports a failed generation; the stream still terminates with a
// normal completion after it.
type StreamError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// StreamComplete is the terminal event of every streaming turn.
type StreamComplete struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}
