package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	enginerrors "github.com/convoflow/convoflow/internal/errors"
	"github.com/convoflow/convoflow/server/internal/observability"
	"github.com/convoflow/convoflow/store"
)

// ChatRequest is one inbound streaming turn.
type ChatRequest struct {
	OwnerID        string
	ConversationID string
	Messages       []InboundMessage
}

// InboundMessage is one client-provided message. ID is optional; the server
// mints one when absent.
type InboundMessage struct {
	ID      string
	Role    store.Role
	Content store.MessageContent
}

// SendFunc delivers one event to the client. Events are delivered in the exact
// order produced; a send error means the client connection is gone.
type SendFunc func(*Event) error

// Config holds the streaming turn settings.
type Config struct {
	// WordDelay paces the per-word patches. Zero disables pacing.
	WordDelay time.Duration
	// GeneratorTimeout bounds one generator invocation. A timeout is treated
	// exactly like a generator failure.
	GeneratorTimeout time.Duration
	// TokenTTL bounds the resume-continuation token lifetime.
	TokenTTL time.Duration
}

// DefaultConfig returns the default streaming settings.
func DefaultConfig() Config {
	return Config{
		WordDelay:        10 * time.Millisecond,
		GeneratorTimeout: 60 * time.Second,
		TokenTTL:         time.Hour,
	}
}

// Streamer runs the streaming protocol state machine for conversation turns:
// Start -> Echoed -> Generating -> Delivering -> Complete, with generator
// failure short-circuiting from Generating to Complete. Every turn ends with
// exactly one stream-complete event followed by the transport sentinel, on the
// success and the error path alike.
type Streamer struct {
	store     *store.Store
	generator Generator
	signer    *TokenSigner
	metrics   *observability.Metrics
	config    Config
}

// NewStreamer creates a streamer over the given collaborators.
func NewStreamer(st *store.Store, generator Generator, signer *TokenSigner, config Config) *Streamer {
	if config.GeneratorTimeout <= 0 {
		config.GeneratorTimeout = DefaultConfig().GeneratorTimeout
	}
	return &Streamer{
		store:     st,
		generator: generator,
		signer:    signer,
		metrics:   observability.GlobalMetrics(),
		config:    config,
	}
}

// Stream executes one streaming turn. Errors returned before the first event
// belong to the transport (no stream was established); once events have been
// emitted, generation failures are reported in-stream and Stream returns nil.
func (s *Streamer) Stream(ctx context.Context, req *ChatRequest, send SendFunc) error {
	if len(req.Messages) == 0 {
		return enginerrors.InvalidArgument("at least one message is required")
	}

	s.metrics.RecordTurn()

	conversation, err := s.store.GetOrCreateConversation(ctx, req.OwnerID, req.ConversationID)
	if err != nil {
		return enginerrors.StoreUnavailable("get or create conversation", err)
	}

	logger := observability.NewRequestContext(slog.Default(), req.OwnerID, conversation.ID)
	logger.Info("Streaming turn started",
		slog.Int("inbound_messages", len(req.Messages)),
	)

	// Start: persist the inbound user messages in order.
	var lastPersisted *store.Message
	for _, m := range req.Messages {
		persisted, err := s.store.AddMessage(ctx, conversation.ID, m.Role, m.Content, m.ID)
		if err != nil {
			logger.Error("Failed to persist inbound message", err)
			return enginerrors.StoreUnavailable("persist inbound message", err)
		}
		lastPersisted = persisted
	}

	emit := func(event *Event) error {
		s.metrics.RecordStreamEvent()
		return send(event)
	}

	if err := emit(&Event{Name: eventNameDeltaEncoding, Data: deltaEncodingVersion}); err != nil {
		return err
	}

	token, err := s.signer.Sign(conversation.ID)
	if err != nil {
		return err
	}
	if err := emit(&Event{Data: &ResumeConversation{
		Type:           "resume_conversation_token",
		Token:          token,
		ConversationID: conversation.ID,
	}}); err != nil {
		return err
	}

	// Echoed: reflect the final user message back.
	if err := emit(&Event{Data: &InputMessageEvent{
		Type: "input_message",
		InputMessage: InputMessage{
			ID:         lastPersisted.ID,
			Author:     Author{Role: string(lastPersisted.Role)},
			CreateTime: tsSeconds(lastPersisted.CreatedTs),
			Content: Content{
				ContentType: lastPersisted.Content.ContentType,
				Parts:       lastPersisted.Content.Parts,
			},
			Status: statusFinished,
		},
		ConversationID: conversation.ID,
	}}); err != nil {
		return err
	}

	// Generating: the full ordered history feeds the generator.
	answer, err := s.generate(ctx, conversation.ID)
	if err != nil {
		logger.Error("Answer generation failed", err,
			slog.Int64(observability.LogFieldDuration, logger.DurationMs()),
		)
		s.metrics.RecordTurnFailure()
		return s.finish(emit, conversation.ID, err.Error())
	}

	// Delivering: the answer is persisted in full before any patch is emitted,
	// so a dropped client costs only the animation, never the answer. The
	// persist context deliberately survives client cancellation.
	assistantMessage, err := s.store.AddMessage(
		context.WithoutCancel(ctx),
		conversation.ID,
		store.RoleAssistant,
		store.MessageContent{ContentType: "text", Parts: []string{answer}},
		uuid.NewString(),
	)
	if err != nil {
		logger.Error("Failed to persist assistant message", err)
		s.metrics.RecordTurnFailure()
		return s.finish(emit, conversation.ID, "failed to persist answer")
	}

	if err := emit(&Event{Name: eventNameDelta, Data: &DeltaAdd{
		O: "add",
		V: DeltaAddPayload{
			Message: AssistantMessage{
				ID:         assistantMessage.ID,
				Author:     Author{Role: string(store.RoleAssistant)},
				CreateTime: tsSeconds(assistantMessage.CreatedTs),
				UpdateTime: tsSeconds(assistantMessage.CreatedTs),
				Content:    Content{ContentType: "text", Parts: []string{""}},
				Status:     statusInProgress,
				Metadata:   map[string]any{"parent_id": lastPersisted.ID},
			},
			ConversationID: conversation.ID,
		},
	}}); err != nil {
		return err
	}

	if err := emit(&Event{Data: &MessageMarker{
		Type:           "message_marker",
		ConversationID: conversation.ID,
		MessageID:      assistantMessage.ID,
		Marker:         "user_visible_token",
		Event:          "first",
	}}); err != nil {
		return err
	}

	if err := s.deliverWords(ctx, answer, emit); err != nil {
		return err
	}

	if err := emit(&Event{Name: eventNameDelta, Data: &DeltaPatch{V: []PatchOp{
		{P: patchPathStatus, O: "replace", V: statusFinished},
		{P: patchPathEndTurn, O: "replace", V: true},
		{P: patchPathMetadata, O: "append", V: map[string]any{"is_complete": true}},
	}}}); err != nil {
		return err
	}

	logger.Info("Streaming turn completed",
		slog.Int64(observability.LogFieldDuration, logger.DurationMs()),
		slog.Int(observability.LogFieldMessageLen, len(answer)),
	)

	return s.complete(emit, conversation.ID)
}

// generate loads the history and invokes the generator under a timeout.
func (s *Streamer) generate(ctx context.Context, conversationID string) (string, error) {
	messages, err := s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return "", enginerrors.StoreUnavailable("load history", err)
	}

	history := make([]HistoryMessage, 0, len(messages))
	for _, m := range messages {
		text := m.Content.Text()
		if text == "" {
			continue
		}
		history = append(history, HistoryMessage{Role: m.Role, Text: text})
	}

	genCtx, cancel := context.WithTimeout(ctx, s.config.GeneratorTimeout)
	defer cancel()

	answer, err := s.generator.Generate(genCtx, history)
	if err != nil {
		if genCtx.Err() == context.DeadlineExceeded {
			return "", enginerrors.Timeout("answer generation timed out")
		}
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// deliverWords replays the answer one whitespace-delimited word per patch,
// paced by the configured delay.
func (s *Streamer) deliverWords(ctx context.Context, answer string, emit func(*Event) error) error {
	var limiter *rate.Limiter
	if s.config.WordDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.config.WordDelay), 1)
	}

	for _, word := range strings.Fields(answer) {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := emit(&Event{Name: eventNameDelta, Data: &DeltaPatch{V: []PatchOp{
			{P: patchPathFirstPart, O: "append", V: word + " "},
		}}}); err != nil {
			return err
		}
	}
	return nil
}

// finish reports a failed generation in-stream and terminates cleanly.
func (s *Streamer) finish(emit func(*Event) error, conversationID, message string) error {
	if err := emit(&Event{Data: &StreamError{
		Type:  "message_stream_error",
		Error: message,
	}}); err != nil {
		return err
	}
	return s.complete(emit, conversationID)
}

// complete emits the single terminal completion event plus the sentinel.
func (s *Streamer) complete(emit func(*Event) error, conversationID string) error {
	if err := emit(&Event{Data: &StreamComplete{
		Type:           "message_stream_complete",
		ConversationID: conversationID,
	}}); err != nil {
		return err
	}
	return emit(&Event{Data: Sentinel})
}

// tsSeconds converts a microsecond timestamp to float seconds for the wire.
func tsSeconds(micro int64) float64 {
	return float64(micro) / 1e6
}
