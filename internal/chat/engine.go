// Package chat owns the conversation lifecycle: optimistic local state, the
// at-most-one-in-flight send invariant, streaming ingestion into the
// placeholder assistant message, and reconciliation with the remote store.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/studytutor/chat-client/internal/auth"
	"github.com/studytutor/chat-client/internal/gateway"
	"github.com/studytutor/chat-client/internal/model"
	"github.com/studytutor/chat-client/internal/store"
	"github.com/studytutor/chat-client/internal/transcript"
	"github.com/studytutor/chat-client/pkg/logger"
	"github.com/studytutor/chat-client/pkg/metrics"
)

const (
	titleMaxRunes  = 40
	persistTimeout = 10 * time.Second
)

// DeltaStream is a live response stream from the gateway.
type DeltaStream interface {
	Next() (model.DeltaEvent, error)
	Close() error
}

// Gateway issues chat completion requests.
type Gateway interface {
	StreamChat(ctx context.Context, token string, req *gateway.ChatRequest) (DeltaStream, error)
}

type gatewayAdapter struct {
	client *gateway.Client
}

func (a gatewayAdapter) StreamChat(ctx context.Context, token string, req *gateway.ChatRequest) (DeltaStream, error) {
	rs, err := a.client.StreamChat(ctx, token, req)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// WrapGateway adapts the concrete gateway client to the Gateway interface.
func WrapGateway(c *gateway.Client) Gateway {
	return gatewayAdapter{client: c}
}

// SendOptions are the per-send mode flags forwarded to the gateway.
type SendOptions struct {
	ThinkingMode bool
	WebSearch    bool
}

// StreamUpdate is delivered to the stream observer for every delta and once
// more when the message finalizes.
type StreamUpdate struct {
	ConversationID string
	MessageID      string
	ReasoningDelta string
	AnswerDelta    string
	Done           bool
}

// Engine is the conversation state machine. Local state is the working copy
// the UI renders; the store is authoritative on reads and best-effort on
// writes.
type Engine struct {
	store        store.Store
	gateway      Gateway
	session      *auth.Session
	defaultModel string
	log          *logger.Logger
	tracer       trace.Tracer

	mu            sync.Mutex
	conversations []*model.Conversation
	current       *model.Conversation
	inflight      map[string]context.CancelFunc
	onStream      func(StreamUpdate)
	onChange      func()
}

// NewEngine creates an engine bound to a session and its backends.
func NewEngine(st store.Store, gw Gateway, session *auth.Session, defaultModel string, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	if defaultModel == "" {
		defaultModel = model.DefaultModel
	}
	return &Engine{
		store:        st,
		gateway:      gw,
		session:      session,
		defaultModel: defaultModel,
		log:          log,
		tracer:       otel.Tracer("chat-client/engine"),
		inflight:     make(map[string]context.CancelFunc),
	}
}

// OnStream registers the observer for streaming updates.
func (e *Engine) OnStream(fn func(StreamUpdate)) {
	e.mu.Lock()
	e.onStream = fn
	e.mu.Unlock()
}

// OnChange registers the observer for structural conversation changes.
func (e *Engine) OnChange(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// LoadConversations replaces the local conversation list from the store.
func (e *Engine) LoadConversations(ctx context.Context) error {
	if !e.session.Valid() {
		return ErrAuthRequired
	}

	convs, err := e.store.ListConversations(ctx, e.session.UserID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.conversations = convs
	if e.current != nil {
		e.current = e.findLocked(e.current.ID)
	}
	e.mu.Unlock()

	e.notifyChange()
	return nil
}

// CreateConversation persists a new conversation and selects it.
func (e *Engine) CreateConversation(ctx context.Context, modelID string) (*model.Conversation, error) {
	if !e.session.Valid() {
		return nil, ErrAuthRequired
	}
	if modelID == "" {
		modelID = e.defaultModel
	}

	conv, err := e.store.CreateConversation(ctx, e.session.UserID, model.DefaultTitle, modelID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.conversations = append([]*model.Conversation{conv}, e.conversations...)
	e.current = conv
	out := snapshot(conv)
	e.mu.Unlock()

	e.notifyChange()
	return out, nil
}

// SelectConversation makes a conversation current, always reloading its
// messages from the store so local staleness cannot survive a reselect.
func (e *Engine) SelectConversation(ctx context.Context, id string) error {
	e.mu.Lock()
	conv := e.findLocked(id)
	e.mu.Unlock()
	if conv == nil {
		return store.ErrNotFound
	}

	msgs, err := e.store.ListMessages(ctx, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	conv.Messages = msgs
	e.current = conv
	e.mu.Unlock()

	e.notifyChange()
	return nil
}

// DeleteConversation removes the conversation from the backend and the
// local list, clearing the selection when it was active.
func (e *Engine) DeleteConversation(ctx context.Context, id string) error {
	if err := e.store.DeleteConversation(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	e.mu.Lock()
	if cancel, ok := e.inflight[id]; ok {
		defer cancel()
	}
	for i, conv := range e.conversations {
		if conv.ID == id {
			e.conversations = append(e.conversations[:i], e.conversations[i+1:]...)
			break
		}
	}
	if e.current != nil && e.current.ID == id {
		e.current = nil
	}
	e.mu.Unlock()

	e.notifyChange()
	return nil
}

// UpdateModel changes the current conversation's model. The store write is
// best-effort.
func (e *Engine) UpdateModel(ctx context.Context, modelID string) error {
	e.mu.Lock()
	conv := e.current
	if conv == nil {
		e.mu.Unlock()
		return ErrNoConversation
	}
	conv.Model = modelID
	id := conv.ID
	e.mu.Unlock()

	e.persist(ctx, "update_model", func(ctx context.Context) error {
		return e.store.UpdateConversationModel(ctx, id, modelID)
	})
	e.notifyChange()
	return nil
}

// Current returns a snapshot of the selected conversation, or nil.
func (e *Engine) Current() *model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	return snapshot(e.current)
}

// Conversations returns a snapshot of the local conversation list.
func (e *Engine) Conversations() []*model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*model.Conversation, len(e.conversations))
	for i, conv := range e.conversations {
		out[i] = snapshot(conv)
	}
	return out
}

// Stop aborts the in-flight stream of the current conversation, if any. The
// message finalizes with whatever content has accumulated; this is not an
// error path.
func (e *Engine) Stop() {
	e.mu.Lock()
	var cancel context.CancelFunc
	if e.current != nil {
		cancel = e.inflight[e.current.ID]
	}
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// SendMessage appends the user message optimistically, issues the gateway
// request, and folds the response stream into a placeholder assistant
// message. Blank input is a no-op; a busy conversation rejects the send.
func (e *Engine) SendMessage(ctx context.Context, text string, attachments []model.Attachment, opts SendOptions) error {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return nil
	}
	if !e.session.Valid() {
		return ErrAuthRequired
	}

	ctx, span := e.tracer.Start(ctx, "chat.SendMessage")
	defer span.End()

	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		if _, err := e.CreateConversation(ctx, ""); err != nil {
			return err
		}
		e.mu.Lock()
	}
	conv := e.current
	if conv == nil {
		// A concurrent delete can clear the selection while the lock was
		// released around the auto-create.
		e.mu.Unlock()
		return ErrNoConversation
	}

	if _, busy := e.inflight[conv.ID]; busy {
		e.mu.Unlock()
		return ErrSendInFlight
	}
	streamCtx, cancel := context.WithCancel(ctx)
	e.inflight[conv.ID] = cancel

	now := time.Now().UTC()
	userMsg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        text,
		CreatedAt:      now,
		Attachments:    attachments,
	}
	firstMessage := len(conv.Messages) == 0
	conv.Messages = append(conv.Messages, userMsg)
	conv.UpdatedAt = now
	if firstMessage {
		conv.Title = deriveTitle(text)
	}
	history := gateway.HistoryMessages(conv.Messages)

	// The placeholder timestamp must sort strictly after the user message,
	// or an equal created_at lets the backend return the pair in either
	// order on reload.
	placeholder := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		CreatedAt:      now.Add(time.Millisecond),
		IsStreaming:    true,
	}
	conv.Messages = append(conv.Messages, placeholder)

	convID := conv.ID
	modelID := conv.Model
	title := conv.Title
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.inflight, convID)
		e.mu.Unlock()
	}()

	span.SetAttributes(
		attribute.String("conversation.id", convID),
		attribute.String("llm.model", modelID),
	)
	log := e.log.WithConversation(convID)
	e.notifyChange()

	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()
	userPersisted := e.persistAsync("insert_user_message", func(ctx context.Context) error {
		return e.store.InsertMessage(ctx, convID, userMsg)
	})
	if firstMessage {
		e.persistAsync("update_title", func(ctx context.Context) error {
			return e.store.UpdateConversationTitle(ctx, convID, title)
		})
	}

	// Settings personalize the backend prompt; the string passes through
	// untouched and its absence is not an error.
	settings, err := e.store.GetUserSettings(streamCtx, e.session.UserID)
	if err != nil {
		log.Warn("failed to load user settings", zap.Error(err))
	}

	req := &gateway.ChatRequest{
		Messages:           history,
		Model:              modelID,
		ThinkingMode:       opts.ThinkingMode,
		WebSearch:          opts.WebSearch,
		CustomInstructions: settings.CustomInstructions,
	}

	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()
	start := time.Now()

	rs, err := e.gateway.StreamChat(streamCtx, e.session.Token, req)
	if err != nil {
		e.removeMessage(convID, placeholder.ID)
		metrics.RecordStream(modelID, "error", time.Since(start).Seconds())
		log.Error("gateway request failed", zap.Error(err))
		return err
	}
	defer rs.Close()

	var builder transcript.Builder
	var streamErr error
	for {
		ev, nextErr := rs.Next()
		if nextErr != nil {
			if aborted(streamCtx, nextErr) {
				log.Info("stream aborted by user")
				break
			}
			streamErr = nextErr
			break
		}
		if ev.IsTerminal {
			break
		}
		builder.Apply(ev)
		e.updateMessage(convID, placeholder.ID, builder.Content())
		e.emitStream(StreamUpdate{
			ConversationID: convID,
			MessageID:      placeholder.ID,
			ReasoningDelta: ev.ReasoningDelta,
			AnswerDelta:    ev.AnswerDelta,
		})
	}

	content := builder.Finalize()
	if streamErr != nil && content == "" {
		// Nothing arrived before the failure: roll the placeholder back so
		// the conversation returns to a clean, re-sendable state.
		e.removeMessage(convID, placeholder.ID)
		metrics.RecordStream(modelID, "error", time.Since(start).Seconds())
		log.Error("stream failed before any content", zap.Error(streamErr))
		return streamErr
	}

	final := e.finalizeMessage(convID, placeholder.ID, content)
	e.emitStream(StreamUpdate{ConversationID: convID, MessageID: placeholder.ID, Done: true})
	e.notifyChange()

	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
	status := "success"
	if streamErr != nil {
		status = "truncated"
	}
	metrics.RecordStream(modelID, status, time.Since(start).Seconds())

	// A fast stream can finish before the user-message write lands; the
	// assistant insert waits so the backend never sees the reply first.
	<-userPersisted
	e.persist(context.Background(), "insert_assistant_message", func(ctx context.Context) error {
		return e.store.InsertMessage(ctx, convID, final)
	})
	e.persist(context.Background(), "touch_conversation", func(ctx context.Context) error {
		return e.store.TouchConversation(ctx, convID)
	})

	if streamErr != nil {
		log.Warn("stream ended early, partial content kept", zap.Error(streamErr))
		return streamErr
	}
	return nil
}

// aborted reports whether the stream error is a user or caller cancellation
// rather than a transport failure.
func aborted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func (e *Engine) findLocked(id string) *model.Conversation {
	for _, conv := range e.conversations {
		if conv.ID == id {
			return conv
		}
	}
	return nil
}

func (e *Engine) updateMessage(convID, msgID, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv := e.findLocked(convID)
	if conv == nil {
		return
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].ID == msgID {
			conv.Messages[i].Content = content
			return
		}
	}
}

func (e *Engine) finalizeMessage(convID, msgID, content string) model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv := e.findLocked(convID)
	if conv == nil {
		return model.Message{ID: msgID, Role: model.RoleAssistant, Content: content}
	}
	conv.UpdatedAt = time.Now().UTC()
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].ID == msgID {
			conv.Messages[i].Content = content
			conv.Messages[i].IsStreaming = false
			return conv.Messages[i]
		}
	}
	return model.Message{ID: msgID, Role: model.RoleAssistant, Content: content}
}

func (e *Engine) removeMessage(convID, msgID string) {
	e.mu.Lock()
	conv := e.findLocked(convID)
	if conv != nil {
		for i, msg := range conv.Messages {
			if msg.ID == msgID {
				conv.Messages = append(conv.Messages[:i], conv.Messages[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()
	e.notifyChange()
}

// persist runs a best-effort store write: failures are logged and counted,
// never propagated, and local state stays authoritative for the session.
func (e *Engine) persist(ctx context.Context, op string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		metrics.RecordPersistFailure(op)
		e.log.Warn("persistence write failed", zap.String("operation", op), zap.Error(err))
	}
}

// persistAsync is persist off the caller's critical path. The returned
// channel closes when the write attempt has finished, letting dependent
// writes sequence behind it.
func (e *Engine) persistAsync(op string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.persist(context.Background(), op, fn)
	}()
	return done
}

func (e *Engine) emitStream(update StreamUpdate) {
	e.mu.Lock()
	fn := e.onStream
	e.mu.Unlock()
	if fn != nil {
		fn(update)
	}
}

func (e *Engine) notifyChange() {
	e.mu.Lock()
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func snapshot(c *model.Conversation) *model.Conversation {
	out := *c
	out.Messages = append([]model.Message(nil), c.Messages...)
	return &out
}

// deriveTitle builds the one-time conversation title from the first user
// message.
func deriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.DefaultTitle
	}
	runes := []rune(text)
	if len(runes) <= titleMaxRunes {
		return text
	}
	return string(runes[:titleMaxRunes]) + "..."
}
