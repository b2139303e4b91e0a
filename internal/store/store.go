// Package store defines the persistence interface the chat core consumes.
// The backing schema belongs to the backend; the core only sees this
// contract and treats writes as best-effort relative to its local state.
package store

import (
	"context"
	"errors"

	"github.com/studytutor/chat-client/internal/model"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence backend for conversations, messages and user
// settings.
type Store interface {
	// CreateConversation persists a new conversation record.
	CreateConversation(ctx context.Context, userID, title, modelID string) (*model.Conversation, error)

	// ListConversations returns the user's conversations ordered by
	// UpdatedAt descending. Message lists are not hydrated.
	ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error)

	// UpdateConversationTitle sets the derived title.
	UpdateConversationTitle(ctx context.Context, id, title string) error

	// UpdateConversationModel sets the model identifier.
	UpdateConversationModel(ctx context.Context, id, modelID string) error

	// TouchConversation bumps UpdatedAt.
	TouchConversation(ctx context.Context, id string) error

	// ListMessages returns a conversation's messages ordered by creation
	// time ascending.
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)

	// InsertMessage appends a message to a conversation.
	InsertMessage(ctx context.Context, conversationID string, msg model.Message) error

	// DeleteConversation removes the conversation and its messages. The
	// messages go first: the conversation record is referenced by them.
	DeleteConversation(ctx context.Context, id string) error

	// GetUserSettings returns the user's prompt-personalization settings.
	GetUserSettings(ctx context.Context, userID string) (model.UserSettings, error)
}
