// Package memory provides an in-process store implementation, used by tests
// and when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studytutor/chat-client/internal/model"
	"github.com/studytutor/chat-client/internal/store"
)

// Store keeps conversations and messages in maps guarded by a RWMutex.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message
	settings      map[string]model.UserSettings
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		settings:      make(map[string]model.UserSettings),
	}
}

func (s *Store) CreateConversation(_ context.Context, userID, title, modelID string) (*model.Conversation, error) {
	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Model:     modelID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.messages[conv.ID] = make([]model.Message, 0, 16)
	s.mu.Unlock()

	out := *conv
	return &out, nil
}

func (s *Store) ListConversations(_ context.Context, userID string) ([]*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var convs []*model.Conversation
	for _, conv := range s.conversations {
		if conv.UserID != userID {
			continue
		}
		out := *conv
		convs = append(convs, &out)
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

func (s *Store) UpdateConversationTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	conv.Title = title
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateConversationModel(_ context.Context, id, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	conv.Model = modelID
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) TouchConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListMessages(_ context.Context, conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs, ok := s.messages[conversationID]
	if !ok {
		return nil, store.ErrNotFound
	}

	copied := make([]model.Message, len(msgs))
	copy(copied, msgs)
	sort.SliceStable(copied, func(i, j int) bool {
		return copied[i].CreatedAt.Before(copied[j].CreatedAt)
	})
	return copied, nil
}

func (s *Store) InsertMessage(_ context.Context, conversationID string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return store.ErrNotFound
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.ConversationID = conversationID

	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return nil
}

func (s *Store) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.messages, id)
	delete(s.conversations, id)
	return nil
}

func (s *Store) GetUserSettings(_ context.Context, userID string) (model.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if settings, ok := s.settings[userID]; ok {
		return settings, nil
	}
	return model.UserSettings{UserID: userID}, nil
}

// PutUserSettings stores settings for a user. The real backend owns this
// write path; it exists here so tests can seed settings.
func (s *Store) PutUserSettings(settings model.UserSettings) {
	s.mu.Lock()
	s.settings[settings.UserID] = settings
	s.mu.Unlock()
}
