// Package postgres implements the store over a Postgres database, the same
// shape the hosted backend keeps conversations in.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studytutor/chat-client/internal/model"
	"github.com/studytutor/chat-client/internal/store"
)

// Store persists conversations through a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateConversation(ctx context.Context, userID, title, modelID string) (*model.Conversation, error) {
	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Model:     modelID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	const query = `
		INSERT INTO conversations (id, user_id, title, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.pool.Exec(ctx, query, conv.ID, conv.UserID, conv.Title, conv.Model, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	const query = `
		SELECT id, user_id, title, model, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Model, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

func (s *Store) UpdateConversationTitle(ctx context.Context, id, title string) error {
	return s.updateConversation(ctx,
		`UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1`, id, title)
}

func (s *Store) UpdateConversationModel(ctx context.Context, id, modelID string) error {
	return s.updateConversation(ctx,
		`UPDATE conversations SET model = $2, updated_at = now() WHERE id = $1`, id, modelID)
}

func (s *Store) TouchConversation(ctx context.Context, id string) error {
	return s.updateConversation(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, id)
}

func (s *Store) updateConversation(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	const query = `
		SELECT id, conversation_id, role, content, attachments, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		var attachments []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &attachments, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments for message %s: %w", msg.ID, err)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *Store) InsertMessage(ctx context.Context, conversationID string, msg model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var attachments []byte
	if len(msg.Attachments) > 0 {
		data, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("encode attachments: %w", err)
		}
		attachments = data
	}

	const query = `
		INSERT INTO messages (id, conversation_id, role, content, attachments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query, msg.ID, conversationID, msg.Role, msg.Content, attachments, msg.CreatedAt)
	return err
}

// DeleteConversation removes messages before the conversation record; the
// foreign key requires that ordering.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	return tx.Commit(ctx)
}

func (s *Store) GetUserSettings(ctx context.Context, userID string) (model.UserSettings, error) {
	const query = `
		SELECT user_id, custom_instructions, memory_enabled
		FROM user_settings
		WHERE user_id = $1
	`
	var settings model.UserSettings
	err := s.pool.QueryRow(ctx, query, userID).Scan(&settings.UserID, &settings.CustomInstructions, &settings.MemoryEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UserSettings{UserID: userID}, nil
	}
	if err != nil {
		return model.UserSettings{}, err
	}
	return settings, nil
}
