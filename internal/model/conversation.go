package model

import (
	"time"
)

// DefaultTitle is the title a conversation carries until the first user
// message derives a real one.
const DefaultTitle = "New chat"

// Conversation represents a conversation thread. Messages are owned by the
// conversation: deleting it cascades to them. UpdatedAt is monotonically
// non-decreasing; Title is set once from the first user message.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Citation is one entry of a trailing sources block, derived from finalized
// assistant text on demand and never persisted separately.
type Citation struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Domain      string `json:"domain"`
}

// UserSettings personalizes the backend's system prompt. The client passes
// CustomInstructions through untouched.
type UserSettings struct {
	UserID             string `json:"user_id"`
	CustomInstructions string `json:"custom_instructions"`
	MemoryEnabled      bool   `json:"memory_enabled"`
}
