// Package model defines data structures for the chat client.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a conversation message. An assistant message is created
// empty when a request starts and mutated in place while IsStreaming is true;
// once the stream finalizes it never changes again.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"created_at"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	IsStreaming    bool         `json:"is_streaming,omitempty"`
}

// Attachment is a transport-safe representation of a user-supplied file.
// InlineData holds a base64 data URI and is populated only for image types.
type Attachment struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MIMEType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
	InlineData string `json:"inline_data,omitempty"`
}

// IsImage reports whether the attachment carries an inline image payload.
func (a Attachment) IsImage() bool {
	return len(a.MIMEType) > 6 && a.MIMEType[:6] == "image/"
}

// DeltaEvent is one decoded increment of a model response stream. It is
// transient: produced by the stream decoder, folded into the in-progress
// message, never stored.
type DeltaEvent struct {
	AnswerDelta    string
	ReasoningDelta string
	IsTerminal     bool
}

// Empty reports whether the event carries no text on either channel.
func (e DeltaEvent) Empty() bool {
	return e.AnswerDelta == "" && e.ReasoningDelta == ""
}
